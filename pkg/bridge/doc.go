// Package bridge connects a tuple space to Redis.
//
// A Client is a space.EventSink. Every event the space emits is published as
// JSON on two Pub/Sub channels: one carrying all events of the instance and one
// per tag. Other processes can follow the space with SubscribeEvents without
// sharing memory with it.
//
// With mirroring enabled the client also keeps a read-only copy of the live
// tuples in Redis:
//
//	tuplespace:{instance}:tuple:{id}   hash, expires with the tuple's lease
//	tuplespace:{instance}:tag:{tag}    set of mirrored ids for the tag
//	tuplespace:{instance}:tags         set of tags seen
//
// The mirror is informational. It is updated asynchronously from the event pool
// and is not consulted by the space, so it may briefly lag the store and loses
// entries whenever the pool drops an event.
package bridge
