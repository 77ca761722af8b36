package bridge

import (
	"fmt"
	"strconv"
)

// Redis key pattern helpers
//
// All keys and Pub/Sub channels are namespaced by instance name so several
// spaces can share one Redis server.
//
// Key pattern: tuplespace:{instance}:{entity}:{id}
// Channel pattern: tuplespace:{instance}:events

// TupleKey returns the Redis key of a mirrored tuple hash.
// Pattern: tuplespace:{instance}:tuple:{id}
func TupleKey(instanceName string, id uint64) string {
	return fmt.Sprintf("tuplespace:%s:tuple:%s", instanceName, strconv.FormatUint(id, 10))
}

// TagIndexKey returns the Redis key of the set of tuple ids mirrored for a tag.
// Pattern: tuplespace:{instance}:tag:{tag}
func TagIndexKey(instanceName, tag string) string {
	return fmt.Sprintf("tuplespace:%s:tag:%s", instanceName, tag)
}

// TagsKey returns the Redis key of the set of tags with mirrored tuples.
// Pattern: tuplespace:{instance}:tags
func TagsKey(instanceName string) string {
	return fmt.Sprintf("tuplespace:%s:tags", instanceName)
}

// EventsChannel returns the Pub/Sub channel carrying every event of the instance.
// Pattern: tuplespace:{instance}:events
func EventsChannel(instanceName string) string {
	return fmt.Sprintf("tuplespace:%s:events", instanceName)
}

// TagEventsChannel returns the Pub/Sub channel carrying events for one tag.
// Pattern: tuplespace:{instance}:tag:{tag}:events
func TagEventsChannel(instanceName, tag string) string {
	return fmt.Sprintf("tuplespace:%s:tag:%s:events", instanceName, tag)
}
