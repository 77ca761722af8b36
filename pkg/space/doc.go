// Package space implements an in-process tuple space.
//
// A tuple is a tagged record of named fields with a lease. Tuples are grouped by
// tag into buckets; every query names exactly one tag and is answered by scanning
// that bucket only.
//
// # Operations
//
//   - Write stores a tuple and returns a Lease that can renew or cancel it.
//   - Read returns a copy of a matching tuple, waiting up to a timeout.
//   - Take is Read plus atomic removal. Concurrent takes never share a tuple.
//   - Collect returns every live match without waiting.
//   - Notify registers a Listener for change events.
//
// # Matching
//
// A Template matches a tuple when every template field is present in the tuple
// with an equal value. The id field is never compared. A template carrying an
// agentName polls as that agent: a non-destructive read stamps the agent onto the
// stored tuple, and later reads by the same agent skip it until a new tuple is
// written. Takes ignore stamps.
//
// # Blocking
//
// Blocked callers wait on their bucket's change signal, which is broadcast on
// every insertion into the bucket. Each woken caller rescans and waits again with
// whatever time is left, so the total wait never exceeds the timeout. A timeout is
// not an error: Read and Take return a nil tuple and a nil error.
//
// # Expiry and events
//
// Expired tuples are never returned. They are evicted when a scan meets them or
// when the Harvester sweeps. Available, Taken, Expired and Renewed events are
// delivered through a bounded task pool to listeners and any configured
// EventSink. A saturated or stopped pool drops the event and logs it; writes and
// takes never fail because of event delivery.
package space
