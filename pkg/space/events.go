package space

import (
	"context"
	"errors"
	"fmt"
)

// EventKind names a tuple state change.
type EventKind string

// Event kinds emitted by the space.
const (
	EventAvailable EventKind = "available"
	EventTaken     EventKind = "taken"
	EventExpired   EventKind = "expired"
	EventRenewed   EventKind = "renewed"
)

// Validate checks the kind is one the space emits.
func (k EventKind) Validate() error {
	switch k {
	case EventAvailable, EventTaken, EventExpired, EventRenewed:
		return nil
	default:
		return fmt.Errorf("invalid event kind: %q", k)
	}
}

// Event describes a change to one tuple. Properties is a copy of the tuple's
// fields at the time of the change.
type Event struct {
	Kind       EventKind  `json:"kind"`
	Tag        string     `json:"tag"`
	TupleID    uint64     `json:"tuple_id"`
	LiveUntil  int64      `json:"live_until"`
	Properties Properties `json:"properties,omitempty"`
	Origin     string     `json:"origin"`
	At         int64      `json:"at"`
}

// EventSink receives tuple events. Publish is called from the event pool, never
// from the goroutine performing the write or take.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event) error

// Publish calls f.
func (f EventSinkFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// MultiSink delivers each event to every sink in order. A failing or panicking
// sink does not prevent delivery to the rest; all failures are joined.
type MultiSink []EventSink

// Publish fans ev out to every sink.
func (m MultiSink) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range m {
		if err := publishSafely(ctx, sink, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func publishSafely(ctx context.Context, sink EventSink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event sink panicked: %v", r)
		}
	}()
	return sink.Publish(ctx, ev)
}

// TaskPool runs work asynchronously. A non-nil error from Submit means the task
// was rejected and will not run.
type TaskPool interface {
	Submit(task func(ctx context.Context)) error
}
