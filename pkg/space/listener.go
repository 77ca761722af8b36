package space

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// Listener is notified of events whose properties match its template.
type Listener interface {
	Notify(ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev Event)

// Notify calls f.
func (f ListenerFunc) Notify(ev Event) { f(ev) }

type listenerHolder struct {
	id        uint64
	tmpl      *Template
	listener  Listener
	liveUntil atomic.Int64
}

// listenerRegistry holds Notify registrations. It is an EventSink so dispatch
// shares the space's event path.
type listenerRegistry struct {
	mu        sync.RWMutex
	listeners map[uint64]*listenerHolder
	seq       atomic.Uint64

	clock Clock
	stats *statistics
	logf  func(format string, args ...any)
}

func newListenerRegistry(clock Clock, stats *statistics, logf func(string, ...any)) *listenerRegistry {
	return &listenerRegistry{
		listeners: make(map[uint64]*listenerHolder),
		clock:     clock,
		stats:     stats,
		logf:      logf,
	}
}

func (r *listenerRegistry) add(tmpl *Template, l Listener, liveUntil int64) uint64 {
	h := &listenerHolder{id: r.seq.Add(1), tmpl: tmpl, listener: l}
	h.liveUntil.Store(liveUntil)

	r.mu.Lock()
	r.listeners[h.id] = h
	r.mu.Unlock()

	r.stats.listeners.Add(1)
	return h.id
}

func (r *listenerRegistry) cancel(id uint64) bool {
	r.mu.Lock()
	_, ok := r.listeners[id]
	delete(r.listeners, id)
	r.mu.Unlock()

	if ok {
		r.stats.listeners.Add(-1)
	}
	return ok
}

func (r *listenerRegistry) renew(id uint64, liveUntil int64) bool {
	r.mu.RLock()
	h, ok := r.listeners[id]
	r.mu.RUnlock()
	if !ok || h.liveUntil.Load() <= nowMillis(r.clock) {
		return false
	}
	h.liveUntil.Store(liveUntil)
	return true
}

func (r *listenerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// sorted returns the registrations ordered by shortest remaining lease.
func (r *listenerRegistry) sorted() []*listenerHolder {
	r.mu.RLock()
	out := make([]*listenerHolder, 0, len(r.listeners))
	for _, h := range r.listeners {
		out = append(out, h)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].liveUntil.Load(), out[j].liveUntil.Load()
		if a != b {
			return a < b
		}
		return out[i].id < out[j].id
	})
	return out
}

// Publish delivers ev to every live matching listener. Expired registrations
// found along the way are cancelled.
func (r *listenerRegistry) Publish(_ context.Context, ev Event) error {
	now := nowMillis(r.clock)
	for _, h := range r.sorted() {
		if h.liveUntil.Load() <= now {
			r.cancel(h.id)
			continue
		}
		if !Matches(ev.Properties, h.tmpl, true) {
			continue
		}
		r.deliver(h, ev)
	}
	return nil
}

func (r *listenerRegistry) deliver(h *listenerHolder, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logf("[Space] Listener %d panicked on %s event for tuple %d: %v", h.id, ev.Kind, ev.TupleID, rec)
		}
	}()
	h.listener.Notify(ev)
}

// expire cancels every registration whose lease has run out and returns how many
// were removed.
func (r *listenerRegistry) expire(now int64) int {
	removed := 0
	for _, h := range r.sorted() {
		if h.liveUntil.Load() > now {
			// sorted by expiry, nothing later can be stale
			break
		}
		if r.cancel(h.id) {
			removed++
		}
	}
	return removed
}
