package space

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dyluth/tuplespace/internal/pool"
)

// Space is a tuple space: an in-memory associative store with blocking read and
// take, template matching, leases and change events.
type Space struct {
	store     *TupleStore
	clock     Clock
	listeners *listenerRegistry
	sinks     MultiSink
	stats     statistics
	origin    string
	logf      func(format string, args ...any)

	tasks     TaskPool
	ownedPool *pool.Pool
	closed    atomic.Bool
}

// Option configures a Space.
type Option func(*config)

type config struct {
	clock       Clock
	tasks       TaskPool
	sinks       []EventSink
	pruneEvery  int
	logf        func(format string, args ...any)
	origin      string
	workers     int
	queueSize   int
	poolOptions []pool.Option
}

// WithClock sets the time source for leases and timeouts.
func WithClock(c Clock) Option {
	return func(cfg *config) { cfg.clock = c }
}

// WithTaskPool delivers events through p. The caller owns p's lifecycle.
func WithTaskPool(p TaskPool) Option {
	return func(cfg *config) { cfg.tasks = p }
}

// WithEventPool sizes the event pool the space creates when no TaskPool is given.
func WithEventPool(workers, queueSize int, opts ...pool.Option) Option {
	return func(cfg *config) {
		cfg.workers = workers
		cfg.queueSize = queueSize
		cfg.poolOptions = opts
	}
}

// WithSinks adds event sinks. Sinks are called in order after listeners.
func WithSinks(sinks ...EventSink) Option {
	return func(cfg *config) { cfg.sinks = append(cfg.sinks, sinks...) }
}

// WithPruneEvery sets how many removals happen between empty bucket sweeps.
func WithPruneEvery(n int) Option {
	return func(cfg *config) { cfg.pruneEvery = n }
}

// WithLogger redirects the space's log output. A nil logger silences it.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(cfg *config) {
		if logf == nil {
			logf = func(string, ...any) {}
		}
		cfg.logf = logf
	}
}

// WithOrigin sets the origin stamped on every event. Defaults to a random UUID.
func WithOrigin(origin string) Option {
	return func(cfg *config) { cfg.origin = origin }
}

// New creates an empty space.
func New(opts ...Option) *Space {
	cfg := config{
		clock: SystemClock{},
		logf:  log.Printf,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.origin == "" {
		cfg.origin = uuid.NewString()
	}

	s := &Space{
		store:  NewTupleStore(cfg.pruneEvery),
		clock:  cfg.clock,
		origin: cfg.origin,
		logf:   cfg.logf,
		tasks:  cfg.tasks,
	}
	s.listeners = newListenerRegistry(s.clock, &s.stats, s.logf)
	s.sinks = append(MultiSink{s.listeners}, cfg.sinks...)

	if s.tasks == nil {
		p := pool.New(cfg.workers, cfg.queueSize, cfg.poolOptions...)
		// Start only fails when called twice.
		_ = p.Start(context.Background())
		s.ownedPool = p
		s.tasks = p
	}
	return s
}

// Close stops the space. Blocked calls are not interrupted; new calls fail with
// ErrClosed. Queued events are delivered if the owned event pool drains within
// timeout.
func (s *Space) Close(timeout time.Duration) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.ownedPool != nil {
		if err := s.ownedPool.Stop(timeout); err != nil {
			return fmt.Errorf("failed to stop event pool: %w", err)
		}
	}
	return nil
}

// Store exposes the underlying store for diagnostics.
func (s *Space) Store() *TupleStore { return s.store }

// Clock returns the space's time source.
func (s *Space) Clock() Clock { return s.clock }

// Origin returns the id stamped on events from this space.
func (s *Space) Origin() string { return s.origin }

// Stats returns a snapshot of the operation counters.
func (s *Space) Stats() Stats { return s.stats.snapshot() }

// Size returns the number of stored tuples, including expired ones not yet evicted.
func (s *Space) Size() int { return s.store.Size() }

// AllIDs returns the ids of all stored tuples.
func (s *Space) AllIDs() []uint64 { return s.store.AllIDs() }

// Write stores a tuple under tag for lease and emits an available event. A
// caller-supplied id property is honoured. Any failure is returned as an
// *ObjectError.
func (s *Space) Write(tag string, lease time.Duration, props map[string]any) (*Lease, error) {
	l, err := s.write(tag, lease, props)
	if err != nil {
		return nil, &ObjectError{Tag: tag, Err: err}
	}
	return l, nil
}

func (s *Space) write(tag string, lease time.Duration, props map[string]any) (*Lease, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if tag == "" {
		return nil, invalidArgument("tag is required")
	}
	if lease <= 0 {
		return nil, invalidArgument("lease must be positive, got %s", lease)
	}

	id, explicit, err := extractID(props)
	if err != nil {
		return nil, err
	}
	fields, err := normalizeProperties(props)
	if err != nil {
		return nil, err
	}
	if p, ok := fields[FieldPriority]; ok {
		if _, isInt := p.(int64); !isInt {
			return nil, invalidArgument("%s must be an integer, got %T", FieldPriority, p)
		}
	}

	if explicit {
		s.store.reserve(id)
	} else {
		id = s.store.NextID()
	}

	var liveUntil int64
	if lease == LeaseForever {
		liveUntil = Forever
	} else {
		liveUntil = expiryFrom(nowMillis(s.clock), lease)
	}

	e := newEntry(id, tag, liveUntil, fields)
	if err := s.store.insert(e); err != nil {
		return nil, err
	}
	s.stats.writes.Add(1)
	s.emit(EventAvailable, e)

	return &Lease{space: s, tag: tag, id: id}, nil
}

// Read returns a copy of a tuple matching tmpl, waiting up to timeout for one
// to appear. A nil tuple with a nil error means no match within the timeout.
// timeout <= 0 makes exactly one attempt.
func (s *Space) Read(ctx context.Context, tmpl *Template, timeout time.Duration) (*Tuple, error) {
	return s.findOrWait(ctx, tmpl, timeout, false)
}

// Take is like Read but removes the matched tuple. Concurrent takes never
// return the same tuple.
func (s *Space) Take(ctx context.Context, tmpl *Template, timeout time.Duration) (*Tuple, error) {
	return s.findOrWait(ctx, tmpl, timeout, true)
}

// ReadIfExists makes a single non-blocking read attempt.
func (s *Space) ReadIfExists(tmpl *Template) (*Tuple, error) {
	return s.findOrWait(context.Background(), tmpl, 0, false)
}

// TakeIfExists makes a single non-blocking take attempt.
func (s *Space) TakeIfExists(tmpl *Template) (*Tuple, error) {
	return s.findOrWait(context.Background(), tmpl, 0, true)
}

func (s *Space) findOrWait(ctx context.Context, tmpl *Template, timeout time.Duration, isTake bool) (*Tuple, error) {
	if err := validateTemplate(tmpl); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	if timeout <= 0 {
		return s.record(s.tryMatchOnce(tmpl, isTake), isTake), nil
	}

	deadline := s.clock.Now().Add(timeout)
	wallDeadline := time.Now().Add(timeout)

	bucket := s.store.acquireWaiter(tmpl.tag)
	defer s.store.releaseWaiter(bucket)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		changed := bucket.Changed()

		s.stats.blocking(isTake, 1)
		found := s.tryMatchOnce(tmpl, isTake)
		if found != nil {
			s.stats.blocking(isTake, -1)
			return s.record(found, isTake), nil
		}

		remaining := min(deadline.Sub(s.clock.Now()), time.Until(wallDeadline))
		if remaining <= 0 {
			s.stats.blocking(isTake, -1)
			return s.record(nil, isTake), nil
		}
		timer.Reset(remaining)

		select {
		case <-changed:
			s.stats.blocking(isTake, -1)
		case <-timer.C:
			s.stats.blocking(isTake, -1)
			return s.record(s.tryMatchOnce(tmpl, isTake), isTake), nil
		case <-ctx.Done():
			s.stats.blocking(isTake, -1)
			s.stats.miss(isTake)
			return nil, ctx.Err()
		}
	}
}

func validateTemplate(tmpl *Template) error {
	if tmpl == nil {
		return invalidArgument("template is required")
	}
	if tmpl.tag == "" {
		return invalidArgument("template tag is required")
	}
	return nil
}

func (s *Space) record(t *Tuple, isTake bool) *Tuple {
	if t == nil {
		s.stats.miss(isTake)
	} else {
		s.stats.hit(isTake)
	}
	return t
}

// tryMatchOnce scans the template's bucket once. Expired tuples met during the
// scan are evicted. A take that loses the race for its match scans again.
func (s *Space) tryMatchOnce(tmpl *Template, isTake bool) *Tuple {
	for {
		b := s.store.Bucket(tmpl.tag)
		if b == nil {
			return nil
		}

		now := nowMillis(s.clock)
		var (
			found   *entry
			result  *Tuple
			expired []*entry
		)
		for _, e := range b.entries() {
			if e.expired(now) {
				expired = append(expired, e)
				continue
			}
			if t, ok := e.match(tmpl, isTake); ok {
				found, result = e, t
				break
			}
		}

		for _, e := range expired {
			s.evict(e)
		}

		if found == nil {
			return nil
		}
		if !isTake {
			return result
		}
		if s.store.removeByID(found.tag, found.id) != nil {
			s.emit(EventTaken, found)
			return result
		}
		s.logf("[Space] Tuple %d ceased to exist during take, retrying", found.id)
	}
}

// Collect returns copies of every live tuple matching tmpl, highest priority
// first and then by id. Agent stamps apply to each returned tuple.
func (s *Space) Collect(tmpl *Template) ([]*Tuple, error) {
	if err := validateTemplate(tmpl); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	b := s.store.Bucket(tmpl.tag)
	if b == nil {
		s.stats.miss(false)
		return nil, nil
	}

	now := nowMillis(s.clock)
	var out []*Tuple
	for _, e := range b.entries() {
		if e.expired(now) {
			s.evict(e)
			continue
		}
		if t, ok := e.match(tmpl, false); ok {
			out = append(out, t)
		}
	}

	if len(out) == 0 {
		s.stats.miss(false)
		return nil, nil
	}
	s.stats.reads.Add(int64(len(out)))

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ReadByID returns a copy of the live tuple with id, whatever its tag.
func (s *Space) ReadByID(id uint64) *Tuple {
	tag, ok := s.store.TagOf(id)
	if !ok {
		return nil
	}
	e := s.store.findByID(tag, id)
	if e == nil {
		return nil
	}
	if e.expired(nowMillis(s.clock)) {
		s.evict(e)
		return nil
	}
	return e.snapshot()
}

// Notify registers listener for events whose properties match tmpl, for the
// given duration. Listeners run on the event pool.
func (s *Space) Notify(tmpl *Template, listener Listener, d time.Duration) (*Registration, error) {
	if err := validateTemplate(tmpl); err != nil {
		return nil, err
	}
	if listener == nil {
		return nil, invalidArgument("listener is required")
	}
	if d <= 0 {
		return nil, invalidArgument("registration duration must be positive, got %s", d)
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	id := s.listeners.add(tmpl, listener, expiryFrom(nowMillis(s.clock), d))
	return &Registration{space: s, id: id}, nil
}

// HarvestResult reports what one Harvest pass removed.
type HarvestResult struct {
	Tuples    int
	Listeners int
}

// Harvest evicts every expired tuple and cancels every expired registration.
// A failure on one item is logged and does not stop the sweep.
func (s *Space) Harvest() HarvestResult {
	now := nowMillis(s.clock)

	var res HarvestResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logf("[Harvester] Listener sweep failed: %v", r)
			}
		}()
		res.Listeners = s.listeners.expire(now)
	}()

	for _, b := range s.store.snapshotBuckets() {
		var ids []uint64
		for _, e := range b.entries() {
			if !e.expired(now) {
				continue
			}
			if s.harvestOne(e) {
				res.Tuples++
				ids = append(ids, e.id)
			}
		}
		if len(ids) > 0 {
			fields := map[string]any{"tag": b.Tag(), "count": len(ids)}
			if len(ids) < 30 {
				sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
				fields["ids"] = ids
			}
			s.logEvent("tuples_harvested", fields)
		}
	}
	return res
}

func (s *Space) harvestOne(e *entry) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logf("[Harvester] Failed to evict tuple %d: %v", e.id, r)
			ok = false
		}
	}()
	return s.evict(e)
}

func (s *Space) evict(e *entry) bool {
	if s.store.removeByID(e.tag, e.id) == nil {
		return false
	}
	s.stats.expired.Add(1)
	s.emit(EventExpired, e)
	return true
}

func (s *Space) cancel(tag string, id uint64, kind EventKind) bool {
	e := s.store.removeByID(tag, id)
	if e == nil {
		return false
	}
	if kind == EventTaken {
		s.stats.takes.Add(1)
	}
	s.emit(kind, e)
	return true
}

func (s *Space) renew(tag string, id uint64, d time.Duration) bool {
	if d <= 0 {
		return false
	}
	e := s.store.findByID(tag, id)
	if e == nil {
		return false
	}
	now := nowMillis(s.clock)
	if e.expired(now) {
		s.evict(e)
		return false
	}

	if d == LeaseForever {
		e.liveUntil.Store(Forever)
	} else {
		e.liveUntil.Store(expiryFrom(now, d))
	}
	if s.store.findByID(tag, id) == nil {
		return false
	}
	s.emit(EventRenewed, e)
	return true
}

// emit hands an event for e to the task pool. Rejection is logged and the
// event dropped; it never fails the calling operation.
func (s *Space) emit(kind EventKind, e *entry) {
	if s.closed.Load() {
		return
	}
	t := e.snapshot()
	ev := Event{
		Kind:       kind,
		Tag:        t.Tag,
		TupleID:    t.ID,
		LiveUntil:  t.LiveUntil,
		Properties: t.Properties,
		Origin:     s.origin,
		At:         nowMillis(s.clock),
	}

	err := s.tasks.Submit(func(ctx context.Context) {
		if err := s.sinks.Publish(ctx, ev); err != nil {
			s.logf("[Space] Event delivery failed for %s tuple %d: %v", ev.Kind, ev.TupleID, err)
		}
	})
	if err != nil {
		s.stats.dropped.Add(1)
		s.logf("[Space] Could not schedule %s event for tuple %d: %v", kind, e.id, err)
	}
}

// logEvent writes a structured JSON log line.
func (s *Space) logEvent(eventType string, data map[string]any) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "space"
	data["event_type"] = eventType
	data["origin"] = s.origin

	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logf("[Space] Failed to marshal log event: %v", err)
		return
	}
	s.logf("%s", jsonData)
}
