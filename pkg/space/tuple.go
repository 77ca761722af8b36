package space

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Reserved property names. FieldID and FieldTag always mirror the tuple's
// dedicated fields; FieldAgent carries the agent-visibility stamps.
const (
	FieldID       = "id"
	FieldTag      = "tag"
	FieldAgent    = "agentName"
	FieldPriority = "priority"
)

// LeaseForever is the lease duration of a tuple that never expires.
const LeaseForever = time.Duration(math.MaxInt64)

// Properties is the field map of a tuple or template. Values are limited to
// string, bool, integer and floating point numbers, and []string.
type Properties map[string]any

// Tuple is a snapshot of a stored tuple. Values returned by the space are copies;
// mutating them has no effect on the store.
type Tuple struct {
	ID         uint64
	Tag        string
	LiveUntil  int64
	Priority   int64
	Properties Properties
}

// SeenBy returns the agents that have already been delivered this tuple by a
// non-destructive read.
func (t *Tuple) SeenBy() []string {
	agents, _ := t.Properties[FieldAgent].([]string)
	return slices.Clone(agents)
}

// Expired reports whether the tuple's lease had run out at nowMs.
func (t *Tuple) Expired(nowMs int64) bool {
	return t.LiveUntil <= nowMs
}

// Get returns the named property.
func (t *Tuple) Get(key string) (any, bool) {
	v, ok := t.Properties[key]
	return v, ok
}

// String returns a compact representation for logs.
func (t *Tuple) String() string {
	return fmt.Sprintf("%s#%d%v", t.Tag, t.ID, sortedProps(t.Properties))
}

// entry is the stored form of a tuple. The field map is immutable after insertion
// except for the agent stamps, which are guarded by mu together with the
// visibility check.
type entry struct {
	id        uint64
	tag       string
	priority  int64
	liveUntil atomic.Int64
	fields    Properties

	mu     sync.Mutex
	agents []string
}

func newEntry(id uint64, tag string, liveUntil int64, fields Properties) *entry {
	e := &entry{id: id, tag: tag, fields: fields}
	e.liveUntil.Store(liveUntil)
	if p, ok := fields[FieldPriority].(int64); ok {
		e.priority = p
	}
	if agents, ok := fields[FieldAgent].([]string); ok {
		e.agents = slices.Clone(agents)
		delete(fields, FieldAgent)
	}
	fields[FieldID] = int64(id)
	fields[FieldTag] = tag
	return e
}

func (e *entry) expired(nowMs int64) bool {
	return e.liveUntil.Load() <= nowMs
}

// snapshot copies the entry into a Tuple. Caller must not hold e.mu.
func (e *entry) snapshot() *Tuple {
	e.mu.Lock()
	agents := slices.Clone(e.agents)
	e.mu.Unlock()
	return e.snapshotWith(agents)
}

func (e *entry) snapshotWith(agents []string) *Tuple {
	props := make(Properties, len(e.fields)+1)
	for k, v := range e.fields {
		if s, ok := v.([]string); ok {
			v = slices.Clone(s)
		}
		props[k] = v
	}
	if len(agents) > 0 {
		props[FieldAgent] = agents
	}
	return &Tuple{
		ID:         e.id,
		Tag:        e.tag,
		LiveUntil:  e.liveUntil.Load(),
		Priority:   e.priority,
		Properties: props,
	}
}

// normalizeProperties copies props into canonical form: integers become int64,
// floats become float64 and agentName becomes []string. The reserved id and tag
// keys are dropped; the caller reinstates them.
func normalizeProperties(props map[string]any) (Properties, error) {
	out := make(Properties, len(props)+2)
	for k, v := range props {
		if k == "" {
			return nil, invalidArgument("empty property name")
		}
		if k == FieldID || k == FieldTag {
			continue
		}
		nv, err := normalizeValue(k, v)
		if err != nil {
			return nil, err
		}
		if nv == nil {
			continue
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(key string, v any) (any, error) {
	if key == FieldAgent {
		switch a := v.(type) {
		case nil:
			return nil, nil
		case string:
			if a == "" {
				return nil, nil
			}
			return []string{a}, nil
		case []string:
			return slices.Clone(a), nil
		case []any:
			out := make([]string, 0, len(a))
			for _, item := range a {
				s, ok := item.(string)
				if !ok {
					return nil, invalidArgument("property %q: agent names must be strings, got %T", key, item)
				}
				out = append(out, s)
			}
			return out, nil
		default:
			return nil, invalidArgument("property %q: unsupported agent name type %T", key, v)
		}
	}

	switch n := v.(type) {
	case nil:
		return nil, nil
	case string, bool, int64, float64:
		return n, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, invalidArgument("property %q: value %d overflows int64", key, n)
		}
		return int64(n), nil
	case float32:
		return float64(n), nil
	case []string:
		return slices.Clone(n), nil
	case []any:
		out := make([]string, 0, len(n))
		for _, item := range n {
			s, ok := item.(string)
			if !ok {
				return nil, invalidArgument("property %q: lists may only hold strings, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, invalidArgument("property %q: unsupported value type %T", key, v)
	}
}

// extractID reads a caller-supplied id, if any.
func extractID(props map[string]any) (uint64, bool, error) {
	raw, ok := props[FieldID]
	if !ok || raw == nil {
		return 0, false, nil
	}
	v, err := normalizeValue(FieldID, raw)
	if err != nil {
		return 0, false, err
	}
	switch n := v.(type) {
	case int64:
		if n <= 0 {
			return 0, false, invalidArgument("id must be positive, got %d", n)
		}
		return uint64(n), true, nil
	case float64:
		if n <= 0 || n != math.Trunc(n) || n > math.MaxInt64 {
			return 0, false, invalidArgument("id must be a positive integer, got %v", n)
		}
		return uint64(n), true, nil
	default:
		return 0, false, invalidArgument("id must be an integer, got %T", raw)
	}
}

func valuesEqual(a, b any) bool {
	if av, ok := a.([]string); ok {
		bv, ok := b.([]string)
		return ok && slices.Equal(av, bv)
	}
	if _, ok := b.([]string); ok {
		return false
	}
	return a == b
}

func sortedProps(p Properties) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		if k == FieldID || k == FieldTag {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return out
}
