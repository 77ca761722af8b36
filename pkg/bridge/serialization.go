package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dyluth/tuplespace/pkg/space"
)

// Serialization helpers for converting between space values and Redis hashes.
//
// A mirrored tuple is stored as a hash whose scalar fields are plain strings and
// whose property map is one JSON-encoded field.

// EventToHash converts the tuple carried by an event to a Redis hash.
func EventToHash(ev space.Event) (map[string]interface{}, error) {
	propsJSON, err := json.Marshal(ev.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}

	priority, _ := ev.Properties[space.FieldPriority].(int64)

	return map[string]interface{}{
		"id":            strconv.FormatUint(ev.TupleID, 10),
		"tag":           ev.Tag,
		"live_until":    ev.LiveUntil,
		"priority":      priority,
		"properties":    string(propsJSON),
		"origin":        ev.Origin,
		"updated_at_ms": ev.At,
	}, nil
}

// HashToTuple converts a Redis hash back to a tuple.
func HashToTuple(hash map[string]string) (*space.Tuple, error) {
	id, err := strconv.ParseUint(hash["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid id field: %w", err)
	}
	liveUntil, err := strconv.ParseInt(hash["live_until"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid live_until field: %w", err)
	}
	priority, _ := strconv.ParseInt(hash["priority"], 10, 64)

	props, err := DecodeProperties([]byte(hash["properties"]))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
	}

	return &space.Tuple{
		ID:         id,
		Tag:        hash["tag"],
		LiveUntil:  liveUntil,
		Priority:   priority,
		Properties: props,
	}, nil
}

// DecodeEvent parses a JSON event as published on the events channels. Numbers
// in properties decode to int64 when integral and float64 otherwise, matching
// what the space stores.
func DecodeEvent(data []byte) (*space.Event, error) {
	var raw struct {
		space.Event
		Properties json.RawMessage `json:"properties,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	ev := raw.Event
	if len(raw.Properties) > 0 {
		props, err := DecodeProperties(raw.Properties)
		if err != nil {
			return nil, err
		}
		ev.Properties = props
	}
	if err := ev.Kind.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// DecodeProperties parses a JSON property map the way the space stores it.
func DecodeProperties(data []byte) (space.Properties, error) {
	if len(data) == 0 {
		return space.Properties{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	props := make(space.Properties, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case json.Number:
			if n, err := val.Int64(); err == nil {
				props[k] = n
			} else if f, err := val.Float64(); err == nil {
				props[k] = f
			} else {
				return nil, fmt.Errorf("property %q: invalid number %q", k, val)
			}
		case []interface{}:
			list := make([]string, 0, len(val))
			for _, item := range val {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("property %q: lists may only hold strings", k)
				}
				list = append(list, s)
			}
			props[k] = list
		default:
			props[k] = val
		}
	}
	return props, nil
}
