package space

import "slices"

// Matches reports whether a tuple field set satisfies tmpl.
//
// The id field is never compared. For a non-destructive read by an agent, a tuple
// whose agentName list already holds that agent does not match. The agentName
// field itself is metadata and never part of the subset comparison. Every other
// template field must be present in fields with an equal value.
//
// Matches has no side effects; stamping happens when the space matches a stored
// tuple.
func Matches(fields Properties, tmpl *Template, isTake bool) bool {
	if tmpl == nil {
		return false
	}
	if tag, ok := fields[FieldTag].(string); ok && tag != tmpl.tag {
		return false
	}
	if !isTake && tmpl.agent != "" {
		if seen, ok := fields[FieldAgent].([]string); ok && slices.Contains(seen, tmpl.agent) {
			return false
		}
	}
	return subsetOf(tmpl.fields, fields)
}

func subsetOf(tmpl, fields Properties) bool {
	for k, want := range tmpl {
		if k == FieldID || k == FieldAgent {
			continue
		}
		got, ok := fields[k]
		if !ok || !valuesEqual(want, got) {
			return false
		}
	}
	return true
}

// match applies tmpl to a stored entry. On a non-destructive read by an agent
// the visibility check and the stamp happen under the entry lock, so each agent
// is delivered the entry at most once even under concurrent reads.
func (e *entry) match(tmpl *Template, isTake bool) (*Tuple, bool) {
	if !subsetOf(tmpl.fields, e.fields) {
		return nil, false
	}
	if isTake || tmpl.agent == "" {
		return e.snapshot(), true
	}

	e.mu.Lock()
	if slices.Contains(e.agents, tmpl.agent) {
		e.mu.Unlock()
		return nil, false
	}
	e.agents = append(e.agents, tmpl.agent)
	agents := slices.Clone(e.agents)
	e.mu.Unlock()

	return e.snapshotWith(agents), true
}
