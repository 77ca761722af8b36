package space

import (
	"maps"
	"strings"
)

// Template is a prepared match query. A field present in the template must be
// present with an equal value in a matching tuple; absent fields are wildcards.
// Templates are immutable and may be reused across calls and goroutines.
type Template struct {
	tag    string
	agent  string
	fields Properties
}

// NewTemplate prepares a template for tag. The id property is ignored since ids
// are never compared. A string agentName property becomes the polling agent of
// the template rather than a field to compare.
func NewTemplate(tag string, fields map[string]any) (*Template, error) {
	if strings.TrimSpace(tag) == "" {
		return nil, invalidArgument("template tag is required")
	}

	var agent string
	if raw, ok := fields[FieldAgent]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, invalidArgument("template %s must be a string, got %T", FieldAgent, raw)
		}
		agent = s
	}

	normalized, err := normalizeProperties(fields)
	if err != nil {
		return nil, err
	}
	delete(normalized, FieldAgent)

	return &Template{tag: tag, agent: agent, fields: normalized}, nil
}

// MustTemplate is like NewTemplate but panics on error. Intended for tests and
// package-level template variables.
func MustTemplate(tag string, fields map[string]any) *Template {
	t, err := NewTemplate(tag, fields)
	if err != nil {
		panic(err)
	}
	return t
}

// Tag returns the bucket the template queries.
func (t *Template) Tag() string { return t.tag }

// Agent returns the polling agent name, or "" if the template has none.
func (t *Template) Agent() string { return t.agent }

// Fields returns a copy of the fields compared by the template.
func (t *Template) Fields() Properties { return maps.Clone(t.fields) }

// WithAgent returns a copy of the template polling as agent.
func (t *Template) WithAgent(agent string) *Template {
	return &Template{tag: t.tag, agent: agent, fields: t.fields}
}
