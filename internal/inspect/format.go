// Package inspect renders tuples and journal entries for the CLI.
package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/tuplespace/internal/journal"
	"github.com/dyluth/tuplespace/pkg/space"
)

// OutputFormat specifies how list output is rendered.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with truncated properties
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs one complete JSON object per line
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSONL:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format: %s", s)
}

// TupleView is the JSON form of a tuple.
type TupleView struct {
	ID         uint64           `json:"id"`
	Tag        string           `json:"tag"`
	LiveUntil  int64            `json:"live_until"`
	Priority   int64            `json:"priority,omitempty"`
	SeenBy     []string         `json:"seen_by,omitempty"`
	Properties space.Properties `json:"properties"`
}

// NewTupleView converts t, dropping the fields that have their own column.
func NewTupleView(t *space.Tuple) TupleView {
	props := make(space.Properties, len(t.Properties))
	for k, v := range t.Properties {
		switch k {
		case space.FieldID, space.FieldTag, space.FieldAgent:
			continue
		}
		props[k] = v
	}
	return TupleView{
		ID:         t.ID,
		Tag:        t.Tag,
		LiveUntil:  t.LiveUntil,
		Priority:   t.Priority,
		SeenBy:     t.SeenBy(),
		Properties: props,
	}
}

// FormatTuples writes tuples as a table and returns the number written.
// now is used to render remaining lease time.
func FormatTuples(w io.Writer, tuples []*space.Tuple, instanceName string, now time.Time) int {
	if len(tuples) == 0 {
		fmt.Fprintf(w, "No tuples found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Tuples for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-8s %-16s %-4s %-9s %-5s %s\n",
		"ID", "TAG", "PRI", "LEASE", "SEEN", "PROPERTIES")
	fmt.Fprintf(w, "%-8s %-16s %-4s %-9s %-5s %s\n",
		"--------", "----------------", "----", "---------", "-----", "----------------------------------------")

	nowMs := now.UnixMilli()
	for _, t := range tuples {
		fmt.Fprintf(w, "%-8d %-16s %-4s %-9s %-5s %s\n",
			t.ID,
			truncate(t.Tag, 16),
			formatPriority(t.Priority),
			FormatRemaining(t.LiveUntil, nowMs),
			formatSeen(t.SeenBy()),
			FormatProperties(t.Properties),
		)
	}

	countMsg := "tuple"
	if len(tuples) != 1 {
		countMsg = "tuples"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(tuples), countMsg)

	return len(tuples)
}

// FormatTuplesJSONL writes tuples as line-delimited JSON, ready for jq.
func FormatTuplesJSONL(w io.Writer, tuples []*space.Tuple) error {
	for _, t := range tuples {
		data, err := json.Marshal(NewTupleView(t))
		if err != nil {
			return fmt.Errorf("failed to marshal tuple to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatEntries writes journal entries as a table and returns the number written.
func FormatEntries(w io.Writer, entries []journal.Entry, now time.Time) int {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No journal entries found")
		return 0
	}

	fmt.Fprintf(w, "%-6s %-8s %-9s %-16s %-8s %-8s %s\n",
		"SEQ", "AGE", "KIND", "TAG", "TUPLE", "ORIGIN", "PROPERTIES")
	fmt.Fprintf(w, "%-6s %-8s %-9s %-16s %-8s %-8s %s\n",
		"------", "--------", "---------", "----------------", "--------", "--------", "----------------------------------------")

	for _, e := range entries {
		fmt.Fprintf(w, "%-6d %-8s %-9s %-16s %-8d %-8s %s\n",
			e.Seq,
			FormatAge(e.Event.At, now),
			e.Event.Kind,
			truncate(e.Event.Tag, 16),
			e.Event.TupleID,
			formatOrigin(e.Event.Origin),
			FormatProperties(e.Event.Properties),
		)
	}

	countMsg := "entry"
	if len(entries) != 1 {
		countMsg = "entries"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(entries), countMsg)

	return len(entries)
}

// FormatEntriesJSONL writes journal entries as line-delimited JSON.
func FormatEntriesJSONL(w io.Writer, entries []journal.Entry) error {
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal journal entry to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatProperties renders properties as sorted key=value pairs, skipping the
// id, tag and agent fields, truncated to 40 characters. Empty sets return "-".
func FormatProperties(props space.Properties) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		switch k {
		case space.FieldID, space.FieldTag, space.FieldAgent:
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "-"
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, props[k]))
	}
	return truncate(strings.Join(parts, " "), 40)
}

// FormatRemaining renders the time left on a lease: "forever", "expired", or
// the largest whole unit remaining.
func FormatRemaining(liveUntil, nowMs int64) string {
	if liveUntil == space.Forever {
		return "forever"
	}
	if liveUntil <= nowMs {
		return "expired"
	}
	return compactDuration(time.Duration(liveUntil-nowMs) * time.Millisecond)
}

// FormatAge formats a Unix millisecond timestamp as relative time like "2m ago".
func FormatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}
	diff := now.Sub(time.UnixMilli(timestampMs))
	if diff < 0 {
		diff = 0
	}
	return compactDuration(diff) + " ago"
}

func compactDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func formatPriority(p int64) string {
	if p == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", p)
}

func formatSeen(agents []string) string {
	if len(agents) == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", len(agents))
}

// formatOrigin shortens origin UUIDs to 8 characters.
func formatOrigin(origin string) string {
	if origin == "" {
		return "-"
	}
	return truncateID(origin)
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}
