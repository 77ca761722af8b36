// Package watch streams tuple events from the Redis bridge to a terminal or a
// JSON pipeline.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dyluth/tuplespace/internal/inspect"
	"github.com/dyluth/tuplespace/pkg/bridge"
	"github.com/dyluth/tuplespace/pkg/space"
)

// OutputFormat selects how events are rendered.
type OutputFormat string

const (
	// OutputFormatDefault prints one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON prints one JSON object per line
	OutputFormatJSON OutputFormat = "json"
)

// EventStream is a source of decoded events, such as a bridge.Subscription.
type EventStream interface {
	Events() <-chan *space.Event
	Errors() <-chan error
}

var _ EventStream = (*bridge.Subscription)(nil)

// Options controls a stream.
type Options struct {
	Format OutputFormat
	// Kinds restricts output to these event kinds; empty means all.
	Kinds []space.EventKind
	// Limit stops the stream after this many printed events; 0 means unlimited.
	Limit int
}

type formatter interface {
	FormatEvent(ev *space.Event) error
	FormatError(err error) error
}

func newFormatter(format OutputFormat, w io.Writer) (formatter, error) {
	switch format {
	case OutputFormatDefault, "":
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{encoder: json.NewEncoder(w)}, nil
	}
	return nil, fmt.Errorf("unknown output format: %s", format)
}

// Stream copies events from stream to w until ctx is cancelled, the stream
// closes or the limit is reached. Cancellation is a normal way to stop and
// returns nil.
func Stream(ctx context.Context, stream EventStream, opts Options, w io.Writer) error {
	f, err := newFormatter(opts.Format, w)
	if err != nil {
		return err
	}

	printed := 0
	errs := stream.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-stream.Events():
			if !ok {
				return nil
			}
			if len(opts.Kinds) > 0 && !slices.Contains(opts.Kinds, ev.Kind) {
				continue
			}
			if err := f.FormatEvent(ev); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
			printed++
			if opts.Limit > 0 && printed >= opts.Limit {
				return nil
			}

		case err, ok := <-errs:
			if !ok {
				// Closed together with the events channel; stop selecting on it.
				errs = nil
				continue
			}
			if ferr := f.FormatError(err); ferr != nil {
				return fmt.Errorf("failed to write error: %w", ferr)
			}
		}
	}
}

// StreamActivity subscribes to the events of tag (all tags when empty) and
// streams them to w.
func StreamActivity(ctx context.Context, client *bridge.Client, tag string, opts Options, w io.Writer) error {
	sub, err := client.SubscribeEvents(ctx, tag)
	if err != nil {
		return err
	}
	defer sub.Close()

	return Stream(ctx, sub, opts, w)
}

// defaultFormatter prints timestamped, emoji-prefixed lines.
type defaultFormatter struct {
	writer io.Writer
}

var kindIcons = map[space.EventKind]string{
	space.EventAvailable: "✨",
	space.EventTaken:     "📤",
	space.EventExpired:   "⌛",
	space.EventRenewed:   "🔄",
}

func (f *defaultFormatter) FormatEvent(ev *space.Event) error {
	ts := time.UnixMilli(ev.At).Format("15:04:05.000")
	icon, ok := kindIcons[ev.Kind]
	if !ok {
		icon = "•"
	}

	line := fmt.Sprintf("[%s] %s %-9s %s#%d", ts, icon, ev.Kind, ev.Tag, ev.TupleID)
	switch ev.Kind {
	case space.EventAvailable, space.EventRenewed:
		line += fmt.Sprintf(" lease=%s", inspect.FormatRemaining(ev.LiveUntil, ev.At))
	}
	if props := inspect.FormatProperties(ev.Properties); props != "-" {
		line += " " + props
	}
	if ev.Origin != "" {
		origin := ev.Origin
		if len(origin) > 8 {
			origin = origin[:8]
		}
		line += fmt.Sprintf(" (origin %s)", origin)
	}

	_, err := fmt.Fprintln(f.writer, line)
	return err
}

func (f *defaultFormatter) FormatError(err error) error {
	_, werr := fmt.Fprintf(f.writer, "⚠️  %v\n", err)
	return werr
}

// jsonFormatter writes events exactly as published.
type jsonFormatter struct {
	encoder *json.Encoder
}

func (f *jsonFormatter) FormatEvent(ev *space.Event) error {
	return f.encoder.Encode(ev)
}

func (f *jsonFormatter) FormatError(err error) error {
	return f.encoder.Encode(map[string]string{"error": err.Error()})
}
