package inspect

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dyluth/tuplespace/pkg/bridge"
	"github.com/dyluth/tuplespace/pkg/space"
)

// ListTuples reads the mirrored tuples of one tag, or of every tag when tag is
// empty, and writes them to w sorted by id. Tuples whose lease has run out but
// whose Redis key has not yet expired are skipped.
func ListTuples(ctx context.Context, client *bridge.Client, tag string, format OutputFormat, w io.Writer) error {
	tags := []string{tag}
	if tag == "" {
		var err error
		tags, err = client.Tags(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tags: %w", err)
		}
	}

	now := time.Now()
	var tuples []*space.Tuple
	for _, tg := range tags {
		found, err := client.ListTuples(ctx, tg)
		if err != nil {
			return fmt.Errorf("failed to list tuples for tag '%s': %w", tg, err)
		}
		for _, t := range found {
			if t.Expired(now.UnixMilli()) {
				continue
			}
			tuples = append(tuples, t)
		}
	}

	sort.Slice(tuples, func(i, j int) bool {
		return tuples[i].ID < tuples[j].ID
	})

	switch format {
	case OutputFormatDefault:
		FormatTuples(w, tuples, client.InstanceName(), now)
	case OutputFormatJSONL:
		if err := FormatTuplesJSONL(w, tuples); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
