package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/tuplespace/internal/printer"
	"github.com/dyluth/tuplespace/internal/watch"
	"github.com/dyluth/tuplespace/pkg/space"
)

var (
	watchTag          string
	watchOutputFormat string
	watchKinds        []string
	watchCount        int
	watchRedisURL     string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream tuple events from Redis",
	Long: `Stream tuple events published by a running space through the Redis bridge.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch everything
  tuplespace watch

  # Watch takes and expiries of one tag
  tuplespace watch --tag job --kind taken,expired

  # Export events as JSON
  tuplespace watch --output=json > events.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchTag, "tag", "t", "", "Only events of this tag")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringSliceVar(&watchKinds, "kind", nil, "Only these event kinds (available, taken, expired, renewed)")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Exit after this many events (0 = unlimited)")
	watchCmd.Flags().StringVar(&watchRedisURL, "redis", "", "Redis URL (overrides the config file)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var format watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		format = watch.OutputFormatDefault
	case "json":
		format = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	kinds := make([]space.EventKind, 0, len(watchKinds))
	for _, k := range watchKinds {
		kind := space.EventKind(k)
		if err := kind.Validate(); err != nil {
			return printer.Error(
				"invalid event kind",
				err.Error(),
				[]string{"Valid kinds: available, taken, expired, renewed"},
			)
		}
		kinds = append(kinds, kind)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connectBridge(ctx, cfg, watchRedisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	if format == watch.OutputFormatDefault {
		scope := "all tags"
		if watchTag != "" {
			scope = fmt.Sprintf("tag '%s'", watchTag)
		}
		printer.Step("Watching %s on instance '%s' (Ctrl-C to stop)\n", scope, cfg.Instance)
	}

	return watch.StreamActivity(ctx, client, watchTag, watch.Options{
		Format: format,
		Kinds:  kinds,
		Limit:  watchCount,
	}, cmd.OutOrStdout())
}
