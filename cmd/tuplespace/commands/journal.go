package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/tuplespace/internal/inspect"
	"github.com/dyluth/tuplespace/internal/journal"
	"github.com/dyluth/tuplespace/internal/printer"
	"github.com/dyluth/tuplespace/internal/timespec"
)

var (
	journalPath         string
	journalAfter        int64
	journalSince        string
	journalUntil        string
	journalTag          string
	journalTupleID      uint64
	journalLimit        int
	journalOutputFormat string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print recorded events from the SQLite journal",
	Long: `Print events recorded by the journal sink, oldest first.

Time Filters:
  --since  - Events at or after this time (duration or RFC3339)
  --until  - Events before this time (duration or RFC3339)

Examples:
  # Everything in the last hour
  tuplespace journal --since 1h

  # The history of one tuple as JSONL
  tuplespace journal --tuple 42 --output jsonl

  # Page through with --after
  tuplespace journal --after 1000 --limit 100`,
	Args: cobra.NoArgs,
	RunE: runJournal,
}

func init() {
	journalCmd.Flags().StringVar(&journalPath, "path", "", "Journal database (default: journal.path from the config)")
	journalCmd.Flags().Int64Var(&journalAfter, "after", 0, "Only entries with a sequence number above this")
	journalCmd.Flags().StringVar(&journalSince, "since", "", "Show events after time (duration or RFC3339)")
	journalCmd.Flags().StringVar(&journalUntil, "until", "", "Show events before time (duration or RFC3339)")
	journalCmd.Flags().StringVarP(&journalTag, "tag", "t", "", "Only events of this tag")
	journalCmd.Flags().Uint64Var(&journalTupleID, "tuple", 0, "Only events of this tuple id")
	journalCmd.Flags().IntVar(&journalLimit, "limit", 0, "Maximum number of entries (0 = all)")
	journalCmd.Flags().StringVarP(&journalOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, args []string) error {
	format, err := inspect.ParseOutputFormat(journalOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", journalOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	sinceMs, untilMs, err := timespec.ParseRange(journalSince, journalUntil)
	if err != nil {
		return printer.Error("invalid time range", err.Error(), nil)
	}

	path := journalPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Journal != nil {
			path = cfg.Journal.Path
		}
	}
	if path == "" {
		return printer.Error(
			"no journal configured",
			"Neither --path nor journal.path in the configuration names a journal.",
			[]string{"Pass --path events.db", "Add a journal section to tuplespace.yml"},
		)
	}

	j, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	entries, err := j.List(context.Background(), journal.Filter{
		SinceSeq: journalAfter,
		Tag:      journalTag,
		TupleID:  journalTupleID,
		FromMs:   sinceMs,
		UntilMs:  untilMs,
		Limit:    journalLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	out := cmd.OutOrStdout()
	switch format {
	case inspect.OutputFormatJSONL:
		return inspect.FormatEntriesJSONL(out, entries)
	default:
		inspect.FormatEntries(out, entries, time.Now())
	}
	return nil
}
