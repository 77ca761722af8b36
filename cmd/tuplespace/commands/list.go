package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/tuplespace/internal/inspect"
	"github.com/dyluth/tuplespace/internal/printer"
)

var (
	listTag          string
	listOutputFormat string
	listRedisURL     string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List live tuples mirrored in Redis",
	Long: `List the tuples a running space has mirrored into Redis.

Output Formats:
  default - Human-readable table with id, tag, remaining lease and properties
  jsonl   - Line-delimited JSON, one tuple per line

Examples:
  # List every live tuple
  tuplespace list

  # Pipe one tag to jq
  tuplespace list --tag job --output=jsonl | jq '.properties'`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listTag, "tag", "t", "", "Only tuples of this tag")
	listCmd.Flags().StringVarP(&listOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	listCmd.Flags().StringVar(&listRedisURL, "redis", "", "Redis URL (overrides the config file)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := inspect.ParseOutputFormat(listOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", listOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := connectBridge(ctx, cfg, listRedisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := inspect.ListTuples(ctx, client, listTag, format, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to list tuples: %w", err)
	}
	return nil
}
