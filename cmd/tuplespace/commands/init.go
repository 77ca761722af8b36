package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/tuplespace/internal/scaffold"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter tuplespace.yml and example scenario",
	Long: `Initialize a project in the current directory.

Creates:
  • tuplespace.yml - Configuration for serve, run and bench
  • scenarios/example.yml - A scenario exercising write, read, renew and take

Use --force to overwrite existing files.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing tuplespace.yml and example scenario")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	created, err := scaffold.Initialize(".", forceInit)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess(created)
	return nil
}
