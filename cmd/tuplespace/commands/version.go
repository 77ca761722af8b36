package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dyluth/tuplespace/internal/printer"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printer.Printf("tuplespace %s\n", version)
		printer.Stat("commit", commit)
		printer.Stat("built", date)
		printer.Stat("go", runtime.Version())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
