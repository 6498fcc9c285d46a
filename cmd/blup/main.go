package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blup",
		Short: "BLE uppercase peripheral",
		Long: `BLE peripheral exposing a single GATT service that echoes
every write back as an uppercase notification:

- Service 0x00E1 advertised as connectable, named "periferico" by default
- Write characteristic 0x00E2 receives bytes
- Notify characteristic 0x00E3 sends them back with a-z uppercased
  to every client that enabled notifications`,
		Version:       formatVersion(version),
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("blup {{.Version}} (commit %s, built %s)\n", commit, date))

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	root.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	root.Flags().BoolP("version", "v", false, "Show version information")

	root.AddCommand(newServeCmd())
	root.AddCommand(newTableCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
