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

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "adbfleet",
	Short: "Android emulator fleet automation controller",
	Long: `Fleet automation controller for Android emulators and devices, driven
entirely over ADB:

- Run YAML-defined automation scripts against one device, a batch, or the
  whole roster
- Serve a wall-clock scheduler that triggers runs on configured minutes
- Inspect live device state: connection health, connect attempts, current action
- Manage the device roster: connect, disconnect, reconnect
- List automation scripts and validate one together with its dependencies

Ideal for soak-testing apps across many emulators without a human driving
each one by hand.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(scriptsCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("config", "c", "configs/config.yaml", "Path to config.yaml")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
