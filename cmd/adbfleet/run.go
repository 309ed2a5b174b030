package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runDeviceFilter []string

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run an automation script once against the fleet",
	Long: `Run loads one script by name and runs it against every roster device
(or just --devices, if given), following any next_config chain to
completion, then exits.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVar(&runDeviceFilter, "devices", nil, "Restrict the run to these device IDs")
}

func runRun(cmd *cobra.Command, args []string) error {
	scriptName := args[0]

	a, err := newApp(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, stopping run...")
		a.sched.StopAutomation()
		cancel()
	}()

	progress := NewProgressPrinter(fmt.Sprintf("Running %s", scriptName), "running")
	progress.Start()
	defer progress.Stop()

	targets := runDeviceFilter
	if len(targets) == 0 {
		a.sched.RunAutomation(ctx, scriptName)
	} else {
		a.sched.RunSpecificConfig(ctx, scriptName, targets)
	}

	return nil
}
