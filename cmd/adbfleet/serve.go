package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveScriptName string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler loop and device health checks until stopped",
	Long: `Serve starts the background health-check loop and the wall-clock
scheduler trigger together, blocking until interrupted. This is the
long-running mode a fleet controller normally runs in. With the scheduler
disabled in config, it returns as soon as it starts.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveScriptName, "script", "", "Script to trigger on each scheduled run (required)")
	_ = serveCmd.MarkFlagRequired("script")
}

func runServe(cmd *cobra.Command, args []string) error {
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
		fmt.Println("\nshutting down...")
		a.sched.StopAutomation()
		cancel()
	}()

	stop := make(chan struct{})
	defer close(stop)
	a.devices.RunHealthLoop(ctx, stop)

	a.logger.WithField("script", serveScriptName).Info("scheduler starting")
	a.sched.Run(ctx, serveScriptName)
	return nil
}
