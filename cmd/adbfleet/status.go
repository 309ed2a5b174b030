package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	statusWatch bool
	statusTail  string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state of every device in the roster",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Refresh every second until interrupted")
	statusCmd.Flags().StringVar(&statusTail, "tail", "", "Also print the recent log tail for this device ID")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx := context.Background()
	if err := a.devices.RefreshStatuses(ctx); err != nil {
		a.logger.WithError(err).Warn("status refresh failed, showing cached state")
	}

	if !statusWatch {
		if err := displayDeviceTable(a); err != nil {
			return err
		}
		return displayTail(a)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		_ = a.devices.RefreshStatuses(ctx)
		clearScreen()
		if err := displayDeviceTable(a); err != nil {
			return err
		}
		if err := displayTail(a); err != nil {
			return err
		}
	}
	return nil
}

func displayTail(a *app) error {
	if statusTail == "" {
		return nil
	}
	fmt.Printf("\n--- %s (last %d lines) ---\n", statusTail, a.cfg.UI.MaxLines)
	for _, line := range a.tailHook.Lines(statusTail) {
		fmt.Println(line)
	}
	return nil
}

func displayDeviceTable(a *app) error {
	records := a.devices.All()
	if len(records) == 0 {
		fmt.Println("No devices in roster")
		return nil
	}

	var w io.Writer = os.Stdout
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tATTEMPTS\tACTION")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, r := range records {
		action := r.CurrentAction
		if action == "" {
			action = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Name, r.State, r.ConnectionAttempts, action)
	}
	return tw.Flush()
}

func clearScreen() {
	fmt.Fprint(os.Stdout, "\033[2J\033[H")
}
