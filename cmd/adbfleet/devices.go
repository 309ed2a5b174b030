package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage the device roster",
}

var devicesConnectCmd = &cobra.Command{
	Use:   "connect <device-id>",
	Short: "Connect one device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "verbose")
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		if err := a.devices.Connect(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s connected\n", args[0])
		return nil
	},
}

var devicesDisconnectCmd = &cobra.Command{
	Use:   "disconnect <device-id>",
	Short: "Disconnect one device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "verbose")
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		if err := a.devices.Disconnect(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s disconnected\n", args[0])
		return nil
	},
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every device in the roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "verbose")
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return displayDeviceTable(a)
	},
}

func init() {
	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesConnectCmd)
	devicesCmd.AddCommand(devicesDisconnectCmd)
}
