package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "Inspect automation scripts",
}

var scriptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every script available in the scripts directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "verbose")
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		names, err := a.scripts.Scan()
		if err != nil {
			return err
		}
		for _, name := range names {
			sc, err := a.scripts.Load(name)
			if err != nil {
				fmt.Printf("%s: INVALID (%v)\n", name, err)
				continue
			}
			fmt.Printf("%s\t%d steps\tnext=%s\n", sc.Name, len(sc.Steps), orDash(sc.NextConfig))
		}
		return nil
	},
}

var scriptsValidateCmd = &cobra.Command{
	Use:   "validate <name>",
	Short: "Load and validate one script, including its dependency chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "verbose")
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		sc, err := a.scripts.Load(args[0])
		if err != nil {
			return err
		}
		if err := a.scripts.CheckDependencies(sc); err != nil {
			return err
		}
		fmt.Printf("%s: OK (%d steps)\n", sc.Name, len(sc.Steps))
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	scriptsCmd.AddCommand(scriptsListCmd)
	scriptsCmd.AddCommand(scriptsValidateCmd)
}
