package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/everydev1618/nbslot"
)

var idCmd = &cobra.Command{
	Use:   "id <context> <user> <resource>",
	Short: "Print the launch id and host label for a user on a resource",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		id, err := nbslot.LaunchID(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "launch: %s\nhost:   %s\n", id,
			nbslot.HostLabel(id, cfg.Slot.HostPrefix, cfg.Slot.Domain))
		return nil
	},
}
