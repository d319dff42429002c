package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/everydev1618/nbslot"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the slot's current occupant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.slot.Status(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		fmt.Fprintf(out, "slot:  %s\nstate: %s\n", st.Name, st.State)
		if st.State == nbslot.SlotOccupied {
			o := st.Occupant
			fmt.Fprintf(out, "container: %.12s\nimage:     %s\nvolume:    %s\nhost:      %s\nrunning:   %t\n",
				o.ContainerID, o.Image, o.Volume, o.HostLabel, o.Running)
		}
		return nil
	},
}

var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Remove the slot's occupant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.slot.Evict(cmd.Context())
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the status as JSON")
}
