package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"ezvizswitch/internal/coordinator"
	"ezvizswitch/internal/ezviz"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the switchable devices of the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, logger, err := setup(true)
		if err != nil {
			return err
		}
		defer logger.Sync()

		client, err := connect(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		list, err := client.PageList(cmd.Context(), ezviz.SwitchFilter)
		if err != nil {
			return err
		}
		inv := coordinator.BuildInventory(list)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SERIAL\tNAME\tTYPE\tSTATUS\tSWITCHES")
		for _, serial := range inv.Serials() {
			device := inv[serial]
			status := "online"
			if device.Offline() {
				status = "offline"
			}
			var caps []string
			for _, c := range device.Capabilities {
				state := "off"
				if c.On() {
					state = "on"
				}
				caps = append(caps, fmt.Sprintf("%s=%s", c.SwitchType, state))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", device.Serial, device.Name, device.DeviceType, status, strings.Join(caps, ","))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
