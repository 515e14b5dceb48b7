package main

import (
	"fmt"

	"ezvizswitch/internal/ezviz"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var switchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Toggle one capability of a device",
}

func newToggleCmd(use string, enable int) *cobra.Command {
	return &cobra.Command{
		Use:   use + " SERIAL TYPE",
		Short: fmt.Sprintf("Turn a capability %s (TYPE is a code like 14 or a name like PLUG)", use),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			serial := args[0]
			switchType, err := ezviz.ParseSwitchType(args[1])
			if err != nil {
				return err
			}

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

			if !client.SwitchStatus(cmd.Context(), serial, switchType, enable) {
				return fmt.Errorf("switching %s %s %s failed", serial, switchType, use)
			}

			logger.Info("Switch set",
				zap.String("serial", serial),
				zap.Stringer("switch_type", switchType),
				zap.Int("enable", enable))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", serial, switchType, use)
			return nil
		},
	}
}

func init() {
	switchCmd.AddCommand(newToggleCmd("on", 1))
	switchCmd.AddCommand(newToggleCmd("off", 0))
	rootCmd.AddCommand(switchCmd)
}
