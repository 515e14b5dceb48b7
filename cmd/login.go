package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session tokens in the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, loader, logger, err := setup(true)
		if err != nil {
			return err
		}
		defer logger.Sync()

		// Force a fresh login even when the file already holds tokens
		cfg.SessionID, cfg.RfSessionID = "", ""
		client, err := connect(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		session := client.Session()
		cfg.SessionID = session.SessionID
		cfg.RfSessionID = session.RfSessionID
		if err := loader.Save(cfg); err != nil {
			return err
		}

		logger.Info("Session stored", zap.String("path", loader.Path()))
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in, session written to %s\n", loader.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
