package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"ezvizswitch/internal/ezviz"

	"github.com/spf13/cobra"
)

var (
	flagSince    time.Duration
	flagPageSize int
	flagDate     string
	flagOutput   string
)

var doorbellCmd = &cobra.Command{
	Use:   "doorbell",
	Short: "Doorbell history and gate control",
}

var doorbellEventsCmd = &cobra.Command{
	Use:   "events SERIAL",
	Short: "Print the ring history of a doorbell as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDoorbell(cmd, func(ctx context.Context, d *ezviz.DoorbellClient) error {
			end := time.Now()
			page, err := d.Events(ctx, args[0], ezviz.EventQuery{
				Start:    end.Add(-flagSince),
				End:      end,
				PageSize: flagPageSize,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, page)
		})
	},
}

var doorbellSummaryCmd = &cobra.Command{
	Use:   "summary SERIAL",
	Short: "Print the events of one day (default today)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var day time.Time
		if flagDate != "" {
			parsed, err := time.ParseInLocation("2006-01-02", flagDate, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			day = parsed
		}

		return withDoorbell(cmd, func(ctx context.Context, d *ezviz.DoorbellClient) error {
			summary, err := d.Summary(ctx, args[0], day)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		})
	},
}

var doorbellOpenCmd = &cobra.Command{
	Use:   "open SERIAL",
	Short: "Open the gate wired to a doorbell",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDoorbell(cmd, func(ctx context.Context, d *ezviz.DoorbellClient) error {
			if !d.OpenGate(ctx, args[0]) {
				return fmt.Errorf("opening gate of %s failed", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Gate of %s opened\n", args[0])
			return nil
		})
	},
}

var doorbellConfigCmd = &cobra.Command{
	Use:   "config SERIAL",
	Short: "Print the doorbell configuration as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDoorbell(cmd, func(ctx context.Context, d *ezviz.DoorbellClient) error {
			config, err := d.Config(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, config)
		})
	},
}

var doorbellReadCmd = &cobra.Command{
	Use:   "read SERIAL ALARM_ID",
	Short: "Mark a doorbell event as viewed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDoorbell(cmd, func(ctx context.Context, d *ezviz.DoorbellClient) error {
			if !d.MarkViewed(ctx, args[0], args[1]) {
				return fmt.Errorf("marking event %s of %s as viewed failed", args[1], args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event %s marked as viewed\n", args[1])
			return nil
		})
	},
}

var doorbellImageCmd = &cobra.Command{
	Use:   "image SERIAL ALARM_ID",
	Short: "Download the visitor snapshot of an event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDoorbell(cmd, func(ctx context.Context, d *ezviz.DoorbellClient) error {
			image, err := d.VisitorImage(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if len(image) == 0 {
				return fmt.Errorf("no image for event %s", args[1])
			}

			output := flagOutput
			if output == "" {
				output = args[1] + ".jpg"
			}
			if err := os.WriteFile(output, image, 0644); err != nil {
				return fmt.Errorf("failed to write image: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(image), output)
			return nil
		})
	},
}

func init() {
	doorbellEventsCmd.Flags().DurationVar(&flagSince, "since", 24*time.Hour, "How far back to look (capped at 30 days)")
	doorbellEventsCmd.Flags().IntVar(&flagPageSize, "page-size", 20, "Events per page")
	doorbellSummaryCmd.Flags().StringVar(&flagDate, "date", "", "Day as YYYY-MM-DD")

	doorbellImageCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "File to write (default ALARM_ID.jpg)")

	doorbellCmd.AddCommand(doorbellEventsCmd, doorbellSummaryCmd, doorbellOpenCmd,
		doorbellConfigCmd, doorbellReadCmd, doorbellImageCmd)
	rootCmd.AddCommand(doorbellCmd)
}

func withDoorbell(cmd *cobra.Command, fn func(ctx context.Context, d *ezviz.DoorbellClient) error) error {
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

	return fn(cmd.Context(), ezviz.NewDoorbellClient(client))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
