package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"myshare/storage"
)

var (
	eventsLimit int
	eventsPeer  string
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "maximum number of events")
	eventsCmd.Flags().StringVar(&eventsPeer, "peer", "", "only events for this device id")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show rejected uploads and other security events",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		events, err := e.store.GetSecurityEvents(storage.SecurityEventFilter{
			PeerDeviceID: eventsPeer,
			Limit:        eventsLimit,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No security events.")
			return nil
		}
		for _, event := range events {
			peer := "-"
			if event.PeerDeviceID != nil {
				peer = *event.PeerDeviceID
			}
			fmt.Fprintf(out, "%s  %-8s %-24s %s %s\n",
				time.UnixMilli(event.Timestamp).Format(time.RFC822),
				event.Severity,
				event.EventType,
				peer,
				event.Details,
			)
		}
		return nil
	}),
}
