package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"myshare/crypto"
	"myshare/storage"
)

var discoverFresh bool

func init() {
	rootCmd.AddCommand(discoverCmd, devicesCmd)
	discoverCmd.Flags().BoolVar(&discoverFresh, "fresh", false, "forget previously registered short ids before scanning")
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the local network for devices",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		out := cmd.OutOrStdout()
		if discoverFresh {
			if err := e.store.ClearDevices(); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "Scanning for %s...\n", e.discoveryConfig(0).ScanTimeout)

		records, err := browseDevices(cmd.Context(), e.discoveryConfig(0))
		if err != nil {
			return fmt.Errorf("discover devices: %w", err)
		}
		devices, err := registerRecords(e.store, records)
		if err != nil {
			return err
		}

		if len(devices) == 0 {
			fmt.Fprintln(out, "No devices found.")
			return nil
		}
		printDevices(out, e, devices)
		return nil
	}),
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices registered by earlier scans",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		devices, err := e.store.ListDevices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No registered devices. Run discover.")
			return nil
		}
		printDevices(cmd.OutOrStdout(), e, devices)
		return nil
	}),
}

func printDevices(out io.Writer, e *env, devices []storage.DiscoveredDevice) {
	for _, device := range devices {
		marker := " "
		if e.trust.IsTrusted(device.DeviceID) {
			marker = "*"
		}
		seen := ""
		if device.LastSeen > 0 {
			seen = "  seen " + time.UnixMilli(device.LastSeen).Format(time.RFC822)
		}
		fmt.Fprintf(out, "%s [%s] %-20s %s:%d  %s%s\n",
			marker,
			device.ShortID,
			device.DeviceName,
			device.Address,
			device.Port,
			crypto.FormatFingerprint(device.KeyFingerprint),
			seen,
		)
	}
}
