package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"myshare/crypto"
	"myshare/transfer"
	"myshare/trust"
)

var peersHistory bool

func init() {
	rootCmd.AddCommand(trustCmd, untrustCmd, peersCmd, clearTrustCmd)
	peersCmd.Flags().BoolVar(&peersHistory, "history", false, "show key rotation history for each peer")
}

var trustCmd = &cobra.Command{
	Use:   "trust <id>",
	Short: "Pin a discovered device's public key",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		device, err := locate(cmd.Context(), e, args[0])
		if err != nil {
			return err
		}

		client := transfer.NewClient(e.identity, e.cfg.DeviceName)
		publicKey, err := client.FetchPublicKey(cmd.Context(), device.Address, device.Port)
		if err != nil {
			return fmt.Errorf("fetch public key from %s: %w", device.DeviceName, err)
		}

		fingerprint := crypto.KeyFingerprint(publicKey)
		if device.KeyFingerprint == "" {
			return fmt.Errorf("%s did not advertise a key fingerprint, refusing to trust", device.DeviceID)
		}
		if device.KeyFingerprint != fingerprint {
			return fmt.Errorf("fingerprint mismatch for %s: advertised %s, served %s",
				device.DeviceID,
				crypto.FormatFingerprint(device.KeyFingerprint),
				crypto.FormatFingerprint(fingerprint),
			)
		}

		if err := e.trust.Add(device.DeviceID, device.DeviceName, publicKey); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Trusted %s (%s)\nFingerprint: %s\n",
			device.DeviceName, device.DeviceID, crypto.SSHFingerprint(publicKey))
		return nil
	}),
}

var untrustCmd = &cobra.Command{
	Use:   "untrust <id>",
	Short: "Forget a trusted device",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		deviceID, err := resolveDeviceID(e.store, args[0])
		if err != nil {
			return err
		}
		if err := e.trust.Remove(deviceID); err != nil {
			if errors.Is(err, trust.ErrNotTrusted) {
				return fmt.Errorf("%s is not trusted", args[0])
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", deviceID)
		return nil
	}),
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List trusted devices",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		out := cmd.OutOrStdout()
		entries := e.trust.List()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No trusted devices.")
			return nil
		}
		for _, entry := range entries {
			fmt.Fprintf(out, "%-20s %s  %s  added %s\n",
				entry.DeviceName,
				entry.DeviceID,
				crypto.FormatFingerprint(entry.Fingerprint),
				entry.AddedAt.Format(time.RFC822),
			)
			if !peersHistory {
				continue
			}
			rotations, err := e.store.GetRecentKeyRotationEvents(entry.DeviceID, 10)
			if err != nil {
				return err
			}
			for _, rotation := range rotations {
				fmt.Fprintf(out, "    %s  %-8s %s -> %s\n",
					time.UnixMilli(rotation.Timestamp).Format(time.RFC822),
					rotation.Decision,
					crypto.FormatFingerprint(rotation.OldKeyFingerprint),
					crypto.FormatFingerprint(rotation.NewKeyFingerprint),
				)
			}
		}
		return nil
	}),
}

var clearTrustCmd = &cobra.Command{
	Use:   "clear-trust",
	Short: "Forget every trusted device",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		count := e.trust.Len()
		if err := e.trust.Clear(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d trusted device(s)\n", count)
		return nil
	}),
}
