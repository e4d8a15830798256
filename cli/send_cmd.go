package cli

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"myshare/crypto"
	"myshare/grab"
	"myshare/storage"
	"myshare/transfer"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <id> [file]",
	Short: "Send a file to a trusted device",
	Long:  "Send a file to a trusted device. Without a file argument the grabbed file is sent.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		path, err := sendPath(e, args)
		if err != nil {
			return err
		}

		deviceID, err := resolveDeviceID(e.store, args[0])
		if err != nil {
			return err
		}
		pinned, ok := e.trust.PublicKey(deviceID)
		if !ok {
			return fmt.Errorf("%s is not trusted, run trust first", args[0])
		}

		device, err := locate(cmd.Context(), e, deviceID)
		if err != nil {
			return err
		}

		state := transfer.NewState()
		state.Set(transfer.ModeSendArmed)
		client := transfer.NewClient(e.identity, e.cfg.DeviceName, transfer.WithClientState(state))

		served, err := client.FetchPublicKey(cmd.Context(), device.Address, device.Port)
		if err != nil {
			return fmt.Errorf("fetch public key from %s: %w", device.DeviceName, err)
		}
		if !bytes.Equal(served, pinned) {
			if err := e.store.RecordKeyRotationEvent(storage.KeyRotationEvent{
				PeerDeviceID:      device.DeviceID,
				OldKeyFingerprint: crypto.KeyFingerprint(pinned),
				NewKeyFingerprint: crypto.KeyFingerprint(served),
				Decision:          storage.KeyRotationDecisionRejected,
			}); err != nil {
				slog.Warn("record rejected key rotation", "device_id", device.DeviceID, "error", err)
			}
			return fmt.Errorf("%s presented a key that does not match the pinned key, refusing to send", device.DeviceID)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Sending %s to %s...\n", path, device.DeviceName)
		if err := client.SendFile(cmd.Context(), device.Address, device.Port, path, device.DeviceID); err != nil {
			return fmt.Errorf("send failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Sent.")
		return nil
	}),
}

func sendPath(e *env, args []string) (string, error) {
	if len(args) == 2 {
		return args[1], nil
	}
	file, err := grab.New(e.store).Grabbed()
	if err != nil {
		return "", fmt.Errorf("no file given: %w", err)
	}
	return file.Path, nil
}
