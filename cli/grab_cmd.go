package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"myshare/crypto"
	"myshare/grab"
)

func init() {
	rootCmd.AddCommand(grabCmd, releaseCmd, statusCmd)
}

var grabCmd = &cobra.Command{
	Use:   "grab <file>",
	Short: "Stage a file for the next send",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		file, err := grab.New(e.store).Grab(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Grabbed %s\n", file.Path)
		return nil
	}),
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Clear the grabbed file",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		if err := grab.New(e.store).Release(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Released.")
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local identity and state",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Device ID:       %s\n", e.identity.DeviceID)
		fmt.Fprintf(out, "Device Name:     %s\n", e.cfg.DeviceName)
		fmt.Fprintf(out, "Fingerprint:     %s\n", crypto.FormatFingerprint(e.identity.Fingerprint()))
		fmt.Fprintf(out, "SSH Fingerprint: %s\n", e.identity.SSHFingerprint())
		fmt.Fprintf(out, "Config File:     %s\n", e.cfgPath)
		fmt.Fprintf(out, "Incoming Dir:    %s\n", e.cfg.IncomingDir)
		fmt.Fprintf(out, "Trusted Peers:   %d\n", e.trust.Len())

		file, err := grab.New(e.store).Grabbed()
		switch {
		case errors.Is(err, grab.ErrNothingGrabbed):
			fmt.Fprintln(out, "Grabbed File:    none")
		case err != nil:
			return err
		default:
			fmt.Fprintf(out, "Grabbed File:    %s (since %s)\n", file.Path, file.GrabbedAt.Local().Format(time.RFC822))
		}

		received, err := e.store.ListReceivedFiles(5)
		if err != nil {
			return err
		}
		if len(received) > 0 {
			fmt.Fprintln(out, "Recently Received:")
			for _, r := range received {
				fmt.Fprintf(out, "  %s  %s (%d bytes) from %s\n",
					time.UnixMilli(r.ReceivedAt).Format(time.RFC822), r.Filename, r.Filesize, r.SenderDeviceID)
			}
		}
		return nil
	}),
}
