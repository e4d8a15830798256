package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"myshare/storage"
)

var receivedLimit int

func init() {
	rootCmd.AddCommand(receivedCmd)
	receivedCmd.Flags().IntVar(&receivedLimit, "limit", 20, "maximum number of files listed")
}

var receivedCmd = &cobra.Command{
	Use:   "received [file-id]",
	Short: "List received files, or show one by id",
	Args:  cobra.MaximumNArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			file, err := e.store.GetReceivedFile(args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no received file with id %s", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "File ID:   %s\n", file.FileID)
			fmt.Fprintf(out, "Filename:  %s\n", file.Filename)
			fmt.Fprintf(out, "Stored At: %s\n", file.StoredPath)
			fmt.Fprintf(out, "Size:      %d bytes\n", file.Filesize)
			fmt.Fprintf(out, "SHA-256:   %s\n", file.Checksum)
			fmt.Fprintf(out, "Sender:    %s\n", file.SenderDeviceID)
			fmt.Fprintf(out, "Received:  %s\n", time.UnixMilli(file.ReceivedAt).Format(time.RFC822))
			return nil
		}

		files, err := e.store.ListReceivedFiles(receivedLimit)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintln(out, "No files received.")
			return nil
		}
		for _, file := range files {
			fmt.Fprintf(out, "%s  %s  %s (%d bytes) from %s\n",
				file.FileID,
				time.UnixMilli(file.ReceivedAt).Format(time.RFC822),
				file.Filename,
				file.Filesize,
				file.SenderDeviceID,
			)
		}
		return nil
	}),
}
