package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"myshare/auth"
	"myshare/config"
	"myshare/discovery"
	"myshare/transfer"
)

const shutdownTimeout = 10 * time.Second

var receivePort int

func init() {
	rootCmd.AddCommand(armReceiveCmd)
	armReceiveCmd.Flags().IntVar(&receivePort, "port", 0, "listen on this port instead of the configured one")
}

var armReceiveCmd = &cobra.Command{
	Use:   "arm-receive",
	Short: "Accept files from devices until interrupted",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sink, err := buildSink(ctx, e.cfg)
		if err != nil {
			return err
		}

		var nonces auth.NonceStore = auth.NewMemoryNonceCache()
		if e.cfg.PersistNonces {
			nonces = auth.NewPersistentNonceStore(e.store)
		}
		window := time.Duration(e.cfg.TimestampWindowSeconds) * time.Second

		server, err := transfer.NewServer(transfer.Options{
			Identity: e.identity,
			Trust:    e.trust,
			Verifier: auth.NewVerifier(nonces, window),
			Sink:     sink,
			Recorder: e.store,
			State:    transfer.NewState(),
		})
		if err != nil {
			return err
		}

		addr := e.cfg.ListenAddress()
		if receivePort > 0 {
			addr = ":" + strconv.Itoa(receivePort)
		}
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		port := listener.Addr().(*net.TCPAddr).Port

		served := make(chan error, 1)
		go func() {
			served <- server.Serve(listener)
		}()

		advertiser, err := discovery.StartAdvertiser(e.discoveryConfig(port))
		if err != nil {
			slog.Warn("discovery advertising failed, peers must be reached directly", "error", err)
		} else {
			defer advertiser.Stop()
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Receiving as %s on port %d\n", e.cfg.DeviceName, port)
		fmt.Fprintf(out, "Saving to %s\n", e.cfg.IncomingDir)
		fmt.Fprintln(out, "Press Ctrl+C to stop.")

		select {
		case <-ctx.Done():
		case err := <-served:
			if err != nil {
				return fmt.Errorf("transfer server stopped: %w", err)
			}
			return nil
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown transfer server: %w", err)
		}
		<-served
		fmt.Fprintln(out, "Stopped.")
		return nil
	}),
}

func buildSink(ctx context.Context, cfg *config.DeviceConfig) (transfer.Sink, error) {
	local := transfer.NewDirSink(cfg.IncomingDir)
	if cfg.Sink != config.SinkS3 {
		return local, nil
	}
	sink, err := transfer.NewS3Sink(ctx, local, cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return nil, fmt.Errorf("configure s3 sink: %w", err)
	}
	return sink, nil
}
