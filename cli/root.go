// Package cli implements the myshare command line.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"myshare/config"
	"myshare/discovery"
	"myshare/identity"
	"myshare/storage"
	"myshare/trust"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:           "myshare",
	Short:         "Share files between trusted devices on the local network",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging, loadDotEnv)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initLogging() {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("ignoring unreadable .env", "error", err)
			return
		}
		slog.Debug("no .env file found, using environment")
	}
}

// env is the opened local state shared by commands.
type env struct {
	cfg      *config.DeviceConfig
	cfgPath  string
	identity *identity.Identity
	store    *storage.Store
	trust    *trust.Store
}

func openEnv() (*env, error) {
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	id, err := identity.LoadOrCreate(identity.PathsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	fingerprint := id.Fingerprint()
	if cfg.KeyFingerprint != fingerprint {
		cfg.KeyFingerprint = fingerprint
		if err := config.Save(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("persist key fingerprint: %w", err)
		}
	}

	store, _, err := storage.Open(filepath.Dir(cfgPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store.SetSecurityEventRetention(storage.DefaultSecurityEventRetention)

	trustStore, err := trust.Load(store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load trust store: %w", err)
	}

	return &env{
		cfg:      cfg,
		cfgPath:  cfgPath,
		identity: id,
		store:    store,
		trust:    trustStore,
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		slog.Warn("database close error", "error", err)
	}
}

func (e *env) discoveryConfig(port int) discovery.Config {
	return discovery.Config{
		ScanTimeout:    time.Duration(e.cfg.DiscoveryTimeoutSeconds) * time.Second,
		SelfDeviceID:   e.identity.DeviceID,
		DeviceName:     e.cfg.DeviceName,
		ListeningPort:  port,
		KeyFingerprint: e.identity.Fingerprint(),
	}
}

// withEnv adapts a command body that needs the opened local state.
func withEnv(run func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		return run(cmd, e, args)
	}
}
