package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/everydev1618/nbslot"
	"github.com/everydev1618/nbslot/container"
	"github.com/everydev1618/nbslot/internal/config"
	"github.com/everydev1618/nbslot/internal/logging"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"

	// cfgFile allows specifying a custom config file
	cfgFile string
	// verbose forces debug logging
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "nbslot",
		Short: "Provision a notebook server per tool launch",
		Long: `nbslot resolves a storage volume for each launch, seeds it from the
resource's template volume, runs a single notebook container bound to it
and returns the notebook's access URL.

The Docker daemon is reached through DOCKER_HOST, DOCKER_CERT_PATH and
DOCKER_TLS_VERIFY.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $NBSLOT_HOME/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(evictCmd)
	rootCmd.AddCommand(idCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sweepCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode gives each failure kind its own status so scripts can react.
func exitCode(err error) int {
	switch nbslot.Kind(err) {
	case nbslot.KindInvalidRequest:
		return 2
	case nbslot.KindRuntimeUnavailable:
		return 3
	case nbslot.KindCloneFailed:
		return 4
	case nbslot.KindTokenTimeout:
		return 5
	}
	return 1
}

// app is the wired set of components a command works with.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	runtime  *container.Manager
	slot     *nbslot.Slot
	launcher *nbslot.Launcher
}

func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, path, err := config.Load(cmd.Context(), cfgFile)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(os.Stderr, level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	if path != "" {
		logger.Debug("loaded config", "path", path)
	}
	return cfg, logger, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	rt, err := container.NewManager(
		container.WithPull(cfg.Pull),
		container.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}

	slot := nbslot.NewSlot(rt,
		nbslot.WithSlotName(cfg.Slot.Name),
		nbslot.WithImage(cfg.Slot.Image),
		nbslot.WithPort(cfg.Slot.Port),
		nbslot.WithWorkspace(cfg.Slot.Workspace),
		nbslot.WithSlotLogger(logger),
	)
	cloner := nbslot.NewVolumeCloner(rt,
		nbslot.WithCloneImage(cfg.Clone.Image),
		nbslot.WithCloneOwner(cfg.Clone.Owner),
		nbslot.WithClonerLogger(logger),
	)
	volumes := nbslot.NewVolumeStore(rt, cloner,
		nbslot.WithCloneHook(slot.EvictWriter),
		nbslot.WithVolumeLogger(logger),
	)
	tokens := nbslot.NewTokenWatcher(rt,
		nbslot.WithTokenTimeout(cfg.Token.Timeout),
		nbslot.WithTokenLogger(logger),
	)
	launcher := nbslot.NewLauncher(volumes, slot, tokens,
		nbslot.WithDomain(cfg.Slot.Domain),
		nbslot.WithHostPrefix(cfg.Slot.HostPrefix),
		nbslot.WithLauncherLogger(logger),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		runtime:  rt,
		slot:     slot,
		launcher: launcher,
	}, nil
}

func (a *app) Close() {
	if err := a.runtime.Close(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("closing runtime", "error", err)
	}
}
