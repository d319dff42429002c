package nbslot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"golang.org/x/sync/semaphore"
)

// Host label defaults.
const (
	DefaultHostPrefix = 12
	DefaultDomain     = "nb.docker"
)

// Launcher provisions the compute environment for a launch: it resolves the
// launch's volume, places a container bound to it in the slot and waits for
// the access token. Launches are serialized; at most one is in flight.
type Launcher struct {
	volumes    *VolumeStore
	slot       *Slot
	tokens     *TokenWatcher
	gate       *semaphore.Weighted
	hostPrefix int
	domain     string
	logger     *slog.Logger
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithDomain sets the routing domain appended to host labels.
func WithDomain(domain string) LauncherOption {
	return func(l *Launcher) {
		l.domain = domain
	}
}

// WithHostPrefix sets how many launch ID characters form the host label.
func WithHostPrefix(n int) LauncherOption {
	return func(l *Launcher) {
		l.hostPrefix = n
	}
}

// WithLauncherLogger sets the launcher's logger.
func WithLauncherLogger(lg *slog.Logger) LauncherOption {
	return func(l *Launcher) {
		l.logger = lg
	}
}

// NewLauncher composes a launcher from its parts.
func NewLauncher(volumes *VolumeStore, slot *Slot, tokens *TokenWatcher, opts ...LauncherOption) *Launcher {
	l := &Launcher{
		volumes:    volumes,
		slot:       slot,
		tokens:     tokens,
		gate:       semaphore.NewWeighted(1),
		hostPrefix: DefaultHostPrefix,
		domain:     DefaultDomain,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch provisions the environment for req and returns its access URL.
// Any failure aborts the launch; a partially started container is left in
// the slot for the next launch to evict.
func (l *Launcher) Launch(ctx context.Context, req LaunchRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := l.gate.Acquire(ctx, 1); err != nil {
		return "", &LaunchError{LaunchID: req.LaunchID, Step: "queue", Err: err}
	}
	defer l.gate.Release(1)

	log := l.logger.With("launch", shortID(req.LaunchID), "resource", req.ResourceID, "build", req.Build)
	log.Info("launch started")

	volume, err := l.volumes.Resolve(ctx, req)
	if err != nil {
		return "", l.fail(log, req, "volume", err)
	}

	host := l.HostLabel(req.LaunchID)
	containerID, err := l.slot.Start(ctx, volume, host)
	if err != nil {
		return "", l.fail(log, req, "container", err)
	}

	token, err := l.tokens.Extract(ctx, containerID)
	if err != nil {
		return "", l.fail(log, req, "token", err)
	}

	u := AccessURL(host, token)
	log.Info("launch ready", "host", host, "volume", volume)
	return u, nil
}

// HostLabel returns the host name a launch is reachable under.
func (l *Launcher) HostLabel(launchID string) string {
	return HostLabel(launchID, l.hostPrefix, l.domain)
}

// Slot returns the launcher's slot.
func (l *Launcher) Slot() *Slot {
	return l.slot
}

// Close tears down the slot. Launches after Close fail with ErrSlotClosed.
func (l *Launcher) Close(ctx context.Context) error {
	return l.slot.Close(ctx)
}

func (l *Launcher) fail(log *slog.Logger, req LaunchRequest, step string, err error) error {
	log.Error("launch failed", "step", step, "kind", Kind(err), "error", err)
	return &LaunchError{LaunchID: req.LaunchID, Step: step, Err: err}
}

// AccessURL composes the URL a user follows to reach their notebook server.
func AccessURL(host, token string) string {
	return fmt.Sprintf("http://%s/?token=%s", host, url.QueryEscape(token))
}
