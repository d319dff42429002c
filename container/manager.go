package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/everydev1618/nbslot"
)

const (
	pingTimeout = 2 * time.Second
	// removeGrace bounds cleanup of helper containers after the caller's
	// context is gone.
	removeGrace = 30 * time.Second
)

// Manager implements nbslot.Runtime on top of the Docker Engine API.
type Manager struct {
	host   string
	pull   bool
	logger *slog.Logger

	mu     sync.Mutex
	client *client.Client
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHost connects to the given daemon address instead of DOCKER_HOST.
func WithHost(host string) ManagerOption {
	return func(m *Manager) {
		m.host = host
	}
}

// WithPull controls whether missing images are pulled before running.
func WithPull(pull bool) ManagerOption {
	return func(m *Manager) {
		m.pull = pull
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a runtime manager.
// If Docker is unavailable, it still returns a Manager; operations fail with
// nbslot.ErrRuntimeUnavailable until the daemon can be reached.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		pull:   true,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if _, err := m.conn(context.Background()); err != nil {
		m.logger.Warn("docker not reachable yet", "error", err)
	}
	return m, nil
}

// IsAvailable reports whether the daemon answers a ping.
func (m *Manager) IsAvailable(ctx context.Context) bool {
	return m.Ping(ctx) == nil
}

// Ping checks that the daemon is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	cli, err := m.conn(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// conn returns a connected client, dialing the daemon if needed.
func (m *Manager) conn(ctx context.Context) (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return m.client, nil
	}
	cli, err := createDockerClient(ctx, m.host)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", nbslot.ErrRuntimeUnavailable, err)
	}
	m.client = cli
	return cli, nil
}

// createDockerClient creates a Docker client, trying multiple socket locations
// for compatibility with Docker Desktop on macOS. DOCKER_HOST, DOCKER_CERT_PATH
// and DOCKER_TLS_VERIFY are honoured through client.FromEnv.
func createDockerClient(ctx context.Context, host string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err == nil {
		if pingClient(ctx, cli) == nil {
			return cli, nil
		}
		cli.Close()
	}

	// An explicit endpoint is not second-guessed.
	if host != "" || os.Getenv("DOCKER_HOST") != "" {
		return nil, fmt.Errorf("could not connect to Docker daemon")
	}

	socketPaths := []string{
		"unix://" + os.Getenv("HOME") + "/.docker/run/docker.sock", // Docker Desktop macOS
		"unix:///var/run/docker.sock",                               // Linux default
		"unix://" + os.Getenv("HOME") + "/.colima/docker.sock",     // Colima
	}

	for _, socketPath := range socketPaths {
		cli, err := client.NewClientWithOpts(
			client.WithHost(socketPath),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			continue
		}
		if pingClient(ctx, cli) == nil {
			return cli, nil
		}
		cli.Close()
	}

	return nil, fmt.Errorf("could not connect to Docker daemon")
}

func pingClient(ctx context.Context, cli *client.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	_, err := cli.Ping(ctx)
	return err
}

// unavailable tags daemon connectivity failures so callers can tell them
// apart from API errors.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if client.IsErrConnectionFailed(err) && !errors.Is(err, nbslot.ErrRuntimeUnavailable) {
		return fmt.Errorf("%w: %w", nbslot.ErrRuntimeUnavailable, err)
	}
	return err
}

// VolumeExists implements nbslot.Runtime.
func (m *Manager) VolumeExists(ctx context.Context, name string) (bool, error) {
	cli, err := m.conn(ctx)
	if err != nil {
		return false, err
	}
	if _, err := cli.VolumeInspect(ctx, name); err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, unavailable(err)
	}
	return true, nil
}

// CreateVolume implements nbslot.Runtime.
func (m *Manager) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	cli, err := m.conn(ctx)
	if err != nil {
		return err
	}
	_, err = cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Driver: "local",
		Labels: labels,
	})
	return unavailable(err)
}

// RemoveVolume implements nbslot.Runtime.
func (m *Manager) RemoveVolume(ctx context.Context, name string) error {
	cli, err := m.conn(ctx)
	if err != nil {
		return err
	}
	if err := cli.VolumeRemove(ctx, name, true); err != nil && !cerrdefs.IsNotFound(err) {
		return unavailable(err)
	}
	return nil
}

// RunContainer implements nbslot.Runtime.
func (m *Manager) RunContainer(ctx context.Context, spec nbslot.RunSpec) (string, error) {
	cli, err := m.conn(ctx)
	if err != nil {
		return "", err
	}
	return m.create(ctx, cli, spec)
}

func (m *Manager) create(ctx context.Context, cli *client.Client, spec nbslot.RunSpec) (string, error) {
	if m.pull {
		if err := m.ensureImage(ctx, cli, spec.Image); err != nil {
			return "", fmt.Errorf("failed to pull image %s: %w", spec.Image, unavailable(err))
		}
	}

	containerCfg := &container.Config{
		Image:  spec.Image,
		Cmd:    spec.Command,
		Env:    envList(spec.Env),
		Labels: spec.Labels,
		User:   spec.User,
	}
	hostCfg := &container.HostConfig{
		Mounts: volumeMounts(spec.Mounts),
	}

	resp, err := cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", unavailable(err))
	}
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, fmt.Errorf("failed to start container: %w", unavailable(err))
	}
	return resp.ID, nil
}

// RunToCompletion implements nbslot.Runtime.
func (m *Manager) RunToCompletion(ctx context.Context, spec nbslot.RunSpec) (*nbslot.RunResult, error) {
	cli, err := m.conn(ctx)
	if err != nil {
		return nil, err
	}

	id, err := m.create(ctx, cli, spec)
	if id != "" {
		defer func() {
			rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeGrace)
			defer cancel()
			if err := cli.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true}); err != nil && !cerrdefs.IsNotFound(err) {
				m.logger.Warn("failed to remove helper container", "container", id, "error", err)
			}
		}()
	}
	if err != nil {
		return nil, err
	}

	res := &nbslot.RunResult{ContainerID: id, ExitCode: -1}

	statusCh, errCh := cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return res, fmt.Errorf("failed waiting for container: %w", unavailable(err))
	case status := <-statusCh:
		res.ExitCode = int(status.StatusCode)
		if status.Error != nil && status.Error.Message != "" {
			err = errors.New(status.Error.Message)
		}
	}

	out, logErr := m.collectLogs(ctx, cli, id)
	res.Output = out
	if err == nil && logErr != nil {
		m.logger.Debug("failed to read helper output", "container", id, "error", logErr)
	}
	return res, err
}

func (m *Manager) collectLogs(ctx context.Context, cli *client.Client, id string) (string, error) {
	reader, err := cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var output strings.Builder
	_, err = stdcopy.StdCopy(&output, &output, reader)
	if err != nil && err != io.EOF {
		return output.String(), err
	}
	return output.String(), nil
}

// RemoveContainer implements nbslot.Runtime.
func (m *Manager) RemoveContainer(ctx context.Context, nameOrID string) (bool, error) {
	cli, err := m.conn(ctx)
	if err != nil {
		return false, err
	}
	err = cli.ContainerRemove(ctx, nameOrID, container.RemoveOptions{Force: true})
	switch {
	case err == nil:
		return true, nil
	case cerrdefs.IsNotFound(err):
		return false, nil
	case cerrdefs.IsConflict(err):
		// Removal already in progress; treat as gone.
		return true, nil
	default:
		return false, unavailable(err)
	}
}

// InspectContainer implements nbslot.Runtime.
func (m *Manager) InspectContainer(ctx context.Context, nameOrID string) (*nbslot.ContainerInfo, error) {
	cli, err := m.conn(ctx)
	if err != nil {
		return nil, err
	}
	inspect, err := cli.ContainerInspect(ctx, nameOrID)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, nil
		}
		return nil, unavailable(err)
	}

	info := &nbslot.ContainerInfo{
		ID:   inspect.ID,
		Name: strings.TrimPrefix(inspect.Name, "/"),
	}
	if inspect.State != nil {
		info.Running = inspect.State.Running
	}
	if inspect.Config != nil {
		info.Image = inspect.Config.Image
		info.Env = envMap(inspect.Config.Env)
	}
	for _, mp := range inspect.Mounts {
		if mp.Type == mount.TypeVolume {
			info.Volumes = append(info.Volumes, mp.Name)
		}
	}
	return info, nil
}

// FollowLogs implements nbslot.Runtime. The multiplexed stream is split
// into a single plain-text stream of stdout and stderr.
func (m *Manager) FollowLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	cli, err := m.conn(ctx)
	if err != nil {
		return nil, err
	}
	out, err := cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, unavailable(err)
	}

	rd, wr := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(wr, wr, out)
		wr.CloseWithError(err)
	}()
	return &logStream{PipeReader: rd, src: out}, nil
}

type logStream struct {
	*io.PipeReader
	src  io.ReadCloser
	once sync.Once
}

func (s *logStream) Close() error {
	var err error
	s.once.Do(func() {
		s.PipeReader.Close()
		err = s.src.Close()
	})
	return err
}

// RemoveStaleHelpers force-removes copy helpers created more than maxAge
// ago. Helpers are normally removed as soon as they exit; this catches the
// ones a crashed process left behind. It returns how many were removed.
func (m *Manager) RemoveStaleHelpers(ctx context.Context, maxAge time.Duration) (int, error) {
	cli, err := m.conn(ctx)
	if err != nil {
		return 0, err
	}
	list, err := cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", nbslot.LabelManagedBy+"="+nbslot.ManagedByValue),
			filters.Arg("label", nbslot.LabelRole+"="+nbslot.HelperRole),
		),
	})
	if err != nil {
		return 0, unavailable(err)
	}

	cutoff := time.Now().Add(-maxAge).Unix()
	removed := 0
	var errs []error
	for _, c := range list {
		if c.Created > cutoff {
			continue
		}
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil && !cerrdefs.IsNotFound(err) {
			errs = append(errs, fmt.Errorf("remove helper %s: %w", c.ID, unavailable(err)))
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("removed stale clone helpers", "count", removed)
	}
	return removed, errors.Join(errs...)
}

// ensureImage pulls an image if not present locally.
func (m *Manager) ensureImage(ctx context.Context, cli *client.Client, imageName string) error {
	_, err := cli.ImageInspect(ctx, imageName)
	if err == nil {
		return nil // Image exists
	}
	if !cerrdefs.IsNotFound(err) {
		return err
	}

	m.logger.Info("pulling image", "image", imageName)
	reader, err := cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	// Consume the reader to complete the pull
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close closes the Docker client.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		err := m.client.Close()
		m.client = nil
		return err
	}
	return nil
}

// envList renders env in KEY=VALUE form, sorted for stable container configs.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func envMap(env []string) map[string]string {
	out := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		out[k] = v
	}
	return out
}

func volumeMounts(mounts []nbslot.Mount) []mount.Mount {
	out := make([]mount.Mount, 0, len(mounts))
	for _, mt := range mounts {
		out = append(out, mount.Mount{
			Type:     mount.TypeVolume,
			Source:   mt.Volume,
			Target:   mt.Target,
			ReadOnly: mt.ReadOnly,
		})
	}
	return out
}

var _ nbslot.Runtime = (*Manager)(nil)
