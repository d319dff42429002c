package nbslot

import (
	"context"
	"io"
)

// Runtime is the container runtime surface the launcher consumes. The
// container package provides a Docker implementation.
//
// Implementations report "not found" through the boolean results rather
// than errors, and wrap connectivity failures with ErrRuntimeUnavailable.
type Runtime interface {
	// VolumeExists reports whether a volume with the given name exists.
	VolumeExists(ctx context.Context, name string) (bool, error)
	// CreateVolume creates a named volume. Creating an existing volume is
	// not an error.
	CreateVolume(ctx context.Context, name string, labels map[string]string) error
	// RemoveVolume removes a named volume. A missing volume is not an error.
	RemoveVolume(ctx context.Context, name string) error

	// RunContainer creates and starts a detached container and returns its ID.
	RunContainer(ctx context.Context, spec RunSpec) (string, error)
	// RunToCompletion runs a container, waits for it to exit, collects its
	// combined output and removes it.
	RunToCompletion(ctx context.Context, spec RunSpec) (*RunResult, error)
	// RemoveContainer force-removes the container with the given name or ID.
	// It returns false when there was nothing to remove.
	RemoveContainer(ctx context.Context, nameOrID string) (bool, error)
	// InspectContainer returns the container with the given name or ID, or
	// nil when it does not exist.
	InspectContainer(ctx context.Context, nameOrID string) (*ContainerInfo, error)
	// FollowLogs streams a container's combined stdout and stderr from the
	// start. The stream ends when the container stops.
	FollowLogs(ctx context.Context, containerID string) (io.ReadCloser, error)
}

// Mount binds a named volume into a container.
type Mount struct {
	Volume   string
	Target   string
	ReadOnly bool
}

// RunSpec describes a container to run.
type RunSpec struct {
	Name    string
	Image   string
	Command []string
	Env     map[string]string
	Mounts  []Mount
	User    string
	Labels  map[string]string
}

// RunResult holds the outcome of RunToCompletion.
type RunResult struct {
	ContainerID string
	ExitCode    int
	Output      string
}

// ContainerInfo is a runtime's view of a single container.
type ContainerInfo struct {
	ID      string
	Name    string
	Image   string
	Running bool
	Volumes []string
	Env     map[string]string
}
