package nbslot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Mount points used inside the copy helper.
const (
	cloneSourcePath = "/from"
	cloneDestPath   = "/to"
)

const (
	// HelperRole labels copy helper containers.
	HelperRole = "clone"

	DefaultCloneImage = "alpine:3.20"
	// DefaultCloneOwner is the uid:gid the compute image runs notebooks as.
	DefaultCloneOwner = "1000:100"
)

// VolumeCloner copies one volume's contents into another with a throwaway
// helper container.
type VolumeCloner struct {
	runtime Runtime
	image   string
	owner   string
	logger  *slog.Logger
}

// ClonerOption configures a VolumeCloner.
type ClonerOption func(*VolumeCloner)

// WithCloneImage sets the helper image. It must provide sh, cp and chown.
func WithCloneImage(image string) ClonerOption {
	return func(c *VolumeCloner) {
		c.image = image
	}
}

// WithCloneOwner sets the uid:gid the copied tree is chowned to.
func WithCloneOwner(owner string) ClonerOption {
	return func(c *VolumeCloner) {
		c.owner = owner
	}
}

// WithClonerLogger sets the cloner's logger.
func WithClonerLogger(l *slog.Logger) ClonerOption {
	return func(c *VolumeCloner) {
		c.logger = l
	}
}

// NewVolumeCloner creates a cloner backed by rt.
func NewVolumeCloner(rt Runtime, opts ...ClonerOption) *VolumeCloner {
	c := &VolumeCloner{
		runtime: rt,
		image:   DefaultCloneImage,
		owner:   DefaultCloneOwner,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone copies source into destination and blocks until the helper exits.
//
// On failure destination is removed, so a half-populated volume is never
// left behind for a container to bind. The caller recreates it on the next
// resolution.
func (c *VolumeCloner) Clone(ctx context.Context, source, destination string) error {
	spec := RunSpec{
		Name:    "nbslot-clone-" + uuid.NewString()[:8],
		Image:   c.image,
		Command: []string{"sh", "-c", c.script()},
		Mounts: []Mount{
			{Volume: source, Target: cloneSourcePath, ReadOnly: true},
			{Volume: destination, Target: cloneDestPath},
		},
		User: "0:0",
		Labels: map[string]string{
			LabelManagedBy: ManagedByValue,
			LabelRole:      HelperRole,
		},
	}

	c.logger.Info("cloning volume", "source", source, "destination", destination)

	res, err := c.runtime.RunToCompletion(ctx, spec)
	if err == nil && res.ExitCode == 0 {
		c.logger.Debug("clone finished", "destination", destination, "output", res.Output)
		return nil
	}

	cerr := &CloneError{Source: source, Destination: destination, Err: err}
	if res != nil {
		cerr.ExitCode = res.ExitCode
		cerr.Output = res.Output
	}
	c.logger.Error("clone failed", "source", source, "destination", destination,
		"exit_code", cerr.ExitCode, "output", cerr.Output, "error", err)

	// The caller's ctx may be what failed the copy; cleanup must still run.
	if rmErr := c.runtime.RemoveVolume(context.WithoutCancel(ctx), destination); rmErr != nil {
		c.logger.Error("failed to remove partially cloned volume", "volume", destination, "error", rmErr)
		return fmt.Errorf("%w (cleanup: %v)", cerr, rmErr)
	}
	return cerr
}

// script copies the tree including dotfiles, then hands it to the notebook user.
func (c *VolumeCloner) script() string {
	return strings.Join([]string{
		fmt.Sprintf("cp -a %s/. %s/", cloneSourcePath, cloneDestPath),
		fmt.Sprintf("chown -R %s %s", c.owner, cloneDestPath),
	}, " && ")
}
