package nbslot

import (
	"context"
	"fmt"
	"log/slog"
)

// Labels set on runtime objects created by nbslot.
const (
	LabelManagedBy = "nbslot.managed-by"
	LabelRole      = "nbslot.role"
	LabelLaunch    = "nbslot.launch"
	LabelResource  = "nbslot.resource"
	ManagedByValue = "nbslot"
)

// CloneHook runs before a template volume is copied. The launcher uses it to
// stop a build container that may still be writing the template.
type CloneHook func(ctx context.Context, template string) error

// VolumeStore resolves the volume a launch binds, creating it on first use.
type VolumeStore struct {
	runtime     Runtime
	cloner      *VolumeCloner
	gates       *Gates
	beforeClone CloneHook
	logger      *slog.Logger
}

// VolumeOption configures a VolumeStore.
type VolumeOption func(*VolumeStore)

// WithGates shares a gate set with other components.
func WithGates(g *Gates) VolumeOption {
	return func(s *VolumeStore) {
		s.gates = g
	}
}

// WithCloneHook sets a hook that runs before a template is cloned.
func WithCloneHook(h CloneHook) VolumeOption {
	return func(s *VolumeStore) {
		s.beforeClone = h
	}
}

// WithVolumeLogger sets the store's logger.
func WithVolumeLogger(l *slog.Logger) VolumeOption {
	return func(s *VolumeStore) {
		s.logger = l
	}
}

// NewVolumeStore creates a store. A nil cloner disables template seeding.
func NewVolumeStore(rt Runtime, cloner *VolumeCloner, opts ...VolumeOption) *VolumeStore {
	s := &VolumeStore{
		runtime: rt,
		cloner:  cloner,
		gates:   NewGates(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the name of the volume req should bind.
//
// Build launches bind the resource's template volume. Other launches bind a
// volume private to the launch; when that volume is first created it is
// seeded from the template, if one exists. An existing launch volume is
// returned untouched.
func (s *VolumeStore) Resolve(ctx context.Context, req LaunchRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.Build {
		return s.resolveTemplate(ctx, req.ResourceID)
	}
	return s.resolveStudent(ctx, req.LaunchID, req.ResourceID)
}

func (s *VolumeStore) resolveTemplate(ctx context.Context, resourceID string) (string, error) {
	unlock := s.gates.Lock(resourceID)
	defer unlock()

	exists, err := s.runtime.VolumeExists(ctx, resourceID)
	if err != nil {
		return "", fmt.Errorf("%w: lookup %s: %w", ErrVolume, resourceID, err)
	}
	if exists {
		return resourceID, nil
	}

	labels := map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRole:      "template",
		LabelResource:  resourceID,
	}
	if err := s.runtime.CreateVolume(ctx, resourceID, labels); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrVolume, resourceID, err)
	}
	s.logger.Info("created template volume", "volume", resourceID)
	return resourceID, nil
}

func (s *VolumeStore) resolveStudent(ctx context.Context, launchID, resourceID string) (string, error) {
	unlock := s.gates.Lock(launchID)
	defer unlock()

	exists, err := s.runtime.VolumeExists(ctx, launchID)
	if err != nil {
		return "", fmt.Errorf("%w: lookup %s: %w", ErrVolume, launchID, err)
	}
	if exists {
		return launchID, nil
	}

	labels := map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRole:      "student",
		LabelLaunch:    launchID,
		LabelResource:  resourceID,
	}
	if err := s.runtime.CreateVolume(ctx, launchID, labels); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrVolume, launchID, err)
	}
	s.logger.Info("created launch volume", "volume", launchID, "resource", resourceID)

	if s.cloner == nil {
		return launchID, nil
	}
	if err := s.seed(ctx, launchID, resourceID); err != nil {
		return "", err
	}
	return launchID, nil
}

// seed copies the template into a freshly created launch volume. The
// template's read gate is held for the whole copy.
func (s *VolumeStore) seed(ctx context.Context, launchID, resourceID string) error {
	runlock := s.gates.RLock(resourceID)
	defer runlock()

	hasTemplate, err := s.runtime.VolumeExists(ctx, resourceID)
	if err != nil {
		s.discard(ctx, launchID)
		return fmt.Errorf("%w: lookup %s: %w", ErrVolume, resourceID, err)
	}
	if !hasTemplate {
		return nil
	}

	if s.beforeClone != nil {
		if err := s.beforeClone(ctx, resourceID); err != nil {
			s.discard(ctx, launchID)
			return fmt.Errorf("prepare clone of %s: %w", resourceID, err)
		}
	}
	return s.cloner.Clone(ctx, resourceID, launchID)
}

// discard removes a launch volume that was created but could not be seeded,
// so the next resolution starts over instead of finding it empty.
func (s *VolumeStore) discard(ctx context.Context, name string) {
	if err := s.runtime.RemoveVolume(context.WithoutCancel(ctx), name); err != nil {
		s.logger.Error("failed to remove unseeded volume", "volume", name, "error", err)
	}
}
