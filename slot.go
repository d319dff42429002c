package nbslot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"
)

// Slot defaults.
const (
	DefaultSlotName  = "ipylti-nb"
	DefaultImage     = "nb"
	DefaultPort      = 8888
	DefaultWorkspace = "/notebooks"
)

// SlotState is the state of the slot.
type SlotState string

const (
	SlotEmpty    SlotState = "empty"
	SlotOccupied SlotState = "occupied"
)

// Occupant describes the container currently holding the slot.
type Occupant struct {
	ContainerID string    `json:"container_id"`
	Image       string    `json:"image"`
	Volume      string    `json:"volume"`
	HostLabel   string    `json:"host_label"`
	Running     bool      `json:"running"`
	StartedAt   time.Time `json:"started_at,omitzero"`
}

// SlotStatus is a snapshot of the slot.
type SlotStatus struct {
	Name     string    `json:"name"`
	State    SlotState `json:"state"`
	Occupant *Occupant `json:"occupant,omitempty"`
}

// Slot owns the single named compute container. Starting a new occupant
// always evicts the previous one first, whatever its state.
type Slot struct {
	runtime   Runtime
	name      string
	image     string
	port      int
	workspace string
	logger    *slog.Logger

	mu       sync.Mutex
	occupant *Occupant
	closed   bool
}

// SlotOption configures a Slot.
type SlotOption func(*Slot)

// WithSlotName sets the fixed container name.
func WithSlotName(name string) SlotOption {
	return func(s *Slot) {
		s.name = name
	}
}

// WithImage sets the compute image.
func WithImage(image string) SlotOption {
	return func(s *Slot) {
		s.image = image
	}
}

// WithPort sets the port the reverse proxy routes to.
func WithPort(port int) SlotOption {
	return func(s *Slot) {
		s.port = port
	}
}

// WithWorkspace sets where the volume is mounted in the container.
func WithWorkspace(path string) SlotOption {
	return func(s *Slot) {
		s.workspace = path
	}
}

// WithSlotLogger sets the slot's logger.
func WithSlotLogger(l *slog.Logger) SlotOption {
	return func(s *Slot) {
		s.logger = l
	}
}

// NewSlot creates a slot backed by rt.
func NewSlot(rt Runtime, opts ...SlotOption) *Slot {
	s := &Slot{
		runtime:   rt,
		name:      DefaultSlotName,
		image:     DefaultImage,
		port:      DefaultPort,
		workspace: DefaultWorkspace,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the fixed container name.
func (s *Slot) Name() string {
	return s.name
}

// Image returns the compute image.
func (s *Slot) Image() string {
	return s.image
}

// Start evicts the current occupant and starts a container bound to volume.
// The returned ID identifies the new occupant for log inspection.
func (s *Slot) Start(ctx context.Context, volume, hostLabel string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSlotClosed
	}
	if err := s.evictLocked(ctx); err != nil {
		return "", err
	}

	spec := RunSpec{
		Name:  s.name,
		Image: s.image,
		Env: map[string]string{
			"VIRTUAL_HOST": hostLabel,
			"VIRTUAL_PORT": strconv.Itoa(s.port),
		},
		Mounts: []Mount{{Volume: volume, Target: s.workspace}},
		Labels: map[string]string{
			LabelManagedBy: ManagedByValue,
			LabelRole:      "slot",
		},
	}
	id, err := s.runtime.RunContainer(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrContainerStart, s.name, err)
	}

	s.occupant = &Occupant{
		ContainerID: id,
		Image:       s.image,
		Volume:      volume,
		HostLabel:   hostLabel,
		Running:     true,
		StartedAt:   time.Now(),
	}
	s.logger.Info("slot occupied", "slot", s.name, "container", shortID(id), "volume", volume, "host", hostLabel)
	return id, nil
}

// EvictIfBound evicts the occupant when it has volume mounted. It reports
// whether an eviction happened. The occupant is looked up in the runtime, so
// a container left over from a previous process is found too.
func (s *Slot) EvictIfBound(ctx context.Context, volume string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.runtime.InspectContainer(ctx, s.name)
	if err != nil {
		return false, fmt.Errorf("inspect slot %s: %w", s.name, err)
	}
	if info == nil || !slices.Contains(info.Volumes, volume) {
		return false, nil
	}
	if err := s.evictLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// EvictWriter is a CloneHook. A build container is the only writer of a
// template volume, so it is evicted before the template is copied.
func (s *Slot) EvictWriter(ctx context.Context, template string) error {
	evicted, err := s.EvictIfBound(ctx, template)
	if evicted {
		s.logger.Info("evicted template writer before clone", "template", template)
	}
	return err
}

// Status reports the slot's current occupant as seen by the runtime.
func (s *Slot) Status(ctx context.Context) (*SlotStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.runtime.InspectContainer(ctx, s.name)
	if err != nil {
		return nil, fmt.Errorf("inspect slot %s: %w", s.name, err)
	}
	status := &SlotStatus{Name: s.name, State: SlotEmpty}
	if info == nil {
		s.occupant = nil
		return status, nil
	}

	occ := &Occupant{
		ContainerID: info.ID,
		Image:       info.Image,
		HostLabel:   info.Env["VIRTUAL_HOST"],
		Running:     info.Running,
	}
	if len(info.Volumes) > 0 {
		occ.Volume = info.Volumes[0]
	}
	if s.occupant != nil && s.occupant.ContainerID == info.ID {
		occ.StartedAt = s.occupant.StartedAt
	}
	status.State = SlotOccupied
	status.Occupant = occ
	return status, nil
}

// Evict removes the current occupant, if any.
func (s *Slot) Evict(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked(ctx)
}

// Close evicts the occupant and refuses further starts.
func (s *Slot) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.evictLocked(ctx)
}

func (s *Slot) evictLocked(ctx context.Context) error {
	removed, err := s.runtime.RemoveContainer(ctx, s.name)
	if err != nil {
		return fmt.Errorf("%w: evict %s: %w", ErrContainerStart, s.name, err)
	}
	if removed {
		s.logger.Info("slot evicted", "slot", s.name)
	}
	s.occupant = nil
	return nil
}
