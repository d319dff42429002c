package container

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"

	"github.com/everydev1618/nbslot"
)

const testImage = "alpine:3.20"

// checkTestcontainersAvailable safely checks if a Docker provider can be used.
func checkTestcontainersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

// TestManager_Integration exercises the manager against a real daemon.
func TestManager_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !checkTestcontainersAvailable() {
		t.Skip("skipping integration test: docker provider not available")
	}

	m, err := NewManager(WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	if !m.IsAvailable(context.Background()) {
		t.Skip("skipping integration test: docker daemon not reachable")
	}

	t.Run("VolumeLifecycle", func(t *testing.T) { testVolumeLifecycle(t, m) })
	t.Run("CloneCopiesTemplate", func(t *testing.T) { testCloneCopiesTemplate(t, m) })
	t.Run("SlotTokenRoundTrip", func(t *testing.T) { testSlotTokenRoundTrip(t, m) })
	t.Run("RemoveStaleHelpers", func(t *testing.T) { testRemoveStaleHelpers(t, m) })
}

func testName(prefix string) string {
	return "nbslot-it-" + prefix + "-" + uuid.NewString()[:8]
}

func newVolume(t *testing.T, m *Manager, prefix string) string {
	t.Helper()
	ctx := context.Background()
	name := testName(prefix)
	if err := m.CreateVolume(ctx, name, map[string]string{nbslot.LabelManagedBy: nbslot.ManagedByValue}); err != nil {
		t.Fatalf("CreateVolume(%s): %v", name, err)
	}
	t.Cleanup(func() { m.RemoveVolume(context.Background(), name) })
	return name
}

func testVolumeLifecycle(t *testing.T, m *Manager) {
	ctx := context.Background()
	name := newVolume(t, m, "vol")

	exists, err := m.VolumeExists(ctx, name)
	if err != nil || !exists {
		t.Fatalf("VolumeExists after create = %v, %v", exists, err)
	}
	if err := m.RemoveVolume(ctx, name); err != nil {
		t.Fatalf("RemoveVolume: %v", err)
	}
	exists, err = m.VolumeExists(ctx, name)
	if err != nil || exists {
		t.Fatalf("VolumeExists after remove = %v, %v", exists, err)
	}
	if err := m.RemoveVolume(ctx, name); err != nil {
		t.Errorf("RemoveVolume of a missing volume = %v, want nil", err)
	}
}

func testCloneCopiesTemplate(t *testing.T, m *Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	template := newVolume(t, m, "tpl")
	student := newVolume(t, m, "stu")

	res, err := m.RunToCompletion(ctx, nbslot.RunSpec{
		Name:    testName("seed"),
		Image:   testImage,
		Command: []string{"sh", "-c", "echo hello > /to/F.ipynb && echo x > /to/.hidden"},
		Mounts:  []nbslot.Mount{{Volume: template, Target: "/to"}},
	})
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("seed template exited %d: %q", res.ExitCode, res.Output)
	}

	cloner := nbslot.NewVolumeCloner(m, nbslot.WithCloneImage(testImage), nbslot.WithClonerLogger(quietLogger()))
	if err := cloner.Clone(ctx, template, student); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	res, err = m.RunToCompletion(ctx, nbslot.RunSpec{
		Name:    testName("check"),
		Image:   testImage,
		Command: []string{"sh", "-c", "cat /v/F.ipynb /v/.hidden && stat -c %u:%g /v/F.ipynb"},
		Mounts:  []nbslot.Mount{{Volume: student, Target: "/v", ReadOnly: true}},
	})
	if err != nil {
		t.Fatalf("check clone: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("check clone exited %d: %q", res.ExitCode, res.Output)
	}
	for _, want := range []string{"hello", "x", nbslot.DefaultCloneOwner} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("clone output %q missing %q", res.Output, want)
		}
	}
}

func testSlotTokenRoundTrip(t *testing.T, m *Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	vol := newVolume(t, m, "slot")
	name := testName("slot")
	id, err := m.RunContainer(ctx, nbslot.RunSpec{
		Name:    name,
		Image:   testImage,
		Command: []string{"sh", "-c", "echo 'serving at http://0.0.0.0:8888/?token=it-token' >&2; sleep 300"},
		Env:     map[string]string{"VIRTUAL_HOST": "it.nb.docker"},
		Mounts:  []nbslot.Mount{{Volume: vol, Target: "/notebooks"}},
	})
	if err != nil {
		t.Fatalf("RunContainer: %v", err)
	}
	t.Cleanup(func() { m.RemoveContainer(context.Background(), name) })

	info, err := m.InspectContainer(ctx, name)
	if err != nil || info == nil {
		t.Fatalf("InspectContainer = %v, %v", info, err)
	}
	if info.ID != id || info.Env["VIRTUAL_HOST"] != "it.nb.docker" || len(info.Volumes) != 1 || info.Volumes[0] != vol {
		t.Errorf("InspectContainer = %+v", info)
	}

	w := nbslot.NewTokenWatcher(m, nbslot.WithTokenTimeout(time.Minute), nbslot.WithTokenLogger(quietLogger()))
	token, err := w.Extract(ctx, id)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if token != "it-token" {
		t.Errorf("token = %q, want it-token", token)
	}

	removed, err := m.RemoveContainer(ctx, name)
	if err != nil || !removed {
		t.Fatalf("RemoveContainer = %v, %v", removed, err)
	}
	if info, _ := m.InspectContainer(ctx, name); info != nil {
		t.Errorf("container still present after removal: %+v", info)
	}
	if removed, err := m.RemoveContainer(ctx, name); err != nil || removed {
		t.Errorf("second RemoveContainer = %v, %v; want false, nil", removed, err)
	}
}

func testRemoveStaleHelpers(t *testing.T, m *Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	vol := newVolume(t, m, "orphan")
	name := testName("orphan")
	_, err := m.RunContainer(ctx, nbslot.RunSpec{
		Name:    name,
		Image:   testImage,
		Command: []string{"sleep", "300"},
		Mounts:  []nbslot.Mount{{Volume: vol, Target: "/to"}},
		Labels: map[string]string{
			nbslot.LabelManagedBy: nbslot.ManagedByValue,
			nbslot.LabelRole:      nbslot.HelperRole,
		},
	})
	if err != nil {
		t.Fatalf("RunContainer: %v", err)
	}
	t.Cleanup(func() { m.RemoveContainer(context.Background(), name) })

	if n, err := m.RemoveStaleHelpers(ctx, time.Hour); err != nil || n != 0 {
		t.Errorf("RemoveStaleHelpers(1h) = %d, %v; want a fresh helper kept", n, err)
	}
	n, err := m.RemoveStaleHelpers(ctx, 0)
	if err != nil || n < 1 {
		t.Fatalf("RemoveStaleHelpers(0) = %d, %v", n, err)
	}
	if info, _ := m.InspectContainer(ctx, name); info != nil {
		t.Error("stale helper still present")
	}
}
