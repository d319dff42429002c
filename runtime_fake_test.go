package nbslot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
)

// fakeRuntime is an in-memory Runtime. Volumes are file maps; the clone
// helper is interpreted by copying its read-only mount into its writable one.
type fakeRuntime struct {
	mu sync.Mutex

	volumes    map[string]map[string]string
	labels     map[string]map[string]string
	containers map[string]*fakeContainer // by name
	nextID     int

	// events records runtime calls in order, e.g. "run:ipylti-nb".
	events []string
	// creates counts CreateVolume calls per name.
	creates map[string]int

	// logLines is printed by every container started with RunContainer.
	logLines []string
	// holdLogs keeps log streams open after logLines, like a running server.
	holdLogs bool

	unavailable     bool
	createVolumeErr error
	runErr          error
	followErr       error
	cloneExit       int
	clonePartial    bool
}

type fakeContainer struct {
	id     string
	name   string
	image  string
	env    map[string]string
	mounts []Mount
	labels map[string]string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		volumes:    make(map[string]map[string]string),
		labels:     make(map[string]map[string]string),
		containers: make(map[string]*fakeContainer),
		creates:    make(map[string]int),
		logLines: []string{
			"[I 10:00:00.000 NotebookApp] Serving notebooks from local directory: /notebooks",
			"[I 10:00:00.001 NotebookApp] http://(abc or 127.0.0.1):8888/?token=s3cr3t",
		},
	}
}

var errFakeDown = fmt.Errorf("%w: dial unix /var/run/docker.sock: connect: no such file", ErrRuntimeUnavailable)

func (f *fakeRuntime) record(format string, args ...any) {
	f.events = append(f.events, fmt.Sprintf(format, args...))
}

// seed creates a volume holding files.
func (f *fakeRuntime) seed(name string, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[name] = maps.Clone(files)
	if f.volumes[name] == nil {
		f.volumes[name] = map[string]string{}
	}
}

func (f *fakeRuntime) files(name string) (map[string]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[name]
	return maps.Clone(v), ok
}

func (f *fakeRuntime) writeFile(volume, path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[volume][path] = content
}

func (f *fakeRuntime) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeRuntime) containerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers)
}

func (f *fakeRuntime) container(name string) *fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers[name]
}

func (f *fakeRuntime) VolumeExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return false, errFakeDown
	}
	_, ok := f.volumes[name]
	return ok, nil
}

func (f *fakeRuntime) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return errFakeDown
	}
	if f.createVolumeErr != nil {
		return f.createVolumeErr
	}
	f.record("create-volume:%s", name)
	f.creates[name]++
	if _, ok := f.volumes[name]; !ok {
		f.volumes[name] = map[string]string{}
	}
	f.labels[name] = maps.Clone(labels)
	return nil
}

func (f *fakeRuntime) RemoveVolume(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return errFakeDown
	}
	f.record("remove-volume:%s", name)
	delete(f.volumes, name)
	return nil
}

func (f *fakeRuntime) RunContainer(ctx context.Context, spec RunSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return "", errFakeDown
	}
	if f.runErr != nil {
		return "", f.runErr
	}
	if _, ok := f.containers[spec.Name]; ok {
		return "", fmt.Errorf("conflict: container name %q is already in use", spec.Name)
	}
	for _, m := range spec.Mounts {
		if _, ok := f.volumes[m.Volume]; !ok {
			return "", fmt.Errorf("volume %s not found", m.Volume)
		}
	}
	f.nextID++
	c := &fakeContainer{
		id:     fmt.Sprintf("%064d", f.nextID),
		name:   spec.Name,
		image:  spec.Image,
		env:    maps.Clone(spec.Env),
		mounts: append([]Mount(nil), spec.Mounts...),
		labels: maps.Clone(spec.Labels),
	}
	f.containers[spec.Name] = c
	f.record("run:%s:%s", spec.Name, spec.Mounts[0].Volume)
	return c.id, nil
}

func (f *fakeRuntime) RunToCompletion(ctx context.Context, spec RunSpec) (*RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, errFakeDown
	}

	var src, dst string
	for _, m := range spec.Mounts {
		if m.ReadOnly {
			src = m.Volume
		} else {
			dst = m.Volume
		}
	}
	f.record("clone:%s->%s", src, dst)

	from, ok := f.volumes[src]
	if !ok {
		return &RunResult{ExitCode: 1, Output: "cp: can't stat '/from/.': No such file or directory"}, nil
	}
	to := f.volumes[dst]
	copied := 0
	for k, v := range from {
		if f.clonePartial && copied > 0 {
			break
		}
		to[k] = v
		copied++
	}
	if f.cloneExit != 0 {
		return &RunResult{ExitCode: f.cloneExit, Output: "cp: write error: No space left on device"}, nil
	}
	return &RunResult{ExitCode: 0}, nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, nameOrID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return false, errFakeDown
	}
	f.record("remove:%s", nameOrID)
	for name, c := range f.containers {
		if name == nameOrID || c.id == nameOrID {
			delete(f.containers, name)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRuntime) InspectContainer(ctx context.Context, nameOrID string) (*ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, errFakeDown
	}
	for name, c := range f.containers {
		if name == nameOrID || c.id == nameOrID {
			info := &ContainerInfo{ID: c.id, Name: c.name, Image: c.image, Running: true, Env: maps.Clone(c.env)}
			for _, m := range c.mounts {
				info.Volumes = append(info.Volumes, m.Volume)
			}
			return info, nil
		}
	}
	return nil, nil
}

func (f *fakeRuntime) FollowLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	f.mu.Lock()
	lines := append([]string(nil), f.logLines...)
	hold := f.holdLogs
	followErr := f.followErr
	down := f.unavailable
	f.mu.Unlock()

	if down {
		return nil, errFakeDown
	}
	if followErr != nil {
		return nil, followErr
	}

	rd, wr := io.Pipe()
	go func() {
		for _, l := range lines {
			if _, err := io.WriteString(wr, l+"\n"); err != nil {
				return
			}
		}
		if !hold {
			wr.Close()
		}
	}()
	return rd, nil
}

// index returns the position of the first event with the given prefix, or -1.
func index(events []string, prefix string) int {
	for i, e := range events {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

var _ Runtime = (*fakeRuntime)(nil)

var errBoom = errors.New("boom")
