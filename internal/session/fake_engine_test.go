// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"sync"

	"github.com/notehub/notehub/internal/container"
	"github.com/notehub/notehub/internal/identity"
)

// fakeEngine is an in-memory container.Engine that records every call.
type fakeEngine struct {
	mu sync.Mutex

	images     map[container.ImageTag]bool
	containers map[container.ContainerID]container.ContainerState
	ip         string

	// runErrs are returned by successive Run calls before Run succeeds.
	runErrs []error
	pullErr error

	calls   []string
	lastRun container.RunOptions
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		images:     map[container.ImageTag]bool{},
		containers: map[container.ContainerID]container.ContainerState{},
		ip:         "172.18.0.5",
	}
}

func (f *fakeEngine) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) called(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeEngine) Name() string    { return "fake" }
func (f *fakeEngine) Available() bool { return true }

func (f *fakeEngine) Version(context.Context) (string, error) { return "1.0", nil }

func (f *fakeEngine) ImageExists(_ context.Context, image container.ImageTag) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("image-exists")
	return f.images[image], nil
}

func (f *fakeEngine) Pull(_ context.Context, image container.ImageTag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull")
	if f.pullErr != nil {
		return f.pullErr
	}
	f.images[image] = true
	return nil
}

func (f *fakeEngine) Run(_ context.Context, opts container.RunOptions) (container.ContainerID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("run")
	f.lastRun = opts
	if len(f.runErrs) > 0 {
		err := f.runErrs[0]
		f.runErrs = f.runErrs[1:]
		return "", err
	}
	f.containers[opts.Name] = container.StateRunning
	return "c0ffee", nil
}

func (f *fakeEngine) Start(_ context.Context, id container.ContainerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start")
	if f.containers[id] == container.StateMissing {
		return errors.New("no such container")
	}
	f.containers[id] = container.StateRunning
	return nil
}

func (f *fakeEngine) Stop(_ context.Context, id container.ContainerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop")
	f.containers[id] = container.StateExited
	return nil
}

func (f *fakeEngine) Remove(_ context.Context, id container.ContainerID, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove")
	delete(f.containers, id)
	return nil
}

func (f *fakeEngine) ContainerState(_ context.Context, id container.ContainerID) (container.ContainerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("state")
	return f.containers[id], nil
}

func (f *fakeEngine) ContainerIP(context.Context, container.ContainerID, container.NetworkName) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ip")
	return f.ip, nil
}

// fakeHook returns a fixed mount or error and counts invocations.
type fakeHook struct {
	mu    sync.Mutex
	mount container.VolumeMount
	err   error
	calls int
}

func (h *fakeHook) BeforeSessionStart(context.Context, identity.UserIdentity) (container.VolumeMount, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.mount, h.err
}

type allowList map[identity.UserIdentity]bool

func (a allowList) Allowed(id identity.UserIdentity) bool { return a[id] }
