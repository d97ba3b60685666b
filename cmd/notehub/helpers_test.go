// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/notehub/notehub/internal/container"
	"github.com/notehub/notehub/internal/testutil"
)

type (
	// harness runs the root command against temporary data and template roots.
	harness struct {
		dataRoot     string
		templateRoot string
		environ      map[string]string
		engine       *stubEngine
		engineErr    error
		chowned      []string
		mu           sync.Mutex
	}

	// stubEngine is a minimal in-memory container.Engine.
	stubEngine struct {
		mu         sync.Mutex
		images     map[container.ImageTag]bool
		containers map[container.ContainerID]container.ContainerState
		lastRun    container.RunOptions
	}
)

func newHarness(t *testing.T) *harness {
	t.Helper()

	root := t.TempDir()
	cfgPath := filepath.Join(root, "config.cue")
	testutil.MustWriteFile(t, cfgPath, "", 0o644)

	h := &harness{
		dataRoot:     filepath.Join(root, "users"),
		templateRoot: filepath.Join(root, "templates"),
		engine: &stubEngine{
			images:     map[container.ImageTag]bool{},
			containers: map[container.ContainerID]container.ContainerState{},
		},
	}
	h.environ = map[string]string{
		"NOTEHUB_CONFIG":        cfgPath,
		"NOTEHUB_DATA_ROOT":     h.dataRoot,
		"NOTEHUB_TEMPLATE_ROOT": h.templateRoot,
		"HOST_DATA_PATH":        "/data/users",
	}
	return h
}

func (h *harness) seedTemplate(t *testing.T, files map[string]string) {
	t.Helper()
	testutil.WriteTree(t, filepath.Join(h.templateRoot, "default"), files)
}

// execute runs notehub with args and returns stdout, stderr and the error.
func (h *harness) execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app := NewApp(Dependencies{
		Engines: func(container.EngineType) (container.Engine, error) {
			if h.engineErr != nil {
				return nil, h.engineErr
			}
			return h.engine, nil
		},
		Chown: func(path string, _, _ int) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.chowned = append(h.chowned, path)
			return nil
		},
		IssueStyle: "notty",
		Environ:    h.environ,
		Stdout:     &stdout,
		Stderr:     &stderr,
	})

	root := NewRootCommand(app)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func (e *stubEngine) Name() string                            { return "stub" }
func (e *stubEngine) Available() bool                         { return true }
func (e *stubEngine) Version(context.Context) (string, error) { return "1.0", nil }

func (e *stubEngine) ImageExists(_ context.Context, image container.ImageTag) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[image], nil
}

func (e *stubEngine) Pull(_ context.Context, image container.ImageTag) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[image] = true
	return nil
}

func (e *stubEngine) Run(_ context.Context, opts container.RunOptions) (container.ContainerID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastRun = opts
	e.containers[opts.Name] = container.StateRunning
	return opts.Name, nil
}

func (e *stubEngine) Start(_ context.Context, id container.ContainerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.containers[id] = container.StateRunning
	return nil
}

func (e *stubEngine) Stop(_ context.Context, id container.ContainerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.containers[id]; ok {
		e.containers[id] = container.StateExited
	}
	return nil
}

func (e *stubEngine) Remove(_ context.Context, id container.ContainerID, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.containers, id)
	return nil
}

func (e *stubEngine) ContainerState(_ context.Context, id container.ContainerID) (container.ContainerState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.containers[id], nil
}

func (e *stubEngine) ContainerIP(context.Context, container.ContainerID, container.NetworkName) (string, error) {
	return "172.18.0.5", nil
}

func assertContains(t *testing.T, label, got string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("%s does not contain %q:\n%s", label, want, got)
		}
	}
}
