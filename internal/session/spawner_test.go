// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/notehub/notehub/internal/container"
	"github.com/notehub/notehub/internal/identity"
	"github.com/notehub/notehub/internal/issue"
)

var aliceMount = container.VolumeMount{
	HostPath:      "/opt/notehub/data/users/alice_example_com",
	ContainerPath: "/home/jovyan/work",
}

func testSpawnConfig() SpawnConfig {
	cfg := DefaultSpawnConfig()
	cfg.Retry = container.RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}
	return cfg
}

func newTestSpawner(t *testing.T, engine *fakeEngine, hook Hook, cfg SpawnConfig, opts ...SpawnerOption) *Spawner {
	t.Helper()
	s, err := NewSpawner(engine, hook, cfg, opts...)
	if err != nil {
		t.Fatalf("NewSpawner() error: %v", err)
	}
	return s
}

func TestContainerName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		template string
		user     identity.SanitizedUsername
		want     container.ContainerID
	}{
		{DefaultNameTemplate, "alice_example_com", "jupyter-alice_example_com"},
		{"nb-{username}-{username}", "bob", "nb-bob-bob"},
	}
	for _, tt := range tests {
		if got := ContainerName(tt.template, tt.user); got != tt.want {
			t.Errorf("ContainerName(%q, %q) = %q, want %q", tt.template, tt.user, got, tt.want)
		}
	}
}

func TestSpawnConfig_RunOptions(t *testing.T) {
	t.Parallel()

	cfg := testSpawnConfig()
	cfg.Env = map[string]string{"GRANT_SUDO": "no", "NOTEBOOK_DIR": "/override"}
	cfg.Volumes = []container.VolumeMount{{HostPath: "/srv/shared", ContainerPath: "/home/jovyan/shared", ReadOnly: true}}

	opts := cfg.RunOptions("alice@example.com", aliceMount)

	if opts.Name != "jupyter-alice_example_com" {
		t.Errorf("Name = %q", opts.Name)
	}
	if opts.Network != "analytics_net" || opts.WorkDir != "/home/jovyan/work" {
		t.Errorf("Network/WorkDir = %q/%q", opts.Network, opts.WorkDir)
	}
	wantEnv := map[string]string{
		"JUPYTERHUB_USER":        "alice@example.com",
		"NOTEBOOK_DIR":           "/override",
		"JUPYTERHUB_DEFAULT_URL": "/lab",
		"JUPYTERHUB_API_URL":     "http://jupyterhub:8081/hub/api",
		"GRANT_SUDO":             "no",
	}
	for k, v := range wantEnv {
		if opts.Env[k] != v {
			t.Errorf("Env[%s] = %q, want %q", k, opts.Env[k], v)
		}
	}
	if len(opts.Volumes) != 2 || opts.Volumes[0] != aliceMount {
		t.Errorf("Volumes = %v, want workspace mount first", opts.Volumes)
	}
	if opts.Labels[LabelUser] != "alice_example_com" {
		t.Errorf("Labels = %v", opts.Labels)
	}

	if got := cfg.RunOptions("alice@example.com", container.VolumeMount{}).Volumes; len(got) != 1 {
		t.Errorf("zero workspace mount should be omitted, got %v", got)
	}
}

func TestSpawnConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*SpawnConfig)
		wantErr error
	}{
		{"valid", func(*SpawnConfig) {}, nil},
		{"empty image", func(c *SpawnConfig) { c.Image = "" }, container.ErrInvalidImageTag},
		{"no placeholder", func(c *SpawnConfig) { c.NameTemplate = "jupyter" }, ErrInvalidSpawnConfig},
		{"bad pull policy", func(c *SpawnConfig) { c.PullPolicy = "sometimes" }, ErrInvalidPullPolicy},
		{"internal ip without network", func(c *SpawnConfig) { c.Network = "" }, ErrInvalidSpawnConfig},
		{"bad port", func(c *SpawnConfig) { c.Port = 0 }, ErrInvalidSpawnConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultSpawnConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want errors.Is %v", err, tt.wantErr)
			}
		})
	}
}

func TestSpawn_NewSession(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	hook := &fakeHook{mount: aliceMount}
	s := newTestSpawner(t, engine, hook, testSpawnConfig())

	sess, err := s.Spawn(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}

	if sess.State != StateRunning {
		t.Errorf("State = %s, want running", sess.State)
	}
	if sess.ContainerID != "c0ffee" || sess.Reused {
		t.Errorf("ContainerID/Reused = %q/%v", sess.ContainerID, sess.Reused)
	}
	if sess.Address != "172.18.0.5" {
		t.Errorf("Address = %q", sess.Address)
	}
	if got := sess.URL(DefaultPort); got != "http://172.18.0.5:8888" {
		t.Errorf("URL() = %q", got)
	}
	if hook.calls != 1 {
		t.Errorf("hook calls = %d, want 1", hook.calls)
	}
	if !slices.Contains(engine.lastRun.Volumes, aliceMount) {
		t.Errorf("run volumes = %v, want workspace mount", engine.lastRun.Volumes)
	}
	// ifnotpresent with a missing image pulls once.
	if engine.called("pull") != 1 {
		t.Errorf("pull calls = %d, want 1", engine.called("pull"))
	}
}

func TestSpawn_HookErrorAbortsBeforeEngine(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	hookErr := errors.New("disk full")
	s := newTestSpawner(t, engine, &fakeHook{err: hookErr}, testSpawnConfig())

	sess, err := s.Spawn(context.Background(), "alice@example.com")
	if !errors.Is(err, hookErr) {
		t.Fatalf("Spawn() error = %v, want hook error", err)
	}
	if sess.State != StateFailed || !errors.Is(sess.Err, hookErr) {
		t.Errorf("session = %+v, want failed with hook error", sess)
	}
	if len(engine.calls) != 0 {
		t.Errorf("engine should not be touched, got calls %v", engine.calls)
	}
}

func TestSpawn_AccessDenied(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	hook := &fakeHook{mount: aliceMount}
	s := newTestSpawner(t, engine, hook, testSpawnConfig(),
		WithAccessChecker(allowList{"bob@example.com": true}))

	_, err := s.Spawn(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("Spawn() error = %v, want ErrAccessDenied", err)
	}
	if issue.KindOf(err) != issue.KindConfiguration {
		t.Errorf("KindOf() = %v", issue.KindOf(err))
	}
	if hook.calls != 0 {
		t.Error("hook should not run for a denied user")
	}
}

func TestSpawn_PullPolicies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		policy    PullPolicy
		present   bool
		wantPulls int
		wantErr   error
	}{
		{PullAlways, true, 1, nil},
		{PullIfNotPresent, true, 0, nil},
		{PullIfNotPresent, false, 1, nil},
		{PullNever, true, 0, nil},
		{PullNever, false, 0, ErrImageNotPresent},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			t.Parallel()
			engine := newFakeEngine()
			cfg := testSpawnConfig()
			cfg.PullPolicy = tt.policy
			engine.images[cfg.Image] = tt.present
			s := newTestSpawner(t, engine, &fakeHook{mount: aliceMount}, cfg)

			_, err := s.Spawn(context.Background(), "alice@example.com")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Spawn() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Spawn() error: %v", err)
			}
			if got := engine.called("pull"); got != tt.wantPulls {
				t.Errorf("pull calls = %d, want %d", got, tt.wantPulls)
			}
		})
	}
}

func TestSpawn_ReusesStoppedContainer(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	engine.images[DefaultImage] = true
	engine.containers["jupyter-alice_example_com"] = container.StateExited
	s := newTestSpawner(t, engine, &fakeHook{mount: aliceMount}, testSpawnConfig())

	sess, err := s.Spawn(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if !sess.Reused || sess.ContainerID != "jupyter-alice_example_com" {
		t.Errorf("session = %+v, want reused named container", sess)
	}
	if engine.called("start") != 1 || engine.called("run") != 0 {
		t.Errorf("calls = %v, want a start and no run", engine.calls)
	}
}

func TestSpawn_RemoveReplacesStaleContainer(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	engine.images[DefaultImage] = true
	engine.containers["jupyter-alice_example_com"] = container.StateCreated
	cfg := testSpawnConfig()
	cfg.Remove = true
	s := newTestSpawner(t, engine, &fakeHook{mount: aliceMount}, cfg)

	sess, err := s.Spawn(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if sess.Reused {
		t.Error("stale container should be replaced, not reused")
	}
	if engine.called("remove") != 1 || engine.called("run") != 1 {
		t.Errorf("calls = %v, want one remove and one run", engine.calls)
	}
	if !engine.lastRun.Remove {
		t.Error("run should carry the remove flag")
	}
}

func TestSpawn_AlreadyRunning(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	engine.images[DefaultImage] = true
	engine.containers["jupyter-alice_example_com"] = container.StateRunning
	s := newTestSpawner(t, engine, &fakeHook{mount: aliceMount}, testSpawnConfig())

	sess, err := s.Spawn(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if !sess.Reused || engine.called("run") != 0 || engine.called("start") != 0 {
		t.Errorf("running container should be reused as is: %v", engine.calls)
	}
}

func TestSpawn_RetriesTransientRunErrors(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	engine.images[DefaultImage] = true
	engine.runErrs = []error{errors.New("dial unix: connection refused")}
	s := newTestSpawner(t, engine, &fakeHook{mount: aliceMount}, testSpawnConfig())

	if _, err := s.Spawn(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if engine.called("run") != 2 {
		t.Errorf("run calls = %d, want 2", engine.called("run"))
	}
}

func TestSpawn_PermanentRunErrorFails(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	engine.images[DefaultImage] = true
	permanent := errors.New("invalid reference format")
	engine.runErrs = []error{permanent, permanent}
	s := newTestSpawner(t, engine, &fakeHook{mount: aliceMount}, testSpawnConfig())

	sess, err := s.Spawn(context.Background(), "alice@example.com")
	if !errors.Is(err, permanent) {
		t.Fatalf("Spawn() error = %v, want permanent error", err)
	}
	if sess.State != StateFailed {
		t.Errorf("State = %s, want failed", sess.State)
	}
	if engine.called("run") != 1 {
		t.Errorf("run calls = %d, want 1", engine.called("run"))
	}
}

func TestSpawn_ContainerNameAddress(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine()
	engine.images[DefaultImage] = true
	cfg := testSpawnConfig()
	cfg.UseInternalIP = false
	s := newTestSpawner(t, engine, nil, cfg)

	sess, err := s.Spawn(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if sess.Address != "jupyter-alice_example_com" {
		t.Errorf("Address = %q, want container name", sess.Address)
	}
	if engine.called("ip") != 0 {
		t.Error("ContainerIP should not be called without use_internal_ip")
	}
	if len(engine.lastRun.Volumes) != 0 {
		t.Errorf("no hook means no workspace mount, got %v", engine.lastRun.Volumes)
	}
}

func TestStop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		remove      bool
		initial     container.ContainerState
		wantStops   int
		wantRemoves int
		wantState   container.ContainerState
	}{
		{"running keep", false, container.StateRunning, 1, 0, container.StateExited},
		{"running remove", true, container.StateRunning, 1, 1, container.StateMissing},
		{"exited remove", true, container.StateExited, 0, 1, container.StateMissing},
		{"missing", true, container.StateMissing, 0, 0, container.StateMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine := newFakeEngine()
			if tt.initial != container.StateMissing {
				engine.containers["jupyter-alice_example_com"] = tt.initial
			}
			cfg := testSpawnConfig()
			cfg.Remove = tt.remove
			s := newTestSpawner(t, engine, nil, cfg)

			if err := s.Stop(context.Background(), "alice@example.com"); err != nil {
				t.Fatalf("Stop() error: %v", err)
			}
			if got := engine.called("stop"); got != tt.wantStops {
				t.Errorf("stop calls = %d, want %d", got, tt.wantStops)
			}
			if got := engine.called("remove"); got != tt.wantRemoves {
				t.Errorf("remove calls = %d, want %d", got, tt.wantRemoves)
			}
			if got := engine.containers["jupyter-alice_example_com"]; got != tt.wantState {
				t.Errorf("container state = %q, want %q", got, tt.wantState)
			}
		})
	}
}

func TestNewSpawner_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewSpawner(nil, nil, DefaultSpawnConfig()); err == nil {
		t.Error("NewSpawner(nil engine) should fail")
	}
	cfg := DefaultSpawnConfig()
	cfg.PullPolicy = "weekly"
	if _, err := NewSpawner(newFakeEngine(), nil, cfg); !errors.Is(err, ErrInvalidPullPolicy) {
		t.Errorf("NewSpawner() error = %v, want ErrInvalidPullPolicy", err)
	}
}
