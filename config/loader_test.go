package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLoader returns a loader rooted in temp directories with the given environment.
func testLoader(t *testing.T, env map[string]string) (l *Loader, home, work string) {
	t.Helper()
	home = t.TempDir()
	work = filepath.Join(t.TempDir(), "project", "sub")
	require.NoError(t, os.MkdirAll(work, 0755))

	l = NewLoader(slog.New(slog.DiscardHandler))
	l.homeDir = func() (string, error) { return home, nil }
	l.workDir = func() (string, error) { return work, nil }
	l.getenv = func(k string) string { return env[k] }
	return l, home, work
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoader_DefaultsOnly(t *testing.T) {
	l, _, _ := testLoader(t, nil)

	cfg, err := l.Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Repository, cfg.Repository)
	assert.Equal(t, "admin", cfg.Admin.User)
}

func TestLoader_Precedence(t *testing.T) {
	l, home, work := testLoader(t, nil)

	writeFile(t, filepath.Join(home, UserConfigDir, UserConfigFile), `
admin:
  user: user-admin
reasoning:
  batch_size: 10
  parallelism: 2
`)
	// Found by walking up from the working directory
	writeFile(t, filepath.Join(filepath.Dir(work), ProjectConfigFile), `
reasoning:
  batch_size: 20
`)
	explicit := filepath.Join(t.TempDir(), "explicit.yaml")
	writeFile(t, explicit, `
http:
  listen: ":7000"
reasoning:
  parallelism: 6
`)

	cfg, err := l.Load(explicit)
	require.NoError(t, err)

	assert.Equal(t, "user-admin", cfg.Admin.User, "user layer survives later layers")
	assert.Equal(t, 20, cfg.Reasoning.BatchSize, "project overrides user")
	assert.Equal(t, 6, cfg.Reasoning.Parallelism, "explicit overrides user")
	assert.Equal(t, ":7000", cfg.HTTP.Listen)
	assert.Equal(t, 30*time.Second, cfg.Reasoning.StoreTimeout, "defaults fill the rest")
}

func TestLoader_EnvOverrides(t *testing.T) {
	l, _, work := testLoader(t, map[string]string{
		EnvNATSURL: "nats://env:4222",
		EnvBaseURL: "http://env/store",
	})
	writeFile(t, filepath.Join(work, ProjectConfigFile), `
nats:
  url: nats://file:4222
repository:
  base_url: http://file/store
`)

	cfg, err := l.Load("")
	require.NoError(t, err)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, "http://env/store", cfg.Repository.BaseURL)
}

func TestLoader_Errors(t *testing.T) {
	l, _, work := testLoader(t, nil)

	_, err := l.Load(filepath.Join(work, "nope.yaml"))
	assert.Error(t, err, "an explicit config file must exist")

	invalid := filepath.Join(work, "invalid.yaml")
	writeFile(t, invalid, "derived:\n  store: badger\n")
	_, err = l.Load(invalid)
	assert.Error(t, err, "badger without a path fails validation")

	// A broken project file is skipped with a warning
	writeFile(t, filepath.Join(work, ProjectConfigFile), "reasoning: [")
	_, err = l.Load("")
	assert.NoError(t, err)
}

func TestLoader_EnsureUserConfig(t *testing.T) {
	l, home, _ := testLoader(t, nil)
	path := filepath.Join(home, UserConfigDir, UserConfigFile)

	require.NoError(t, l.EnsureUserConfig())
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.Admin.User)

	writeFile(t, path, "admin:\n  user: kept\n")
	require.NoError(t, l.EnsureUserConfig())
	cfg, err = LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kept", cfg.Admin.User, "existing file is not overwritten")
}

func TestLoader_Watch(t *testing.T) {
	l, _, work := testLoader(t, nil)
	path := filepath.Join(work, "watched.yaml")
	writeFile(t, path, "admin:\n  user: first\n")

	l.debounce = 10 * time.Millisecond

	var mu sync.Mutex
	var seen []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := l.Watch(ctx, path, func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, cfg.Admin.User)
	})
	require.NoError(t, err)
	defer w.Close()

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Equal(t, abs, w.Path())

	writeFile(t, path, "admin:\n  user: second\n  group: [alice]\n")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == "second"
	}, 5*time.Second, 20*time.Millisecond)

	// Invalid content is not applied
	mu.Lock()
	before := len(seen)
	mu.Unlock()
	writeFile(t, path, "derived:\n  store: unknown\n")
	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, before, len(seen))
	mu.Unlock()
}

func TestLoader_WatchNothing(t *testing.T) {
	l, _, _ := testLoader(t, nil)
	_, err := l.Watch(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNothingToWatch)
}

func TestLoader_WatchStopsOnCancel(t *testing.T) {
	l, _, work := testLoader(t, nil)
	writeFile(t, filepath.Join(work, ProjectConfigFile), "admin:\n  user: a\n")

	ctx, cancel := context.WithCancel(context.Background())
	w, err := l.Watch(ctx, "", nil)
	require.NoError(t, err)
	cancel()

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not exit after cancel")
	}
}
