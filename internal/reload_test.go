package internal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const validConfigYAML = `
ai:
  provider: custom
  system_prompt: Write a short diary entry.
  custom:
    base_url: http://localhost:8080/v1
    api_key: sk-first
    model: local-model
`

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatcher(t *testing.T, path string) (func() *Config, func() int) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	var applied []*Config
	go watchConfig(ctx, path, logger, func(cfg *Config) {
		mu.Lock()
		applied = append(applied, cfg)
		mu.Unlock()
	})

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	last := func() *Config {
		mu.Lock()
		defer mu.Unlock()
		if len(applied) == 0 {
			return nil
		}
		return applied[len(applied)-1]
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(applied)
	}
	return last, count
}

func TestWatchConfig_AppliesEditedSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(validConfigYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	last, _ := startWatcher(t, path)

	next := `
ai:
  provider: custom
  system_prompt: Write a short diary entry.
  custom:
    base_url: http://localhost:8080/v1
    api_key: sk-second
    model: local-model
`
	if err := os.WriteFile(path, []byte(next), 0o644); err != nil {
		t.Fatalf("edit config: %v", err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cfg := last()
		return cfg != nil && cfg.AI.Active().APIKey == "sk-second"
	}, "edited settings not applied")
}

func TestWatchConfig_RejectsInvalidEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(validConfigYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	last, count := startWatcher(t, path)

	// Unknown provider fails validation; the edit must be ignored.
	bad := `
ai:
  provider: nonsense
  system_prompt: Write a short diary entry.
`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatalf("edit config: %v", err)
	}
	time.Sleep(500 * time.Millisecond)
	if n := count(); n != 0 {
		t.Fatalf("apply fired %d times for an invalid edit", n)
	}

	// A following valid edit still lands.
	good := `
ai:
  provider: custom
  system_prompt: Write a short diary entry.
  custom:
    base_url: http://localhost:8080/v1
    api_key: sk-after-bad
    model: local-model
`
	if err := os.WriteFile(path, []byte(good), 0o644); err != nil {
		t.Fatalf("edit config: %v", err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cfg := last()
		return cfg != nil && cfg.AI.Active().APIKey == "sk-after-bad"
	}, "valid edit after invalid one not applied")
}

func TestWatchConfig_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(validConfigYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, count := startWatcher(t, path)

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}
	time.Sleep(500 * time.Millisecond)
	if n := count(); n != 0 {
		t.Fatalf("apply fired %d times for a sibling file edit", n)
	}
}
