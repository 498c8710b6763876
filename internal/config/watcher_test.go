package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, doc string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherPushesReloadedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, `{"log_level": "info"}`)

	reloads := make(chan *Config, 4)
	w, err := Watch(path, func(cfg *Config) { reloads <- cfg })
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer w.Close()

	writeConfig(t, path, `{"log_level": "debug"}`)

	select {
	case cfg := <-reloads:
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed after write")
	}
}

func TestWatcherSurvivesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, `{"log_level": "info"}`)

	reloads := make(chan *Config, 4)
	w, err := Watch(path, func(cfg *Config) { reloads <- cfg })
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer w.Close()

	// Replace the file the way atomic writers do: temp file plus rename.
	tmp := path + ".tmp"
	writeConfig(t, tmp, `{"log_level": "warn"}`)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloads:
		if cfg.LogLevel != "warn" {
			t.Errorf("LogLevel = %s, want warn", cfg.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed after atomic replace")
	}
}

func TestWatcherIgnoresBrokenWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, `{"log_level": "info"}`)

	reloads := make(chan *Config, 4)
	w, err := Watch(path, func(cfg *Config) { reloads <- cfg })
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer w.Close()

	writeConfig(t, path, `{ broken`)

	select {
	case cfg := <-reloads:
		t.Errorf("unexpected reload with config %+v", cfg)
	case <-time.After(600 * time.Millisecond):
		// Debounce plus reload window elapsed without a push: the broken
		// document was skipped.
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, `{}`)

	w, err := Watch(path, nil)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}
