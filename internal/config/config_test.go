package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		DefaultSession: "work",
		Backend:        Backend{URL: "https://example.chatterbox.dev", APIKey: "anon"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Backend.URL != "https://example.chatterbox.dev" {
		t.Errorf("Backend.URL = %q", loaded.Backend.URL)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{Backend: Backend{URL: "https://from-file"}}); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CHATTERBOX_BACKEND_URL", "https://from-env")
	t.Setenv("CHATTERBOX_ACCESS_TOKEN", "tok")

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Backend.URL != "https://from-env" {
		t.Errorf("Backend.URL = %q, want env override", loaded.Backend.URL)
	}
	if loaded.Backend.AccessToken != "tok" {
		t.Errorf("AccessToken = %q, want tok", loaded.Backend.AccessToken)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
