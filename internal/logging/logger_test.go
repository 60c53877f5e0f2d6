package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, ".testsmith")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func resetState() {
	CloseAll()
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	logLevel = LevelInfo
}

func TestInitializeWithoutConfig(t *testing.T) {
	defer resetState()
	dir := t.TempDir()

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsDebugMode() {
		t.Error("expected debug mode off when no config exists")
	}

	// Logs dir should not be created in production mode
	if _, err := os.Stat(filepath.Join(dir, ".testsmith", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not exist without debug mode")
	}
}

func TestInitializeDebugMode(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, "logging:\n  debug_mode: true\n  level: debug\n")

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if !IsDebugMode() {
		t.Fatal("expected debug mode on")
	}

	Session("state transition: %s -> %s", "empty", "loaded")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, ".testsmith", "logs"))
	if err != nil {
		t.Fatalf("reading logs dir: %v", err)
	}
	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			found = true
		}
	}
	if !found {
		t.Error("expected at least one log file after logging")
	}
}

func TestCategoryFiltering(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, "logging:\n  debug_mode: true\n  level: info\n  categories:\n    api: false\n    session: true\n")

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategoryAPI) {
		t.Error("api category should be disabled")
	}
	if !IsCategoryEnabled(CategorySession) {
		t.Error("session category should be enabled")
	}
	// Unlisted categories default to enabled
	if !IsCategoryEnabled(CategoryWriter) {
		t.Error("unlisted category should default to enabled")
	}
}

func TestEmptyWorkspaceRejected(t *testing.T) {
	defer resetState()
	if err := Initialize(""); err == nil {
		t.Error("expected error for empty workspace")
	}
}

func TestTimer(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, "logging:\n  debug_mode: true\n  level: debug\n")
	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	timer := StartTimer(CategoryInspector, "parse")
	elapsed := timer.Stop()
	if elapsed < 0 {
		t.Error("elapsed time should be non-negative")
	}
}
