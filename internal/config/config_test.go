package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := DefaultConfig()
	if cfg.ListenAddr != def.ListenAddr {
		t.Errorf("ListenAddr = %s, want %s", cfg.ListenAddr, def.ListenAddr)
	}
	if cfg.Execution.MaxConcurrentSteps != def.Execution.MaxConcurrentSteps {
		t.Errorf("MaxConcurrentSteps = %d, want %d",
			cfg.Execution.MaxConcurrentSteps, def.Execution.MaxConcurrentSteps)
	}
}

func TestLoadPartialDocumentKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{
		"log_level": "debug",
		"preferences": {"auto_approval_level": "medium"},
		"execution": {"max_concurrent_steps": 7}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.Preferences.AutoApprovalLevel != "medium" {
		t.Errorf("AutoApprovalLevel = %s, want medium", cfg.Preferences.AutoApprovalLevel)
	}
	if cfg.Execution.MaxConcurrentSteps != 7 {
		t.Errorf("MaxConcurrentSteps = %d, want 7", cfg.Execution.MaxConcurrentSteps)
	}

	// Everything the document omits keeps its default.
	def := DefaultConfig()
	if cfg.Execution.StepTimeoutFactor != def.Execution.StepTimeoutFactor {
		t.Errorf("StepTimeoutFactor = %f, want %f",
			cfg.Execution.StepTimeoutFactor, def.Execution.StepTimeoutFactor)
	}
	if cfg.Preferences.ApprovalTimeoutSec != def.Preferences.ApprovalTimeoutSec {
		t.Errorf("ApprovalTimeoutSec = %d, want %d",
			cfg.Preferences.ApprovalTimeoutSec, def.Preferences.ApprovalTimeoutSec)
	}
	if cfg.ListenAddr != def.ListenAddr {
		t.Errorf("ListenAddr = %s, want %s", cfg.ListenAddr, def.ListenAddr)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{ nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadRejectsZeroedTuning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{"execution": {"max_concurrent_steps": 0, "step_timeout_factor": -1}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := DefaultConfig()
	if cfg.Execution.MaxConcurrentSteps != def.Execution.MaxConcurrentSteps {
		t.Errorf("zero concurrency must fall back to default, got %d", cfg.Execution.MaxConcurrentSteps)
	}
	if cfg.Execution.StepTimeoutFactor != def.Execution.StepTimeoutFactor {
		t.Errorf("negative timeout factor must fall back to default, got %f", cfg.Execution.StepTimeoutFactor)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	cfg.Preferences.RiskTolerance = "aggressive"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.LogLevel != "warn" {
		t.Errorf("LogLevel = %s, want warn", loaded.LogLevel)
	}
	if loaded.Preferences.RiskTolerance != "aggressive" {
		t.Errorf("RiskTolerance = %s, want aggressive", loaded.Preferences.RiskTolerance)
	}
}

func TestUserPreferencesConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Preferences.AutoApprovalLevel = "medium"
	cfg.Preferences.ApprovalTimeoutSec = 42
	cfg.Preferences.LearningEnabled = true
	cfg.Preferences.RiskTolerance = "conservative"

	prefs := cfg.UserPreferences()
	if prefs.AutoApprovalLevel != agent.AutoApprovalMedium {
		t.Errorf("AutoApprovalLevel = %s, want medium", prefs.AutoApprovalLevel)
	}
	if prefs.DefaultApprovalTimeoutMs != 42_000 {
		t.Errorf("DefaultApprovalTimeoutMs = %d, want 42000", prefs.DefaultApprovalTimeoutMs)
	}
	if prefs.RiskTolerance != agent.RiskToleranceConservative {
		t.Errorf("RiskTolerance = %s, want conservative", prefs.RiskTolerance)
	}
}

func TestUserPreferencesInvalidEnumsFallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Preferences.AutoApprovalLevel = "yolo"
	cfg.Preferences.PreferredComplexityLevel = "galactic"
	cfg.Preferences.RiskTolerance = "reckless"

	prefs := cfg.UserPreferences()
	def := agent.DefaultPreferences()
	if prefs.AutoApprovalLevel != def.AutoApprovalLevel {
		t.Errorf("AutoApprovalLevel = %s, want default %s", prefs.AutoApprovalLevel, def.AutoApprovalLevel)
	}
	if prefs.PreferredComplexityLevel != def.PreferredComplexityLevel {
		t.Errorf("PreferredComplexityLevel = %s, want default %s",
			prefs.PreferredComplexityLevel, def.PreferredComplexityLevel)
	}
	if prefs.RiskTolerance != def.RiskTolerance {
		t.Errorf("RiskTolerance = %s, want default %s", prefs.RiskTolerance, def.RiskTolerance)
	}
}
