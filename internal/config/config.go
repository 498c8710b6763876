// Package config owns the on-disk configuration document for the agent
// engine and pushes change notifications to interested components.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
)

// ClassifierConfig selects the optional LLM-backed goal classifier. When
// Provider is empty the deterministic rule-based analyzer is used.
type ClassifierConfig struct {
	Provider string `json:"provider,omitempty"` // "anthropic", "openai" or ""
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ExecutionConfig holds coordinator tuning knobs.
type ExecutionConfig struct {
	MaxConcurrentSteps  int     `json:"max_concurrent_steps"`
	MaxStepRetries      int     `json:"max_step_retries"`
	StepTimeoutFactor   float64 `json:"step_timeout_factor"`
	AutosaveIntervalSec int     `json:"autosave_interval_seconds"`
}

// PreferencesConfig mirrors the user preference fields sourced from
// configuration. They are pushed into the state store on every change.
type PreferencesConfig struct {
	AutoApprovalLevel        string `json:"auto_approval_level"`
	PreferredComplexityLevel string `json:"preferred_complexity_level"`
	NotificationLevel        string `json:"notification_level"`
	ApprovalTimeoutSec       int    `json:"approval_timeout_seconds"`
	LearningEnabled          bool   `json:"learning_enabled"`
	AdaptiveBehavior         bool   `json:"adaptive_behavior"`
	RiskTolerance            string `json:"risk_tolerance"`
}

// Config is the application configuration document.
type Config struct {
	WorkingDir  string            `json:"working_dir"`
	StatePath   string            `json:"state_path"`
	LogLevel    string            `json:"log_level"`
	LogPath     string            `json:"log_path"`
	ListenAddr  string            `json:"listen_addr"`
	Preferences PreferencesConfig `json:"preferences"`
	Execution   ExecutionConfig   `json:"execution"`
	Classifier  ClassifierConfig  `json:"classifier,omitempty"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "flowagent")
		}
	default:
		if cfgHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); cfgHome != "" {
			return filepath.Join(cfgHome, "flowagent")
		}
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "flowagent")
}

func defaultStateDir() string {
	if runtime.GOOS == "linux" {
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "flowagent")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "flowagent")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "flowagent")
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	stateDir := defaultStateDir()
	return &Config{
		WorkingDir: ".",
		StatePath:  filepath.Join(stateDir, "agent-state.json"),
		LogLevel:   "info",
		LogPath:    filepath.Join(stateDir, "flowagent.log"),
		ListenAddr: "127.0.0.1:7463",
		Preferences: PreferencesConfig{
			AutoApprovalLevel:        "none",
			PreferredComplexityLevel: "moderate",
			NotificationLevel:        "normal",
			ApprovalTimeoutSec:       300,
			LearningEnabled:          true,
			AdaptiveBehavior:         true,
			RiskTolerance:            "balanced",
		},
		Execution: ExecutionConfig{
			MaxConcurrentSteps:  3,
			MaxStepRetries:      2,
			StepTimeoutFactor:   3,
			AutosaveIntervalSec: 30,
		},
	}
}

// Load reads the configuration from path. A missing file yields defaults;
// present fields override defaults, absent fields keep them. The explicit
// reconciliation below documents the default-fill behavior per field so a
// partially written document cannot silently zero out tuning knobs.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	def := DefaultConfig()
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = def.WorkingDir
	}
	if cfg.StatePath == "" {
		cfg.StatePath = def.StatePath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.LogPath == "" {
		cfg.LogPath = def.LogPath
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.Preferences.AutoApprovalLevel == "" {
		cfg.Preferences.AutoApprovalLevel = def.Preferences.AutoApprovalLevel
	}
	if cfg.Preferences.PreferredComplexityLevel == "" {
		cfg.Preferences.PreferredComplexityLevel = def.Preferences.PreferredComplexityLevel
	}
	if cfg.Preferences.NotificationLevel == "" {
		cfg.Preferences.NotificationLevel = def.Preferences.NotificationLevel
	}
	if cfg.Preferences.ApprovalTimeoutSec <= 0 {
		cfg.Preferences.ApprovalTimeoutSec = def.Preferences.ApprovalTimeoutSec
	}
	if cfg.Preferences.RiskTolerance == "" {
		cfg.Preferences.RiskTolerance = def.Preferences.RiskTolerance
	}
	if cfg.Execution.MaxConcurrentSteps <= 0 {
		cfg.Execution.MaxConcurrentSteps = def.Execution.MaxConcurrentSteps
	}
	if cfg.Execution.MaxStepRetries < 0 {
		cfg.Execution.MaxStepRetries = def.Execution.MaxStepRetries
	}
	if cfg.Execution.StepTimeoutFactor <= 0 {
		cfg.Execution.StepTimeoutFactor = def.Execution.StepTimeoutFactor
	}
	if cfg.Execution.AutosaveIntervalSec <= 0 {
		cfg.Execution.AutosaveIntervalSec = def.Execution.AutosaveIntervalSec
	}

	return cfg, nil
}

// Save writes the configuration document to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// GetConfigPath returns the default config document location.
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

// UserPreferences converts the configured preference fields into the
// domain preference type, filling invalid values with defaults.
func (c *Config) UserPreferences() agent.UserPreferences {
	prefs := agent.DefaultPreferences()
	switch lvl := agent.AutoApprovalLevel(c.Preferences.AutoApprovalLevel); lvl {
	case agent.AutoApprovalNone, agent.AutoApprovalLow, agent.AutoApprovalMedium, agent.AutoApprovalHigh:
		prefs.AutoApprovalLevel = lvl
	}
	switch lvl := agent.ComplexityLevel(c.Preferences.PreferredComplexityLevel); lvl {
	case agent.ComplexityTrivial, agent.ComplexitySimple, agent.ComplexityModerate,
		agent.ComplexityComplex, agent.ComplexityExpert:
		prefs.PreferredComplexityLevel = lvl
	}
	switch tol := agent.RiskTolerance(c.Preferences.RiskTolerance); tol {
	case agent.RiskToleranceConservative, agent.RiskToleranceBalanced, agent.RiskToleranceAggressive:
		prefs.RiskTolerance = tol
	}
	if c.Preferences.NotificationLevel != "" {
		prefs.NotificationLevel = c.Preferences.NotificationLevel
	}
	if c.Preferences.ApprovalTimeoutSec > 0 {
		prefs.DefaultApprovalTimeoutMs = int64(c.Preferences.ApprovalTimeoutSec) * 1000
	}
	prefs.LearningEnabled = c.Preferences.LearningEnabled
	prefs.AdaptiveBehavior = c.Preferences.AdaptiveBehavior
	return prefs
}
