// Package config loads and validates testsmith configuration.
// Configuration lives at .testsmith/config.yaml in the project root,
// with environment variables taking precedence over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all testsmith configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Target project layout
	Project ProjectConfig `yaml:"project"`

	// Session history storage
	History HistoryConfig `yaml:"history"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the Gemini client.
type LLMConfig struct {
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url"`
	Timeout         string  `yaml:"timeout"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// ProjectConfig describes the Java project the tool operates on.
type ProjectConfig struct {
	// Root of the Maven/Gradle project (default: current directory)
	Root string `yaml:"root"`

	// Source and test roots relative to Root
	SourceRoot string `yaml:"source_root"`
	TestRoot   string `yaml:"test_root"`

	// Optional project context files fed into the system prompt
	ArchitectureFile string `yaml:"architecture_file"`
	MetadataFile     string `yaml:"metadata_file"`

	// Token budget for related-source context in prompts
	ContextTokenBudget int `yaml:"context_token_budget"`
}

// HistoryConfig configures the SQLite session history store.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "testsmith",
		Version: "0.3.0",

		LLM: LLMConfig{
			Model:           "gemini-2.0-flash",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         "120s",
			Temperature:     0.2,
			MaxOutputTokens: 8192,
		},

		Project: ProjectConfig{
			Root:               ".",
			SourceRoot:         "src/main/java",
			TestRoot:           "src/test/java",
			ArchitectureFile:   "architecture.md",
			MetadataFile:       "metadata.txt",
			ContextTokenBudget: 6000,
		},

		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: ".testsmith/history.db",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// LoadForProject loads configuration from <root>/.testsmith/config.yaml.
func LoadForProject(root string) (*Config, error) {
	cfg, err := Load(filepath.Join(root, ".testsmith", "config.yaml"))
	if err != nil {
		return nil, err
	}
	if cfg.Project.Root == "." || cfg.Project.Root == "" {
		cfg.Project.Root = root
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API key from environment (check in priority order)
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}

	if model := os.Getenv("TESTSMITH_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("TESTSMITH_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if path := os.Getenv("TESTSMITH_DB"); path != "" {
		c.History.DatabasePath = path
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url must not be empty")
	}
	if c.LLM.Timeout != "" {
		if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
			return fmt.Errorf("llm.timeout is not a valid duration: %w", err)
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if c.Project.SourceRoot == "" {
		return fmt.Errorf("project.source_root must not be empty")
	}
	if c.Project.TestRoot == "" {
		return fmt.Errorf("project.test_root must not be empty")
	}
	return nil
}

// RequireAPIKey returns an error describing how to supply credentials
// when no API key is configured.
func (c *Config) RequireAPIKey() error {
	if c.LLM.APIKey != "" {
		return nil
	}
	return fmt.Errorf("no API key configured: set GEMINI_API_KEY or GOOGLE_API_KEY, or add llm.api_key to .testsmith/config.yaml")
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// SourceDir returns the absolute path of the main source root.
func (c *Config) SourceDir() string {
	return filepath.Join(c.Project.Root, c.Project.SourceRoot)
}

// TestDir returns the absolute path of the test source root.
func (c *Config) TestDir() string {
	return filepath.Join(c.Project.Root, c.Project.TestRoot)
}
