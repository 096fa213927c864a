// Package config loads taskpilot settings from an optional YAML file plus
// environment variables. Credentials come from the environment only and are
// never written to the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables. GEMINI_API_KEY is required for any command that
// talks to the completion service; the codegen key is optional because the
// collaborator integration ships as a placeholder.
const (
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvCodegenKey   = "TASKPILOT_CODEGEN_KEY"
	EnvListenAddr   = "TASKPILOT_ADDR"
	EnvModel        = "TASKPILOT_MODEL"
)

// DefaultFile is where Load looks when no path is given.
const DefaultFile = "taskpilot.yaml"

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Stream   StreamConfig   `yaml:"stream"`

	// Credentials, environment only.
	GeminiAPIKey string `yaml:"-"`
	CodegenKey   string `yaml:"-"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`

	// SessionIdleSeconds is how long a session may sit without a request
	// before the background sweep removes it. Zero disables the sweep.
	SessionIdleSeconds int `yaml:"session_idle_seconds"`
}

func (c ServerConfig) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleSeconds) * time.Second
}

type LLMConfig struct {
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type WorkflowConfig struct {
	MaxClarificationRounds int `yaml:"max_clarification_rounds"`
	MaxTokens              int `yaml:"max_tokens"`
	AnswerMaxTokens        int `yaml:"answer_max_tokens"`
}

type StreamConfig struct {
	Capacity         int `yaml:"capacity"`
	KeepAliveSeconds int `yaml:"keep_alive_seconds"`
}

func (c StreamConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8000",
			SessionIdleSeconds: 1800,
		},
		LLM: LLMConfig{
			Model:          "gemini-2.5-flash",
			TimeoutSeconds: 120,
		},
		Workflow: WorkflowConfig{
			MaxClarificationRounds: 2,
			MaxTokens:              1000,
			AnswerMaxTokens:        1500,
		},
		Stream: StreamConfig{
			Capacity:         64,
			KeepAliveSeconds: 5,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file if present,
// then environment overrides. A missing file is not an error; a malformed
// one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults apply.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.GeminiAPIKey = os.Getenv(EnvGeminiAPIKey)
	c.CodegenKey = os.Getenv(EnvCodegenKey)
	if addr := os.Getenv(EnvListenAddr); addr != "" {
		c.Server.Addr = addr
	}
	if model := os.Getenv(EnvModel); model != "" {
		c.LLM.Model = model
	}
}

// Validate checks the settings needed to talk to the completion service.
// Commands that run fully offline skip this.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%s environment variable is required", EnvGeminiAPIKey)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Workflow.MaxClarificationRounds < 1 {
		return fmt.Errorf("workflow.max_clarification_rounds must be at least 1")
	}
	return nil
}
