// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Solver  SolverConfig  `mapstructure:"solver" yaml:"solver"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
	Scorer  ScorerConfig  `mapstructure:"scorer" yaml:"scorer"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// LLMConfig configures the model routing layer.
type LLMConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    float64                   `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// SolverConfig bounds one iteration session.
type SolverConfig struct {
	// MaxSteps is the global step budget; the session completes once the
	// counter reaches it, regardless of sub-state.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// MinGenTrials is how many unparseable replies are tolerated before the
	// session completes with the best artifact so far.
	MinGenTrials int `mapstructure:"min_gen_trials" yaml:"min_gen_trials"`
	// RepairAttempts bounds the per-step repair sub-loop.
	RepairAttempts int `mapstructure:"repair_attempts" yaml:"repair_attempts"`
	// HistoryLen is the capacity of the recent step-summary window.
	HistoryLen  int           `mapstructure:"history_len" yaml:"history_len"`
	ExecTimeout time.Duration `mapstructure:"exec_timeout" yaml:"exec_timeout"`
	// StopToken, when non-empty and present in a reply, ends the session
	// early in the Completed state.
	StopToken string `mapstructure:"stop_token" yaml:"stop_token"`
}

// SandboxConfig configures the isolated execution environment.
type SandboxConfig struct {
	// Command is the interpreter invocation; the artifact's file path is
	// appended as the final argument.
	Command        []string `mapstructure:"command" yaml:"command"`
	SourceFile     string   `mapstructure:"source_file" yaml:"source_file"`
	MaxOutputBytes int      `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	FigureGlobs    []string `mapstructure:"figure_globs" yaml:"figure_globs"`
}

// ScorerConfig tunes the artifact quality judgment.
type ScorerConfig struct {
	// Mode selects "heuristic" (deterministic, local) or "reviewer"
	// (delegated to the LLM).
	Mode         string  `mapstructure:"mode" yaml:"mode"`
	Threshold    float64 `mapstructure:"threshold" yaml:"threshold"`
	BaseScore    float64 `mapstructure:"base_score" yaml:"base_score"`
	FaultPenalty float64 `mapstructure:"fault_penalty" yaml:"fault_penalty"`
	PlanBonus    float64 `mapstructure:"plan_bonus" yaml:"plan_bonus"`
	Attempts     int     `mapstructure:"attempts" yaml:"attempts"`
}

// OutputConfig controls where session outcomes are written.
type OutputConfig struct {
	Dir          string `mapstructure:"dir" yaml:"dir"`
	WriteFigures bool   `mapstructure:"write_figures" yaml:"write_figures"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "crucible")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("llm.requests_per_minute", 30.0)

	// -- Solver --
	v.SetDefault("solver.max_steps", 10)
	v.SetDefault("solver.min_gen_trials", 2)
	v.SetDefault("solver.repair_attempts", 2)
	v.SetDefault("solver.history_len", 5)
	v.SetDefault("solver.exec_timeout", "60s")
	v.SetDefault("solver.stop_token", "")

	// -- Sandbox --
	v.SetDefault("sandbox.command", []string{"python3"})
	v.SetDefault("sandbox.source_file", "artifact.py")
	v.SetDefault("sandbox.max_output_bytes", 65536)
	v.SetDefault("sandbox.figure_globs", []string{"*.png", "*.jpg", "*.svg"})

	// -- Scorer --
	v.SetDefault("scorer.mode", "heuristic")
	v.SetDefault("scorer.threshold", 0.7)
	v.SetDefault("scorer.base_score", 0.85)
	v.SetDefault("scorer.fault_penalty", 0.25)
	v.SetDefault("scorer.plan_bonus", 0.1)
	v.SetDefault("scorer.attempts", 3)

	// -- Output --
	v.SetDefault("output.dir", "crucible-out")
	v.SetDefault("output.write_figures", true)
}

// NewDefaultConfig creates a new configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver configuration invalid: %w", err)
	}
	if err := c.Sandbox.Validate(); err != nil {
		return fmt.Errorf("sandbox configuration invalid: %w", err)
	}
	if err := c.Scorer.Validate(); err != nil {
		return fmt.Errorf("scorer configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the solver budgets.
func (s *SolverConfig) Validate() error {
	if s.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if s.MinGenTrials <= 0 {
		return fmt.Errorf("min_gen_trials must be a positive integer")
	}
	if s.RepairAttempts < 0 {
		return fmt.Errorf("repair_attempts must not be negative")
	}
	if s.HistoryLen <= 0 {
		return fmt.Errorf("history_len must be a positive integer")
	}
	if s.ExecTimeout <= 0 {
		return fmt.Errorf("exec_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the sandbox settings.
func (s *SandboxConfig) Validate() error {
	if len(s.Command) == 0 {
		return fmt.Errorf("command must name an interpreter")
	}
	if s.SourceFile == "" {
		return fmt.Errorf("source_file must not be empty")
	}
	if s.MaxOutputBytes <= 0 {
		return fmt.Errorf("max_output_bytes must be a positive integer")
	}
	return nil
}

// Validate checks the scorer settings.
func (s *ScorerConfig) Validate() error {
	if s.Mode != "heuristic" && s.Mode != "reviewer" {
		return fmt.Errorf("mode must be 'heuristic' or 'reviewer', got %q", s.Mode)
	}
	if s.Threshold < 0.0 || s.Threshold > 1.0 {
		return fmt.Errorf("threshold must be between 0.0 and 1.0")
	}
	if s.Attempts <= 0 {
		return fmt.Errorf("attempts must be a positive integer")
	}
	return nil
}
