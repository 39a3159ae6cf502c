// Package config holds corun's configuration and loads it from an optional
// YAML file and CORUN_* environment variables.
package config

import "time"

// Config holds all corun configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
}

// SchedulerConfig selects the run loop's clock. "virtual" jumps straight to
// the next timer and is meant for dry runs and tests.
type SchedulerConfig struct {
	Clock string `mapstructure:"clock" yaml:"clock" validate:"required,oneof=real virtual"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
}

// LLMConfig configures the language model that answers questions. APIKey is
// only required by commands that call the model.
type LLMConfig struct {
	APIKey       string  `mapstructure:"api_key" yaml:"-"`
	Model        string  `mapstructure:"model" yaml:"model" validate:"required"`
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	SystemPrompt string  `mapstructure:"system_prompt" yaml:"system_prompt" validate:"required"`
}

// DefaultSystemPrompt gives the assistant its persona.
const DefaultSystemPrompt = "Your name is Prototipo and your only job is to chat with the user."

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Scheduler: SchedulerConfig{
			Clock: "real",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Model:        "gemini-2.0-flash",
			Temperature:  0.2,
			SystemPrompt: DefaultSystemPrompt,
		},
	}
}
