package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CORUN"

// Load builds a Config from defaults, an optional YAML file and the
// environment, in increasing order of precedence, then validates it.
//
// With an empty path Load looks for corun.yaml in the working directory and
// carries on without it when absent. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("corun")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The API key also answers to the name Google's tooling uses.
	if err := v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind llm.api_key: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the config's struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("scheduler.clock", d.Scheduler.Clock)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.system_prompt", d.LLM.SystemPrompt)
}
