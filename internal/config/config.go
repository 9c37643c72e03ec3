package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"
)

// Load reads a TOML configuration file, applies defaults and expands
// environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() []error {
	var errors []error

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errors = append(errors, fmt.Errorf("store.path is required when driver is 'sqlite'"))
		}
	case "memory":
	default:
		errors = append(errors, fmt.Errorf("invalid store.driver: %s (expected: sqlite, memory)", c.Store.Driver))
	}

	if c.Logging.Level == "" {
		errors = append(errors, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
		}
	}

	if c.Logging.Format == "" {
		errors = append(errors, fmt.Errorf("logging.format is required"))
	} else {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Logging.Format)] {
			errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
		}
	}

	if c.Logging.Output == "" {
		errors = append(errors, fmt.Errorf("logging.output is required"))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errors = append(errors, fmt.Errorf("metrics.addr is required when metrics are enabled"))
	}

	if _, err := language.Parse(c.Notice.Language); err != nil {
		errors = append(errors, fmt.Errorf("invalid notice.language: %s", c.Notice.Language))
	}

	if c.Generator.OpenAI.APIKey != "" {
		if err := validateAPIKey(c.Generator.OpenAI.APIKey, "generator.openai.api_key"); err != nil {
			errors = append(errors, err)
		}
	}

	if c.Triggers.TokenMaxAgeMinutes < 0 {
		errors = append(errors, fmt.Errorf("triggers.token_max_age_minutes must be >= 0"))
	}

	return errors
}

// Language returns the parsed notice language tag.
func (c *Config) Language() language.Tag {
	tag, err := language.Parse(c.Notice.Language)
	if err != nil {
		return language.English
	}
	return tag
}

func validateAPIKey(key, fieldName string) error {
	if len(key) < 10 {
		return fmt.Errorf("%s is too short (minimum 10 characters, got: %s)", fieldName, maskSecret(key))
	}
	return nil
}

// applyDefaults fills in the default values for unset fields.
func applyDefaults(c *Config) {
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "~/.smm/smm.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "smm"
	}

	if c.Notice.Language == "" {
		c.Notice.Language = "en"
	}

	if c.Triggers.Walk == "" {
		c.Triggers.Walk = "@every 10m"
	}
	if c.Triggers.Generate == "" {
		c.Triggers.Generate = "@every 1m"
	}
	if c.Triggers.Cast == "" {
		c.Triggers.Cast = "@every 1m"
	}
	if c.Triggers.FeedRefresh == "" {
		c.Triggers.FeedRefresh = "@every 15m"
	}
	if c.Triggers.ProfileRefresh == "" {
		c.Triggers.ProfileRefresh = "@daily"
	}
	if c.Triggers.TokenRefresh == "" {
		c.Triggers.TokenRefresh = "@every 30m"
	}
	if c.Triggers.TokenMaxAgeMinutes == 0 {
		c.Triggers.TokenMaxAgeMinutes = 90
	}

	if c.Generator.OpenAI.Model == "" {
		c.Generator.OpenAI.Model = "gpt-3.5-turbo"
	}
	if c.Generator.OpenAI.TimeoutSeconds == 0 {
		c.Generator.OpenAI.TimeoutSeconds = 60
	}
}

// expandEnvVars expands environment references and home paths in the fields
// that commonly carry them.
func expandEnvVars(c *Config) {
	c.Generator.OpenAI.APIKey = expandEnv(c.Generator.OpenAI.APIKey)
	c.Store.Path = expandHome(expandEnv(c.Store.Path))
	c.Logging.Output = expandHome(c.Logging.Output)
}

// expandEnv expands a ${VAR} or ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		return parts[1]
	}

	return os.Getenv(content)
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
