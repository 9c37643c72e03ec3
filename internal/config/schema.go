// Package config provides configuration loading and validation. It supports
// TOML configuration files with environment variable expansion and default
// values.
//
// Configuration structure:
//   - [store]: persistence driver and database path
//   - [logging]: logging level, format, and output
//   - [metrics]: Prometheus endpoint settings
//   - [notice]: operator notice language
//   - [triggers]: cron expressions for the built-in jobs
//   - [generator.openai]: content generation provider
//   - [publishers]: enabled publishing adapters
//   - [crawler]: headless browser feed source
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax, for example: api_key = "${OPENAI_API_KEY}".
package config

// Config represents the main application configuration.
type Config struct {
	Store      StoreConfig      `toml:"store"`
	Logging    LoggingConfig    `toml:"logging"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Notice     NoticeConfig     `toml:"notice"`
	Triggers   TriggersConfig   `toml:"triggers"`
	Generator  GeneratorConfig  `toml:"generator"`
	Publishers PublishersConfig `toml:"publishers"`
	Crawler    CrawlerConfig    `toml:"crawler"`
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	// Driver is "sqlite" or "memory". The memory driver keeps nothing across
	// restarts and exists for local experiments.
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Addr      string `toml:"addr"`
	Namespace string `toml:"namespace"`
}

// NoticeConfig configures operator notices.
type NoticeConfig struct {
	// Language is a BCP 47 tag ("en", "vi").
	Language string `toml:"language"`
}

// TriggersConfig holds the cron expressions for the built-in jobs. An empty
// expression disables the job.
type TriggersConfig struct {
	Walk           string `toml:"walk"`
	Generate       string `toml:"generate"`
	Cast           string `toml:"cast"`
	FeedRefresh    string `toml:"feed_refresh"`
	ProfileRefresh string `toml:"profile_refresh"`
	TokenRefresh   string `toml:"token_refresh"`

	// TokenMaxAgeMinutes is how old rotating credentials may get before the
	// token-refresh job rotates them again.
	TokenMaxAgeMinutes int `toml:"token_max_age_minutes"`
}

// GeneratorConfig holds content generation providers.
type GeneratorConfig struct {
	OpenAI OpenAIConfig `toml:"openai"`
}

// OpenAIConfig configures the OpenAI generation provider.
type OpenAIConfig struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PublishersConfig enables publishing adapters per platform. Credentials
// live on the agents, not here.
type PublishersConfig struct {
	Telegram bool `toml:"telegram"`
	X        bool `toml:"x"`
	Facebook bool `toml:"facebook"`
}

// CrawlerConfig configures the headless browser feed source.
type CrawlerConfig struct {
	Enabled bool `toml:"enabled"`
}
