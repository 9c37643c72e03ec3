package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, "smm", cfg.Metrics.Namespace)
	assert.Equal(t, "en", cfg.Notice.Language)
	assert.Equal(t, "@every 10m", cfg.Triggers.Walk)
	assert.Equal(t, "@every 1m", cfg.Triggers.Generate)
	assert.Equal(t, "@every 1m", cfg.Triggers.Cast)
	assert.Equal(t, 90, cfg.Triggers.TokenMaxAgeMinutes)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Generator.OpenAI.Model)
	assert.Equal(t, 60, cfg.Generator.OpenAI.TimeoutSeconds)
}

func TestLoadParsesAllSections(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[store]
driver = "memory"

[logging]
level = "debug"
format = "text"

[metrics]
enabled = true
addr = ":2112"

[notice]
language = "vi"

[triggers]
walk = "@every 5m"
token_max_age_minutes = 60

[generator.openai]
api_key = "sk-1234567890"
model = "gpt-4"

[publishers]
telegram = true
x = true

[crawler]
enabled = true
`))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":2112", cfg.Metrics.Addr)
	assert.Equal(t, "vi", cfg.Notice.Language)
	assert.Equal(t, language.Vietnamese, cfg.Language())
	assert.Equal(t, "@every 5m", cfg.Triggers.Walk)
	assert.Equal(t, 60, cfg.Triggers.TokenMaxAgeMinutes)
	assert.Equal(t, "sk-1234567890", cfg.Generator.OpenAI.APIKey)
	assert.Equal(t, "gpt-4", cfg.Generator.OpenAI.Model)
	assert.True(t, cfg.Publishers.Telegram)
	assert.True(t, cfg.Publishers.X)
	assert.False(t, cfg.Publishers.Facebook)
	assert.True(t, cfg.Crawler.Enabled)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("SMM_TEST_API_KEY", "sk-from-environment")

	cfg, err := Load(writeConfig(t, `
[generator.openai]
api_key = "${SMM_TEST_API_KEY}"
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-environment", cfg.Generator.OpenAI.APIKey)
}

func TestLoadEnvDefaultValue(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[generator.openai]
api_key = "${SMM_TEST_UNSET_KEY:sk-fallback-value}"
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-fallback-value", cfg.Generator.OpenAI.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadInvalidTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "[store\ndriver ="))
	assert.Error(t, err)
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := &Config{
		Store:   StoreConfig{Driver: "postgres"},
		Logging: LoggingConfig{Level: "loud", Format: "xml", Output: ""},
		Metrics: MetricsConfig{Enabled: true},
		Notice:  NoticeConfig{Language: "not a tag!"},
	}

	errs := cfg.Validate()
	require.NotEmpty(t, errs)

	var messages []string
	for _, err := range errs {
		messages = append(messages, err.Error())
	}
	joined := ""
	for _, m := range messages {
		joined += m + "\n"
	}
	assert.Contains(t, joined, "store.driver")
	assert.Contains(t, joined, "logging.level")
	assert.Contains(t, joined, "logging.format")
	assert.Contains(t, joined, "logging.output")
	assert.Contains(t, joined, "metrics.addr")
	assert.Contains(t, joined, "notice.language")
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Empty(t, cfg.Validate())
}

func TestValidateSQLiteRequiresPath(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	cfg.Store.Path = ""
	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "store.path")
}

func TestValidateMasksShortAPIKey(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[generator.openai]
api_key = "short"
`))
	require.NoError(t, err)

	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "generator.openai.api_key")
	assert.Contains(t, errs[0].Error(), "***")
}
