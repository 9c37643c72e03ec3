package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimiza/smm/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Store.Driver = "memory"
	cfg.Logging = config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"}
	cfg.Notice.Language = "en"
	cfg.Triggers = config.TriggersConfig{
		Walk:     "@every 10m",
		Generate: "@every 1m",
		Cast:     "@every 1m",
	}
	cfg.Publishers = config.PublishersConfig{Telegram: true, X: true, Facebook: true}
	return cfg
}

func TestNewAssemblesComponents(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)

	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Notifier)
	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Feeds)
	assert.NotNil(t, a.Maintenance)
	assert.NotNil(t, a.Scheduler)
	assert.Nil(t, a.Metrics)

	assert.Equal(t, []string{"cast-scan", "generate-scan", "plan-walk"}, a.Scheduler.Jobs())
}

func TestNewSQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "smm.db")

	a, err := New(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, a.storeCloser)
	require.NoError(t, a.Shutdown(context.Background()))
}

func TestNewUnknownStoreDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "postgres"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestStartAndShutdown(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Shutdown(ctx))
}
