package discordia

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DefaultTestConfig returns a config that validates, with credentials
// stubbed and logging quieted.
func DefaultTestConfig(t testing.TB) *Config {
	t.Helper()
	tmpdir := t.TempDir()
	cfg := DefaultConfig()

	cfg.Discord.Token = "discord-test-token"
	cfg.Discord.ServerID = "test-server"
	cfg.LLM.Token = "llm-test-token"

	cfg.DatabaseType = dbTypeSQLite
	cfg.Database = filepath.Join(tmpdir, fmt.Sprintf("%s.sqlite3", t.Name()))
	cfg.Backup.Path = filepath.Join(tmpdir, "backup.jsonl")
	cfg.StartupTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 10 * time.Second

	logLevel := slog.LevelWarn
	cfg.LogLevel.Set(logLevel)
	cfg.Discord.LogLevel.Set(logLevel)
	cfg.Discord.DiscordGoLogLevel.Set(logLevel)
	cfg.LLM.LogLevel.Set(logLevel)
	cfg.DatabaseLogLevel.Set(logLevel)
	cfg.API.LogLevel.Set(logLevel)

	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultDatabaseType, cfg.DatabaseType)
	assert.Equal(t, DefaultContextMessageLimit, cfg.ContextMessageLimit)
	assert.Equal(t, DefaultMaxOutboundMessageLength, cfg.MaxMessageLength)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel.Level())

	require.NotNil(t, cfg.Discord)
	assert.Equal(t, DefaultDiscordGatewayIntent, cfg.Discord.GatewayIntents)
	assert.Equal(t, DefaultMessageRetryDelay, cfg.Discord.MessageRetryDelay)

	require.NotNil(t, cfg.LLM)
	assert.Equal(t, DefaultLLMModel, cfg.LLM.Model)
	assert.Equal(t, DefaultSystemPrompt, cfg.LLM.SystemPrompt)

	require.NotNil(t, cfg.Reconciler)
	assert.Equal(t, DefaultReconcileInterval, cfg.Reconciler.Interval)
	assert.Equal(t, DefaultLogCategoryName, cfg.Reconciler.LogCategoryName)
	assert.True(t, cfg.Reconciler.AutoCreateDailyLogs)
}

func TestValidateConfigRequiresTokens(t *testing.T) {
	cfg := DefaultConfig()

	// no tokens set
	require.Error(t, structValidator.Struct(cfg))

	cfg = DefaultTestConfig(t)
	require.NoError(t, structValidator.Struct(cfg))
}

func TestValidateConfigBounds(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.ContextMessageLimit = 0
	require.Error(t, structValidator.Struct(cfg))

	cfg = DefaultTestConfig(t)
	cfg.ContextMessageLimit = 101
	require.Error(t, structValidator.Struct(cfg))

	cfg = DefaultTestConfig(t)
	cfg.MaxMessageLength = discordMaxMessageLength + 1
	require.Error(t, structValidator.Struct(cfg))

	cfg = DefaultTestConfig(t)
	cfg.DatabaseType = "mysql"
	require.Error(t, structValidator.Struct(cfg))

	cfg = DefaultTestConfig(t)
	cfg.ContextMessageLimit = 100
	cfg.MaxMessageLength = 1
	require.NoError(t, structValidator.Struct(cfg))
}

func TestConfigLogValueRedactsTokens(t *testing.T) {
	cfg := DefaultTestConfig(t)
	logged := fmt.Sprintf("%+v", cfg.LogValue())

	assert.NotContains(t, logged, "discord-test-token")
	assert.NotContains(t, logged, "llm-test-token")
	assert.Contains(t, logged, "[redacted]")
}
