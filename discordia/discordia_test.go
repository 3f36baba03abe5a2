package discordia

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownDatabaseType(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.DatabaseType = "mysql"

	_, err := New(cfg)
	require.Error(t, err)

	var configErr ConfigurationError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "database_type", configErr.Field)
}

func TestNewWiresDefaults(t *testing.T) {
	cfg := DefaultTestConfig(t)
	bot, err := New(cfg)
	require.NoError(t, err)

	require.NotNil(t, bot.State())
	require.NotNil(t, bot.Registry())
	require.NotNil(t, bot.chain)
	require.NotNil(t, bot.llm)
	require.NotNil(t, bot.reconciler)

	// default backup enabled, API disabled
	assert.NotNil(t, bot.backup)
	assert.Nil(t, bot.api)

	// auto-created daily log template
	template := bot.Template()
	require.Len(t, template.Categories, 1)
	assert.Equal(t, DefaultLogCategoryName, template.Categories[0].Name)
	require.Len(t, template.Categories[0].Patterns, 1)
}

func TestTemplateFromConfig(t *testing.T) {
	template := templateFromConfig(
		&ReconcilerConfig{
			AutoCreateDailyLogs: true,
			LogCategoryName:     "Journal",
			DailyLogDaysAhead:   1,
			DailyLogDaysBehind:  2,
		},
	)
	require.Len(t, template.Categories, 1)
	assert.Equal(t, "Journal", template.Categories[0].Name)

	expanded := template.Expand(patternAsOf)
	assert.Len(t, expanded.Categories[0].Channels, 4)

	assert.Empty(t, templateFromConfig(&ReconcilerConfig{}).Categories)
	assert.Empty(t, templateFromConfig(nil).Categories)
}

func TestSetTemplateValidates(t *testing.T) {
	bot, err := New(DefaultTestConfig(t))
	require.NoError(t, err)

	err = bot.SetTemplate(
		ServerTemplate{
			Categories: []CategoryTemplate{{Name: "Log"}, {Name: "Log"}},
		},
	)
	require.Error(t, err)

	valid := ServerTemplate{
		Categories: []CategoryTemplate{
			{
				Name:     "Projects",
				Patterns: []Pattern{
					PrefixedPattern{Prefix: "proj", Suffixes: []string{"a"}},
				},
			},
		},
	}
	require.NoError(t, bot.SetTemplate(valid))
	assert.Equal(t, "Projects", bot.Template().Categories[0].Name)
}

func TestReconcileRejectsOverlappingPasses(t *testing.T) {
	bot, err := New(DefaultTestConfig(t))
	require.NoError(t, err)

	// hold the pass lock to simulate an in-flight reconciliation
	require.True(t, bot.reconcileMu.TryLock())
	defer bot.reconcileMu.Unlock()

	_, err = bot.Reconcile(context.Background())
	require.ErrorIs(t, err, ErrReconcileInProgress)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.Discord.Token = ""
	bot, err := New(cfg)
	require.NoError(t, err)

	err = bot.Run(context.Background())
	require.Error(t, err)

	var configErr ConfigurationError
	require.ErrorAs(t, err, &configErr)
}
