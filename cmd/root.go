package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/Bullish-Design/discordia/discordia"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = discordia.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "discordia [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", discordia.DefaultDatabase)
	viper.SetDefault("database_type", discordia.DefaultDatabaseType)
	viper.SetDefault("archive_enabled", false)
	viper.SetDefault(
		"database_slow_threshold",
		discordia.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		discordia.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", discordia.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", discordia.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", discordia.DefaultShutdownTimeout)
	viper.SetDefault(
		"context_message_limit",
		discordia.DefaultContextMessageLimit,
	)
	viper.SetDefault(
		"max_message_length",
		discordia.DefaultMaxOutboundMessageLength,
	)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.server_id", "")
	viper.SetDefault("discord.custom_status", discordia.DefaultDiscordCustomStatus)
	viper.SetDefault("discord.fallback_notice", discordia.DefaultFallbackNotice)
	viper.SetDefault(
		"discord.message_retry_delay",
		discordia.DefaultMessageRetryDelay,
	)
	viper.SetDefault(
		"discord.log_level",
		discordia.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		discordia.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		discordia.DefaultDiscordGatewayIntent,
	)

	// LLM config
	viper.SetDefault("llm.token", "")
	viper.SetDefault("llm.model", discordia.DefaultLLMModel)
	viper.SetDefault("llm.base_url", "")
	viper.SetDefault("llm.system_prompt", discordia.DefaultSystemPrompt)
	viper.SetDefault("llm.max_tokens", discordia.DefaultLLMMaxTokens)
	viper.SetDefault(
		"llm.max_requests_per_second",
		discordia.DefaultLLMMaxRequestsPerSecond,
	)
	viper.SetDefault("llm.request_timeout", discordia.DefaultLLMRequestTimeout)
	viper.SetDefault("llm.log_level", discordia.DefaultLLMLogLevel.String())

	// Reconciler config
	viper.SetDefault(
		"reconciler.interval",
		discordia.DefaultReconcileInterval,
	)
	viper.SetDefault("reconciler.reconcile_on_startup", true)
	viper.SetDefault("reconciler.auto_create_daily_logs", true)
	viper.SetDefault(
		"reconciler.log_category_name",
		discordia.DefaultLogCategoryName,
	)
	viper.SetDefault(
		"reconciler.daily_log_days_ahead",
		discordia.DefaultDailyLogDaysAhead,
	)
	viper.SetDefault(
		"reconciler.daily_log_days_behind",
		discordia.DefaultDailyLogsBehind,
	)

	// Backup config
	viper.SetDefault("backup.enabled", true)
	viper.SetDefault("backup.path", discordia.DefaultBackupPath)

	// API config
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", discordia.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.log_level", discordia.DefaultAPILogLevel.String())
	viper.SetDefault("api.allow_origins", []string{})
	viper.SetDefault("api.read_timeout", discordia.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		discordia.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", discordia.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", discordia.DefaultIdleTimeout)
	viper.SetDefault("api.development", false)

	viper.SetEnvPrefix("DISCORDIA")

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"api.allow_origins",
		viper.GetStringSlice("api.allow_origins"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"llm.log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//goland:noinspection GoLinter
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
