//nolint:lll // struct tags can't be split
package discordia

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultLogLevel          = slog.LevelInfo
	DefaultDiscordLogLevel   = slog.LevelWarn
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultLLMLogLevel       = slog.LevelInfo
	DefaultDatabaseLogLevel  = slog.LevelInfo
	DefaultAPILogLevel       = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultDatabaseType          = "sqlite"
	DefaultDatabase              = "discordia.sqlite3"
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond

	DefaultBackupPath = "discordia_backup.jsonl"

	DefaultLLMModel                 = "gpt-4o-mini"
	DefaultLLMMaxTokens             = 1024
	DefaultLLMMaxRequestsPerSecond  = 1
	DefaultLLMRequestTimeout        = 2 * time.Minute
	DefaultContextMessageLimit      = 20
	DefaultMaxOutboundMessageLength = 2000

	DefaultReconcileInterval = 15 * time.Minute
	DefaultLogCategoryName   = "Log"
	DefaultDailyLogDaysAhead = 1
	DefaultDailyLogsBehind   = 7

	DefaultDiscordCustomStatus = "watching the channels"
	DefaultMessageRetryDelay   = 2 * time.Second
	DefaultFallbackNotice      = "sorry, something went wrong!"

	DefaultAPIListen         = "127.0.0.1:5002"
	defaultListenNetwork     = "tcp"
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent

	discordMaxMessageLength = 2000

	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

var structValidator = validator.New()

//goland:noinspection GoLinter
func init() {
	structValidator.SetTagName("binding")
}

// Config is the root configuration for Discordia.
type Config struct {
	// Discord configures the discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// LLM configures the LLM provider used by the LLM-backed handlers
	LLM *LLMConfig `yaml:"llm" mapstructure:"llm" json:"llm"`

	// Reconciler configures reconciliation timing and the built-in
	// daily log template
	Reconciler *ReconcilerConfig `yaml:"reconciler" mapstructure:"reconciler" json:"reconciler"`

	// Backup configures the append-only JSONL bookkeeping log
	Backup *BackupConfig `yaml:"backup" mapstructure:"backup" json:"backup"`

	// API configures the status API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// Database connection string for the optional entity archive
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// ArchiveEnabled enables the database entity archive
	ArchiveEnabled bool `yaml:"archive_enabled" mapstructure:"archive_enabled" json:"archive_enabled"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// ContextMessageLimit is the number of recent messages loaded as LLM
	// conversation context
	ContextMessageLimit int `yaml:"context_message_limit" mapstructure:"context_message_limit" json:"context_message_limit" binding:"min=1,max=100"`

	// MaxMessageLength caps outbound reply length
	MaxMessageLength int `yaml:"max_message_length" mapstructure:"max_message_length" json:"max_message_length" binding:"min=1,max=2000"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// connect and finish initial discovery. If this is passed, the bot
	// will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord bot itself.
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// ServerID is the guild the bot operates in
	ServerID string `yaml:"server_id" mapstructure:"server_id" json:"server_id" binding:"required"`

	// CustomStatus is set as the bot user's status on connect
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// FallbackNotice is sent to the channel when reply delivery fails
	// even after the retry
	FallbackNotice string `yaml:"fallback_notice" mapstructure:"fallback_notice" json:"fallback_notice"`

	// MessageRetryDelay is the fixed delay before the single reply
	// delivery retry
	MessageRetryDelay time.Duration `yaml:"message_retry_delay" mapstructure:"message_retry_delay" json:"message_retry_delay"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

// LLMConfig configures LLM provider integration.
type LLMConfig struct {
	// Provider API token
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Model identifier
	Model string `yaml:"model" mapstructure:"model" json:"model"`

	// BaseURL overrides the provider endpoint (ex: for a proxy)
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`

	// SystemPrompt sent with every completion request
	SystemPrompt string `yaml:"system_prompt" mapstructure:"system_prompt" json:"system_prompt"`

	// MaxTokens caps each completion
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens" json:"max_tokens" binding:"min=1"`

	// MaxRequestsPerSecond limits provider call rate
	MaxRequestsPerSecond float64 `yaml:"max_requests_per_second" mapstructure:"max_requests_per_second" json:"max_requests_per_second"`

	// RequestTimeout bounds each provider call. A hang becomes a
	// reported error instead of stalling the handler chain.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout"`

	// LLM base log level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// ReconcilerConfig configures reconciliation timing and the built-in
// daily-log template.
type ReconcilerConfig struct {
	// Interval between periodic reconciliation passes. 0 disables the
	// periodic timer (the startup pass still runs if enabled).
	Interval time.Duration `yaml:"interval" mapstructure:"interval" json:"interval" binding:"min=0"`

	// ReconcileOnStartup triggers a pass right after initial discovery
	ReconcileOnStartup bool `yaml:"reconcile_on_startup" mapstructure:"reconcile_on_startup" json:"reconcile_on_startup"`

	// AutoCreateDailyLogs adds a daily-log pattern under LogCategoryName
	// to the active template
	AutoCreateDailyLogs bool `yaml:"auto_create_daily_logs" mapstructure:"auto_create_daily_logs" json:"auto_create_daily_logs"`

	// LogCategoryName is the category the daily-log pattern generates into
	LogCategoryName string `yaml:"log_category_name" mapstructure:"log_category_name" json:"log_category_name"`

	// DailyLogDaysAhead / DailyLogDaysBehind set the daily-log pattern window
	DailyLogDaysAhead  int `yaml:"daily_log_days_ahead" mapstructure:"daily_log_days_ahead" json:"daily_log_days_ahead" binding:"min=0,max=30"`
	DailyLogDaysBehind int `yaml:"daily_log_days_behind" mapstructure:"daily_log_days_behind" json:"daily_log_days_behind" binding:"min=0,max=90"`
}

// BackupConfig configures the append-only JSONL bookkeeping log.
type BackupConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Path    string `yaml:"path" mapstructure:"path" json:"path" binding:"required_if=Enabled true"`
}

// APIConfig configures the status API server.
type APIConfig struct {
	// Determines if the status API should be active.
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5002").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required_if=Enabled true,oneof=tcp tcp4 tcp6 unix"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// AllowOrigins configures cross-origin access to the status API
	AllowOrigins []string `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`

	// Development enables pprof endpoints and permissive CORS
	Development bool `yaml:"development" mapstructure:"development" json:"development"`
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	llmLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	llmLogLevel.Set(DefaultLLMLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		Database:              DefaultDatabase,
		DatabaseType:          DefaultDatabaseType,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		ContextMessageLimit:   DefaultContextMessageLimit,
		MaxMessageLength:      DefaultMaxOutboundMessageLength,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			CustomStatus:      DefaultDiscordCustomStatus,
			FallbackNotice:    DefaultFallbackNotice,
			MessageRetryDelay: DefaultMessageRetryDelay,
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
		},
		LLM: &LLMConfig{
			Model:                DefaultLLMModel,
			SystemPrompt:         DefaultSystemPrompt,
			MaxTokens:            DefaultLLMMaxTokens,
			MaxRequestsPerSecond: DefaultLLMMaxRequestsPerSecond,
			RequestTimeout:       DefaultLLMRequestTimeout,
			LogLevel:             llmLogLevel,
		},
		Reconciler: &ReconcilerConfig{
			Interval:            DefaultReconcileInterval,
			ReconcileOnStartup:  true,
			AutoCreateDailyLogs: true,
			LogCategoryName:     DefaultLogCategoryName,
			DailyLogDaysAhead:   DefaultDailyLogDaysAhead,
			DailyLogDaysBehind:  DefaultDailyLogsBehind,
		},
		Backup: &BackupConfig{
			Enabled: true,
			Path:    DefaultBackupPath,
		},
		API: &APIConfig{
			Enabled:           false,
			Listen:            DefaultAPIListen,
			ListenNetwork:     defaultListenNetwork,
			LogLevel:          apiLogLevel,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
	}
}
