package discordia

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/Bullish-Design/discordia/discordia.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var defaultLogWriter io.Writer = os.Stdout

// Discordia is the bot orchestrator. It wires the gateway connection,
// state store, discovery engine, reconciler and handler chain together,
// subscribes to gateway events, and triggers discovery + reconciliation
// on connect and periodically thereafter.
//
// Message events and the reconciliation timer run concurrently and
// coordinate only through the state store's internal locking - a pass
// observing mid-discovery state costs at most a delayed creation on the
// next pass, never corruption, because every write is an idempotent
// upsert.
type Discordia struct {
	config     *Config
	logger     *slog.Logger
	logHandler slog.Handler

	discord    *Discord
	state      *MemoryState
	registry   *EntityRegistry
	discovery  *DiscoveryEngine
	reconciler *Reconciler
	chain      *HandlerChain
	llm        *LLM
	backup     BackupWriter
	archive    *Archive
	api        *API
	plugins    []Plugin

	template   ServerTemplate
	templateMu sync.RWMutex

	// reconcileMu serializes reconciliation passes; overlapping triggers
	// (timer + manual) are rejected rather than queued
	reconcileMu sync.Mutex

	// runMu prevents concurrent runs
	runMu sync.Mutex

	startedAt   time.Time
	signalReady chan struct{}
	botUserID   atomic.Value

	metricReconcilePasses  atomic.Int64
	metricMessagesHandled  atomic.Int64
	metricRepliesDelivered atomic.Int64
}

// New assembles a Discordia instance from the given config. The gateway
// connection isn't opened until Run.
func New(config *Config) (*Discordia, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		return nil, ConfigurationError{
			Field:   "database_type",
			Message: "must be 'sqlite' or 'postgres'",
		}
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	d := &Discordia{
		config:      config,
		signalReady: make(chan struct{}, 1),
		state:       NewMemoryState(),
	}
	d.registry = NewEntityRegistry(d.state)

	d.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	d.logger = slog.New(d.logHandler)
	slog.SetDefault(d.logger)

	d.llm = newLLM(config.LLM, config.HTTPClient)

	config.Discord.httpClient = config.HTTPClient
	disc := newDiscord(config.Discord)
	disc.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord")
	d.discord = disc

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	d.reconciler = NewReconciler(
		d.state,
		d.registry,
		config.Discord.ServerID,
		d.logger,
	)

	if config.Backup != nil && config.Backup.Enabled {
		d.backup = NewJSONLBackup(config.Backup.Path)
	}

	d.chain = NewHandlerChain(
		d.logger,
		NewWeekDayHandler(
			d.llm,
			config.LLM.SystemPrompt,
			config.ContextMessageLimit,
			d.logger,
		),
		NewLLMHandler(
			d.llm,
			config.LLM.SystemPrompt,
			config.ContextMessageLimit,
			d.logger,
		),
		LoggingHandler{Logger: d.logger},
	)

	d.template = templateFromConfig(config.Reconciler)

	if config.API != nil && config.API.Enabled {
		d.api = newAPI(d, config.API)
	}

	return d, nil
}

// ValidateConfig checks the assembled configuration against its binding
// constraints.
func (d *Discordia) ValidateConfig() error {
	if err := structValidator.Struct(d.config); err != nil {
		return ConfigurationError{Message: err.Error(), Err: err}
	}
	return nil
}

// SetTemplate replaces the active server template. The template is
// validated first; duplicate names within a category are rejected as a
// configuration error. Safe to call while running - the next pass sees
// the new template.
func (d *Discordia) SetTemplate(template ServerTemplate) error {
	if err := template.Validate(); err != nil {
		return err
	}
	d.templateMu.Lock()
	d.template = template
	d.templateMu.Unlock()
	return nil
}

// Template returns the active server template.
func (d *Discordia) Template() ServerTemplate {
	d.templateMu.RLock()
	defer d.templateMu.RUnlock()
	return d.template
}

// SetHandlers replaces the default handler chain. Must be called before
// Run.
func (d *Discordia) SetHandlers(handlers ...MessageHandler) {
	d.chain = NewHandlerChain(d.logger, handlers...)
}

// AddPlugin registers a plugin. Must be called before Run.
func (d *Discordia) AddPlugin(plugin Plugin) {
	d.plugins = append(d.plugins, plugin)
}

// State returns the bot's state store.
func (d *Discordia) State() StateStore {
	return d.state
}

// Registry returns the bot's entity registry.
func (d *Discordia) Registry() *EntityRegistry {
	return d.registry
}

// templateFromConfig builds the baseline template from config: a log
// category carrying a daily-log pattern, when enabled.
func templateFromConfig(cfg *ReconcilerConfig) ServerTemplate {
	var template ServerTemplate
	if cfg == nil || !cfg.AutoCreateDailyLogs {
		return template
	}
	template.Categories = append(
		template.Categories, CategoryTemplate{
			Name: cfg.LogCategoryName,
			Patterns: []Pattern{
				DailyLogPattern{
					DaysBehind: cfg.DailyLogDaysBehind,
					DaysAhead:  cfg.DailyLogDaysAhead,
				},
			},
		},
	)
	return template
}

// Run opens the gateway connection and blocks until the context is
// canceled or startup fails. A handler or reconciliation failure never
// tears down the gateway connection.
func (d *Discordia) Run(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.startedAt = time.Now()
	logger := d.logger

	if err := d.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	if err := d.Template().Validate(); err != nil {
		logger.Error("invalid template", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(
		ctx,
		slog.LevelInfo,
		"starting",
		slog.Any("config", d.config),
	)

	if d.config.ArchiveEnabled {
		db, err := CreateDB(
			ctx,
			d.config.DatabaseType,
			d.config.Database,
			tint.NewHandler(
				defaultLogWriter, &tint.Options{
					Level:     d.config.DatabaseLogLevel,
					AddSource: true,
				},
			),
			d.config.DatabaseSlowThreshold,
		)
		if err != nil {
			// persistence is bookkeeping - run without the archive
			logger.Error("archive unavailable, continuing without it", tint.Err(err))
		} else {
			d.archive = newArchive(db, logger)
		}
	}

	session, err := d.discord.newSession()
	if err != nil {
		return err
	}
	d.discord.session = session
	d.discovery = NewDiscoveryEngine(
		d.state,
		session,
		d.config.Discord.ServerID,
		d.discord.logger,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(d.discord.handlerConnect()),
		session.AddHandler(d.discord.handlerDisconnect()),
		session.AddHandler(d.handlerReady(ctx)),
		session.AddHandler(d.handlerMessageCreate(ctx)),
	}

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}

	select {
	case <-d.signalReady:
		logger.Info("bot ready and operational")
	case <-time.After(d.config.StartupTimeout):
		_ = session.Close()
		return fmt.Errorf("startup timed out after %s", d.config.StartupTimeout)
	case <-ctx.Done():
		_ = session.Close()
		return ctx.Err()
	}

	var group errgroup.Group
	groupCtx := ctx
	group.Go(
		func() error {
			d.reconcileLoop(groupCtx)
			return nil
		},
	)
	if d.api != nil {
		group.Go(
			func() error {
				serveErr := d.api.Serve(groupCtx)
				if serveErr != nil && serveErr != http.ErrServerClosed {
					logger.Error("status API error", tint.Err(serveErr))
				}
				return nil
			},
		)
	}

	<-ctx.Done()
	logger.Warn("context canceled, shutting down")

	shutdownDone := make(chan struct{})
	go func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.Error("error closing discord session", tint.Err(closeErr))
		}
		_ = group.Wait()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		logger.Info("shutdown complete")
	case <-time.After(d.config.ShutdownTimeout):
		logger.Error("graceful shutdown timed out")
	}
	return nil
}

// handleRecover logs a panic from an event handler without letting it
// tear down the gateway connection.
func (d *Discordia) handleRecover(rc any) {
	if rc == nil {
		return
	}
	d.logger.Error(
		"recovered from panic in event handler",
		"panic", rc,
		"stack", string(debug.Stack()),
	)
}

func (d *Discordia) handlerReady(ctx context.Context) func(
	s *discordgo.Session,
	r *discordgo.Ready,
) {
	return func(s *discordgo.Session, r *discordgo.Ready) {
		defer func() {
			d.handleRecover(recover())
		}()

		d.logger.Info(
			"Ready",
			"session_id", s.State.SessionID,
			"user_id", r.User.ID,
			"username", r.User.Username,
		)

		// the bot's own user must exist in the store before its replies
		// can be saved as messages
		d.botUserID.Store(r.User.ID)
		_ = d.state.SaveUser(userFromDiscord(r.User))

		if d.config.Discord.CustomStatus != "" {
			if err := d.discord.updateCustomStatus(
				d.config.Discord.CustomStatus,
			); err != nil {
				d.logger.Warn("unable to set custom status", tint.Err(err))
			}
		}

		if err := d.discovery.Discover(); err != nil {
			d.logger.Error("initial discovery failed", tint.Err(err))
		}

		if d.config.Reconciler != nil && d.config.Reconciler.ReconcileOnStartup {
			if _, err := d.Reconcile(ctx); err != nil {
				d.logger.Error("startup reconciliation failed", tint.Err(err))
			}
		}

		for _, plugin := range d.plugins {
			if err := plugin.OnReady(ctx, d); err != nil {
				d.logger.Error(
					"plugin OnReady failed",
					tint.Err(err),
					"plugin", plugin.Name(),
				)
			}
		}

		select {
		case d.signalReady <- struct{}{}:
			//
		default:
		}
	}
}

// reconcileLoop runs periodic reconciliation passes until the context is
// canceled. Pass failures are logged, never fatal.
func (d *Discordia) reconcileLoop(ctx context.Context) {
	interval := DefaultReconcileInterval
	if d.config.Reconciler != nil {
		interval = d.config.Reconciler.Interval
	}
	if interval <= 0 {
		d.logger.Info("periodic reconciliation disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := d.Reconcile(ctx)
			switch {
			case err != nil:
				d.logger.Error("reconciliation pass failed", tint.Err(err))
			case !report.Empty():
				d.logger.Info("reconciliation pass created entities", "report", report)
			}
		}
	}
}

// Reconcile runs one discovery + reconciliation pass against the
// configured guild and returns what was created. Returns
// ErrReconcileInProgress when a pass is already running.
func (d *Discordia) Reconcile(ctx context.Context) (ReconcileReport, error) {
	if !d.reconcileMu.TryLock() {
		return ReconcileReport{}, ErrReconcileInProgress
	}
	defer d.reconcileMu.Unlock()
	d.metricReconcilePasses.Add(1)

	if err := d.discovery.Discover(); err != nil {
		return ReconcileReport{}, err
	}

	guild := newDiscordGuild(d.discord.session, d.config.Discord.ServerID)
	report, err := d.reconciler.Reconcile(ctx, guild, d.Template())
	if err != nil {
		return report, err
	}

	for _, category := range report.CreatedCategories {
		d.persistEntity(ctx, BackupTypeCategory, category)
	}
	for _, channel := range report.CreatedChannels {
		d.persistEntity(ctx, BackupTypeChannel, channel)
	}
	return report, nil
}

func (d *Discordia) handlerMessageCreate(ctx context.Context) func(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		defer func() {
			d.handleRecover(recover())
		}()

		if m.Author == nil || m.Author.Bot {
			return
		}
		d.discord.metricMessagesSeen.Add(1)
		d.handleMessage(ctx, m)
	}
}

// handleMessage is the per-message pipeline: persist the author and
// message, evaluate plugins, route the handler chain, and deliver the
// reply (with one retry). Persistence failures are bookkeeping and never
// block a reply.
func (d *Discordia) handleMessage(
	ctx context.Context,
	m *discordgo.MessageCreate,
) {
	d.metricMessagesHandled.Add(1)

	user := userFromDiscord(m.Author)
	_ = d.state.SaveUser(user)
	d.persistEntity(ctx, BackupTypeUser, user)

	msg := messageFromDiscord(m.Message, discordMaxMessageLength)
	if err := d.state.SaveMessage(msg); err != nil {
		// typically a message from a channel discovery hasn't seen yet
		d.logger.Warn(
			"cannot save inbound message",
			tint.Err(err),
			"message", msg,
		)
		return
	}
	d.persistEntity(ctx, BackupTypeMessage, msg)

	channel, ok := d.state.GetChannel(msg.ChannelID)
	if !ok {
		return
	}

	mc := NewMessageContext(d.state, msg, user, channel)

	for _, plugin := range d.plugins {
		if err := plugin.OnMessage(ctx, mc); err != nil {
			d.logger.Error(
				"plugin OnMessage failed",
				tint.Err(err),
				"plugin", plugin.Name(),
			)
		}
	}

	reply := d.chain.Route(ctx, mc)
	if reply == "" {
		return
	}
	reply = truncateMessage(reply, d.config.MaxMessageLength)

	sent, err := d.sendReply(m, reply)
	if err != nil {
		d.logger.Error(
			"reply delivery failed",
			tint.Err(err),
			"channel_id", msg.ChannelID,
		)
		return
	}
	d.metricRepliesDelivered.Add(1)

	botMsg := messageFromDiscord(sent, discordMaxMessageLength)
	if botMsg.AuthorID == "" {
		if id, idOK := d.botUserID.Load().(string); idOK {
			botMsg.AuthorID = id
		}
	}
	if saveErr := d.state.SaveMessage(botMsg); saveErr != nil {
		d.logger.Warn("failed to save bot message", tint.Err(saveErr))
	} else {
		d.persistEntity(ctx, BackupTypeMessage, botMsg)
	}
}

// sendReply delivers a reply with exactly one retry after a fixed delay.
// If both attempts fail, a fallback notice is attempted (best-effort) and
// MessageSendError is returned.
func (d *Discordia) sendReply(
	m *discordgo.MessageCreate,
	reply string,
) (*discordgo.Message, error) {
	session := d.discord.session
	sent, err := session.ChannelMessageSendReply(
		m.ChannelID,
		reply,
		m.Reference(),
	)
	if err == nil {
		return sent, nil
	}

	d.logger.Warn(
		"reply send failed, retrying",
		tint.Err(err),
		"channel_id", m.ChannelID,
	)
	time.Sleep(d.config.Discord.MessageRetryDelay)

	sent, err = session.ChannelMessageSendReply(
		m.ChannelID,
		reply,
		m.Reference(),
	)
	if err == nil {
		return sent, nil
	}

	if notice := d.config.Discord.FallbackNotice; notice != "" {
		if noticeErr := d.discord.channelMessageSend(
			m.ChannelID,
			notice,
		); noticeErr != nil {
			d.logger.Error("unable to send fallback notice", tint.Err(noticeErr))
		}
	}
	return nil, MessageSendError{ChannelID: m.ChannelID, Err: err}
}

// persistEntity writes an entity to the backup log and archive.
// Best-effort: failures are logged and swallowed - the system prefers
// availability over durability for its own bookkeeping.
func (d *Discordia) persistEntity(
	ctx context.Context,
	entityType string,
	entity any,
) {
	if d.backup != nil {
		if err := d.backup.Write(entityType, entity); err != nil {
			d.logger.Error(
				"backup write failed",
				tint.Err(err),
				"entity_type", entityType,
			)
		}
	}
	if d.archive == nil {
		return
	}
	var err error
	switch e := entity.(type) {
	case Category:
		err = d.archive.SaveCategory(ctx, e)
	case Channel:
		err = d.archive.SaveChannel(ctx, e)
	case User:
		err = d.archive.SaveUser(ctx, e)
	case Message:
		err = d.archive.SaveMessage(ctx, e)
	}
	if err != nil {
		d.logger.Error(
			"archive write failed",
			tint.Err(err),
			"entity_type", entityType,
		)
	}
}
