package discordia

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Discord manages the gateway connection for Discordia.
//
// It wraps the discordgo session behind DiscordSessionHandler so the rest
// of the system (and tests) only depend on the small set of session
// capabilities actually used: opening/closing the gateway, enumerating
// guild channels, creating channels, and sending messages.
type Discord struct {
	session                     DiscordSessionHandler
	config                      *DiscordConfig
	logger                      *slog.Logger
	metricConnects              atomic.Int64
	metricDisconnects           atomic.Int64
	metricMessagesSeen          atomic.Int64
	connected                   atomic.Bool
	discordgoRemoveHandlerFuncs []func()
}

// newDiscord initializes a new Discord instance with the provided configuration
func newDiscord(config *DiscordConfig) *Discord {
	return &Discord{
		config:                      config,
		discordgoRemoveHandlerFuncs: []func(){},
	}
}

// newSession initializes a new gateway session for the Discord struct.
func (d *Discord) newSession() (DiscordSessionHandler, error) {
	session := DiscordSession{
		logger: d.logger.With(loggerNameKey, "discord_session_handler"),
	}
	disc, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return session, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.SyncEvents = true
	disc.StateEnabled = false
	disc.Identify.Intents = d.config.GatewayIntents
	session.session = disc
	if d.config.httpClient != nil {
		disc.Client = d.config.httpClient
	}

	if err = session.SetLogLevel(d.config.DiscordGoLogLevel.Level()); err != nil {
		return session, err
	}

	return session, nil
}

// Connected reports whether the gateway connection is currently up.
func (d *Discord) Connected() bool {
	return d.connected.Load()
}

// channelMessageSend sends the given message to the given discord channel ID
func (d *Discord) channelMessageSend(
	channelID string,
	message string,
	opts ...discordgo.RequestOption,
) error {
	_, err := d.session.ChannelMessageSend(channelID, message, opts...)
	return err
}

func (d *Discord) handlerConnect() func(
	s *discordgo.Session,
	r *discordgo.Connect,
) {
	return func(s *discordgo.Session, _ *discordgo.Connect) {
		d.metricConnects.Add(1)
		d.connected.Store(true)

		var sessionID string
		var userID string
		var username string

		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
			if s.State.User != nil {
				userID = s.State.User.ID
				username = s.State.User.Username
			}
		}
		d.logger.Info(
			"Connected",
			"session_id", sessionID,
			slog.Group("user", "id", userID, "username", username),
		)
	}
}

func (d *Discord) handlerDisconnect() func(
	s *discordgo.Session,
	r *discordgo.Disconnect,
) {
	return func(s *discordgo.Session, _ *discordgo.Disconnect) {
		d.connected.Store(false)
		d.metricDisconnects.Add(1)

		var sessionID string
		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
		}
		d.logger.Info("disconnected", "session_id", sessionID)
	}
}

func (d *Discord) updateCustomStatus(status string) error {
	return d.session.UpdateCustomStatus(status)
}

// DiscordSessionHandler defines the session capabilities Discordia uses.
// This basically defines methods from `discordgo.Session` which are used
// in this application, to enable testing/mocking.
type DiscordSessionHandler interface {
	// Open creates a websocket connection to Discord
	Open() error

	// Close closes the websocket connection to Discord
	Close() error

	// GuildChannels enumerates all channels (including categories) in
	// the given guild
	GuildChannels(
		guildID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Channel, error)

	// GuildChannelCreateComplex creates a channel or category in the
	// given guild
	GuildChannelCreateComplex(
		guildID string,
		data discordgo.GuildChannelCreateData,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)

	// ChannelMessageSend sends a message to the given channel
	ChannelMessageSend(
		channelID string,
		message string,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageSendReply sends a message to the given channel, as a
	// reply to the referenced message
	ChannelMessageSendReply(
		channelID string,
		content string,
		reference *discordgo.MessageReference,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// UpdateCustomStatus sets the bot's user status to the given string
	UpdateCustomStatus(status string) error

	// AddHandler adds a discord gateway event handler
	AddHandler(handler any) func()

	// SetHTTPClient sets the HTTP client for the session
	SetHTTPClient(client *http.Client)

	// SetLogLevel modifies the session's log level
	SetLogLevel(lvl slog.Level) error
}

// DiscordSession implements DiscordSessionHandler, wrapping a
// [discordgo.Session](https://pkg.go.dev/github.com/bwmarrin/discordgo#Session)
type DiscordSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func (d DiscordSession) Open() error {
	return d.session.Open()
}

func (d DiscordSession) Close() error {
	return d.session.Close()
}

func (d DiscordSession) GuildChannels(
	guildID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	channels, err := d.session.GuildChannels(guildID, options...)
	if err != nil {
		d.logger.Error(
			"error listing guild channels",
			tint.Err(err),
			"guild_id", guildID,
		)
	} else {
		d.logger.Debug(
			"listed guild channels",
			"guild_id", guildID,
			"count", len(channels),
		)
	}
	return channels, err
}

func (d DiscordSession) GuildChannelCreateComplex(
	guildID string,
	data discordgo.GuildChannelCreateData,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	channel, err := d.session.GuildChannelCreateComplex(guildID, data, options...)
	if err != nil {
		d.logger.Error(
			"error creating guild channel",
			tint.Err(err),
			"guild_id", guildID,
			"name", data.Name,
			"type", data.Type,
		)
	} else {
		d.logger.Info(
			"created guild channel",
			"guild_id", guildID,
			"channel_id", channel.ID,
			"name", channel.Name,
		)
	}
	return channel, err
}

func (d DiscordSession) ChannelMessageSend(
	channelID string,
	message string,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSend(channelID, message, opts...)
}

func (d DiscordSession) ChannelMessageSendReply(
	channelID string,
	content string,
	reference *discordgo.MessageReference,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := d.session.ChannelMessageSendReply(
		channelID, content, reference, options...,
	)
	if err != nil {
		d.logger.Error(
			"error sending message reply",
			tint.Err(err),
			"channel_id", channelID,
			"reference", reference,
		)
	} else {
		d.logger.Info(
			"sent message reply",
			"channel_id", channelID,
			"message_id", msg.ID,
		)
	}
	return msg, err
}

func (d DiscordSession) UpdateCustomStatus(status string) error {
	return d.session.UpdateCustomStatus(status)
}

func (d DiscordSession) AddHandler(handler any) func() {
	return d.session.AddHandler(handler)
}

func (d DiscordSession) SetHTTPClient(client *http.Client) {
	d.session.Client = client
}

func (d DiscordSession) SetLogLevel(lvl slog.Level) error {
	switch lvl.Level() {
	case slog.LevelInfo:
		d.session.LogLevel = discordgo.LogInformational
	case slog.LevelWarn:
		d.session.LogLevel = discordgo.LogWarning
	case slog.LevelDebug:
		d.session.LogLevel = discordgo.LogDebug
	case slog.LevelError:
		d.session.LogLevel = discordgo.LogError
	default:
		return fmt.Errorf("invalid log level: %s", lvl)
	}
	return nil
}

// GuildManager is the minimal creation capability the reconciler needs
// from a guild handle. The production implementation calls the Discord
// REST API; tests substitute a double.
type GuildManager interface {
	// CreateCategory creates a channel category and returns it as a
	// Category entity
	CreateCategory(
		ctx context.Context,
		name string,
		position int,
	) (Category, error)

	// CreateTextChannel creates a text channel (optionally under the
	// given category) and returns it as a Channel entity
	CreateTextChannel(
		ctx context.Context,
		template ChannelTemplate,
		categoryID string,
	) (Channel, error)

	// CreateVoiceChannel creates a voice channel (optionally under the
	// given category) and returns it as a Channel entity
	CreateVoiceChannel(
		ctx context.Context,
		template ChannelTemplate,
		categoryID string,
	) (Channel, error)
}

// discordGuild implements GuildManager over a DiscordSessionHandler for a
// single guild.
type discordGuild struct {
	session DiscordSessionHandler
	guildID string
}

func newDiscordGuild(
	session DiscordSessionHandler,
	guildID string,
) discordGuild {
	return discordGuild{session: session, guildID: guildID}
}

func (g discordGuild) CreateCategory(
	_ context.Context,
	name string,
	position int,
) (Category, error) {
	created, err := g.session.GuildChannelCreateComplex(
		g.guildID, discordgo.GuildChannelCreateData{
			Name:     name,
			Type:     discordgo.ChannelTypeGuildCategory,
			Position: position,
		},
	)
	if err != nil {
		return Category{}, DiscordAPIError{Operation: "create_category", Err: err}
	}
	return categoryFromDiscord(created, g.guildID), nil
}

func (g discordGuild) CreateTextChannel(
	_ context.Context,
	template ChannelTemplate,
	categoryID string,
) (Channel, error) {
	created, err := g.session.GuildChannelCreateComplex(
		g.guildID, discordgo.GuildChannelCreateData{
			Name:             template.Name,
			Type:             discordgo.ChannelTypeGuildText,
			Topic:            template.Topic,
			NSFW:             template.NSFW,
			RateLimitPerUser: template.SlowmodeSeconds,
			Position:         template.Position,
			ParentID:         categoryID,
		},
	)
	if err != nil {
		return Channel{}, DiscordAPIError{
			Operation: "create_text_channel",
			Err:       err,
		}
	}
	return channelFromDiscord(created, g.guildID), nil
}

func (g discordGuild) CreateVoiceChannel(
	_ context.Context,
	template ChannelTemplate,
	categoryID string,
) (Channel, error) {
	created, err := g.session.GuildChannelCreateComplex(
		g.guildID, discordgo.GuildChannelCreateData{
			Name:      template.Name,
			Type:      discordgo.ChannelTypeGuildVoice,
			Bitrate:   template.Bitrate,
			UserLimit: template.UserLimit,
			Position:  template.Position,
			ParentID:  categoryID,
		},
	)
	if err != nil {
		return Channel{}, DiscordAPIError{
			Operation: "create_voice_channel",
			Err:       err,
		}
	}
	return channelFromDiscord(created, g.guildID), nil
}

// categoryFromDiscord maps a discordgo category channel to a Category
// entity.
func categoryFromDiscord(ch *discordgo.Channel, serverID string) Category {
	return Category{
		ID:       ch.ID,
		Name:     ch.Name,
		ServerID: serverID,
		Position: ch.Position,
	}
}

// channelFromDiscord maps a discordgo text or voice channel to a Channel
// entity, preserving parent-category linkage.
func channelFromDiscord(ch *discordgo.Channel, serverID string) Channel {
	kind := ChannelKindText
	if ch.Type == discordgo.ChannelTypeGuildVoice {
		kind = ChannelKindVoice
	}
	return Channel{
		ID:         ch.ID,
		Name:       ch.Name,
		Kind:       kind,
		ServerID:   serverID,
		CategoryID: ch.ParentID,
		Position:   ch.Position,
		Topic:      ch.Topic,
		Bitrate:    ch.Bitrate,
		UserLimit:  ch.UserLimit,
	}
}

// messageFromDiscord maps a discordgo message to a Message entity,
// truncating content to maxLength when positive. Timestamps are
// normalized to UTC.
func messageFromDiscord(m *discordgo.Message, maxLength int) Message {
	content := m.Content
	if maxLength > 0 && len(content) > maxLength {
		content = content[:maxLength]
	}
	var authorID string
	if m.Author != nil {
		authorID = m.Author.ID
	}
	return Message{
		ID:        m.ID,
		Content:   content,
		AuthorID:  authorID,
		ChannelID: m.ChannelID,
		Timestamp: m.Timestamp.UTC(),
	}
}

// userFromDiscord maps a discordgo user to a User entity.
func userFromDiscord(u *discordgo.User) User {
	return User{
		ID:       u.ID,
		Username: u.Username,
		Bot:      u.Bot,
	}
}
