package discordia

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// ChannelLister enumerates a guild's channel list. Satisfied by
// DiscordSessionHandler and by test doubles.
type ChannelLister interface {
	GuildChannels(
		guildID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Channel, error)
}

// DiscoveryEngine performs one-shot syncs from a live guild into the
// state store.
//
// Discovery is best-effort per entity: a failure persisting one entity is
// logged and doesn't abort the rest. Only a failure enumerating the guild
// at all is fatal to the call, surfaced as DiscordAPIError.
type DiscoveryEngine struct {
	store    StateStore
	session  ChannelLister
	serverID string
	logger   *slog.Logger
}

func NewDiscoveryEngine(
	store StateStore,
	session ChannelLister,
	serverID string,
	logger *slog.Logger,
) *DiscoveryEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscoveryEngine{
		store:    store,
		session:  session,
		serverID: serverID,
		logger:   logger.With(loggerNameKey, "discovery"),
	}
}

// DiscoverCategories pulls the guild channel list, upserts every
// category-kind entry into the store, and returns the discovered list.
func (e *DiscoveryEngine) DiscoverCategories() ([]Category, error) {
	guildChannels, err := e.session.GuildChannels(e.serverID)
	if err != nil {
		return nil, DiscordAPIError{Operation: "list_guild_channels", Err: err}
	}

	var categories []Category
	for _, ch := range guildChannels {
		if ch.Type != discordgo.ChannelTypeGuildCategory {
			continue
		}
		category := categoryFromDiscord(ch, e.serverID)
		if saveErr := e.store.SaveCategory(category); saveErr != nil {
			e.logger.Error(
				"failed to save discovered category",
				tint.Err(saveErr),
				"category", category,
			)
			continue
		}
		categories = append(categories, category)
	}
	e.logger.Info("discovered categories", "count", len(categories))
	return categories, nil
}

// DiscoverChannels pulls the guild channel list, upserts every text and
// voice channel into the store (preserving parent-category linkage), and
// returns the discovered list.
func (e *DiscoveryEngine) DiscoverChannels() ([]Channel, error) {
	guildChannels, err := e.session.GuildChannels(e.serverID)
	if err != nil {
		return nil, DiscordAPIError{Operation: "list_guild_channels", Err: err}
	}

	var channels []Channel
	for _, ch := range guildChannels {
		switch ch.Type {
		case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildVoice:
			//
		default:
			continue
		}
		channel := channelFromDiscord(ch, e.serverID)
		if saveErr := e.store.SaveChannel(channel); saveErr != nil {
			e.logger.Error(
				"failed to save discovered channel",
				tint.Err(saveErr),
				"channel", channel,
			)
			continue
		}
		channels = append(channels, channel)
	}
	e.logger.Info("discovered channels", "count", len(channels))
	return channels, nil
}

// Discover runs category discovery followed by channel discovery, so that
// channel parent-category references resolve against freshly saved
// categories.
func (e *DiscoveryEngine) Discover() error {
	if _, err := e.DiscoverCategories(); err != nil {
		return err
	}
	_, err := e.DiscoverChannels()
	return err
}
