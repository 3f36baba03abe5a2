package discordia

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannelLister serves a canned guild channel list.
type fakeChannelLister struct {
	channels []*discordgo.Channel
	err      error
	calls    int
}

func (f *fakeChannelLister) GuildChannels(
	_ string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	f.calls++
	return f.channels, f.err
}

func testGuildChannels() []*discordgo.Channel {
	return []*discordgo.Channel{
		{
			ID:   "cat-1",
			Name: "Log",
			Type: discordgo.ChannelTypeGuildCategory,
		},
		{
			ID:       "chan-1",
			Name:     "2024-05-15",
			Type:     discordgo.ChannelTypeGuildText,
			ParentID: "cat-1",
			Topic:    "Daily conversation log",
		},
		{
			ID:        "chan-2",
			Name:      "lounge",
			Type:      discordgo.ChannelTypeGuildVoice,
			Bitrate:   64000,
			UserLimit: 10,
		},
		{
			// thread/forum style entries are not modeled and must be
			// skipped without error
			ID:   "chan-3",
			Name: "announcements",
			Type: discordgo.ChannelTypeGuildNews,
		},
	}
}

func TestDiscoverMirrorsGuildStructure(t *testing.T) {
	state := NewMemoryState()
	session := &fakeChannelLister{channels: testGuildChannels()}
	engine := NewDiscoveryEngine(state, session, "srv", nil)

	require.NoError(t, engine.Discover())

	require.Len(t, state.Categories(), 1)
	category, found := state.GetCategory("cat-1")
	require.True(t, found)
	assert.Equal(t, "Log", category.Name)
	assert.Equal(t, "srv", category.ServerID)

	require.Len(t, state.Channels(), 2)

	text, found := state.GetChannel("chan-1")
	require.True(t, found)
	assert.Equal(t, ChannelKindText, text.Kind)
	assert.Equal(t, "cat-1", text.CategoryID)
	assert.Equal(t, "Daily conversation log", text.Topic)

	voice, found := state.GetChannel("chan-2")
	require.True(t, found)
	assert.Equal(t, ChannelKindVoice, voice.Kind)
	assert.False(t, voice.Categorized())
	assert.Equal(t, 64000, voice.Bitrate)
	assert.Equal(t, 10, voice.UserLimit)

	_, found = state.GetChannel("chan-3")
	assert.False(t, found)
}

func TestDiscoverIdempotent(t *testing.T) {
	state := NewMemoryState()
	session := &fakeChannelLister{channels: testGuildChannels()}
	engine := NewDiscoveryEngine(state, session, "srv", nil)

	require.NoError(t, engine.Discover())
	require.NoError(t, engine.Discover())

	assert.Len(t, state.Categories(), 1)
	assert.Len(t, state.Channels(), 2)
}

func TestDiscoverEnumerationFailure(t *testing.T) {
	state := NewMemoryState()
	session := &fakeChannelLister{err: errors.New("gateway unavailable")}
	engine := NewDiscoveryEngine(state, session, "srv", nil)

	err := engine.Discover()
	require.Error(t, err)

	var apiErr DiscordAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "list_guild_channels", apiErr.Operation)

	assert.Empty(t, state.Categories())
	assert.Empty(t, state.Channels())
}

func TestDiscoverCategories(t *testing.T) {
	state := NewMemoryState()
	session := &fakeChannelLister{channels: testGuildChannels()}
	engine := NewDiscoveryEngine(state, session, "srv", nil)

	categories, err := engine.DiscoverCategories()
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Log", categories[0].Name)

	// channels aren't touched until DiscoverChannels runs
	assert.Empty(t, state.Channels())
}
