package discordia

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelTemplateValidate(t *testing.T) {
	require.NoError(t, NewTextChannelTemplate("general", "chat").Validate())
	require.NoError(t, NewVoiceChannelTemplate("lounge").Validate())

	var configErr ConfigurationError

	err := ChannelTemplate{Kind: "forum", Name: "help"}.Validate()
	require.Error(t, err)
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "kind", configErr.Field)

	err = ChannelTemplate{Kind: ChannelKindText}.Validate()
	require.Error(t, err)

	err = ChannelTemplate{
		Kind:            ChannelKindText,
		Name:            "general",
		SlowmodeSeconds: maxSlowmodeSeconds + 1,
	}.Validate()
	require.Error(t, err)

	err = ChannelTemplate{
		Kind:    ChannelKindVoice,
		Name:    "lounge",
		Bitrate: 1000,
	}.Validate()
	require.Error(t, err)

	err = ChannelTemplate{
		Kind:      ChannelKindVoice,
		Name:      "lounge",
		UserLimit: maxVoiceUserLimit + 1,
	}.Validate()
	require.Error(t, err)
}

func TestChannelTemplateUnmarshalRejectsUnknownKind(t *testing.T) {
	var template ChannelTemplate

	err := json.Unmarshal(
		[]byte(`{"kind":"forum","name":"help"}`),
		&template,
	)
	require.Error(t, err)

	var configErr ConfigurationError
	require.ErrorAs(t, err, &configErr)

	require.NoError(
		t, json.Unmarshal(
			[]byte(`{"kind":"voice","name":"lounge","user_limit":5}`),
			&template,
		),
	)
	assert.Equal(t, ChannelKindVoice, template.Kind)
	assert.Equal(t, 5, template.UserLimit)
}

func TestServerTemplateValidateDuplicates(t *testing.T) {
	var configErr ConfigurationError

	err := ServerTemplate{
		Categories: []CategoryTemplate{
			{Name: "Log"},
			{Name: "Log"},
		},
	}.Validate()
	require.Error(t, err)
	require.ErrorAs(t, err, &configErr)

	err = ServerTemplate{
		Categories: []CategoryTemplate{
			{
				Name: "Log",
				Channels: []ChannelTemplate{
					NewTextChannelTemplate("general", ""),
					NewTextChannelTemplate("general", ""),
				},
			},
		},
	}.Validate()
	require.Error(t, err)

	// same name in different categories is fine
	err = ServerTemplate{
		Categories: []CategoryTemplate{
			{
				Name:     "Log",
				Channels: []ChannelTemplate{NewTextChannelTemplate("general", "")},
			},
			{
				Name:     "Archive",
				Channels: []ChannelTemplate{NewTextChannelTemplate("general", "")},
			},
		},
	}.Validate()
	require.NoError(t, err)

	err = ServerTemplate{
		UncategorizedChannels: []ChannelTemplate{
			NewVoiceChannelTemplate("lounge"),
			NewVoiceChannelTemplate("lounge"),
		},
	}.Validate()
	require.Error(t, err)
}

func TestExpandCategoryPatterns(t *testing.T) {
	template := ServerTemplate{
		Categories: []CategoryTemplate{
			{
				Name:     "Log",
				Patterns: []Pattern{DailyLogPattern{DaysBehind: 1}},
			},
		},
	}

	expanded := template.Expand(patternAsOf)
	require.Len(t, expanded.Categories, 1)
	assert.Equal(
		t,
		[]string{"2024-05-14", "2024-05-15"},
		channelNames(expanded.Categories[0].Channels),
	)

	// patterns never leak into the expanded template
	assert.Empty(t, expanded.Categories[0].Patterns)
}

func TestExpandServerPatterns(t *testing.T) {
	template := ServerTemplate{
		UncategorizedChannels: []ChannelTemplate{
			NewTextChannelTemplate("general", ""),
		},
		Patterns: []Pattern{
			PrefixedPattern{Prefix: "team", Suffixes: []string{"red"}},
		},
	}

	expanded := template.Expand(patternAsOf)
	assert.Equal(
		t,
		[]string{"general", "team-red"},
		channelNames(expanded.UncategorizedChannels),
	)
}

func TestExpandExplicitBeatsGenerated(t *testing.T) {
	explicit := NewTextChannelTemplate("2024-05-15", "pinned topic")
	template := ServerTemplate{
		Categories: []CategoryTemplate{
			{
				Name:     "Log",
				Channels: []ChannelTemplate{explicit},
				Patterns: []Pattern{DailyLogPattern{}},
			},
		},
	}

	expanded := template.Expand(patternAsOf)
	require.Len(t, expanded.Categories, 1)

	channels := expanded.Categories[0].Channels
	require.Len(t, channels, 1)
	assert.Equal(t, "2024-05-15", channels[0].Name)
	assert.Equal(t, "pinned topic", channels[0].Topic)
}

func TestExpandRecomputesPerCall(t *testing.T) {
	template := ServerTemplate{
		Patterns: []Pattern{DailyLogPattern{}},
	}

	first := template.Expand(patternAsOf)
	second := template.Expand(patternAsOf.AddDate(0, 0, 1))

	require.Len(t, first.UncategorizedChannels, 1)
	require.Len(t, second.UncategorizedChannels, 1)
	assert.Equal(t, "2024-05-15", first.UncategorizedChannels[0].Name)
	assert.Equal(t, "2024-05-16", second.UncategorizedChannels[0].Name)
}
