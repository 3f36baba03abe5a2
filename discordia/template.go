//nolint:lll // struct tags can't be split
package discordia

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	maxTopicLength       = 1024
	maxSlowmodeSeconds   = 21600
	minVoiceBitrate      = 8000
	maxVoiceBitrate      = 384000
	maxVoiceUserLimit    = 99
	DefaultVoiceBitrate  = 64000
	defaultChannelTopic  = ""
	templateKindJSONName = "kind"
)

// ChannelTemplate describes a desired channel. It's a closed, tagged union
// over text and voice channels, discriminated by Kind so that an ambiguous
// or unknown kind is rejected when the template is built (or decoded), not
// when the reconciler goes to apply it.
//
// Text channels use Topic/SlowmodeSeconds/NSFW; voice channels use
// Bitrate/UserLimit. Templates are value types and are not mutated after
// construction.
type ChannelTemplate struct {
	Kind ChannelKind `yaml:"kind" mapstructure:"kind" json:"kind" binding:"required,oneof=text voice"`
	Name string      `yaml:"name" mapstructure:"name" json:"name" binding:"required,min=1,max=100"`

	// Position within the category (or the uncategorized list). Optional.
	Position int `yaml:"position" mapstructure:"position" json:"position" binding:"min=0"`

	// Topic only applies to text channels
	Topic string `yaml:"topic" mapstructure:"topic" json:"topic,omitempty" binding:"max=1024"`

	// SlowmodeSeconds only applies to text channels
	SlowmodeSeconds int `yaml:"slowmode_seconds" mapstructure:"slowmode_seconds" json:"slowmode_seconds,omitempty" binding:"min=0,max=21600"`

	// NSFW only applies to text channels
	NSFW bool `yaml:"nsfw" mapstructure:"nsfw" json:"nsfw,omitempty"`

	// Bitrate only applies to voice channels
	Bitrate int `yaml:"bitrate" mapstructure:"bitrate" json:"bitrate,omitempty"`

	// UserLimit only applies to voice channels (0=unlimited)
	UserLimit int `yaml:"user_limit" mapstructure:"user_limit" json:"user_limit,omitempty"`
}

// NewTextChannelTemplate returns a text ChannelTemplate with the given
// name and topic.
func NewTextChannelTemplate(name string, topic string) ChannelTemplate {
	return ChannelTemplate{
		Kind:  ChannelKindText,
		Name:  name,
		Topic: topic,
	}
}

// NewVoiceChannelTemplate returns a voice ChannelTemplate with the default
// bitrate.
func NewVoiceChannelTemplate(name string) ChannelTemplate {
	return ChannelTemplate{
		Kind:    ChannelKindVoice,
		Name:    name,
		Bitrate: DefaultVoiceBitrate,
	}
}

// Validate checks the template's discriminant and kind-specific bounds.
func (t ChannelTemplate) Validate() error {
	if t.Name == "" {
		return ConfigurationError{
			Field:   "name",
			Message: "channel template name is required",
		}
	}
	switch t.Kind {
	case ChannelKindText:
		if len(t.Topic) > maxTopicLength {
			return ConfigurationError{
				Field: "topic",
				Message: fmt.Sprintf(
					"topic for channel %q exceeds %d characters",
					t.Name,
					maxTopicLength,
				),
			}
		}
		if t.SlowmodeSeconds < 0 || t.SlowmodeSeconds > maxSlowmodeSeconds {
			return ConfigurationError{
				Field: "slowmode_seconds",
				Message: fmt.Sprintf(
					"slowmode for channel %q must be 0-%d",
					t.Name,
					maxSlowmodeSeconds,
				),
			}
		}
	case ChannelKindVoice:
		if t.Bitrate != 0 && (t.Bitrate < minVoiceBitrate || t.Bitrate > maxVoiceBitrate) {
			return ConfigurationError{
				Field: "bitrate",
				Message: fmt.Sprintf(
					"bitrate for channel %q must be %d-%d",
					t.Name,
					minVoiceBitrate,
					maxVoiceBitrate,
				),
			}
		}
		if t.UserLimit < 0 || t.UserLimit > maxVoiceUserLimit {
			return ConfigurationError{
				Field: "user_limit",
				Message: fmt.Sprintf(
					"user limit for channel %q must be 0-%d",
					t.Name,
					maxVoiceUserLimit,
				),
			}
		}
	default:
		return ConfigurationError{
			Field: templateKindJSONName,
			Message: fmt.Sprintf(
				"unknown channel kind %q for channel %q",
				t.Kind,
				t.Name,
			),
		}
	}
	return nil
}

// UnmarshalJSON decodes a channel template, rejecting unknown kinds at
// decode time.
func (t *ChannelTemplate) UnmarshalJSON(data []byte) error {
	type alias ChannelTemplate
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	switch decoded.Kind {
	case ChannelKindText, ChannelKindVoice:
		*t = ChannelTemplate(decoded)
		return nil
	default:
		return ConfigurationError{
			Field: templateKindJSONName,
			Message: fmt.Sprintf(
				"unknown channel kind %q for channel %q",
				decoded.Kind,
				decoded.Name,
			),
		}
	}
}

// CategoryTemplate describes a desired category and the channels it owns.
// Patterns attached to a category generate additional channels inside it
// at expansion time.
type CategoryTemplate struct {
	Name     string            `yaml:"name" mapstructure:"name" json:"name" binding:"required,min=1,max=100"`
	Position int               `yaml:"position" mapstructure:"position" json:"position" binding:"min=0"`
	Channels []ChannelTemplate `yaml:"channels" mapstructure:"channels" json:"channels,omitempty"`
	Patterns []Pattern         `yaml:"-" mapstructure:"-" json:"-"`
}

// ServerTemplate is the complete declarative server structure: categories
// with their channels, uncategorized channels, and patterns that expand
// into additional uncategorized channels.
type ServerTemplate struct {
	Categories            []CategoryTemplate `yaml:"categories" mapstructure:"categories" json:"categories,omitempty"`
	UncategorizedChannels []ChannelTemplate  `yaml:"channels" mapstructure:"channels" json:"channels,omitempty"`
	Patterns              []Pattern          `yaml:"-" mapstructure:"-" json:"-"`
}

// Validate checks every channel template, and rejects duplicate channel
// names within the same category (or within the uncategorized list) as a
// configuration error.
func (t ServerTemplate) Validate() error {
	seenCategories := map[string]bool{}
	for _, category := range t.Categories {
		if category.Name == "" {
			return ConfigurationError{
				Field:   "name",
				Message: "category template name is required",
			}
		}
		if seenCategories[category.Name] {
			return ConfigurationError{
				Field: "categories",
				Message: fmt.Sprintf(
					"duplicate category name %q",
					category.Name,
				),
			}
		}
		seenCategories[category.Name] = true

		if err := validateChannelList(category.Channels, category.Name); err != nil {
			return err
		}
	}
	return validateChannelList(t.UncategorizedChannels, "")
}

func validateChannelList(channels []ChannelTemplate, categoryName string) error {
	seen := map[string]bool{}
	for _, channel := range channels {
		if err := channel.Validate(); err != nil {
			return err
		}
		if seen[channel.Name] {
			scope := "uncategorized channels"
			if categoryName != "" {
				scope = fmt.Sprintf("category %q", categoryName)
			}
			return ConfigurationError{
				Field: "channels",
				Message: fmt.Sprintf(
					"duplicate channel name %q in %s",
					channel.Name,
					scope,
				),
			}
		}
		seen[channel.Name] = true
	}
	return nil
}

// Expand evaluates every pattern against asOf and returns a new template
// with the generated channels appended to their owning scope. Within a
// scope, names are deduplicated with explicit template entries taking
// precedence over generated ones - the result never contains two channels
// with the same name in the same category.
//
// Pattern output is recomputed on every call so date-based patterns track
// the clock without a restart.
func (t ServerTemplate) Expand(asOf time.Time) ServerTemplate {
	expanded := ServerTemplate{
		Categories: make([]CategoryTemplate, 0, len(t.Categories)),
	}

	for _, category := range t.Categories {
		channels := category.Channels
		for _, pattern := range category.Patterns {
			channels = append(channels, pattern.Generate(asOf)...)
		}
		expanded.Categories = append(
			expanded.Categories, CategoryTemplate{
				Name:     category.Name,
				Position: category.Position,
				Channels: dedupeChannelsByName(channels),
			},
		)
	}

	channels := t.UncategorizedChannels
	for _, pattern := range t.Patterns {
		channels = append(channels, pattern.Generate(asOf)...)
	}
	expanded.UncategorizedChannels = dedupeChannelsByName(channels)

	return expanded
}

// dedupeChannelsByName keeps the first occurrence of each name. Explicit
// template entries precede generated ones in the input, so explicit beats
// generated.
func dedupeChannelsByName(channels []ChannelTemplate) []ChannelTemplate {
	if len(channels) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(channels))
	deduped := make([]ChannelTemplate, 0, len(channels))
	for _, channel := range channels {
		if seen[channel.Name] {
			continue
		}
		seen[channel.Name] = true
		deduped = append(deduped, channel)
	}
	return deduped
}
