package discordia

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// ChannelKind discriminates channel variants. Only text and voice channels
// are modeled - other Discord channel types are ignored by discovery.
type ChannelKind string

const (
	ChannelKindText  ChannelKind = "text"
	ChannelKindVoice ChannelKind = "voice"
)

// Category is a Discord channel category, as observed via discovery or
// created by the reconciler.
type Category struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	ServerID  string    `json:"server_id"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Category) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", c.ID),
		slog.String("name", c.Name),
		slog.String("server_id", c.ServerID),
	)
}

// Channel is a Discord text or voice channel. CategoryID is empty for
// uncategorized channels - that's a reachable state, not an error.
type Channel struct {
	ID         string      `json:"id" gorm:"primaryKey"`
	Name       string      `json:"name"`
	Kind       ChannelKind `json:"kind"`
	ServerID   string      `json:"server_id"`
	CategoryID string      `json:"category_id,omitempty"`
	Position   int         `json:"position"`
	Topic      string      `json:"topic,omitempty"`
	Bitrate    int         `json:"bitrate,omitempty"`
	UserLimit  int         `json:"user_limit,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Categorized indicates whether the channel belongs to a category.
func (c Channel) Categorized() bool {
	return c.CategoryID != ""
}

func (c Channel) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", c.ID),
		slog.String("name", c.Name),
		slog.String("kind", string(c.Kind)),
		slog.String("category_id", c.CategoryID),
	)
}

// User is a Discord user seen by the bot.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username"`
	Bot       bool      `json:"bot"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", u.ID),
		slog.String("username", u.Username),
		slog.Bool("bot", u.Bot),
	)
}

// Message is a Discord message, either received from the gateway or sent
// by the bot itself. Messages are never mutated or deleted once saved.
type Message struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"author_id"`
	ChannelID string    `json:"channel_id"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m Message) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", m.ID),
		slog.String("author_id", m.AuthorID),
		slog.String("channel_id", m.ChannelID),
		slog.String("content", m.Content),
	)
}

// StateStore is the storage contract used by the discovery engine,
// reconciler and message handlers. Saves are idempotent upserts keyed by
// entity ID. Implementations must be safe for concurrent use.
type StateStore interface {
	SaveCategory(category Category) error
	SaveChannel(channel Channel) error
	SaveUser(user User) error

	// SaveMessage upserts a message. Returns ReferentialIntegrityError if
	// the referenced author or channel is unknown.
	SaveMessage(message Message) error

	GetCategory(id string) (Category, bool)
	GetChannel(id string) (Channel, bool)
	GetUser(id string) (User, bool)
	GetMessage(id string) (Message, bool)

	// GetMessages returns the most recent `limit` messages for a channel,
	// ordered by (timestamp, id) ascending - oldest first. limit<=0 returns
	// all messages.
	GetMessages(channelID string, limit int) []Message

	// Categories returns a snapshot of all stored categories.
	Categories() []Category

	// Channels returns a snapshot of all stored channels.
	Channels() []Channel
}

// MemoryState is the in-memory StateStore. A single mutex serializes all
// access - expected concurrency is one gateway event stream plus the
// reconciliation timer, so finer-grained locking isn't warranted. Lookups
// are linear scans, adequate for small guilds.
type MemoryState struct {
	categories map[string]Category
	channels   map[string]Channel
	users      map[string]User
	messages   map[string]Message
	mu         sync.Mutex
}

// NewMemoryState returns an empty MemoryState.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		categories: map[string]Category{},
		channels:   map[string]Channel{},
		users:      map[string]User{},
		messages:   map[string]Message{},
	}
}

func (s *MemoryState) SaveCategory(category Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	category.UpdatedAt = time.Now().UTC()
	if existing, ok := s.categories[category.ID]; ok {
		category.CreatedAt = existing.CreatedAt
	} else if category.CreatedAt.IsZero() {
		category.CreatedAt = category.UpdatedAt
	}
	s.categories[category.ID] = category
	return nil
}

func (s *MemoryState) SaveChannel(channel Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channel.CategoryID != "" {
		if _, ok := s.categories[channel.CategoryID]; !ok {
			return ReferentialIntegrityError{
				Kind:  "channel",
				ID:    channel.ID,
				Field: "category_id",
				Ref:   channel.CategoryID,
			}
		}
	}

	channel.UpdatedAt = time.Now().UTC()
	if existing, ok := s.channels[channel.ID]; ok {
		channel.CreatedAt = existing.CreatedAt
	} else if channel.CreatedAt.IsZero() {
		channel.CreatedAt = channel.UpdatedAt
	}
	s.channels[channel.ID] = channel
	return nil
}

func (s *MemoryState) SaveUser(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.UpdatedAt = time.Now().UTC()
	if existing, ok := s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = user.UpdatedAt
	}
	s.users[user.ID] = user
	return nil
}

func (s *MemoryState) SaveMessage(message Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[message.AuthorID]; !ok {
		return ReferentialIntegrityError{
			Kind:  "message",
			ID:    message.ID,
			Field: "author_id",
			Ref:   message.AuthorID,
		}
	}
	if _, ok := s.channels[message.ChannelID]; !ok {
		return ReferentialIntegrityError{
			Kind:  "message",
			ID:    message.ID,
			Field: "channel_id",
			Ref:   message.ChannelID,
		}
	}

	message.Timestamp = message.Timestamp.UTC()
	message.UpdatedAt = time.Now().UTC()
	if existing, ok := s.messages[message.ID]; ok {
		message.CreatedAt = existing.CreatedAt
	} else if message.CreatedAt.IsZero() {
		message.CreatedAt = message.UpdatedAt
	}
	s.messages[message.ID] = message
	return nil
}

func (s *MemoryState) GetCategory(id string) (Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, ok := s.categories[id]
	return category, ok
}

func (s *MemoryState) GetChannel(id string) (Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.channels[id]
	return channel, ok
}

func (s *MemoryState) GetUser(id string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	return user, ok
}

func (s *MemoryState) GetMessage(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[id]
	return message, ok
}

func (s *MemoryState) GetMessages(channelID string, limit int) []Message {
	s.mu.Lock()
	messages := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.ChannelID == channelID {
			messages = append(messages, m)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(
		messages, func(a Message, b Message) int {
			if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		},
	)

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages
}

func (s *MemoryState) Categories() []Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	categories := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	return categories
}

func (s *MemoryState) Channels() []Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := make([]Channel, 0, len(s.channels))
	for _, c := range s.channels {
		channels = append(channels, c)
	}
	return channels
}

// MessageCount returns the number of stored messages.
func (s *MemoryState) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// UserCount returns the number of stored users.
func (s *MemoryState) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
