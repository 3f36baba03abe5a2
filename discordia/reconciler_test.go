package discordia

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGuild records creation calls in order and hands out sequential IDs.
// Failures can be injected per entity name.
type fakeGuild struct {
	serverID string

	mu             sync.Mutex
	nextID         int
	calls          []string
	failCategories map[string]error
	failChannels   map[string]error
}

func newFakeGuild(serverID string) *fakeGuild {
	return &fakeGuild{
		serverID:       serverID,
		failCategories: map[string]error{},
		failChannels:   map[string]error{},
	}
}

func (g *fakeGuild) newID(prefix string) string {
	g.nextID++
	return fmt.Sprintf("%s-%d", prefix, g.nextID)
}

func (g *fakeGuild) CreateCategory(
	_ context.Context,
	name string,
	position int,
) (Category, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failCategories[name]; err != nil {
		return Category{}, err
	}
	g.calls = append(g.calls, "category:"+name)
	return Category{
		ID:       g.newID("cat"),
		Name:     name,
		ServerID: g.serverID,
		Position: position,
	}, nil
}

func (g *fakeGuild) createChannel(
	template ChannelTemplate,
	categoryID string,
) (Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failChannels[template.Name]; err != nil {
		return Channel{}, err
	}
	g.calls = append(g.calls, "channel:"+template.Name)
	return Channel{
		ID:         g.newID("chan"),
		Name:       template.Name,
		Kind:       template.Kind,
		ServerID:   g.serverID,
		CategoryID: categoryID,
		Position:   template.Position,
		Topic:      template.Topic,
	}, nil
}

func (g *fakeGuild) CreateTextChannel(
	_ context.Context,
	template ChannelTemplate,
	categoryID string,
) (Channel, error) {
	return g.createChannel(template, categoryID)
}

func (g *fakeGuild) CreateVoiceChannel(
	_ context.Context,
	template ChannelTemplate,
	categoryID string,
) (Channel, error) {
	return g.createChannel(template, categoryID)
}

func newTestReconciler(t testing.TB, store StateStore) *Reconciler {
	t.Helper()
	r := NewReconciler(store, NewEntityRegistry(store), "srv", nil)
	r.now = func() time.Time {
		return patternAsOf
	}
	return r
}

func TestReconcileCreatesMissingStructure(t *testing.T) {
	store := NewMemoryState()
	reconciler := newTestReconciler(t, store)
	guild := newFakeGuild("srv")

	template := ServerTemplate{
		Categories: []CategoryTemplate{
			{
				Name:     "Log",
				Patterns: []Pattern{DailyLogPattern{DaysBehind: 2}},
			},
		},
		UncategorizedChannels: []ChannelTemplate{
			NewVoiceChannelTemplate("lounge"),
		},
	}

	report, err := reconciler.Reconcile(context.Background(), guild, template)
	require.NoError(t, err)
	require.Len(t, report.CreatedCategories, 1)
	require.Len(t, report.CreatedChannels, 4)
	assert.False(t, report.Empty())

	// the category must be created before the channels that reference it
	assert.Equal(
		t, []string{
			"category:Log",
			"channel:2024-05-13",
			"channel:2024-05-14",
			"channel:2024-05-15",
			"channel:lounge",
		}, guild.calls,
	)

	logCategory := report.CreatedCategories[0]
	for _, created := range report.CreatedChannels[:3] {
		assert.Equal(t, logCategory.ID, created.CategoryID)

		saved, found := store.GetChannel(created.ID)
		require.True(t, found)
		assert.Equal(t, logCategory.ID, saved.CategoryID)
	}

	lounge := report.CreatedChannels[3]
	assert.Equal(t, ChannelKindVoice, lounge.Kind)
	assert.False(t, lounge.Categorized())
}

func TestReconcileIdempotent(t *testing.T) {
	store := NewMemoryState()
	reconciler := newTestReconciler(t, store)
	guild := newFakeGuild("srv")

	template := ServerTemplate{
		Categories: []CategoryTemplate{
			{
				Name:     "Log",
				Patterns: []Pattern{DailyLogPattern{DaysBehind: 1}},
			},
		},
	}

	first, err := reconciler.Reconcile(context.Background(), guild, template)
	require.NoError(t, err)
	require.False(t, first.Empty())
	callsAfterFirst := len(guild.calls)

	second, err := reconciler.Reconcile(context.Background(), guild, template)
	require.NoError(t, err)
	assert.True(t, second.Empty())
	assert.Len(t, guild.calls, callsAfterFirst)
}

func TestReconcileTrustsNameMatch(t *testing.T) {
	store := NewMemoryState()
	reconciler := newTestReconciler(t, store)
	guild := newFakeGuild("srv")

	// observed under an ID the template knows nothing about
	require.NoError(
		t, store.SaveChannel(
			Channel{
				ID:       "preexisting",
				Name:     "general",
				Kind:     ChannelKindText,
				ServerID: "srv",
			},
		),
	)

	template := ServerTemplate{
		UncategorizedChannels: []ChannelTemplate{
			NewTextChannelTemplate("general", "new topic"),
		},
	}

	report, err := reconciler.Reconcile(context.Background(), guild, template)
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Empty(t, guild.calls)
}

func TestReconcileCategoryFailureSkipsItsChannels(t *testing.T) {
	store := NewMemoryState()
	reconciler := newTestReconciler(t, store)
	guild := newFakeGuild("srv")
	guild.failCategories["Log"] = errors.New("permissions")

	template := ServerTemplate{
		Categories: []CategoryTemplate{
			{
				Name:     "Log",
				Channels: []ChannelTemplate{NewTextChannelTemplate("daily", "")},
			},
			{
				Name:     "Archive",
				Channels: []ChannelTemplate{NewTextChannelTemplate("old", "")},
			},
		},
	}

	report, err := reconciler.Reconcile(context.Background(), guild, template)
	require.NoError(t, err)

	// the failed category's channels wait for the next pass; the rest of
	// the template still converges
	assert.Equal(
		t,
		[]string{"category:Archive", "channel:old"},
		guild.calls,
	)
	require.Len(t, report.CreatedCategories, 1)
	assert.Equal(t, "Archive", report.CreatedCategories[0].Name)
	require.Len(t, report.CreatedChannels, 1)
	assert.Equal(t, "old", report.CreatedChannels[0].Name)
}

func TestReconcileChannelFailureContinues(t *testing.T) {
	store := NewMemoryState()
	reconciler := newTestReconciler(t, store)
	guild := newFakeGuild("srv")
	guild.failChannels["2024-05-14"] = errors.New("rate limited")

	template := ServerTemplate{
		Categories: []CategoryTemplate{
			{
				Name:     "Log",
				Patterns: []Pattern{DailyLogPattern{DaysBehind: 1}},
			},
		},
	}

	report, err := reconciler.Reconcile(context.Background(), guild, template)
	require.NoError(t, err)
	require.Len(t, report.CreatedChannels, 1)
	assert.Equal(t, "2024-05-15", report.CreatedChannels[0].Name)

	// the failed creation is retried on the next pass
	guild.failChannels = map[string]error{}
	report, err = reconciler.Reconcile(context.Background(), guild, template)
	require.NoError(t, err)
	require.Len(t, report.CreatedChannels, 1)
	assert.Equal(t, "2024-05-14", report.CreatedChannels[0].Name)
}

func TestReconcileContextCanceled(t *testing.T) {
	store := NewMemoryState()
	reconciler := newTestReconciler(t, store)
	guild := newFakeGuild("srv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	template := ServerTemplate{
		Categories: []CategoryTemplate{{Name: "Log"}},
	}

	_, err := reconciler.Reconcile(ctx, guild, template)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, guild.calls)
}
