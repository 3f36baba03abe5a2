package discordia

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t testing.TB) (*API, *Discordia) {
	t.Helper()
	cfg := DefaultTestConfig(t)
	cfg.API.Enabled = true

	bot, err := New(cfg)
	require.NoError(t, err)
	bot.startedAt = time.Now()

	require.NotNil(t, bot.api)
	return bot.api, bot
}

func apiRequest(
	t testing.TB,
	api *API,
	method string,
	path string,
) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	return w
}

func TestAPIHealth(t *testing.T) {
	api, _ := newTestAPI(t)

	w := apiRequest(t, api, http.MethodGet, apiPathHealth)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAPIStateSummary(t *testing.T) {
	api, bot := newTestAPI(t)

	state := bot.state
	require.NoError(
		t,
		state.SaveCategory(Category{ID: "cat-1", Name: "Log", ServerID: "srv"}),
	)
	require.NoError(
		t, state.SaveChannel(
			Channel{
				ID:         "chan-1",
				Name:       "2024-05-15",
				Kind:       ChannelKindText,
				ServerID:   "srv",
				CategoryID: "cat-1",
			},
		),
	)
	require.NoError(t, state.SaveUser(User{ID: "user-1"}))

	w := apiRequest(t, api, http.MethodGet, apiPathState)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Connected  bool   `json:"connected"`
		Uptime     string `json:"uptime"`
		Categories int    `json:"categories"`
		Channels   int    `json:"channels"`
		Users      int    `json:"users"`
		Messages   int    `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.False(t, body.Connected)
	assert.NotEmpty(t, body.Uptime)
	assert.Equal(t, 1, body.Categories)
	assert.Equal(t, 1, body.Channels)
	assert.Equal(t, 1, body.Users)
	assert.Equal(t, 0, body.Messages)
}

func TestAPIReconcileConflict(t *testing.T) {
	api, bot := newTestAPI(t)

	require.True(t, bot.reconcileMu.TryLock())
	defer bot.reconcileMu.Unlock()

	w := apiRequest(t, api, http.MethodPost, apiPathReconcile)
	assert.Equal(t, http.StatusConflict, w.Code)
}
