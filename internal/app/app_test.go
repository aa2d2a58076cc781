package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerwatch/internal/config"
	"powerwatch/internal/storage"
	kit "powerwatch/internal/transport"
)

type captureSender struct {
	mu    sync.Mutex
	texts []string
}

func (c *captureSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(c.texts)}, nil
}

func (c *captureSender) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func geoPingServer(t *testing.T, loss float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"host":    r.URL.Query().Get("host"),
			"results": []map[string]any{{"region": "eu", "packet_loss": loss}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func baseConfig(geoURL string) map[string]any {
	return map[string]any{
		"logging": map[string]any{"level": "error"},
		"monitor": map[string]any{"check_every": "1h", "timezone": "UTC"},
		"probe": map[string]any{
			"attempts":    1,
			"retry_delay": "1ms",
			"geoping":     map[string]any{"url": geoURL},
		},
		"storage": map[string]any{"driver": "memory"},
		"locations": []map[string]any{
			{"id": "home", "name": "Home", "host": "203.0.113.7"},
		},
	}
}

func TestAppFirstTickAnnouncesAndPersists(t *testing.T) {
	geo := geoPingServer(t, 0)
	path := writeConfig(t, baseConfig(geo.URL))

	store := storage.NewMemory()
	require.NoError(t, store.AddSubscription(context.Background(), storage.Subscription{LocationID: "home", ChatID: 42}))
	sender := &captureSender{}

	a, err := New(path, WithSender(sender), WithStore(store))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	require.Eventually(t, func() bool { return len(sender.all()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, sender.all()[0], "power is on")

	require.Eventually(t, func() bool {
		states, err := store.LoadStates(context.Background())
		return err == nil && len(states) == 1 && states[0].Available
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopSIGTERM))
}

func TestAppRestartDoesNotReannounce(t *testing.T) {
	geo := geoPingServer(t, 0)
	path := writeConfig(t, baseConfig(geo.URL))

	store := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.AddSubscription(ctx, storage.Subscription{LocationID: "home", ChatID: 42}))
	require.NoError(t, store.SaveState(ctx, storage.LocationState{LocationID: "home", Available: true, At: time.Now().Add(-time.Hour)}))
	sender := &captureSender{}

	a, err := New(path, WithSender(sender), WithStore(store))
	require.NoError(t, err)
	a.mon.Seed(mustStates(t, store))

	assert.True(t, a.Tick(ctx))
	assert.Empty(t, sender.all())
	require.NoError(t, store.Close())
}

func mustStates(t *testing.T, s storage.Store) []storage.LocationState {
	t.Helper()
	st, err := s.LoadStates(context.Background())
	require.NoError(t, err)
	return st
}

func TestAppApplyReload(t *testing.T) {
	geo := geoPingServer(t, 100)
	cfg := baseConfig(geo.URL)
	path := writeConfig(t, cfg)

	a, err := New(path, WithSender(&captureSender{}), WithStore(storage.NewMemory()))
	require.NoError(t, err)
	defer a.store.Close()

	prev := a.cfgm.Get()
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	next, err := config.Decode(path, b)
	require.NoError(t, err)
	next.Locations = []config.LocationConfig{
		{ID: "dacha", Name: "Dacha", Host: "198.51.100.9", Region: "kyiv", Queue: "1.1"},
	}
	next.Monitor.Concurrency = 2

	a.hist.Seed("home", true)
	a.apply(context.Background(), prev, next)

	all := a.locs.All()
	require.Len(t, all, 1)
	assert.Equal(t, "dacha", all[0].ID)
	_, known := a.hist.LastState("home")
	assert.False(t, known)
	assert.Len(t, a.mon.Keys(), 1)
}

func TestAppApplyRejectsInvalid(t *testing.T) {
	geo := geoPingServer(t, 0)
	path := writeConfig(t, baseConfig(geo.URL))

	a, err := New(path, WithSender(&captureSender{}), WithStore(storage.NewMemory()))
	require.NoError(t, err)
	defer a.store.Close()

	prev := a.cfgm.Get()
	next := *prev
	next.Monitor.CheckEvery = "every: nonsense"
	next.Locations = nil

	a.apply(context.Background(), prev, &next)
	assert.Len(t, a.locs.All(), 1)
}

func TestNewRequiresCheck(t *testing.T) {
	cfg := baseConfig("")
	cfg["probe"] = map[string]any{"attempts": 1}
	path := writeConfig(t, cfg)

	_, err := New(path, WithSender(&captureSender{}), WithStore(storage.NewMemory()))
	require.ErrorIs(t, err, ErrNoChecks)
}

func TestMapCadencesDefaults(t *testing.T) {
	c, err := mapCadences(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, cadences{Check: "3m", Refresh: "30m", Watch: "15m"}, c)

	_, err = mapCadences(&config.Config{Monitor: config.MonitorConfig{CheckEvery: "cron: not a cron"}})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "monitor.check_every"))
}

func TestMapLocationsZoneFallback(t *testing.T) {
	off := false
	cfg := &config.Config{
		Monitor: config.MonitorConfig{Timezone: "Europe/Kyiv"},
		Locations: []config.LocationConfig{
			{ID: " a ", Host: "h1"},
			{ID: "b", Host: "h2", Timezone: "UTC", Enabled: &off},
		},
	}
	locs, err := mapLocations(cfg)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "a", locs[0].ID)
	assert.Equal(t, "Europe/Kyiv", locs[0].Zone().String())
	assert.True(t, locs[0].Enabled)
	assert.Equal(t, "UTC", locs[1].Zone().String())
	assert.False(t, locs[1].Enabled)
}

func TestMapStorageAndLogging(t *testing.T) {
	sc, err := mapStorage(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, defaultStoragePath, sc.Path)

	sc, err = mapStorage(&config.Config{Storage: config.StorageConfig{Driver: "memory"}})
	require.NoError(t, err)
	assert.Empty(t, sc.Path)

	cfg := &config.Config{}
	cfg.Logging.Alerts.Enabled = true
	assert.False(t, mapLogging(cfg).Alerts.Enabled)
	cfg.Telegram.AlertChatID = -100
	assert.True(t, mapLogging(cfg).Alerts.Enabled)
}
