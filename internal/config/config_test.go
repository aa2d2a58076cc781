package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "powerwatch/pkg/logx"
)

const sampleYAML = `
telegram:
  token: file-token
logging:
  level: debug
  console: true
monitor:
  timezone: Europe/Kyiv
  check_every: 3m
probe:
  attempts: 5
  retry_delay: 10s
  geoping:
    url: https://geo.example
    regions: [eu, ua]
  checkhost:
    url: https://check-host.example
    poll_interval: 6s
schedule:
  url: https://schedule.example/api
locations:
  - id: home
    name: Home
    host: 203.0.113.10
    region: kyiv
    queue: "1.1"
  - id: dacha
    name: Dacha
    host: dacha.example
    enabled: false
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestManagerLoadYAML(t *testing.T) {
	t.Setenv(EnvTelegramToken, "")
	m := NewManager(writeFile(t, "config.yaml", sampleYAML), logx.Nop())

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())
	assert.Equal(t, "file-token", cfg.Telegram.Token)
	assert.Equal(t, []string{"eu", "ua"}, cfg.Probe.GeoPing.Regions)
	require.Len(t, cfg.Locations, 2)
	assert.True(t, cfg.Locations[0].IsEnabled())
	assert.False(t, cfg.Locations[1].IsEnabled())
	assert.Equal(t, "1.1", cfg.Locations[0].Queue)
}

func TestEnvOverridesToken(t *testing.T) {
	t.Setenv(EnvTelegramToken, "env-token")
	m := NewManager(writeFile(t, "config.yaml", sampleYAML), logx.Nop())

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Telegram.Token)
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown field":  `{"telegram":{"token":"x"},"bogus":1}`,
		"trailing data":  `{"telegram":{"token":"x"}}{}`,
		"bad duration":   `{"probe":{"retry_delay":"ten seconds"}}`,
		"bad timezone":   `{"monitor":{"timezone":"Mars/Olympus"}}`,
		"duplicate id":   `{"locations":[{"id":"a","host":"h"},{"id":"a","host":"h"}]}`,
		"missing host":   `{"locations":[{"id":"a"}]}`,
		"half schedule":  `{"locations":[{"id":"a","host":"h","region":"kyiv"}]}`,
		"unknown driver": `{"storage":{"driver":"postgres"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode("config.json", []byte(body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "err = %v", err)
		})
	}
}

func TestReloadSkipsUnchanged(t *testing.T) {
	p := writeFile(t, "config.json", `{"locations":[{"id":"a","host":"h"}]}`)
	m := NewManager(p, logx.Nop())
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)

	changed, err := m.Reload()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(p, []byte(`{"locations":[{"id":"b","host":"h"}]}`), 0o644))
	changed, err = m.Reload()
	require.NoError(t, err)
	assert.True(t, changed)

	select {
	case cfg := <-sub:
		assert.Equal(t, "b", cfg.Locations[0].ID)
	default:
		t.Fatal("expected published config")
	}
}

func TestWatchPublishesEdits(t *testing.T) {
	p := writeFile(t, "config.json", `{"locations":[{"id":"a","host":"h"}]}`)
	m := NewManager(p, logx.Nop())
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte(`{"locations":[{"id":"c","host":"h"}]}`), 0o644))

	select {
	case cfg := <-sub:
		assert.Equal(t, "c", cfg.Locations[0].ID)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not published")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	a := &Config{Monitor: MonitorConfig{CheckEvery: "3m"}}
	b := &Config{Monitor: MonitorConfig{CheckEvery: "5m"}, Locations: []LocationConfig{{ID: "x"}}}
	changed, fields := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"locations", "monitor"}, changed)
	assert.NotEmpty(t, fields)

	changed, _ = SummarizeConfigChange(a, a)
	assert.Empty(t, changed)
}
