package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"powerwatch/internal/config"
	"powerwatch/internal/dispatcher"
	"powerwatch/internal/location"
	"powerwatch/internal/observability"
	"powerwatch/internal/probe"
	"powerwatch/internal/scheduler"
	"powerwatch/internal/storage"
	logx "powerwatch/pkg/logx"
)

const (
	defaultCheckEvery   = "3m"
	defaultRefreshEvery = "30m"
	defaultWatchEvery   = "15m"
	defaultConcurrency  = 8
	defaultStoragePath  = "./powerwatch.db"
)

var ErrNoChecks = errors.New("probe: neither geoping.url nor checkhost.url is set")

// cadences holds the three trigger specs after defaults.
type cadences struct {
	Check, Refresh, Watch string
}

func mapCadences(cfg *config.Config) (cadences, error) {
	pick := func(path, raw, def string) (string, error) {
		s := strings.TrimSpace(raw)
		if s == "" {
			s = def
		}
		if err := scheduler.ValidateSchedule(s); err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		return s, nil
	}
	var (
		c   cadences
		err error
	)
	if c.Check, err = pick("monitor.check_every", cfg.Monitor.CheckEvery, defaultCheckEvery); err != nil {
		return c, err
	}
	if c.Refresh, err = pick("monitor.refresh_every", cfg.Monitor.RefreshEvery, defaultRefreshEvery); err != nil {
		return c, err
	}
	if c.Watch, err = pick("monitor.watch_every", cfg.Monitor.WatchEvery, defaultWatchEvery); err != nil {
		return c, err
	}
	return c, nil
}

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		JSON:    l.JSON,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Alerts: logx.AlertConfig{
			Enabled:    l.Alerts.Enabled && cfg.Telegram.AlertChatID != 0,
			ChatID:     cfg.Telegram.AlertChatID,
			ThreadID:   cfg.Telegram.AlertThreadID,
			MinLevel:   l.Alerts.MinLevel,
			RatePerSec: l.Alerts.RatePerSec,
		},
	}
}

// mapLocations resolves zones against the monitor-wide default zone.
func mapLocations(cfg *config.Config) ([]location.Location, error) {
	def, err := config.LoadLocation("monitor.timezone", cfg.Monitor.Timezone, nil)
	if err != nil {
		return nil, err
	}
	out := make([]location.Location, 0, len(cfg.Locations))
	for i, lc := range cfg.Locations {
		tz, err := config.LoadLocation(fmt.Sprintf("locations[%d].timezone", i), lc.Timezone, def)
		if err != nil {
			return nil, err
		}
		out = append(out, location.Location{
			ID:      strings.TrimSpace(lc.ID),
			Name:    strings.TrimSpace(lc.Name),
			Host:    strings.TrimSpace(lc.Host),
			TZ:      tz,
			Enabled: lc.IsEnabled(),
			Region:  strings.TrimSpace(lc.Region),
			Queue:   strings.TrimSpace(lc.Queue),
		})
	}
	return out, nil
}

// mapProbe builds the configured checks. At least one must be set.
func mapProbe(cfg *config.Config, client *http.Client) (probe.Config, []probe.Checker, error) {
	pc := cfg.Probe
	retry, err := config.ParseDurationOrDefault("probe.retry_delay", pc.RetryDelay, probe.DefaultRetryDelay)
	if err != nil {
		return probe.Config{}, nil, err
	}
	var checks []probe.Checker
	if u := strings.TrimSpace(pc.GeoPing.URL); u != "" {
		timeout, err := config.ParseDurationField("probe.geoping.timeout", pc.GeoPing.Timeout)
		if err != nil {
			return probe.Config{}, nil, err
		}
		checks = append(checks, probe.NewGeoPing(probe.GeoPingConfig{
			BaseURL: u,
			APIKey:  pc.GeoPing.APIKey,
			Regions: pc.GeoPing.Regions,
			Timeout: timeout,
		}, client))
	}
	if u := strings.TrimSpace(pc.CheckHost.URL); u != "" {
		poll, err := config.ParseDurationOrDefault("probe.checkhost.poll_interval", pc.CheckHost.PollInterval, probe.DefaultPollInterval)
		if err != nil {
			return probe.Config{}, nil, err
		}
		timeout, err := config.ParseDurationField("probe.checkhost.timeout", pc.CheckHost.Timeout)
		if err != nil {
			return probe.Config{}, nil, err
		}
		checks = append(checks, probe.NewCheckHost(probe.CheckHostConfig{
			BaseURL:      u,
			Nodes:        pc.CheckHost.Nodes,
			MaxNodes:     pc.CheckHost.MaxNodes,
			PollInterval: poll,
			PollAttempts: pc.CheckHost.PollAttempts,
			Timeout:      timeout,
		}, client))
	}
	if len(checks) == 0 {
		return probe.Config{}, nil, ErrNoChecks
	}
	return probe.Config{Attempts: pc.Attempts, RetryDelay: retry}, checks, nil
}

func mapDispatch(cfg *config.Config) (dispatcher.Config, error) {
	delay, err := config.ParseDurationOrDefault("dispatch.send_delay", cfg.Dispatch.SendDelay, dispatcher.DefaultSendDelay)
	if err != nil {
		return dispatcher.Config{}, err
	}
	return dispatcher.Config{SendDelay: delay, Workers: cfg.Dispatch.Workers}, nil
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if path == "" && driver != "memory" {
		path = defaultStoragePath
		if driver == "file" {
			path = "./powerwatch.json"
		}
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapMetrics(cfg *config.Config) observability.Config {
	m := cfg.Metrics
	return observability.Config{
		Enabled:       m.Enabled,
		Addr:          m.Addr,
		Token:         m.Token,
		AllowInsecure: m.AllowInsecure,
		Pprof:         m.Pprof,
	}
}

func concurrency(cfg *config.Config) int {
	if cfg.Monitor.Concurrency > 0 {
		return cfg.Monitor.Concurrency
	}
	return defaultConcurrency
}

func durationOr(path, raw string, def time.Duration) time.Duration {
	d, err := config.ParseDurationOrDefault(path, raw, def)
	if err != nil {
		return def
	}
	return d
}

// Check validates everything the app maps beyond config.Validate.
func Check(cfg *config.Config) error {
	if _, err := mapCadences(cfg); err != nil {
		return err
	}
	if _, err := mapLocations(cfg); err != nil {
		return err
	}
	if _, _, err := mapProbe(cfg, nil); err != nil {
		return err
	}
	if _, err := mapDispatch(cfg); err != nil {
		return err
	}
	_, err := mapStorage(cfg)
	return err
}
