package config

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("invalid config")

// Validate checks fields that would otherwise fail late (durations, zones,
// location identity). All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil", ErrInvalid)
	}
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		check(err)
	}

	dur("telegram.timeout", cfg.Telegram.Timeout)
	dur("monitor.suspicious_after", cfg.Monitor.SuspiciousAfter)
	dur("monitor.retention", cfg.Monitor.Retention)
	dur("monitor.event_window", cfg.Monitor.EventWindow)
	dur("probe.retry_delay", cfg.Probe.RetryDelay)
	dur("probe.geoping.timeout", cfg.Probe.GeoPing.Timeout)
	dur("probe.checkhost.poll_interval", cfg.Probe.CheckHost.PollInterval)
	dur("probe.checkhost.timeout", cfg.Probe.CheckHost.Timeout)
	dur("schedule.timeout", cfg.Schedule.Timeout)
	dur("dispatch.send_delay", cfg.Dispatch.SendDelay)
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	_, err := LoadLocation("monitor.timezone", cfg.Monitor.Timezone, nil)
	check(err)

	if cfg.Probe.Attempts < 0 {
		check(errors.New("probe.attempts must be >= 0"))
	}
	if cfg.Probe.CheckHost.PollAttempts < 0 {
		check(errors.New("probe.checkhost.poll_attempts must be >= 0"))
	}
	if cfg.Monitor.Concurrency < 0 {
		check(errors.New("monitor.concurrency must be >= 0"))
	}
	if cfg.Dispatch.Workers < 0 {
		check(errors.New("dispatch.workers must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "file", "memory":
	default:
		check(fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver))
	}

	seen := make(map[string]bool, len(cfg.Locations))
	for i, l := range cfg.Locations {
		path := fmt.Sprintf("locations[%d]", i)
		id := strings.TrimSpace(l.ID)
		switch {
		case id == "":
			check(fmt.Errorf("%s.id is required", path))
		case seen[id]:
			check(fmt.Errorf("%s.id %q is duplicated", path, id))
		}
		seen[id] = true
		if strings.TrimSpace(l.Host) == "" {
			check(fmt.Errorf("%s.host is required", path))
		}
		if (l.Region == "") != (l.Queue == "") {
			check(fmt.Errorf("%s: region and queue must be set together", path))
		}
		_, err := LoadLocation(path+".timezone", l.Timezone, nil)
		check(err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
