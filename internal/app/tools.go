package app

import (
	"errors"
	"strings"

	"powerwatch/internal/config"
	"powerwatch/internal/probe"
	"powerwatch/internal/schedule"
	"powerwatch/internal/storage"
	logx "powerwatch/pkg/logx"
)

// The helpers below build single components for one-shot CLI commands.

var ErrNoScheduleURL = errors.New("schedule.url is not set")

func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewManager(path, logx.Nop()).Parse()
	if err != nil {
		return nil, err
	}
	if err := Check(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func NewProber(cfg *config.Config, log logx.Logger) (*probe.Prober, error) {
	pcfg, checks, err := mapProbe(cfg, nil)
	if err != nil {
		return nil, err
	}
	return probe.New(pcfg, log, nil, checks...), nil
}

func NewScheduleCache(cfg *config.Config, log logx.Logger) (*schedule.Cache, error) {
	u := strings.TrimSpace(cfg.Schedule.URL)
	if u == "" {
		return nil, ErrNoScheduleURL
	}
	return schedule.NewCache(&schedule.APISource{
		URL:     u,
		Timeout: durationOr("schedule.timeout", cfg.Schedule.Timeout, 0),
	}, log,
		schedule.WithEventWindow(durationOr("monitor.event_window", cfg.Monitor.EventWindow, schedule.DefaultEventWindow)),
	), nil
}

func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, log)
}
