package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("50ms", "10s", "3m"). Cadences in
// the monitor block also accept cron expressions (see scheduler.ParseSchedule).
type Config struct {
	Telegram  TelegramConfig   `json:"telegram"`
	Logging   LoggingConfig    `json:"logging"`
	Monitor   MonitorConfig    `json:"monitor"`
	Probe     ProbeConfig      `json:"probe"`
	Schedule  ScheduleConfig   `json:"schedule"`
	Dispatch  DispatchConfig   `json:"dispatch"`
	Storage   StorageConfig    `json:"storage"`
	Metrics   MetricsConfig    `json:"metrics"`
	Locations []LocationConfig `json:"locations"`
}

type TelegramConfig struct {
	Token   string `json:"token"`
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	// AlertChatID receives warn+ log lines when logging.alerts.enabled is set.
	AlertChatID   int64 `json:"alert_chat_id,omitempty"`
	AlertThreadID int   `json:"alert_thread_id,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	JSON    bool   `json:"json,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path"`
	} `json:"file"`
	Alerts struct {
		Enabled    bool   `json:"enabled"`
		MinLevel   string `json:"min_level"`
		RatePerSec int    `json:"rate_per_sec"`
	} `json:"alerts"`
}

// MonitorConfig drives the orchestrator.
//
// Defaults:
//   - check_every: "3m"
//   - refresh_every: "30m"
//   - watch_every: "15m"
//   - concurrency: 8
//   - suspicious_after: "30m"
//   - retention: "72h"
//   - event_window: "12h"
type MonitorConfig struct {
	Timezone        string `json:"timezone,omitempty"`
	CheckEvery      string `json:"check_every,omitempty"`
	RefreshEvery    string `json:"refresh_every,omitempty"`
	WatchEvery      string `json:"watch_every,omitempty"`
	Concurrency     int    `json:"concurrency,omitempty"`
	SuspiciousAfter string `json:"suspicious_after,omitempty"`
	Retention       string `json:"retention,omitempty"`
	EventWindow     string `json:"event_window,omitempty"`
}

type ProbeConfig struct {
	Attempts   int             `json:"attempts,omitempty"`
	RetryDelay string          `json:"retry_delay,omitempty"`
	GeoPing    GeoPingConfig   `json:"geoping"`
	CheckHost  CheckHostConfig `json:"checkhost"`
}

type GeoPingConfig struct {
	URL     string   `json:"url"`
	APIKey  string   `json:"api_key,omitempty"`
	Regions []string `json:"regions,omitempty"`
	Timeout string   `json:"timeout,omitempty"`
}

type CheckHostConfig struct {
	URL          string   `json:"url"`
	Nodes        []string `json:"nodes,omitempty"`
	MaxNodes     int      `json:"max_nodes,omitempty"`
	PollInterval string   `json:"poll_interval,omitempty"`
	PollAttempts int      `json:"poll_attempts,omitempty"`
	Timeout      string   `json:"timeout,omitempty"`
}

type ScheduleConfig struct {
	URL        string `json:"url"`
	DatasetURL string `json:"dataset_url,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

type DispatchConfig struct {
	SendDelay string `json:"send_delay,omitempty"`
	Workers   int    `json:"workers,omitempty"`
}

// StorageConfig selects the subscription/state backend.
//
// Driver values: "sqlite" (default), "file", "memory".
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

type LocationConfig struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	Timezone string `json:"timezone,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"`
	Region   string `json:"region,omitempty"`
	Queue    string `json:"queue,omitempty"`
}

// IsEnabled treats an omitted flag as enabled.
func (l LocationConfig) IsEnabled() bool { return l.Enabled == nil || *l.Enabled }
