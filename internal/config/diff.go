package config

import (
	"reflect"
	"sort"

	logx "powerwatch/pkg/logx"
)

// SummarizeConfigChange lists the top-level sections that differ and returns
// log fields safe to print (no tokens or API keys).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	fields := make([]logx.Field, 0, 8)

	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		fields = append(fields, logx.Bool("telegram.alert_chat_set", newCfg.Telegram.AlertChatID != 0))
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields, logx.String("logging.level", newCfg.Logging.Level))
	}
	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		fields = append(fields,
			logx.String("monitor.check_every", newCfg.Monitor.CheckEvery),
			logx.String("monitor.refresh_every", newCfg.Monitor.RefreshEvery),
			logx.String("monitor.watch_every", newCfg.Monitor.WatchEvery),
		)
	}
	if !reflect.DeepEqual(oldCfg.Probe, newCfg.Probe) {
		changed = append(changed, "probe")
	}
	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
	}
	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		fields = append(fields, logx.String("dispatch.send_delay", newCfg.Dispatch.SendDelay))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
	}
	if oldCfg.Metrics.Enabled != newCfg.Metrics.Enabled ||
		oldCfg.Metrics.Addr != newCfg.Metrics.Addr ||
		oldCfg.Metrics.AllowInsecure != newCfg.Metrics.AllowInsecure ||
		oldCfg.Metrics.Pprof != newCfg.Metrics.Pprof ||
		(oldCfg.Metrics.Token != "") != (newCfg.Metrics.Token != "") {
		changed = append(changed, "metrics")
		fields = append(fields, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}
	if !reflect.DeepEqual(oldCfg.Locations, newCfg.Locations) {
		changed = append(changed, "locations")
		fields = append(fields, logx.Int("locations.count", len(newCfg.Locations)))
	}

	sort.Strings(changed)
	return changed, fields
}
