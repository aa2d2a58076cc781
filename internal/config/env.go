package config

import (
	"os"
	"strings"
)

const (
	EnvTelegramToken = "POWERWATCH_TELEGRAM_TOKEN"
	EnvGeoPingKey    = "POWERWATCH_GEOPING_KEY"
	EnvStoragePath   = "POWERWATCH_STORAGE_PATH"
)

// ApplyEnv overlays secrets and deployment paths from the environment.
// Non-empty variables win over file values.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, EnvTelegramToken)
	set(&cfg.Probe.GeoPing.APIKey, EnvGeoPingKey)
	set(&cfg.Storage.Path, EnvStoragePath)
}
