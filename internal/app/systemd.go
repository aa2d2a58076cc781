package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	rtsup "powerwatch/internal/runtime/supervisor"
	logx "powerwatch/pkg/logx"
)

// startSystemd reports readiness and, when the unit sets WatchdogSec, pings
// the watchdog at half the interval until the supervisor stops.
func startSystemd(sup *rtsup.Supervisor, log logx.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn("systemd notify failed", logx.Err(err))
		return
	}
	if !sent {
		return
	}
	log.Debug("systemd notified ready")

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	sup.Go("systemd.watchdog", func(ctx context.Context) error {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					log.Warn("systemd watchdog ping failed", logx.Err(err))
				}
			}
		}
	})
	log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
}

func notifyStopping(log logx.Logger) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Debug("systemd notify stopping failed", logx.Err(err))
	}
}
