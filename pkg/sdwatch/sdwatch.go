// Package sdwatch integrates with the systemd service manager: readiness
// and stop notifications plus a watchdog keepalive loop. Outside systemd
// every call is a cheap no-op, so callers never need to branch on the
// deployment.
package sdwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "remindbot/pkg/logx"
)

type notifyFunc func(unsetEnvironment bool, state string) (bool, error)
type periodFunc func(unsetEnvironment bool) (time.Duration, error)

// Watcher drives sd_notify for the process.
type Watcher struct {
	log     logx.Logger
	healthy func() bool

	notify notifyFunc
	period periodFunc
}

// New builds a watcher. healthy gates the keepalive: while it returns
// false the watchdog starves and systemd restarts the unit after its
// timeout. A nil healthy always feeds.
func New(log logx.Logger, healthy func() bool) *Watcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{
		log:     log,
		healthy: healthy,
		notify:  daemon.SdNotify,
		period:  daemon.SdWatchdogEnabled,
	}
}

// Ready signals READY=1. Call it once startup is complete so Type=notify
// units order dependencies correctly.
func (w *Watcher) Ready() {
	sent, err := w.notify(false, daemon.SdNotifyReady)
	switch {
	case err != nil:
		w.log.Warn("systemd ready notify failed", logx.Err(err))
	case sent:
		w.log.Info("systemd notified ready")
	default:
		w.log.Debug("not running under systemd")
	}
}

// Stopping signals STOPPING=1 so shutdown time counts against
// TimeoutStopSec instead of the watchdog.
func (w *Watcher) Stopping() {
	if _, err := w.notify(false, daemon.SdNotifyStopping); err != nil {
		w.log.Warn("systemd stopping notify failed", logx.Err(err))
	}
}

// Run feeds the watchdog until ctx ends. It returns immediately when the
// unit has no WatchdogSec configured. Runs under the app supervisor.
func (w *Watcher) Run(ctx context.Context) error {
	period, err := w.period(false)
	if err != nil {
		return fmt.Errorf("watchdog query: %w", err)
	}
	if period <= 0 {
		w.log.Debug("systemd watchdog not requested")
		return nil
	}

	// Half the timeout is the interval systemd documentation recommends.
	interval := period / 2
	w.log.Info("feeding systemd watchdog", logx.Duration("interval", interval))

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if w.healthy != nil && !w.healthy() {
				w.log.Warn("watchdog keepalive withheld, process unhealthy")
				continue
			}
			if _, err := w.notify(false, daemon.SdNotifyWatchdog); err != nil {
				w.log.Warn("watchdog notify failed", logx.Err(err))
			}
		}
	}
}
