package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "pushrelay/pkg/logx"
)

// sdNotifier reports lifecycle state to systemd when running under a
// Type=notify unit. Outside systemd every call is a no-op.
type sdNotifier struct {
	log logx.Logger
}

func newSDNotifier(log logx.Logger) *sdNotifier { return &sdNotifier{log: log} }

func (n *sdNotifier) send(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent && n.log.Enabled(logx.LevelDebug) {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (n *sdNotifier) Ready(status string) {
	n.send(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

func (n *sdNotifier) Reloading() { n.send(daemon.SdNotifyReloading) }

func (n *sdNotifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Watchdog pings systemd at half the configured WatchdogSec until ctx ends.
func (n *sdNotifier) Watchdog(ctx context.Context) {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
