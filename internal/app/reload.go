package app

import (
	"context"
	"reflect"

	"pushrelay/internal/config"
	logx "pushrelay/pkg/logx"
)

// reloadLoop applies committed configs to the running components. Bursts of
// reloads are coalesced to the newest config.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	prev := a.cfgm.Get()
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case next = <-sub:
		}
	drain:
		for {
			select {
			case c := <-sub:
				next = c
			default:
				break drain
			}
		}
		if next == nil {
			continue
		}
		a.applyConfig(ctx, prev, next)
		prev = next
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, fields := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		return
	}
	a.sd.Reloading()
	a.log.Info("config reloaded", fields...)

	if a.logs != nil {
		a.logs.Apply(mapLogging(next))
	}
	a.notif.Apply(mapNotifier(next))
	a.sched.Apply(mapScheduler(next))
	a.registerJobs(next)
	a.debug.Reconfigure(ctx, mapDebug(next))

	if !reflect.DeepEqual(prev.Delivery, next.Delivery) {
		a.log.Warn("delivery settings change takes effect after restart")
	}
	if !reflect.DeepEqual(prev.Storage, next.Storage) {
		a.log.Warn("storage settings change takes effect after restart")
	}
	if !reflect.DeepEqual(prev.Source, next.Source) {
		a.log.Warn("source settings change takes effect after restart")
	}
	if prev.Sound.Player != next.Sound.Player || prev.Sound.Timeout != next.Sound.Timeout {
		a.log.Warn("sound player change takes effect after restart")
	}
	if prev.PushAPI != next.PushAPI || prev.Keyring != next.Keyring {
		a.log.Warn("push API settings change takes effect after restart")
	}
	a.log.Debug("config applied", logx.Int("sections", len(sections)))
	a.sd.Ready("relaying; config reloaded")
}
