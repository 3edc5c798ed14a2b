package app

import (
	"strings"
	"time"

	"pushrelay/internal/config"
	"pushrelay/internal/credential"
	"pushrelay/internal/delivery"
	"pushrelay/internal/notifier"
	"pushrelay/internal/observability/debugsrv"
	"pushrelay/internal/pushapi"
	"pushrelay/internal/sound"
	"pushrelay/internal/storage"
	"pushrelay/internal/task/scheduler"
	logx "pushrelay/pkg/logx"
)

// The mappers below run on configs that already passed config.Validate,
// so malformed durations fall back to defaults instead of failing.

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorage reports enabled=false when no persistent driver is set; the
// app then keeps settings in memory.
func mapStorage(cfg *config.Config) (storage.Config, bool) {
	if cfg.Storage == nil {
		return storage.Config{}, false
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: config.DurationOr(sc.BusyTimeout, time.Second),
		MaxHistory:  sc.MaxHistory,
	}, true
}

func mapDelivery(cfg *config.Config) delivery.Config {
	d := cfg.Delivery
	return delivery.Config{
		Interval:        config.DurationOr(d.Interval, 2*time.Second),
		RecentLimit:     d.RecentLimit,
		DefaultLookback: config.DurationOr(d.DefaultLookback, 24*time.Hour),
	}
}

func mapNotifier(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	return notifier.Config{
		Backend:        strings.ToLower(strings.TrimSpace(n.Backend)),
		AppName:        n.AppName,
		Timeout:        config.DurationOr(n.Timeout, 0),
		DedupWindow:    config.DurationOr(n.DedupWindow, 0),
		DedupMax:       n.DedupMaxEntries,
		HistorySize:    n.HistorySize,
		TrackMax:       n.TrackMax,
		DismissTimeout: config.DurationOr(n.DismissTimeout, 0),
		SoundEnabled:   cfg.Sound.Enabled,
		SoundFile:      cfg.Sound.File,
		SoundVolume:    config.FloatOr(cfg.Sound.Volume, config.DefaultSoundVolume),
	}
}

func mapSound(cfg *config.Config) sound.Config {
	return sound.Config{
		Player:  strings.TrimSpace(cfg.Sound.Player),
		Timeout: config.DurationOr(cfg.Sound.Timeout, 0),
	}
}

func mapPushAPI(cfg *config.Config, token string) pushapi.Config {
	p := cfg.PushAPI
	return pushapi.Config{
		BaseURL:       p.BaseURL,
		Token:         token,
		Timeout:       config.DurationOr(p.Timeout, 0),
		RatePerSec:    p.RatePerSec,
		Burst:         p.Burst,
		RetryMax:      p.RetryMax,
		RetryBase:     config.DurationOr(p.RetryBase, 0),
		RetryMaxDelay: config.DurationOr(p.RetryMaxDelay, 0),
	}
}

func mapKeyring(cfg *config.Config) credential.Config {
	return credential.Config{
		FileDir:      strings.TrimSpace(cfg.Keyring.FileDir),
		FilePassword: cfg.Keyring.FilePassword,
	}
}

func mapDebug(cfg *config.Config) debugsrv.Config {
	d := cfg.Debug
	return debugsrv.Config{
		Enabled:              d.Enabled,
		Addr:                 strings.TrimSpace(d.Addr),
		Prefix:               strings.TrimSpace(d.Prefix),
		Token:                strings.TrimSpace(d.Token),
		AllowInsecure:        d.AllowInsecure,
		Metrics:              config.BoolOr(d.Metrics, true),
		ReadTimeout:          config.DurationOr(d.ReadTimeout, 0),
		WriteTimeout:         config.DurationOr(d.WriteTimeout, 0),
		IdleTimeout:          config.DurationOr(d.IdleTimeout, 0),
		MutexProfileFraction: d.MutexProfileFraction,
		BlockProfileRate:     d.BlockProfileRate,
		MemProfileRate:       d.MemProfileRate,
	}
}

func mapScheduler(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: strings.TrimSpace(cfg.Scheduler.Timezone),
	}
}
