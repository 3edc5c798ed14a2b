package config

import (
	"reflect"
	"sort"
	"strings"

	logx "pushrelay/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and safe
// structured attrs for logging. Tokens and passwords are never included,
// only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Delivery, newCfg.Delivery) {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.String("delivery.interval", strings.TrimSpace(newCfg.Delivery.Interval)),
			logx.Int("delivery.recent_limit", newCfg.Delivery.RecentLimit),
			logx.String("delivery.default_lookback", strings.TrimSpace(newCfg.Delivery.DefaultLookback)),
			logx.Bool("delivery.replay_on_launch", BoolOr(newCfg.Delivery.ReplayOnLaunch, true)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.String("notifier.backend", strings.TrimSpace(newCfg.Notifier.Backend)),
			logx.String("notifier.dedup_window", strings.TrimSpace(newCfg.Notifier.DedupWindow)),
			logx.Int("notifier.history_size", newCfg.Notifier.HistorySize),
		)
	}

	if !reflect.DeepEqual(oldCfg.Sound, newCfg.Sound) {
		changed = append(changed, "sound")
		attrs = append(attrs,
			logx.Bool("sound.enabled", newCfg.Sound.Enabled),
			logx.Bool("sound.file_set", strings.TrimSpace(newCfg.Sound.File) != ""),
			logx.Float64("sound.volume", FloatOr(newCfg.Sound.Volume, DefaultSoundVolume)),
		)
	}

	// Nil means the default in-memory store.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if strings.TrimSpace(oS.Driver) != strings.TrimSpace(nS.Driver) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) ||
		oS.MaxHistory != nS.MaxHistory {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Int("storage.max_history", nS.MaxHistory),
		)
	}

	if !reflect.DeepEqual(oldCfg.Source, newCfg.Source) {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.snapshot", strings.TrimSpace(newCfg.Source.Snapshot)),
			logx.Bool("source.stream_set", strings.TrimSpace(newCfg.Source.Stream) != ""),
			logx.Bool("source.watch", BoolOr(newCfg.Source.Watch, true)),
		)
	}

	oP, nP := oldCfg.PushAPI, newCfg.PushAPI
	oTok, nTok := strings.TrimSpace(oP.Token) != "", strings.TrimSpace(nP.Token) != ""
	oP.Token, nP.Token = "", ""
	if oTok != nTok || !reflect.DeepEqual(oP, nP) {
		changed = append(changed, "pushapi")
		attrs = append(attrs,
			logx.String("pushapi.base_url", strings.TrimSpace(nP.BaseURL)),
			logx.Bool("pushapi.token_set", nTok),
			logx.Float64("pushapi.rate_per_sec", nP.RatePerSec),
			logx.Int("pushapi.retry_max", nP.RetryMax),
		)
	}

	if strings.TrimSpace(oldCfg.Keyring.FileDir) != strings.TrimSpace(newCfg.Keyring.FileDir) ||
		(oldCfg.Keyring.FilePassword != "") != (newCfg.Keyring.FilePassword != "") {
		changed = append(changed, "keyring")
		attrs = append(attrs, logx.Bool("keyring.file_backend", strings.TrimSpace(newCfg.Keyring.FileDir) != ""))
	}

	oD, nD := oldCfg.Debug, newCfg.Debug
	oDTok, nDTok := strings.TrimSpace(oD.Token) != "", strings.TrimSpace(nD.Token) != ""
	oD.Token, nD.Token = "", ""
	if oDTok != nDTok || !reflect.DeepEqual(oD, nD) {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nD.Enabled),
			logx.String("debug.addr", strings.TrimSpace(nD.Addr)),
			logx.Bool("debug.token_set", nDTok),
			logx.Bool("debug.allow_insecure", nD.AllowInsecure),
			logx.Bool("debug.metrics", BoolOr(nD.Metrics, true)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.refresh_reference", strings.TrimSpace(newCfg.Scheduler.RefreshReference)),
			logx.String("scheduler.compact", strings.TrimSpace(newCfg.Scheduler.Compact)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
