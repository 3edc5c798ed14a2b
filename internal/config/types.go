package config

// Config is the relay's file configuration. Durations are Go duration
// strings ("500ms", "2s", "24h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Notifier  NotifierConfig  `json:"notifier"`
	Sound     SoundConfig     `json:"sound"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Source    SourceConfig    `json:"source"`
	PushAPI   PushAPIConfig   `json:"pushapi"`
	Keyring   KeyringConfig   `json:"keyring"`
	Debug     DebugConfig     `json:"debug,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DeliveryConfig controls the spaced display queue.
//
// Defaults: interval "2s", recent_limit 5, default_lookback "24h",
// replay_on_launch true (the store key replayOnLaunch overrides it).
type DeliveryConfig struct {
	Interval        string `json:"interval,omitempty"`
	RecentLimit     int    `json:"recent_limit,omitempty"`
	DefaultLookback string `json:"default_lookback,omitempty"`
	ReplayOnLaunch  *bool  `json:"replay_on_launch,omitempty"`
}

type NotifierConfig struct {
	// Backend is "auto", "dbus" or "log".
	Backend         string `json:"backend,omitempty"`
	AppName         string `json:"app_name,omitempty"`
	Timeout         string `json:"timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
	TrackMax        int    `json:"track_max,omitempty"`
	DismissTimeout  string `json:"dismiss_timeout,omitempty"`
	IconCacheDir    string `json:"icon_cache_dir,omitempty"`
}

// SoundConfig holds the defaults used until the store keys soundEnabled,
// soundFile and soundVolume are set.
type SoundConfig struct {
	Enabled bool    `json:"enabled"`
	File    string  `json:"file,omitempty"`
	// Volume in [0,1]; unset means 0.5, 0 mutes.
	Volume  *float64 `json:"volume,omitempty"`
	Player  string  `json:"player,omitempty"`
	Timeout string  `json:"timeout,omitempty"`
}

// StorageConfig selects the settings and history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./pushrelay.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	MaxHistory  int    `json:"max_history,omitempty"`
}

type SourceConfig struct {
	// Snapshot is the JSON file written by the real-time client.
	Snapshot string `json:"snapshot"`
	// Stream is an NDJSON path read at startup; "-" is stdin.
	Stream string `json:"stream,omitempty"`
	Watch  *bool  `json:"watch,omitempty"`
}

type PushAPIConfig struct {
	BaseURL       string  `json:"base_url,omitempty"`
	Token         string  `json:"token,omitempty"` // do not log
	Timeout       string  `json:"timeout,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	Burst         int     `json:"burst,omitempty"`
	RetryMax      int     `json:"retry_max,omitempty"`
	RetryBase     string  `json:"retry_base,omitempty"`
	RetryMaxDelay string  `json:"retry_max_delay,omitempty"`
}

type KeyringConfig struct {
	// FileDir enables the encrypted file backend when no OS keyring exists.
	FileDir      string `json:"file_dir,omitempty"`
	FilePassword string `json:"file_password,omitempty"` // do not log
}

// DebugConfig controls the optional debug HTTP server (pprof, /metrics,
// /healthz, /history).
//
// Prefer binding to localhost. A non-loopback address needs a token or
// allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // bearer token, do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       *bool  `json:"metrics,omitempty"` // default true

	// WriteTimeout defaults to 0 so /profile can run for 30s+.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}

// SchedulerConfig holds the periodic jobs. Each schedule is a cron
// expression ("0 3 * * *", "@hourly") or an interval ("10m", "02:30").
// Empty disables the job.
type SchedulerConfig struct {
	Enabled          bool   `json:"enabled"`
	Timezone         string `json:"timezone,omitempty"`
	RefreshReference string `json:"refresh_reference,omitempty"`
	Compact          string `json:"compact,omitempty"`
}

// DefaultSoundVolume applies when sound.volume is unset.
const DefaultSoundVolume = 0.5

// FloatOr returns *p, or def when p is nil.
func FloatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// BoolOr returns *p, or def when p is nil.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
