package notifier

import (
	"strings"

	logx "pushrelay/pkg/logx"
)

// NewPresenter picks the presenter for cfg.Backend. "auto" (or empty) tries
// D-Bus and falls back to the log presenter.
func NewPresenter(cfg Config, icons *IconCache, log logx.Logger) (Presenter, error) {
	cfg = cfg.withDefaults()
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "log":
		return NewLogPresenter(log), nil
	case "dbus":
		return NewDBusPresenter(cfg.AppName, icons, log)
	default:
		p, err := NewDBusPresenter(cfg.AppName, icons, log)
		if err != nil {
			log.Warn("desktop notifications unavailable; logging instead", logx.Err(err))
			return NewLogPresenter(log), nil
		}
		return p, nil
	}
}
