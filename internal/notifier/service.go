package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/metrics"
	"pushrelay/internal/push"
	rtsup "pushrelay/internal/runtime/supervisor"
	"pushrelay/internal/storage"
	logx "pushrelay/pkg/logx"
)

type Deps struct {
	Presenter Presenter
	Sound     SoundPlayer
	Opener    Opener
	Dismisser Dismisser
	Settings  Settings
	Bus       eventbus.Bus
	Metrics   *metrics.Metrics
	Log       logx.Logger
}

// Service presents pushes and handles clicks on them.
//
// It is safe for concurrent use.
type Service struct {
	mu  sync.Mutex
	cfg Config
	sup *rtsup.Supervisor

	presenter Presenter
	sound     SoundPlayer
	opener    Opener
	dismisser Dismisser
	settings  Settings
	bus       eventbus.Bus
	metrics   *metrics.Metrics
	log       logx.Logger
	now       func() time.Time

	// In-memory dedup cache: tag -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	// Shown notifications, for click lookup and replaces_id.
	byID  *lru.Cache[uint32, push.Normalized]
	byTag *lru.Cache[string, uint32]

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, d Deps) *Service {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Presenter == nil {
		d.Presenter = NewLogPresenter(d.Log)
	}
	cfg = cfg.withDefaults()
	byID, _ := lru.New[uint32, push.Normalized](cfg.TrackMax)
	byTag, _ := lru.New[string, uint32](cfg.TrackMax)
	return &Service{
		cfg:       cfg,
		presenter: d.Presenter,
		sound:     d.Sound,
		opener:    d.Opener,
		dismisser: d.Dismisser,
		settings:  d.Settings,
		bus:       d.Bus,
		metrics:   d.Metrics,
		log:       d.Log.With(logx.String("comp", "notifier")),
		now:       time.Now,
		dedup:     map[string]time.Time{},
		byID:      byID,
		byTag:     byTag,
	}
}

func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.byID.Resize(cfg.TrackMax)
	s.byTag.Resize(cfg.TrackMax)
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Backend names the active presenter.
func (s *Service) Backend() string { return s.presenter.Name() }

// Start runs the click loop. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// Click handling is best-effort and must not take the app down.
		rtsup.WithCancelOnError(false),
	)
	clicks := s.presenter.Clicks()
	s.sup.GoRestart("notifier.clicks", func(c context.Context) error {
		return s.clickLoop(c, clicks)
	}, rtsup.WithPublishFirstError(true))
}

// Stop ends the click loop and closes the presenter.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup != nil {
		if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Debug("click loop stop", logx.Err(err))
		}
	}
	return s.presenter.Close()
}

func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Present shows p. A push with the same tag inside the dedup window is
// skipped with ErrDeduped. Sound problems are logged and never fail the push.
func (s *Service) Present(ctx context.Context, p push.Normalized) error {
	cfg := s.config()
	tag := p.Iden

	if cfg.DedupWindow > 0 && tag != "" && !s.dedupAllow(tag, cfg.DedupWindow, cfg.DedupMax) {
		s.publish("notifier.deduped", NotificationEvent{Iden: tag, Title: p.Title})
		return ErrDeduped
	}

	n := Notification{
		Title:   p.Title,
		Body:    p.Body,
		Icon:    p.Icon,
		Tag:     tag,
		Timeout: cfg.Timeout,
		Urgency: UrgencyNormal,
	}
	if tag != "" {
		n.ReplacesID, _ = s.byTag.Get(tag)
	}

	id, err := s.presenter.Show(ctx, n)
	s.metrics.Notification(s.presenter.Name(), err)
	if err != nil {
		s.publish("notifier.failed", NotificationEvent{Iden: tag, Title: p.Title, Error: err.Error()})
		return err
	}

	s.track(id, p)
	s.appendHistory(HistoryItem{At: s.now(), ID: id, Iden: p.Iden, Type: string(p.Type), Title: p.Title, URL: p.URL}, cfg.HistorySize)
	s.publish("notifier.shown", NotificationEvent{ID: id, Iden: tag, Title: p.Title, URL: p.URL})
	s.playSound(ctx, cfg)
	return nil
}

func (s *Service) playSound(ctx context.Context, cfg Config) {
	if s.sound == nil {
		return
	}
	enabled, file, volume := cfg.SoundEnabled, cfg.SoundFile, cfg.SoundVolume
	if s.settings != nil {
		var err error
		if enabled, err = storage.GetBool(ctx, s.settings, storage.KeySoundEnabled, enabled); err != nil {
			s.log.Debug("reading soundEnabled failed", logx.Err(err))
		}
		if file, err = storage.GetString(ctx, s.settings, storage.KeySoundFile, file); err != nil {
			s.log.Debug("reading soundFile failed", logx.Err(err))
		}
		if v, ok, _ := storage.GetFloat(ctx, s.settings, storage.KeySoundVolume, volume); ok {
			volume = v
		}
	}
	if !enabled {
		return
	}
	s.sound.PlayAsync(file, volume, func(err error) {
		if err != nil {
			s.log.Debug("notification sound failed", logx.String("file", file), logx.Err(err))
		}
	})
}

// HandleClick opens the clicked push's URL and dismisses it upstream when
// the push qualifies.
func (s *Service) HandleClick(ctx context.Context, id uint32) {
	p, ok := s.byID.Get(id)
	if !ok {
		s.log.Debug("click on unknown notification", logx.Int64("id", int64(id)))
		return
	}

	s.metrics.Click()
	s.publish("notifier.clicked", NotificationEvent{ID: id, Iden: p.Iden, Title: p.Title, URL: p.URL})

	if p.URL != "" && s.opener != nil {
		if err := s.opener.Open(p.URL); err != nil {
			s.log.Warn("opening push url failed", logx.String("url", p.URL), logx.Err(err))
		}
	}

	if s.dismisser == nil || !push.ShouldDismiss(p) {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, s.config().DismissTimeout)
	defer cancel()
	err := s.dismisser.Dismiss(cctx, p)
	s.metrics.Dismissal(err)
	if err != nil {
		s.log.Warn("dismissing push failed", logx.String("iden", p.Iden), logx.Err(err))
		s.publish("notifier.dismiss_failed", NotificationEvent{ID: id, Iden: p.Iden, Error: err.Error()})
		return
	}
	p.Dismissed = true
	if s.byID.Contains(id) {
		s.byID.Add(id, p)
	}
	s.publish("notifier.dismissed", NotificationEvent{ID: id, Iden: p.Iden})
}

func (s *Service) clickLoop(ctx context.Context, clicks <-chan uint32) error {
	if clicks == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok := <-clicks:
			if !ok {
				return nil
			}
			s.HandleClick(ctx, id)
		}
	}
}

func (s *Service) track(id uint32, p push.Normalized) {
	if id == 0 {
		return
	}
	s.byID.Add(id, p)
	if p.Iden != "" {
		s.byTag.Add(p.Iden, id)
	}
}

// Lookup returns the push shown under notification id.
func (s *Service) Lookup(id uint32) (push.Normalized, bool) { return s.byID.Get(id) }

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem, max int) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

func (s *Service) dedupAllow(key string, window time.Duration, max int) bool {
	now := s.now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	// Prune expired, then cap by evicting the earliest expiry.
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	for len(s.dedup) > max {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, t := range s.dedup {
			if !set || t.Before(minT) {
				minKey, minT, set = k, t, true
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}

func (s *Service) publish(typ string, ev NotificationEvent) {
	if s.bus == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}
