// Package app wires the relay together: config, storage, the push source,
// the delivery queue, the desktop notifier and the maintenance scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"pushrelay/internal/browser"
	"pushrelay/internal/config"
	"pushrelay/internal/credential"
	"pushrelay/internal/delivery"
	"pushrelay/internal/eventbus"
	"pushrelay/internal/metrics"
	"pushrelay/internal/notifier"
	"pushrelay/internal/observability/debugsrv"
	"pushrelay/internal/push"
	"pushrelay/internal/pushapi"
	rtsup "pushrelay/internal/runtime/supervisor"
	"pushrelay/internal/snooze"
	"pushrelay/internal/sound"
	"pushrelay/internal/source"
	"pushrelay/internal/storage"
	"pushrelay/internal/task/scheduler"
	logx "pushrelay/pkg/logx"
)

// Options overrides dependencies that are normally built from config.
type Options struct {
	// Credentials replaces the OS keyring when resolving the API token.
	Credentials *credential.Store
	// Clock drives the delivery queue.
	Clock delivery.Clock
	// Presenter replaces the configured notification backend.
	Presenter notifier.Presenter
	// Token is used when pushapi.token is not set in the config file.
	Token string
}

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     *eventbus.MemBus
	metrics *metrics.Metrics

	store      storage.Store
	persistent bool

	snooze   *snooze.Signal
	snapshot *source.Snapshot
	api      *pushapi.Client
	player   *sound.Player
	notif    *notifier.Service
	queue    *delivery.Queue
	sched    *scheduler.Service
	debug    *debugsrv.Service
	sd       *sdNotifier

	startedAt time.Time
	stopOnce  sync.Once
}

func NewApp(cfgPath string, opt Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	logs, log := logx.New(mapLogging(cfg))
	applog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()
	m := metrics.New()
	ctx := context.Background()

	store, persistent, err := OpenStore(cfg, log)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}

	snz := snooze.Load(ctx, store, bus, log)

	snap, err := source.OpenSnapshot(strings.TrimSpace(cfg.Source.Snapshot), bus, log.With(logx.String("comp", "source")))
	if err != nil {
		return fail(err)
	}

	token := resolveToken(cfg, opt, applog)
	api := pushapi.New(mapPushAPI(cfg, token), log.With(logx.String("comp", "pushapi")))

	player := sound.New(mapSound(cfg), log.With(logx.String("comp", "sound")), m)

	ncfg := mapNotifier(cfg)
	presenter := opt.Presenter
	if presenter == nil {
		icons := notifier.NewIconCache(strings.TrimSpace(cfg.Notifier.IconCacheDir), log.With(logx.String("comp", "icons")))
		presenter, err = notifier.NewPresenter(ncfg, icons, log.With(logx.String("comp", "notifier")))
		if err != nil {
			return fail(err)
		}
	}
	notif := notifier.New(ncfg, notifier.Deps{
		Presenter: presenter,
		Sound:     player,
		Opener:    browser.New(),
		Dismisser: api,
		Settings:  store,
		Bus:       bus,
		Metrics:   m,
		Log:       log.With(logx.String("comp", "notifier")),
	})

	queue, err := delivery.New(ctx, mapDelivery(cfg), delivery.Deps{
		Store:    store,
		Sink:     notif,
		Snooze:   snz,
		Source:   snap,
		Recorder: store,
		Clock:    opt.Clock,
		Bus:      bus,
		Metrics:  m,
		Log:      log,
	})
	if err != nil {
		_ = presenter.Close()
		return fail(err)
	}

	a := &App{
		cfgm:       cfgm,
		log:        applog,
		logs:       logs,
		bus:        bus,
		metrics:    m,
		store:      store,
		persistent: persistent,
		snooze:     snz,
		snapshot:   snap,
		api:        api,
		player:     player,
		notif:      notif,
		queue:      queue,
		sched:      scheduler.New(mapScheduler(cfg), log.With(logx.String("comp", "scheduler")), bus),
		sd:         newSDNotifier(log.With(logx.String("comp", "systemd"))),
	}
	a.registerJobs(cfg)
	a.debug = debugsrv.New(mapDebug(cfg), debugsrv.Sources{
		Metrics: m.Handler(),
		Status:  func() any { return a.Status() },
		History: func() any { return a.History(context.Background(), 50) },
	}, log.With(logx.String("comp", "debugsrv")))

	applog.Info("app built",
		logx.String("backend", notif.Backend()),
		logx.Bool("persistent_store", persistent),
		logx.Bool("dismiss_enabled", api.Enabled()),
		logx.Int("snapshot_pushes", snap.Len()),
		logx.Float64("watermark", queue.Watermark()),
	)
	return a, nil
}

// OpenStore opens the configured store, or an in-memory one when storage is
// not configured. persistent reports which.
func OpenStore(cfg *config.Config, log logx.Logger) (st storage.Store, persistent bool, err error) {
	sc, ok := mapStorage(cfg)
	if !ok {
		log.Warn("no storage configured; settings and watermark are kept in memory")
		return storage.NewMemory(), false, nil
	}
	st, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, false, fmt.Errorf("open storage: %w", err)
	}
	return st, sc.Driver != "memory", nil
}

func resolveToken(cfg *config.Config, opt Options, log logx.Logger) string {
	explicit := strings.TrimSpace(cfg.PushAPI.Token)
	if explicit == "" {
		explicit = strings.TrimSpace(opt.Token)
	}
	if explicit != "" {
		return explicit
	}
	creds := opt.Credentials
	if creds == nil {
		var err error
		creds, err = credential.Open(mapKeyring(cfg))
		if err != nil {
			log.Warn("keyring unavailable; push dismissal disabled", logx.Err(err))
			return ""
		}
	}
	tok, err := creds.Token("")
	switch {
	case errors.Is(err, credential.ErrNotFound):
		log.Info("no API token configured; push dismissal disabled")
		return ""
	case err != nil:
		log.Warn("reading API token failed; push dismissal disabled", logx.Err(err))
		return ""
	}
	return tok
}

// Config returns the current committed config.
func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) Bus() eventbus.Bus           { return a.bus }
func (a *App) Queue() *delivery.Queue      { return a.queue }
func (a *App) Notifier() *notifier.Service { return a.notif }
func (a *App) Snooze() *snooze.Signal      { return a.snooze }
func (a *App) Source() *source.Snapshot    { return a.snapshot }
func (a *App) Scheduler() *scheduler.Service {
	return a.sched
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateReload)

	a.notif.Start(run)
	a.sched.Start(run)
	if a.debug.Enabled() {
		a.debug.Start(run)
	}

	cfg := a.cfgm.Get()
	if a.snapshot.Path() != "" && config.BoolOr(cfg.Source.Watch, true) {
		a.sup.GoRestart("source.watch", a.snapshot.Watch,
			rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		)
	}
	if a.persistent {
		a.sup.Go0("snooze.refresh", a.refreshSnoozeLoop)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go0("systemd.watchdog", a.sd.Watchdog)
	a.sd.Ready(fmt.Sprintf("relaying; backend=%s", a.notif.Backend()))

	a.log.Info("app started")
	return nil
}

// Replay enqueues the most recent pushes unless replayOnLaunch is off.
// It returns a nil batch when replay is disabled.
func (a *App) Replay(ctx context.Context) (*delivery.Batch, error) {
	def := config.BoolOr(a.cfgm.Get().Delivery.ReplayOnLaunch, true)
	on, err := storage.GetBool(ctx, a.store, storage.KeyReplayOnLaunch, def)
	if err != nil {
		a.log.Warn("reading replayOnLaunch failed; using config", logx.Err(err))
		on = def
	}
	if !on {
		a.log.Debug("replay on launch disabled")
		return nil, nil
	}
	return a.queue.EnqueueRecent(ctx, 0, func(n int) {
		a.log.Info("launch replay finished", logx.Int("shown", n))
	})
}

// Intake records raw in the snapshot and schedules it for display.
func (a *App) Intake(ctx context.Context, raw push.Raw) {
	if !a.snapshot.Upsert(raw) {
		a.log.Debug("stale push ignored", logx.String("iden", raw.Iden))
		return
	}
	a.queue.EnqueueOne(ctx, raw, nil)
}

// RunStream feeds NDJSON push events from r into Intake until r ends or
// ctx is done.
func (a *App) RunStream(ctx context.Context, r io.Reader) error {
	s := source.NewStream(r, a.log.With(logx.String("comp", "stream")), a.metrics)
	return s.Run(ctx, a.Intake)
}

func (a *App) refreshSnoozeLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.snooze.Refresh(ctx); err != nil && ctx.Err() == nil {
				a.log.Debug("snooze refresh failed", logx.Err(err))
			}
		}
	}
}

// validateReload rejects reloads that would expose the debug server.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	return debugsrv.CheckBind(mapDebug(cfg))
}

// Stop shuts the app down; later calls are no-ops.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.stopOnce.Do(func() { a.stop(ctx, reason) })
	return nil
}

func (a *App) stop(ctx context.Context, reason StopReason) {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// Never extend the caller's deadline.
			if dl, ok := ctx.Deadline(); ok {
				max = min(max, time.Until(dl))
			}
			if max > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("debugsrv", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("delivery", time.Second, func(context.Context) error { a.queue.Close(); return nil })
	step("notifier", 2*time.Second, a.notif.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped", logx.Duration("uptime", time.Since(a.startedAt)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
