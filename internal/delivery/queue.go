package delivery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/metrics"
	"pushrelay/internal/push"
	"pushrelay/internal/storage"
	logx "pushrelay/pkg/logx"
)

// Recorder receives one record per fired item. Optional.
type Recorder interface {
	AppendDelivery(ctx context.Context, r storage.DeliveryRecord) error
}

type Deps struct {
	Store    Store
	Sink     Sink
	Snooze   Snooze
	Source   Source
	Recorder Recorder
	Clock    Clock
	Bus      eventbus.Bus
	Metrics  *metrics.Metrics
	Log      logx.Logger
}

// Queue schedules pushes for display and owns the watermark.
//
// It is safe for concurrent use. Fires are serialized, so the sink sees one
// push at a time and watermark writes reach the store in order.
type Queue struct {
	cfg      Config
	store    Store
	sink     Sink
	snooze   Snooze
	source   Source
	recorder Recorder
	clock    Clock
	bus      eventbus.Bus
	metrics  *metrics.Metrics
	log      logx.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	watermark float64
	batches   map[string]*Batch
	closed    bool

	fireMu  sync.Mutex
	pending atomic.Int64
}

// New builds a queue and loads the watermark from the store. A missing
// watermark is seeded with now - DefaultLookback and persisted.
func New(ctx context.Context, cfg Config, d Deps) (*Queue, error) {
	if d.Store == nil {
		return nil, errors.New("delivery: store is required")
	}
	if d.Sink == nil {
		return nil, errors.New("delivery: sink is required")
	}
	if d.Clock == nil {
		d.Clock = RealClock{}
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.withDefaults()

	qctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q := &Queue{
		cfg:      cfg,
		store:    d.Store,
		sink:     d.Sink,
		snooze:   d.Snooze,
		source:   d.Source,
		recorder: d.Recorder,
		clock:    d.Clock,
		bus:      d.Bus,
		metrics:  d.Metrics,
		log:      d.Log.With(logx.String("comp", "delivery")),
		ctx:      qctx,
		cancel:   cancel,
		batches:  map[string]*Batch{},
	}

	wm, ok, err := storage.GetFloat(ctx, d.Store, storage.KeyLastNotification, 0)
	switch {
	case err != nil:
		q.log.Warn("reading watermark failed; using lookback", logx.Err(err))
		wm = q.seedWatermark()
	case !ok:
		wm = q.seedWatermark()
		if err := storage.SetFloat(ctx, d.Store, storage.KeyLastNotification, wm); err != nil {
			q.log.Warn("persisting initial watermark failed", logx.Err(err))
		}
	}
	q.watermark = wm
	q.metrics.SetWatermark(wm)
	q.log.Debug("watermark loaded", logx.Float64("watermark", wm))
	return q, nil
}

func (q *Queue) seedWatermark() float64 {
	return float64(q.clock.Now().Add(-q.cfg.DefaultLookback).Unix())
}

// Watermark returns the in-memory watermark in unix seconds.
func (q *Queue) Watermark() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.watermark
}

// Pending returns the number of scheduled items that have not fired.
func (q *Queue) Pending() int { return int(q.pending.Load()) }

// Config returns the effective configuration.
func (q *Queue) Config() Config { return q.cfg }

// EnqueueOne normalizes raw and schedules it as a filtered singleton batch.
func (q *Queue) EnqueueOne(ctx context.Context, raw push.Raw, done func(n int)) *Batch {
	p := push.Normalize(raw, q.reference(ctx), q.clock.Now())
	return q.EnqueueBatch([]push.Normalized{p}, true, done)
}

// EnqueueRecent schedules the most recent visible pushes known to the
// source, oldest first. limit <= 0 uses Config.RecentLimit; a limit larger
// than the list takes the whole list. The batch is not filtered against the
// watermark.
func (q *Queue) EnqueueRecent(ctx context.Context, limit int, done func(n int)) (*Batch, error) {
	if q.source == nil {
		return nil, ErrNoSource
	}
	all, err := q.source.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pushes: %w", err)
	}
	ref := q.reference(ctx)
	now := q.clock.Now()

	list := make([]push.Normalized, 0, len(all))
	// Iterate in iden order so equal created values keep a stable order.
	for _, iden := range slices.Sorted(maps.Keys(all)) {
		p := push.Normalize(all[iden], ref, now)
		if push.ShouldShow(p) {
			list = append(list, p)
		}
	}
	slices.SortStableFunc(list, func(a, b push.Normalized) int { return cmp.Compare(a.Created, b.Created) })

	if limit <= 0 {
		limit = q.cfg.RecentLimit
	}
	return q.EnqueueBatch(lastN(list, limit), false, done), nil
}

func lastN(list []push.Normalized, n int) []push.Normalized {
	if n >= len(list) {
		return list
	}
	return list[len(list)-n:]
}

// EnqueueBatch schedules pushes in the given order, item i at
// Interval*(i+1). With filter set, pushes created at or before the current
// watermark are dropped first. done is called once with the number of items
// that fired, immediately with 0 if nothing was scheduled.
func (q *Queue) EnqueueBatch(pushes []push.Normalized, filter bool, done func(n int)) *Batch {
	q.mu.Lock()
	mark := q.watermark
	closed := q.closed
	q.mu.Unlock()

	id := uuid.NewString()
	var items []Item
	if !closed {
		items = q.plan(id, pushes, filter, mark)
	}
	b := newBatch(q, id, items, mark, done)
	if len(items) == 0 {
		if closed {
			q.log.Debug("enqueue after close ignored", logx.String("batch", id), logx.Int("pushes", len(pushes)))
		}
		b.finishEmpty()
		return b
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		b.finishEmpty()
		return b
	}
	q.batches[id] = b
	q.mu.Unlock()

	q.addPending(len(items))
	q.log.Debug("batch scheduled",
		logx.String("batch", id),
		logx.Int("items", len(items)),
		logx.Bool("filter", filter),
		logx.Float64("watermark", mark),
	)

	// Hold the batch lock while arming so an early fire waits for its timer.
	b.mu.Lock()
	for i, it := range items {
		b.timers[i] = q.clock.AfterFunc(it.Delay, func() { q.fire(b, i) })
	}
	b.mu.Unlock()
	return b
}

func (q *Queue) plan(batch string, pushes []push.Normalized, filter bool, mark float64) []Item {
	items := make([]Item, 0, len(pushes))
	for _, p := range pushes {
		if filter && p.Created <= mark {
			q.record(batch, p, OutcomeFiltered, "already notified", nil)
			continue
		}
		items = append(items, Item{Push: p, Delay: q.cfg.Interval * time.Duration(len(items)+1)})
	}
	return items
}

func (q *Queue) fire(b *Batch, i int) {
	if !b.claim(i) {
		return
	}
	q.addPending(-1)

	q.fireMu.Lock()
	q.show(b, b.items[i].Push)
	q.fireMu.Unlock()

	if n, last := b.settle(); last {
		b.complete(n)
	}
}

func (q *Queue) show(b *Batch, p push.Normalized) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("delivery panic recovered",
				logx.String("iden", p.Iden),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			q.record(b.ID, p, OutcomeFailed, "", fmt.Errorf("panic: %v", r))
		}
	}()

	if q.snooze != nil && push.IsSnoozing(q.clock.Now(), q.snooze.Until()) {
		q.record(b.ID, p, OutcomeSnoozed, "", nil)
		return
	}
	if reason := push.Reason(p); reason != "" {
		q.record(b.ID, p, OutcomeSuppressed, reason, nil)
		return
	}
	if err := q.sink.Present(q.ctx, p); err != nil {
		if errors.Is(err, ErrSkipped) {
			q.record(b.ID, p, OutcomeSuppressed, err.Error(), nil)
			return
		}
		q.record(b.ID, p, OutcomeFailed, "", err)
		return
	}
	if p.Created > b.mark {
		q.advance(p.Modified)
	}
	q.record(b.ID, p, OutcomeDisplayed, "", nil)
}

// advance moves the watermark forward and writes it through. A failed write
// is logged; the in-memory value still moves.
func (q *Queue) advance(to float64) {
	q.mu.Lock()
	if to <= q.watermark {
		q.mu.Unlock()
		return
	}
	q.watermark = to
	q.mu.Unlock()

	q.metrics.SetWatermark(to)
	if err := storage.SetFloat(context.WithoutCancel(q.ctx), q.store, storage.KeyLastNotification, to); err != nil {
		q.log.Warn("persisting watermark failed", logx.Float64("watermark", to), logx.Err(err))
	}
}

func (q *Queue) record(batch string, p push.Normalized, outcome, reason string, err error) {
	now := q.clock.Now()
	ev := DeliveryEvent{
		Batch:     batch,
		Iden:      p.Iden,
		Type:      string(p.Type),
		Created:   p.Created,
		Modified:  p.Modified,
		Outcome:   outcome,
		Reason:    reason,
		Watermark: q.Watermark(),
		At:        now,
	}
	if err != nil {
		ev.Error = err.Error()
	}

	q.metrics.Delivery(outcome)
	if q.bus != nil {
		q.bus.Publish(eventbus.Event{Type: "delivery." + outcome, Time: now, Data: ev})
	}

	fields := []logx.Field{
		logx.String("batch", batch),
		logx.String("iden", p.Iden),
		logx.String("type", string(p.Type)),
		logx.String("outcome", outcome),
	}
	switch {
	case err != nil:
		q.log.Warn("push not displayed", append(fields, logx.Err(err))...)
	case outcome == OutcomeDisplayed:
		q.log.Info("push displayed", append(fields, logx.String("title", p.Title))...)
	default:
		q.log.Debug("push skipped", append(fields, logx.String("reason", reason))...)
	}

	if q.recorder == nil || outcome == OutcomeFiltered {
		return
	}
	rec := storage.DeliveryRecord{
		At:       now,
		Iden:     p.Iden,
		Type:     string(p.Type),
		Title:    p.Title,
		Created:  p.Created,
		Modified: p.Modified,
		Outcome:  outcome,
		Error:    ev.Error,
	}
	if rerr := q.recorder.AppendDelivery(context.WithoutCancel(q.ctx), rec); rerr != nil {
		q.log.Debug("recording delivery failed", logx.Err(rerr))
	}
}

func (q *Queue) reference(ctx context.Context) push.ReferenceData {
	if q.source == nil {
		return push.ReferenceData{}
	}
	ref, err := q.source.ReferenceData(ctx)
	if err != nil {
		q.log.Debug("reference data unavailable", logx.Err(err))
		return push.ReferenceData{}
	}
	return ref
}

func (q *Queue) addPending(n int) {
	v := q.pending.Add(int64(n))
	q.metrics.SetPending(int(v))
}

func (q *Queue) forget(b *Batch) {
	q.mu.Lock()
	delete(q.batches, b.ID)
	q.mu.Unlock()
}

// Close stops every pending timer. Canceled batches still report how many
// of their items fired. Later enqueues complete immediately with 0.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	open := make([]*Batch, 0, len(q.batches))
	for _, b := range q.batches {
		open = append(open, b)
	}
	q.mu.Unlock()

	for _, b := range open {
		b.Cancel()
	}
	q.cancel()
}
