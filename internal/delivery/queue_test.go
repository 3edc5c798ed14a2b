package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/push"
	"pushrelay/internal/storage"
)

var epoch = time.Unix(1_700_000_000, 0)

type fakeSink struct {
	mu       sync.Mutex
	shown    []string
	failIden map[string]error
	panicOn  string
}

func (s *fakeSink) Present(ctx context.Context, p push.Normalized) error {
	if p.Iden == s.panicOn && p.Iden != "" {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failIden[p.Iden]; err != nil {
		return err
	}
	s.shown = append(s.shown, p.Iden)
	return nil
}

func (s *fakeSink) Shown() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.shown...)
}

type fixedSnooze struct{ until time.Time }

func (s fixedSnooze) Until() time.Time { return s.until }

type mapSource struct {
	pushes map[string]push.Raw
	ref    push.ReferenceData
	err    error
}

func (s *mapSource) All(ctx context.Context) (map[string]push.Raw, error) { return s.pushes, s.err }
func (s *mapSource) ReferenceData(ctx context.Context) (push.ReferenceData, error) {
	return s.ref, nil
}

// recordingStore remembers every persisted watermark.
type recordingStore struct {
	*storage.Memory
	mu     sync.Mutex
	writes []float64
}

func (s *recordingStore) Set(ctx context.Context, key, value string) error {
	if key == storage.KeyLastNotification {
		v, _ := strconv.ParseFloat(value, 64)
		s.mu.Lock()
		s.writes = append(s.writes, v)
		s.mu.Unlock()
	}
	return s.Memory.Set(ctx, key, value)
}

type harness struct {
	q     *Queue
	clock *fakeClock
	sink  *fakeSink
	store *recordingStore
}

func newHarness(t *testing.T, watermark float64, d Deps) *harness {
	t.Helper()
	h := &harness{
		clock: newFakeClock(epoch),
		sink:  &fakeSink{failIden: map[string]error{}},
		store: &recordingStore{Memory: storage.NewMemory()},
	}
	if watermark > 0 {
		if err := h.store.Memory.Set(context.Background(), storage.KeyLastNotification, strconv.FormatFloat(watermark, 'f', -1, 64)); err != nil {
			t.Fatalf("seed watermark: %v", err)
		}
	}
	if d.Store == nil {
		d.Store = h.store
	}
	if d.Sink == nil {
		d.Sink = h.sink
	}
	d.Clock = h.clock
	q, err := New(context.Background(), Config{}, d)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(q.Close)
	h.q = q
	return h
}

func note(iden string, created float64) push.Normalized {
	return push.Normalized{
		Type:     push.TypeNote,
		Iden:     iden,
		Title:    "title " + iden,
		Created:  created,
		Modified: created + 1,
		Active:   true,
	}
}

func rawNote(iden string, created float64) push.Raw {
	return push.Raw{
		Iden:     iden,
		Type:     push.TypeNote,
		Title:    "title " + iden,
		Created:  created,
		Modified: created + 1,
		Active:   true,
	}
}

type doneRecorder struct {
	mu    sync.Mutex
	calls []int
}

func (d *doneRecorder) fn(n int) {
	d.mu.Lock()
	d.calls = append(d.calls, n)
	d.mu.Unlock()
}

func (d *doneRecorder) get() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.calls...)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewSeedsWatermarkWhenMissing(t *testing.T) {
	h := newHarness(t, 0, Deps{})
	want := float64(epoch.Add(-24 * time.Hour).Unix())
	if got := h.q.Watermark(); got != want {
		t.Fatalf("watermark = %v, want %v", got, want)
	}
	v, ok, _ := storage.GetFloat(context.Background(), h.store, storage.KeyLastNotification, 0)
	if !ok || v != want {
		t.Fatalf("seeded watermark not persisted: %v ok=%v", v, ok)
	}
}

func TestNewLoadsStoredWatermark(t *testing.T) {
	h := newHarness(t, 123.5, Deps{})
	if got := h.q.Watermark(); got != 123.5 {
		t.Fatalf("watermark = %v, want 123.5", got)
	}
	if len(h.store.writes) != 0 {
		t.Fatalf("stored watermark should not be rewritten on load")
	}
}

func TestNewRequiresStoreAndSink(t *testing.T) {
	if _, err := New(context.Background(), Config{}, Deps{Sink: &fakeSink{}}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New(context.Background(), Config{}, Deps{Store: storage.NewMemory()}); err == nil {
		t.Fatalf("expected error without sink")
	}
}

func TestFilterDropsAlreadyNotified(t *testing.T) {
	h := newHarness(t, 100, Deps{})
	var done doneRecorder

	b := h.q.EnqueueBatch([]push.Normalized{note("a", 50), note("b", 100), note("c", 150)}, true, done.fn)
	if b.Len() != 1 {
		t.Fatalf("batch len = %d, want 1", b.Len())
	}
	h.clock.Advance(10 * time.Second)

	if got := h.sink.Shown(); !equalStrings(got, []string{"c"}) {
		t.Fatalf("shown = %v, want [c]", got)
	}
	if got := done.get(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("done calls = %v, want [1]", got)
	}
}

func TestBatchKeepsInputOrderAndSpacing(t *testing.T) {
	h := newHarness(t, 1, Deps{})
	b := h.q.EnqueueBatch([]push.Normalized{note("ten", 10), note("five", 5), note("twenty", 20)}, false, nil)

	items := b.Items()
	for i, it := range items {
		if want := time.Duration(i+1) * 2 * time.Second; it.Delay != want {
			t.Fatalf("item %d delay = %v, want %v", i, it.Delay, want)
		}
	}
	if h.q.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", h.q.Pending())
	}

	h.clock.Advance(2*time.Second - time.Millisecond)
	if len(h.sink.Shown()) != 0 {
		t.Fatalf("nothing should display before the first interval")
	}
	h.clock.Advance(time.Millisecond)
	if got := h.sink.Shown(); !equalStrings(got, []string{"ten"}) {
		t.Fatalf("after 2s shown = %v", got)
	}
	h.clock.Advance(4 * time.Second)
	if got := h.sink.Shown(); !equalStrings(got, []string{"ten", "five", "twenty"}) {
		t.Fatalf("shown = %v, want input order", got)
	}
	if h.q.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", h.q.Pending())
	}
	select {
	case <-b.Done():
	default:
		t.Fatalf("batch should be done")
	}
}

func TestEnqueueRecentSortsAscending(t *testing.T) {
	src := &mapSource{pushes: map[string]push.Raw{
		"ten":    rawNote("ten", 10),
		"five":   rawNote("five", 5),
		"twenty": rawNote("twenty", 20),
	}}
	h := newHarness(t, 1, Deps{Source: src})

	b, err := h.q.EnqueueRecent(context.Background(), 10, nil)
	if err != nil {
		t.Fatalf("enqueue recent: %v", err)
	}
	if b.Len() != 3 {
		t.Fatalf("limit above list length should keep the whole list, got %d", b.Len())
	}
	h.clock.Advance(time.Minute)
	if got := h.sink.Shown(); !equalStrings(got, []string{"five", "ten", "twenty"}) {
		t.Fatalf("shown = %v, want ascending created", got)
	}
}

func TestEnqueueRecentScenario(t *testing.T) {
	src := &mapSource{pushes: map[string]push.Raw{
		"p50":  rawNote("p50", 50),
		"p150": rawNote("p150", 150),
		"p200": rawNote("p200", 200),
	}}
	h := newHarness(t, 100, Deps{Source: src})
	var done doneRecorder

	b, err := h.q.EnqueueRecent(context.Background(), 2, done.fn)
	if err != nil {
		t.Fatalf("enqueue recent: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("batch len = %d, want 2", b.Len())
	}

	h.clock.Advance(2 * time.Second)
	if got := h.sink.Shown(); !equalStrings(got, []string{"p150"}) {
		t.Fatalf("shown = %v", got)
	}
	if wm := h.q.Watermark(); wm != 151 {
		t.Fatalf("watermark after first = %v, want 151", wm)
	}

	h.clock.Advance(2 * time.Second)
	if got := h.sink.Shown(); !equalStrings(got, []string{"p150", "p200"}) {
		t.Fatalf("shown = %v", got)
	}
	if wm := h.q.Watermark(); wm != 201 {
		t.Fatalf("watermark = %v, want 201", wm)
	}
	if v, _, _ := storage.GetFloat(context.Background(), h.store, storage.KeyLastNotification, 0); v != 201 {
		t.Fatalf("persisted watermark = %v, want 201", v)
	}
	if got := done.get(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("done = %v, want [2]", got)
	}
}

func TestEnqueueRecentDefaultLimitAndVisibility(t *testing.T) {
	pushes := map[string]push.Raw{}
	for i := 1; i <= 8; i++ {
		iden := "n" + strconv.Itoa(i)
		pushes[iden] = rawNote(iden, float64(i*10))
	}
	inactive := rawNote("gone", 1000)
	inactive.Active = false
	pushes["gone"] = inactive

	h := newHarness(t, 1, Deps{Source: &mapSource{pushes: pushes}})
	b, err := h.q.EnqueueRecent(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("enqueue recent: %v", err)
	}
	if b.Len() != 5 {
		t.Fatalf("default limit should be 5, got %d", b.Len())
	}
	h.clock.Advance(time.Minute)
	if got := h.sink.Shown(); !equalStrings(got, []string{"n4", "n5", "n6", "n7", "n8"}) {
		t.Fatalf("shown = %v", got)
	}
}

func TestEnqueueRecentWithoutSource(t *testing.T) {
	h := newHarness(t, 1, Deps{})
	if _, err := h.q.EnqueueRecent(context.Background(), 2, nil); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}

func TestSnoozeSuppressesDisplayAndWatermark(t *testing.T) {
	h := newHarness(t, 100, Deps{Snooze: fixedSnooze{until: epoch.Add(time.Hour)}})
	var done doneRecorder

	h.q.EnqueueBatch([]push.Normalized{note("a", 150), note("b", 160)}, true, done.fn)
	h.clock.Advance(time.Minute)

	if got := h.sink.Shown(); len(got) != 0 {
		t.Fatalf("nothing should display while snoozed, got %v", got)
	}
	if wm := h.q.Watermark(); wm != 100 {
		t.Fatalf("watermark moved while snoozed: %v", wm)
	}
	if got := done.get(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("timers should still fire while snoozed; done = %v", got)
	}
}

func TestSnoozeExpiredAllowsDisplay(t *testing.T) {
	h := newHarness(t, 100, Deps{Snooze: fixedSnooze{until: epoch.Add(time.Second)}})
	h.q.EnqueueBatch([]push.Normalized{note("a", 150)}, true, nil)
	h.clock.Advance(2 * time.Second)
	if got := h.sink.Shown(); !equalStrings(got, []string{"a"}) {
		t.Fatalf("shown = %v", got)
	}
}

func TestBlankPushIsSuppressed(t *testing.T) {
	h := newHarness(t, 100, Deps{})
	blank := note("blank", 150)
	blank.Title = ""

	h.q.EnqueueBatch([]push.Normalized{blank}, true, nil)
	h.clock.Advance(time.Minute)
	if len(h.sink.Shown()) != 0 {
		t.Fatalf("blank push reached the sink: %v", h.sink.Shown())
	}
	if wm := h.q.Watermark(); wm != 100 {
		t.Fatalf("blank push advanced watermark to %v", wm)
	}
}

func TestSuppressedAtFireTime(t *testing.T) {
	h := newHarness(t, 100, Deps{})
	dismissed := note("self", 150)
	dismissed.Direction = push.DirectionSelf
	dismissed.Dismissed = true

	h.q.EnqueueBatch([]push.Normalized{dismissed}, false, nil)
	h.clock.Advance(time.Minute)
	if len(h.sink.Shown()) != 0 {
		t.Fatalf("dismissed self push should not display")
	}
	if wm := h.q.Watermark(); wm != 100 {
		t.Fatalf("suppressed push advanced watermark to %v", wm)
	}
}

func TestEmptyBatchCompletesImmediately(t *testing.T) {
	h := newHarness(t, 100, Deps{})
	var done doneRecorder

	b := h.q.EnqueueBatch([]push.Normalized{note("old", 10)}, true, done.fn)
	if got := done.get(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("done = %v, want [0]", got)
	}
	select {
	case <-b.Done():
	default:
		t.Fatalf("empty batch should be done")
	}
	b.Cancel()
	if got := done.get(); len(got) != 1 {
		t.Fatalf("cancel after completion must not call done again: %v", got)
	}
}

func TestWatermarkMonotonic(t *testing.T) {
	h := newHarness(t, 100, Deps{})

	late := note("late", 150)
	late.Modified = 300
	early := note("early", 160)
	early.Modified = 200

	h.q.EnqueueBatch([]push.Normalized{late, early}, true, nil)
	h.q.EnqueueBatch([]push.Normalized{note("again", 170)}, true, nil)
	h.clock.Advance(time.Minute)

	if wm := h.q.Watermark(); wm != 300 {
		t.Fatalf("watermark = %v, want 300", wm)
	}
	prev := 0.0
	for _, w := range h.store.writes {
		if w < prev {
			t.Fatalf("persisted watermark decreased: %v", h.store.writes)
		}
		prev = w
	}
}

func TestDedupAgainstAdvancedWatermark(t *testing.T) {
	h := newHarness(t, 100, Deps{})
	h.q.EnqueueOne(context.Background(), rawNote("a", 150), nil)
	h.clock.Advance(time.Minute)

	var done doneRecorder
	b := h.q.EnqueueOne(context.Background(), rawNote("a", 150), done.fn)
	if b.Len() != 0 {
		t.Fatalf("re-delivered push should be filtered")
	}
	if got := h.sink.Shown(); !equalStrings(got, []string{"a"}) {
		t.Fatalf("shown = %v", got)
	}
	if got := done.get(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("done = %v", got)
	}
}

func TestBadItemsDoNotAbortBatch(t *testing.T) {
	h := newHarness(t, 100, Deps{})
	h.sink.panicOn = "boom"
	h.sink.failIden["fail"] = errors.New("display failed")
	var done doneRecorder

	h.q.EnqueueBatch([]push.Normalized{note("boom", 150), note("fail", 160), note("ok", 170)}, true, done.fn)
	h.clock.Advance(time.Minute)

	if got := h.sink.Shown(); !equalStrings(got, []string{"ok"}) {
		t.Fatalf("shown = %v", got)
	}
	if got := done.get(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("done = %v, want [3]", got)
	}
	if wm := h.q.Watermark(); wm != 171 {
		t.Fatalf("watermark = %v, want 171", wm)
	}
}

func TestPersistFailureKeepsMemoryWatermark(t *testing.T) {
	mem := storage.NewMemory()
	_ = storage.SetFloat(context.Background(), mem, storage.KeyLastNotification, 100)
	mem.FailSet = errors.New("disk full")

	h := newHarness(t, 0, Deps{Store: mem})
	h.q.EnqueueBatch([]push.Normalized{note("a", 150)}, true, nil)
	h.clock.Advance(time.Minute)

	if wm := h.q.Watermark(); wm != 151 {
		t.Fatalf("in-memory watermark = %v, want 151", wm)
	}
	if v, _, _ := storage.GetFloat(context.Background(), mem, storage.KeyLastNotification, 0); v != 100 {
		t.Fatalf("store should still hold 100, got %v", v)
	}
}

func TestCloseStopsPendingTimers(t *testing.T) {
	h := newHarness(t, 100, Deps{})
	var done doneRecorder

	b := h.q.EnqueueBatch([]push.Normalized{note("a", 150), note("b", 160), note("c", 170)}, true, done.fn)
	h.clock.Advance(2 * time.Second)
	h.q.Close()

	if got := done.get(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("done = %v, want [1]", got)
	}
	if b.Fired() != 1 || h.q.Pending() != 0 {
		t.Fatalf("fired = %d pending = %d", b.Fired(), h.q.Pending())
	}
	h.clock.Advance(time.Minute)
	if got := h.sink.Shown(); !equalStrings(got, []string{"a"}) {
		t.Fatalf("timers fired after close: %v", got)
	}

	var late doneRecorder
	h.q.EnqueueBatch([]push.Normalized{note("d", 500)}, true, late.fn)
	if got := late.get(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("enqueue after close: done = %v", got)
	}
}

func TestEventsAndRecords(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	rec := storage.NewMemory()

	h := newHarness(t, 100, Deps{Bus: bus, Recorder: rec})
	h.q.EnqueueBatch([]push.Normalized{note("old", 50), note("new", 150)}, true, nil)
	h.clock.Advance(time.Minute)

	var types []string
	for len(types) < 2 {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for events, got %v", types)
		}
	}
	if !equalStrings(types, []string{"delivery.filtered", "delivery.displayed"}) {
		t.Fatalf("events = %v", types)
	}

	recs, _ := rec.RecentDeliveries(context.Background(), 10)
	if len(recs) != 1 || recs[0].Iden != "new" || recs[0].Outcome != OutcomeDisplayed {
		t.Fatalf("records = %+v", recs)
	}
}

func TestSinkSkipIsNotDisplayed(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	h := newHarness(t, 100, Deps{Bus: bus})
	h.sink.failIden["dup"] = fmt.Errorf("same tag recently shown: %w", ErrSkipped)
	h.q.EnqueueBatch([]push.Normalized{note("dup", 150)}, true, nil)
	h.clock.Advance(time.Minute)

	select {
	case ev := <-ch:
		if ev.Type != "delivery."+OutcomeSuppressed {
			t.Fatalf("event = %s, want delivery.suppressed", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("no delivery event")
	}
	if wm := h.q.Watermark(); wm != 100 {
		t.Fatalf("skipped push advanced watermark to %v", wm)
	}
}
