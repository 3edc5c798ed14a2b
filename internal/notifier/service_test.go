package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pushrelay/internal/delivery"
	"pushrelay/internal/eventbus"
	"pushrelay/internal/push"
	"pushrelay/internal/storage"
	logx "pushrelay/pkg/logx"
)

type fakeSound struct {
	mu    sync.Mutex
	plays []string
	vols  []float64
}

func (f *fakeSound) PlayAsync(file string, volume float64, cb func(error)) {
	f.mu.Lock()
	f.plays = append(f.plays, file)
	f.vols = append(f.vols, volume)
	f.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
}

func (f *fakeSound) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plays)
}

type fakeOpener struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeOpener) Open(url string) error {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	return nil
}

func (f *fakeOpener) get() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type fakeDismisser struct {
	mu    sync.Mutex
	idens []string
	err   error
}

func (f *fakeDismisser) Dismiss(ctx context.Context, p push.Normalized) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idens = append(f.idens, p.Iden)
	return f.err
}

func (f *fakeDismisser) get() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.idens...)
}

func linkPush(iden string, dir push.Direction) push.Normalized {
	return push.Normalized{
		Type:      push.TypeLink,
		Iden:      iden,
		Title:     "Docs",
		Body:      "read me",
		URL:       "https://example.com/" + iden,
		Active:    true,
		Direction: dir,
	}
}

type fixture struct {
	svc       *Service
	presenter *LogPresenter
	sound     *fakeSound
	opener    *fakeOpener
	dismisser *fakeDismisser
	settings  *storage.Memory
	bus       eventbus.Bus
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		presenter: NewLogPresenter(logx.Nop()),
		sound:     &fakeSound{},
		opener:    &fakeOpener{},
		dismisser: &fakeDismisser{},
		settings:  storage.NewMemory(),
		bus:       eventbus.New(),
	}
	f.svc = New(cfg, Deps{
		Presenter: f.presenter,
		Sound:     f.sound,
		Opener:    f.opener,
		Dismisser: f.dismisser,
		Settings:  f.settings,
		Bus:       f.bus,
	})
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPresentShowsAndTracks(t *testing.T) {
	f := newFixture(t, Config{SoundEnabled: true})
	p := linkPush("a1", push.DirectionSelf)
	p.Icon = "dialog-information"

	if err := f.svc.Present(context.Background(), p); err != nil {
		t.Fatalf("present: %v", err)
	}
	shown := f.presenter.Shown()
	if len(shown) != 1 || shown[0].Title != "Docs" || shown[0].Tag != "a1" || shown[0].Icon != "dialog-information" {
		t.Fatalf("shown = %+v", shown)
	}
	if f.sound.count() != 1 {
		t.Fatalf("sound should play once, got %d", f.sound.count())
	}
	if h := f.svc.Snapshot(); len(h) != 1 || h[0].Iden != "a1" {
		t.Fatalf("history = %+v", h)
	}
	if _, ok := f.svc.Lookup(1); !ok {
		t.Fatalf("notification 1 should be tracked")
	}
}

func TestPresentReplacesSameTag(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_ = f.svc.Present(ctx, linkPush("a1", push.DirectionSelf))
	_ = f.svc.Present(ctx, linkPush("b2", push.DirectionSelf))
	_ = f.svc.Present(ctx, linkPush("a1", push.DirectionSelf))

	shown := f.presenter.Shown()
	if len(shown) != 3 {
		t.Fatalf("shown %d", len(shown))
	}
	if shown[2].ReplacesID != 1 {
		t.Fatalf("repeat tag should replace notification 1, got %d", shown[2].ReplacesID)
	}
}

func TestSoundSettingsFromStore(t *testing.T) {
	f := newFixture(t, Config{SoundEnabled: true, SoundFile: "default.ogg"})
	ctx := context.Background()

	_ = storage.SetBool(ctx, f.settings, storage.KeySoundEnabled, false)
	_ = f.svc.Present(ctx, linkPush("a", push.DirectionSelf))
	if f.sound.count() != 0 {
		t.Fatalf("sound disabled in store should not play")
	}

	_ = storage.SetBool(ctx, f.settings, storage.KeySoundEnabled, true)
	_ = f.settings.Set(ctx, storage.KeySoundFile, "/tmp/custom.ogg")
	_ = storage.SetFloat(ctx, f.settings, storage.KeySoundVolume, 0.8)
	_ = f.svc.Present(ctx, linkPush("b", push.DirectionSelf))

	f.sound.mu.Lock()
	defer f.sound.mu.Unlock()
	if len(f.sound.plays) != 1 || f.sound.plays[0] != "/tmp/custom.ogg" || f.sound.vols[0] != 0.8 {
		t.Fatalf("plays = %v vols = %v", f.sound.plays, f.sound.vols)
	}
}

func TestZeroVolumeMutes(t *testing.T) {
	f := newFixture(t, Config{SoundEnabled: true, SoundFile: "ding.ogg", SoundVolume: 0})
	if err := f.svc.Present(context.Background(), linkPush("a", push.DirectionSelf)); err != nil {
		t.Fatalf("present: %v", err)
	}
	f.sound.mu.Lock()
	defer f.sound.mu.Unlock()
	if len(f.sound.vols) != 1 || f.sound.vols[0] != 0 {
		t.Fatalf("vols = %v, want [0]", f.sound.vols)
	}
}

func TestDedupWindow(t *testing.T) {
	f := newFixture(t, Config{DedupWindow: time.Minute})
	now := time.Unix(1000, 0)
	f.svc.now = func() time.Time { return now }
	ctx := context.Background()

	if err := f.svc.Present(ctx, linkPush("a", push.DirectionSelf)); err != nil {
		t.Fatalf("first present: %v", err)
	}
	if err := f.svc.Present(ctx, linkPush("a", push.DirectionSelf)); !errors.Is(err, ErrDeduped) || !errors.Is(err, delivery.ErrSkipped) {
		t.Fatalf("repeat inside window: err = %v, want ErrDeduped", err)
	}
	if n := len(f.presenter.Shown()); n != 1 {
		t.Fatalf("repeat inside window should be skipped, shown %d", n)
	}
	now = now.Add(2 * time.Minute)
	_ = f.svc.Present(ctx, linkPush("a", push.DirectionSelf))
	if n := len(f.presenter.Shown()); n != 2 {
		t.Fatalf("repeat after window should show, shown %d", n)
	}
}

func TestClickOpensAndDismisses(t *testing.T) {
	f := newFixture(t, Config{})
	ch, unsub := f.bus.Subscribe(32)
	defer unsub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.Start(ctx)
	defer f.svc.Stop(context.Background())

	_ = f.svc.Present(ctx, linkPush("self1", push.DirectionSelf))
	if !f.presenter.Click(1) {
		t.Fatalf("click not delivered")
	}
	waitFor(t, "dismiss", func() bool { return len(f.dismisser.get()) == 1 })

	if got := f.opener.get(); len(got) != 1 || got[0] != "https://example.com/self1" {
		t.Fatalf("opened = %v", got)
	}
	if p, _ := f.svc.Lookup(1); !p.Dismissed {
		t.Fatalf("tracked push should be marked dismissed")
	}

	seen := map[string]bool{}
	waitFor(t, "dismissed event", func() bool {
		for {
			select {
			case ev := <-ch:
				seen[ev.Type] = true
			default:
				return seen["notifier.dismissed"]
			}
		}
	})
	if !seen["notifier.clicked"] || !seen["notifier.shown"] {
		t.Fatalf("events = %v", seen)
	}
}

func TestClickSkipsDismissWhenNotEligible(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	targeted := linkPush("t1", push.DirectionSelf)
	targeted.TargetDeviceIden = "phone"
	outgoing := linkPush("o1", push.DirectionOutgoing)
	outgoing.URL = ""
	_ = f.svc.Present(ctx, targeted)
	_ = f.svc.Present(ctx, outgoing)

	f.svc.HandleClick(ctx, 1)
	f.svc.HandleClick(ctx, 2)
	f.svc.HandleClick(ctx, 99)

	if got := f.dismisser.get(); len(got) != 0 {
		t.Fatalf("nothing should be dismissed, got %v", got)
	}
	if got := f.opener.get(); len(got) != 1 || got[0] != "https://example.com/t1" {
		t.Fatalf("opened = %v", got)
	}
}

func TestDismissFailureIsContained(t *testing.T) {
	f := newFixture(t, Config{})
	f.dismisser.err = errors.New("offline")
	ctx := context.Background()
	_ = f.svc.Present(ctx, linkPush("in1", push.DirectionIncoming))
	f.svc.HandleClick(ctx, 1)
	if p, _ := f.svc.Lookup(1); p.Dismissed {
		t.Fatalf("failed dismiss must not mark the push dismissed")
	}
}

func TestPresentAfterPresenterClosed(t *testing.T) {
	f := newFixture(t, Config{})
	_ = f.svc.Stop(context.Background())
	if err := f.svc.Present(context.Background(), linkPush("x", push.DirectionSelf)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
