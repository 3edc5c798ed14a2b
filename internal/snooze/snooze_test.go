package snooze

import (
	"context"
	"testing"
	"time"

	"pushrelay/internal/push"
	"pushrelay/internal/storage"
	logx "pushrelay/pkg/logx"
)

func TestSnoozeForPersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	s := Load(ctx, st, nil, logx.Nop())
	if !s.Until().IsZero() || s.Active() {
		t.Fatalf("fresh signal should not be snoozed")
	}

	until, err := s.SnoozeFor(ctx, time.Hour)
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if !s.Active() || !push.IsSnoozing(time.Now(), s.Until()) {
		t.Fatalf("expected snooze to be active")
	}

	again := Load(ctx, st, nil, logx.Nop())
	if again.Until().UnixMilli() != until.UnixMilli() {
		t.Fatalf("reloaded until = %v, want %v", again.Until(), until)
	}

	if err := again.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if again.Active() {
		t.Fatalf("expected snooze to be cleared")
	}
	if _, ok, _ := st.Get(ctx, storage.KeySnoozeUntil); ok {
		t.Fatalf("clear should remove the persisted key")
	}
}

func TestExpiredSnooze(t *testing.T) {
	s := Load(context.Background(), nil, nil, logx.Nop())
	base := time.Unix(1000, 0)
	s.now = func() time.Time { return base }
	if _, err := s.SnoozeFor(context.Background(), time.Minute); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	if s.Active() {
		t.Fatalf("snooze should have expired")
	}
}

func TestRefreshPicksUpOtherWriter(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	daemon := Load(ctx, st, nil, logx.Nop())
	cli := Load(ctx, st, nil, logx.Nop())

	until, _ := cli.SnoozeFor(ctx, time.Hour)
	changed, err := daemon.Refresh(ctx)
	if err != nil || !changed {
		t.Fatalf("refresh changed=%v err=%v", changed, err)
	}
	if daemon.Until().UnixMilli() != until.UnixMilli() {
		t.Fatalf("until=%v want %v", daemon.Until(), until)
	}
	if changed, _ := daemon.Refresh(ctx); changed {
		t.Fatalf("second refresh should be a no-op")
	}

	_ = cli.Clear(ctx)
	if changed, _ := daemon.Refresh(ctx); !changed || !daemon.Until().IsZero() {
		t.Fatalf("clear not picked up")
	}
}
