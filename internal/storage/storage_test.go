package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "pushrelay/pkg/logx"
)

func openTestStore(t *testing.T, driver string) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.db")
	st, err := Open(Config{Driver: driver, Path: path, MaxHistory: 3}, logx.Nop())
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestOpenDisabled(t *testing.T) {
	for _, d := range []string{"", "none", "  NONE "} {
		if _, err := Open(Config{Driver: d}, logx.Nop()); !errors.Is(err, ErrDisabled) {
			t.Fatalf("driver %q: expected ErrDisabled, got %v", d, err)
		}
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestKVRoundTrip(t *testing.T) {
	for _, driver := range []string{"file", "sqlite", "memory"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st, _ := openTestStore(t, driver)

			if _, ok, err := st.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("missing key: ok=%v err=%v", ok, err)
			}
			if err := st.Set(ctx, KeySoundFile, "/tmp/a.ogg"); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := st.Set(ctx, KeySoundFile, "/tmp/b.ogg"); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			v, ok, err := st.Get(ctx, KeySoundFile)
			if err != nil || !ok || v != "/tmp/b.ogg" {
				t.Fatalf("get: v=%q ok=%v err=%v", v, ok, err)
			}
			if err := st.Delete(ctx, KeySoundFile); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok, _ := st.Get(ctx, KeySoundFile); ok {
				t.Fatalf("expected key to be gone after delete")
			}
			if err := st.Set(ctx, "", "x"); err == nil {
				t.Fatalf("expected error for empty key")
			}
		})
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "relay.db")
			cfg := Config{Driver: driver, Path: path}

			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			wm := time.UnixMilli(1_700_000_000_123)
			if err := SetTime(ctx, st, KeyLastNotification, wm); err != nil {
				t.Fatalf("set time: %v", err)
			}
			if err := SetBool(ctx, st, KeySoundEnabled, false); err != nil {
				t.Fatalf("set bool: %v", err)
			}
			if err := st.Compact(ctx); err != nil {
				t.Fatalf("compact: %v", err)
			}
			if err := SetFloat(ctx, st, KeySoundVolume, 0.25); err != nil {
				t.Fatalf("set float: %v", err)
			}
			_ = st.Close()

			st, err = Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st.Close()

			got, err := GetTime(ctx, st, KeyLastNotification)
			if err != nil || !got.Equal(wm) {
				t.Fatalf("watermark: got %v err=%v want %v", got, err, wm)
			}
			if on, _ := GetBool(ctx, st, KeySoundEnabled, true); on {
				t.Fatalf("expected soundEnabled=false after reopen")
			}
			if vol, ok, _ := GetFloat(ctx, st, KeySoundVolume, 0.5); !ok || vol != 0.25 {
				t.Fatalf("volume: got %v ok=%v", vol, ok)
			}
		})
	}
}

func TestDeliveriesPruned(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st, _ := openTestStore(t, driver)

			for i := 0; i < 5; i++ {
				r := DeliveryRecord{
					At:       time.Unix(int64(1000+i), 0),
					Iden:     string(rune('a' + i)),
					Type:     "note",
					Modified: float64(1000 + i),
					Outcome:  "displayed",
				}
				if err := st.AppendDelivery(ctx, r); err != nil {
					t.Fatalf("append %d: %v", i, err)
				}
			}
			last2, err := st.RecentDeliveries(ctx, 2)
			if err != nil {
				t.Fatalf("recent: %v", err)
			}
			if len(last2) != 2 || last2[0].Iden != "d" || last2[1].Iden != "e" {
				t.Fatalf("unexpected recent deliveries: %+v", last2)
			}
			if !last2[1].At.Equal(time.Unix(1004, 0)) {
				t.Fatalf("timestamp lost: %v", last2[1].At)
			}

			if err := st.Compact(ctx); err != nil {
				t.Fatalf("compact: %v", err)
			}
			all, err := st.RecentDeliveries(ctx, 100)
			if err != nil {
				t.Fatalf("recent after compact: %v", err)
			}
			if len(all) != 3 || all[0].Iden != "c" {
				t.Fatalf("expected 3 newest deliveries after compact, got %+v", all)
			}
		})
	}
}

func TestTypedHelpersDefaults(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	if v, _ := GetString(ctx, st, KeySoundFile, "default.ogg"); v != "default.ogg" {
		t.Fatalf("string default: %q", v)
	}
	_ = st.Set(ctx, KeySoundVolume, "loud")
	if v, ok, _ := GetFloat(ctx, st, KeySoundVolume, 0.5); ok || v != 0.5 {
		t.Fatalf("unparsable float should fall back: v=%v ok=%v", v, ok)
	}
	if tm, _ := GetTime(ctx, st, KeySnoozeUntil); !tm.IsZero() {
		t.Fatalf("unset time should be zero, got %v", tm)
	}
	_ = SetTime(ctx, st, KeySnoozeUntil, time.UnixMilli(5000))
	_ = SetTime(ctx, st, KeySnoozeUntil, time.Time{})
	if _, ok, _ := st.Get(ctx, KeySnoozeUntil); ok {
		t.Fatalf("zero time should delete the key")
	}
}

func TestMemoryClosed(t *testing.T) {
	st := NewMemory()
	_ = st.Close()
	if err := st.Set(context.Background(), "k", "v"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
