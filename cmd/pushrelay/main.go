package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"pushrelay/internal/app"
	"pushrelay/internal/config"
	"pushrelay/internal/credential"
	"pushrelay/internal/eventbus"
	"pushrelay/internal/snooze"
	"pushrelay/internal/source"
	logx "pushrelay/pkg/logx"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Println("warning: .env:", err)
	}

	defCfg := os.Getenv("PUSHRELAY_CONFIG")
	if defCfg == "" {
		defCfg = "./pushrelay.yaml"
	}

	var (
		cfgPath     string
		streamPath  string
		snoozeFor   time.Duration
		clearSnooze bool
		setToken    string
	)
	flag.StringVar(&cfgPath, "config", defCfg, "path to config (json or yaml)")
	flag.StringVar(&streamPath, "stream", "", "read NDJSON push events from this file (- for stdin); overrides source.stream")
	flag.DurationVar(&snoozeFor, "snooze", 0, "snooze notifications for this long and exit")
	flag.BoolVar(&clearSnooze, "clear-snooze", false, "clear any active snooze and exit")
	flag.StringVar(&setToken, "set-token", "", "store the API access token in the keyring and exit")
	flag.Parse()

	switch {
	case setToken != "":
		exit(storeToken(cfgPath, setToken))
	case snoozeFor > 0 || clearSnooze:
		exit(updateSnooze(cfgPath, snoozeFor, clearSnooze))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath, app.Options{Token: os.Getenv("PUSHRELAY_TOKEN")})
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	if _, err := a.Replay(ctx); err != nil {
		fmt.Println("replay:", err)
	}

	reason := app.StopSignal
	streamDone := make(chan error, 1)
	if streamPath == "" {
		streamPath = strings.TrimSpace(a.Config().Source.Stream)
	}
	if streamPath != "" {
		r, err := source.OpenReader(streamPath)
		if err != nil {
			fmt.Println("fatal stream:", err)
			_ = a.Stop(context.Background(), app.StopFatalError)
			os.Exit(1)
		}
		go func() {
			defer r.Close()
			streamDone <- a.RunStream(ctx, r)
		}()
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	case err := <-streamDone:
		reason = app.StopStreamEOF
		if err != nil {
			fmt.Println("stream:", err)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func exit(err error) {
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func loadConfig(path string) *config.Config {
	cfg, err := config.NewConfigManager(path).Load()
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	return cfg
}

func storeToken(cfgPath, token string) error {
	cfg := loadConfig(cfgPath)
	creds, err := credential.Open(credential.Config{
		FileDir:      cfg.Keyring.FileDir,
		FilePassword: cfg.Keyring.FilePassword,
	})
	if err != nil {
		return err
	}
	if err := creds.Set(credential.KeyAccessToken, strings.TrimSpace(token)); err != nil {
		return err
	}
	fmt.Println("token stored")
	return nil
}

// updateSnooze writes the snooze deadline to the store. A running relay
// picks it up on its next refresh when the store is shared (sqlite).
func updateSnooze(cfgPath string, d time.Duration, clear bool) error {
	cfg := loadConfig(cfgPath)
	_, log := logx.New(logx.Config{Level: "warn", Console: true})
	st, persistent, err := app.OpenStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	if !persistent {
		return errors.New("snooze needs a persistent storage driver")
	}

	ctx := context.Background()
	sig := snooze.Load(ctx, st, eventbus.New(), log)
	if clear {
		if err := sig.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("snooze cleared")
		return nil
	}
	until, err := sig.SnoozeFor(ctx, d)
	if err != nil {
		return err
	}
	fmt.Printf("snoozed until %s (%s)\n", until.Format(time.Kitchen), humanize.Time(until))
	return nil
}
