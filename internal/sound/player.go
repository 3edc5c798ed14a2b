// Package sound plays notification sounds through an external player.
package sound

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"pushrelay/internal/metrics"
	logx "pushrelay/pkg/logx"
)

var (
	ErrNoPlayer = errors.New("sound: no audio player found")
	ErrNotFound = errors.New("sound: file not found")
)

// DefaultFile is used when no sound file is configured.
const DefaultFile = "/usr/share/sounds/freedesktop/stereo/message-new-instant.oga"

// Players are tried in order; the first one on PATH wins.
var Players = []string{"paplay", "pw-play", "aplay", "afplay", "ffplay"}

type Config struct {
	// Player forces a specific binary instead of probing Players.
	Player  string
	Timeout time.Duration
}

type Player struct {
	cfg     Config
	log     logx.Logger
	metrics *metrics.Metrics

	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error

	once   sync.Once
	binary string
	name   string
}

func New(cfg Config, log logx.Logger, m *metrics.Metrics) *Player {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Player{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "sound")),
		metrics:  m,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
			if err != nil && len(out) > 0 {
				return fmt.Errorf("%w: %s", err, out)
			}
			return err
		},
	}
}

// Play blocks until file has played. volume is clamped to [0, 1].
func (p *Player) Play(ctx context.Context, file string, volume float64) error {
	err := p.play(ctx, file, volume)
	p.metrics.Sound(err)
	return err
}

func (p *Player) play(ctx context.Context, file string, volume float64) error {
	if file == "" {
		file = DefaultFile
	}
	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, file)
	}
	bin, name := p.resolve()
	if bin == "" {
		return ErrNoPlayer
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.run(ctx, bin, Args(name, file, clamp(volume))...)
}

// PlayAsync plays file in the background and reports the result to cb.
func (p *Player) PlayAsync(file string, volume float64, cb func(error)) {
	go func() {
		err := p.Play(context.Background(), file, volume)
		if err != nil {
			p.log.Warn("sound playback failed", logx.String("file", file), logx.Err(err))
		}
		if cb != nil {
			cb(err)
		}
	}()
}

func (p *Player) resolve() (bin, name string) {
	p.once.Do(func() {
		candidates := Players
		if p.cfg.Player != "" {
			candidates = []string{p.cfg.Player}
		}
		for _, c := range candidates {
			if path, err := p.lookPath(c); err == nil {
				p.binary, p.name = path, c
				p.log.Debug("audio player selected", logx.String("player", path))
				return
			}
		}
	})
	return p.binary, p.name
}

// Args returns the command line for player at volume in [0, 1].
func Args(player, file string, volume float64) []string {
	switch player {
	case "paplay":
		return []string{"--volume=" + strconv.Itoa(int(volume*65536)), file}
	case "pw-play":
		return []string{"--volume=" + strconv.FormatFloat(volume, 'f', 2, 64), file}
	case "afplay":
		return []string{"-v", strconv.FormatFloat(volume, 'f', 2, 64), file}
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-volume", strconv.Itoa(int(volume * 100)), file}
	default:
		return []string{file}
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
