package notifier

import (
	"context"
	"sync"
	"sync/atomic"

	logx "pushrelay/pkg/logx"
)

// LogPresenter writes notifications to the log. Click injects a click, which
// is how tests and the debug endpoint exercise click handling.
type LogPresenter struct {
	log    logx.Logger
	seq    atomic.Uint32
	clicks chan uint32

	mu     sync.Mutex
	closed bool
	shown  []Notification
}

func NewLogPresenter(log logx.Logger) *LogPresenter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogPresenter{log: log.With(logx.String("presenter", "log")), clicks: make(chan uint32, 16)}
}

func (p *LogPresenter) Name() string { return "log" }

func (p *LogPresenter) Show(ctx context.Context, n Notification) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	p.shown = append(p.shown, n)
	p.mu.Unlock()

	id := n.ReplacesID
	if id == 0 {
		id = p.seq.Add(1)
	}
	p.log.Info("notification",
		logx.Int64("id", int64(id)),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
		logx.String("tag", n.Tag),
	)
	return id, nil
}

// Shown returns every notification shown so far.
func (p *LogPresenter) Shown() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.shown...)
}

// Click reports a click on id. It drops the click if nobody is listening.
func (p *LogPresenter) Click(id uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.clicks <- id:
		return true
	default:
		return false
	}
}

func (p *LogPresenter) Clicks() <-chan uint32 { return p.clicks }

func (p *LogPresenter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.clicks)
	}
	return nil
}
