package delivery

import (
	"runtime/debug"
	"sync"

	logx "pushrelay/pkg/logx"
)

type itemState uint8

const (
	itemPending itemState = iota
	itemFiring
	itemCanceled
)

// Batch tracks the items scheduled by one Enqueue call.
type Batch struct {
	ID string

	q      *Queue
	items  []Item
	mark   float64
	done   func(n int)
	doneCh chan struct{}

	mu       sync.Mutex
	timers   []Timer
	state    []itemState
	open     int
	fired    int
	finished bool
}

func newBatch(q *Queue, id string, items []Item, mark float64, done func(int)) *Batch {
	return &Batch{
		ID:     id,
		q:      q,
		items:  items,
		mark:   mark,
		done:   done,
		doneCh: make(chan struct{}),
		timers: make([]Timer, len(items)),
		state:  make([]itemState, len(items)),
		open:   len(items),
	}
}

// Len returns the number of scheduled items.
func (b *Batch) Len() int { return len(b.items) }

// Items returns the planned (push, delay) pairs.
func (b *Batch) Items() []Item { return append([]Item(nil), b.items...) }

// Watermark returns the watermark captured when the batch was scheduled.
func (b *Batch) Watermark() float64 { return b.mark }

// Done is closed after the completion callback has run.
func (b *Batch) Done() <-chan struct{} { return b.doneCh }

// Fired returns how many items have fired so far.
func (b *Batch) Fired() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fired
}

// Cancel stops the items that have not fired yet. An item already firing
// completes normally.
func (b *Batch) Cancel() {
	b.mu.Lock()
	stopped := 0
	for i, st := range b.state {
		if st != itemPending {
			continue
		}
		b.state[i] = itemCanceled
		if b.timers[i] != nil {
			b.timers[i].Stop()
		}
		stopped++
	}
	b.open -= stopped
	last := b.open == 0 && !b.finished
	if last {
		b.finished = true
	}
	fired := b.fired
	b.mu.Unlock()

	if stopped > 0 {
		b.q.addPending(-stopped)
	}
	if last {
		b.complete(fired)
	}
}

func (b *Batch) claim(i int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state[i] != itemPending {
		return false
	}
	b.state[i] = itemFiring
	return true
}

// settle marks one claimed item as fired and reports whether it was the last.
func (b *Batch) settle() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fired++
	b.open--
	if b.open == 0 && !b.finished {
		b.finished = true
		return b.fired, true
	}
	return b.fired, false
}

func (b *Batch) finishEmpty() {
	b.mu.Lock()
	for i := range b.state {
		b.state[i] = itemCanceled
	}
	b.open = 0
	b.finished = true
	b.mu.Unlock()
	b.complete(0)
}

func (b *Batch) complete(n int) {
	defer close(b.doneCh)
	if b.q != nil {
		b.q.forget(b)
	}
	if b.done == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && b.q != nil {
			b.q.log.Error("batch callback panic recovered",
				logx.String("batch", b.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	b.done(n)
}
