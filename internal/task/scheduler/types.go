package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"pushrelay/internal/eventbus"
	logx "pushrelay/pkg/logx"
)

type Config struct {
	Enabled     bool
	Timezone    string // IANA TZ, e.g. "Europe/Berlin"
	HistorySize int    // default 50
}

type Job func(ctx context.Context) error

// RunRecord describes one trigger of a schedule.
type RunRecord struct {
	Name    string        `json:"name"`
	Started time.Time     `json:"started"`
	Took    time.Duration `json:"took"`
	Err     string        `json:"err,omitempty"`
	Skipped bool          `json:"skipped,omitempty"`
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Spread  time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
	History   []RunRecord
}

type scheduleDef struct {
	name          string
	spec          string // cron spec or "@every <d>"
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
	running       atomic.Bool
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	runCtx    context.Context
	runCancel context.CancelFunc

	histMu    sync.Mutex
	hist      []RunRecord
	histLimit int
}
