package mediajobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Limiter bounds how many media jobs (downloads, extraction, transcription)
// run at once across all chat pollers. Callers block on a slot so chat
// pollers naturally backpressure instead of queueing unbounded work.
type Limiter struct {
	max   int
	slots chan struct{}

	totalStarted   int64
	totalCompleted int64
	totalErrors    int64
	totalPanics    int64

	activeMu sync.Mutex
	active   map[string]time.Time // job key -> started at
}

// Stats is a point-in-time snapshot for the monitoring endpoint.
type Stats struct {
	MaxConcurrent  int              `json:"max_concurrent"`
	Active         int              `json:"active"`
	TotalStarted   int64            `json:"total_started"`
	TotalCompleted int64            `json:"total_completed"`
	TotalErrors    int64            `json:"total_errors"`
	TotalPanics    int64            `json:"total_panics"`
	ActiveJobs     map[string]int64 `json:"active_jobs"` // job key -> age in seconds
}

func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Limiter{
		max:    maxConcurrent,
		slots:  make(chan struct{}, maxConcurrent),
		active: make(map[string]time.Time),
	}
}

// Run executes fn under a concurrency slot. It blocks until a slot frees
// up or ctx is cancelled. Panics inside fn are recovered and returned as
// errors so one bad media payload cannot take a poller down.
func (l *Limiter) Run(ctx context.Context, key string, fn func(ctx context.Context) error) (err error) {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slots }()

	atomic.AddInt64(&l.totalStarted, 1)
	l.activeMu.Lock()
	l.active[key] = time.Now()
	l.activeMu.Unlock()

	defer func() {
		l.activeMu.Lock()
		delete(l.active, key)
		l.activeMu.Unlock()
		atomic.AddInt64(&l.totalCompleted, 1)

		if r := recover(); r != nil {
			atomic.AddInt64(&l.totalPanics, 1)
			logrus.Errorf("[MEDIA_POOL] Job %s panicked: %v", key, r)
			err = fmt.Errorf("media job panicked: %v", r)
		}
		if err != nil {
			atomic.AddInt64(&l.totalErrors, 1)
		}
	}()

	return fn(ctx)
}

func (l *Limiter) GetStats() Stats {
	now := time.Now()
	l.activeMu.Lock()
	activeJobs := make(map[string]int64, len(l.active))
	for k, started := range l.active {
		activeJobs[k] = int64(now.Sub(started).Seconds())
	}
	l.activeMu.Unlock()

	return Stats{
		MaxConcurrent:  l.max,
		Active:         len(l.slots),
		TotalStarted:   atomic.LoadInt64(&l.totalStarted),
		TotalCompleted: atomic.LoadInt64(&l.totalCompleted),
		TotalErrors:    atomic.LoadInt64(&l.totalErrors),
		TotalPanics:    atomic.LoadInt64(&l.totalPanics),
		ActiveJobs:     activeJobs,
	}
}
