package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	domainSchedule "github.com/AzielCF/az-wabot/domains/schedule"
	"github.com/AzielCF/az-wabot/domains/store"
)

const (
	tickInterval = 1 * time.Second

	// misfireWindow separates an on-time fire from a catch-up one. Either
	// way an overdue schedule fires exactly once; missed intermediate
	// occurrences of a cron schedule are not replayed.
	misfireWindow = 60 * time.Second
)

// Gateway is the slice of the gateway client the scheduler uses.
type Gateway interface {
	SendText(ctx context.Context, chatJID, text string) (string, error)
}

// EventSink receives fire notifications for live observers.
type EventSink interface {
	PublishScheduleFired(scheduleID string, firedAt time.Time, result domainSchedule.Result)
}

// Scheduler fires due schedules once per second. The fire record, with
// the recomputed next_fire_at, is written before the send goes out so a
// crash mid-send can never double-fire.
type Scheduler struct {
	store  store.IStore
	gw     Gateway
	events EventSink
	now    func() time.Time

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

func New(st store.IStore, gw Gateway, events EventSink) *Scheduler {
	return &Scheduler{
		store:  st,
		gw:     gw,
		events: events,
		now:    time.Now,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)
	logrus.Info("[SCHEDULER] Started")
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	logrus.Info("[SCHEDULER] Stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires every due schedule once, in (next_fire_at, id) order.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()
	due, err := s.store.ListDueSchedules(ctx, now)
	if err != nil {
		logrus.WithError(err).Error("[SCHEDULER] Failed to list due schedules")
		return
	}
	for _, sched := range due {
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx, sched, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, sched domainSchedule.Schedule, now time.Time) {
	if sched.NextFireAt != nil && now.Sub(*sched.NextFireAt) > misfireWindow {
		logrus.Warnf("[SCHEDULER] Schedule %s overdue by %s, firing single catch-up", sched.ID, now.Sub(*sched.NextFireAt).Round(time.Second))
	}

	var nextFire *time.Time
	disable := false
	switch sched.Kind {
	case domainSchedule.KindOnce:
		disable = true
	case domainSchedule.KindCron:
		next, err := NextCronFire(sched.Expression, sched.Timezone, now)
		if err != nil {
			// Should have been rejected at write time; park the schedule
			// instead of retrying it every second.
			logrus.WithError(err).Errorf("[SCHEDULER] Schedule %s has unparseable expression, disabling", sched.ID)
			if recErr := s.store.RecordScheduleFire(ctx, sched.ID, now, domainSchedule.ResultFailed, nil, true); recErr != nil {
				logrus.WithError(recErr).Errorf("[SCHEDULER] Failed to record fire for schedule %s", sched.ID)
			}
			return
		}
		nextFire = &next
	}

	// Advance before sending: the fire is claimed even if the process
	// dies mid-send.
	if err := s.store.RecordScheduleFire(ctx, sched.ID, now, domainSchedule.ResultOk, nextFire, disable); err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] Failed to record fire for schedule %s", sched.ID)
		return
	}

	result := domainSchedule.ResultOk
	if _, err := s.gw.SendText(ctx, sched.TargetJID, sched.Content); err != nil {
		result = domainSchedule.ResultFailed
		logrus.WithError(err).Errorf("[SCHEDULER] Send failed for schedule %s to %s", sched.ID, sched.TargetJID)
		if recErr := s.store.RecordScheduleFire(ctx, sched.ID, now, result, nextFire, disable); recErr != nil {
			logrus.WithError(recErr).Errorf("[SCHEDULER] Failed to record failed fire for schedule %s", sched.ID)
		}
	} else {
		logrus.Infof("[SCHEDULER] Schedule %s fired, target %s", sched.ID, sched.TargetJID)
	}

	if s.events != nil {
		s.events.PublishScheduleFired(sched.ID, now, result)
	}
}
