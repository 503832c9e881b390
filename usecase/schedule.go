package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainSchedule "github.com/AzielCF/az-wabot/domains/schedule"
	"github.com/AzielCF/az-wabot/domains/store"
	pkgError "github.com/AzielCF/az-wabot/pkg/error"
	"github.com/AzielCF/az-wabot/scheduler"
	"github.com/AzielCF/az-wabot/validations"
)

type scheduleService struct {
	store store.IStore
	now   func() time.Time
}

func NewScheduleService(st store.IStore) domainSchedule.IScheduleUsecase {
	return &scheduleService{store: st, now: time.Now}
}

func (s *scheduleService) List(ctx context.Context) ([]domainSchedule.Schedule, error) {
	return s.store.ListSchedules(ctx)
}

func (s *scheduleService) Create(ctx context.Context, req domainSchedule.CreateRequest) (domainSchedule.Schedule, error) {
	if err := validations.ValidateCreateSchedule(ctx, req); err != nil {
		return domainSchedule.Schedule{}, err
	}

	now := s.now().UTC()
	sched := domainSchedule.Schedule{
		ID:         uuid.NewString(),
		Kind:       req.Kind,
		FireAt:     req.FireAt,
		Expression: req.Expression,
		Timezone:   req.Timezone,
		TargetJID:  req.TargetJID,
		Content:    req.Content,
		Enabled:    req.Enabled == nil || *req.Enabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	next, err := s.computeNextFire(sched, now)
	if err != nil {
		return domainSchedule.Schedule{}, err
	}
	sched.NextFireAt = next

	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return domainSchedule.Schedule{}, err
	}
	logrus.Infof("[SCHEDULE] Created %s schedule %s, next fire %v", sched.Kind, sched.ID, sched.NextFireAt)
	return sched, nil
}

func (s *scheduleService) Update(ctx context.Context, id string, req domainSchedule.UpdateRequest) (domainSchedule.Schedule, error) {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return domainSchedule.Schedule{}, err
	}

	timingChanged := false
	if req.FireAt != nil {
		sched.FireAt = req.FireAt
		timingChanged = true
	}
	if req.Expression != nil {
		sched.Expression = *req.Expression
		timingChanged = true
	}
	if req.Timezone != nil {
		sched.Timezone = *req.Timezone
		timingChanged = true
	}
	if req.TargetJID != nil {
		if *req.TargetJID == "" {
			return domainSchedule.Schedule{}, pkgError.ValidationError("target_jid cannot be empty")
		}
		sched.TargetJID = *req.TargetJID
	}
	if req.Content != nil {
		sched.Content = *req.Content
	}
	if req.Enabled != nil {
		if *req.Enabled && !sched.Enabled {
			// Re-enabling recomputes timing so a stale next_fire_at does
			// not trigger a burst of catch-up fires.
			timingChanged = true
		}
		sched.Enabled = *req.Enabled
	}

	if timingChanged {
		next, err := s.computeNextFire(sched, s.now().UTC())
		if err != nil {
			return domainSchedule.Schedule{}, err
		}
		sched.NextFireAt = next
	}
	sched.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateSchedule(ctx, sched); err != nil {
		return domainSchedule.Schedule{}, err
	}
	return sched, nil
}

func (s *scheduleService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteSchedule(ctx, id)
}

// FireNow pulls the schedule's next fire to the current instant; the
// scheduler picks it up on its next one-second tick.
func (s *scheduleService) FireNow(ctx context.Context, id string) error {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if !sched.Enabled {
		return pkgError.ValidationError("schedule is disabled")
	}
	now := s.now().UTC()
	sched.NextFireAt = &now
	sched.UpdatedAt = now
	return s.store.UpdateSchedule(ctx, sched)
}

func (s *scheduleService) computeNextFire(sched domainSchedule.Schedule, now time.Time) (*time.Time, error) {
	switch sched.Kind {
	case domainSchedule.KindOnce:
		if sched.FireAt == nil {
			return nil, pkgError.ValidationError("fire_at is required for one-shot schedules")
		}
		fireAt := sched.FireAt.UTC()
		return &fireAt, nil
	case domainSchedule.KindCron:
		next, err := scheduler.NextCronFire(sched.Expression, sched.Timezone, now)
		if err != nil {
			return nil, err
		}
		return &next, nil
	}
	return nil, pkgError.ValidationError("unknown schedule kind")
}
