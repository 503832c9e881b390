package schedule

import (
	"context"
	"time"
)

type Kind string

const (
	KindOnce Kind = "once"
	KindCron Kind = "cron"
)

type Result string

const (
	ResultOk      Result = "ok"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

// Schedule is a pending job to send a message, either one-shot or cron.
type Schedule struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	FireAt     *time.Time `json:"fire_at,omitempty"`
	Expression string     `json:"expression,omitempty"`
	Timezone   string     `json:"timezone,omitempty"`
	TargetJID  string     `json:"target_jid"`
	Content    string     `json:"content"`
	Enabled    bool       `json:"enabled"`
	NextFireAt *time.Time `json:"next_fire_at"`
	LastFireAt *time.Time `json:"last_fire_at"`
	LastResult Result     `json:"last_result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CreateRequest struct {
	Kind       Kind       `json:"kind"`
	FireAt     *time.Time `json:"fire_at"`
	Expression string     `json:"expression"`
	Timezone   string     `json:"timezone"`
	TargetJID  string     `json:"target_jid"`
	Content    string     `json:"content"`
	Enabled    *bool      `json:"enabled"`
}

type UpdateRequest struct {
	FireAt     *time.Time `json:"fire_at"`
	Expression *string    `json:"expression"`
	Timezone   *string    `json:"timezone"`
	TargetJID  *string    `json:"target_jid"`
	Content    *string    `json:"content"`
	Enabled    *bool      `json:"enabled"`
}

type IScheduleUsecase interface {
	List(ctx context.Context) ([]Schedule, error)
	Create(ctx context.Context, req CreateRequest) (Schedule, error)
	Update(ctx context.Context, id string, req UpdateRequest) (Schedule, error)
	Delete(ctx context.Context, id string) error
	FireNow(ctx context.Context, id string) error
}
