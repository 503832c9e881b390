package store

import (
	"context"
	"time"

	domainBot "github.com/AzielCF/az-wabot/domains/bot"
	domainChat "github.com/AzielCF/az-wabot/domains/chat"
	domainMessage "github.com/AzielCF/az-wabot/domains/message"
	domainSchedule "github.com/AzielCF/az-wabot/domains/schedule"
	domainUser "github.com/AzielCF/az-wabot/domains/user"
)

// IStore is the persistence contract. Multi-row state transitions (assign,
// cascade delete, schedule fire) run inside a single transaction in the
// implementation.
type IStore interface {
	// Chats
	CreateChat(ctx context.Context, c domainChat.Chat) error
	GetChat(ctx context.Context, id string) (domainChat.Chat, error)
	GetChatByJID(ctx context.Context, jid string) (domainChat.Chat, error)
	ListChats(ctx context.Context) ([]domainChat.Chat, error)
	ListEnabledChats(ctx context.Context) ([]domainChat.Chat, error)
	UpdateChat(ctx context.Context, c domainChat.Chat) error
	// DeleteChat cascades to assignments and processed rows.
	DeleteChat(ctx context.Context, id string) error
	// AdvanceChatWatermark is idempotent: the update is applied only when
	// lastMessageAt is not older than the stored last_message_at.
	AdvanceChatWatermark(ctx context.Context, chatID, lastProcessedID string, lastMessageAt time.Time) error
	TouchChatActivity(ctx context.Context, chatID string, lastMessageAt time.Time) error

	// Bot instances
	CreateBotInstance(ctx context.Context, b domainBot.Instance) error
	GetBotInstance(ctx context.Context, id string) (domainBot.Instance, error)
	ListBotInstances(ctx context.Context) ([]domainBot.Instance, error)
	UpdateBotInstance(ctx context.Context, b domainBot.Instance) error
	// DeleteBotInstance cascades to assignments and processed rows.
	DeleteBotInstance(ctx context.Context, id string) error

	// Assignments
	CreateAssignment(ctx context.Context, a domainBot.Assignment) error
	GetAssignment(ctx context.Context, chatID, botInstanceID string) (domainBot.Assignment, error)
	ListAssignments(ctx context.Context, chatID string) ([]domainBot.Assignment, error)
	// ListEnabledAssignments returns assignments ordered by (priority asc,
	// bot_instance_id asc), the dispatch order.
	ListEnabledAssignments(ctx context.Context, chatID string) ([]domainBot.Assignment, error)
	UpdateAssignment(ctx context.Context, a domainBot.Assignment) error
	DeleteAssignment(ctx context.Context, chatID, botInstanceID string) error

	// Processed messages
	// EnsureProcessed atomically inserts the row, reporting whether it was
	// inserted or already existed. This is the at-most-once serialization
	// point.
	EnsureProcessed(ctx context.Context, row domainMessage.ProcessedMessage) (inserted bool, err error)
	UpdateProcessed(ctx context.Context, botInstanceID, externalMessageID string, status domainMessage.Status, excerpt, errorKind string) error
	ListProcessedForChat(ctx context.Context, chatID string, limit int) ([]domainMessage.ProcessedMessage, error)
	// FilterFullyProcessed returns the subset of externalIDs that already
	// have a row for every bot in botIDs.
	FilterFullyProcessed(ctx context.Context, chatID string, botIDs, externalIDs []string) (map[string]bool, error)
	// ReconcilePending marks every non-terminal row failed with errorKind.
	ReconcilePending(ctx context.Context, errorKind string) (int64, error)

	// Schedules
	CreateSchedule(ctx context.Context, s domainSchedule.Schedule) error
	GetSchedule(ctx context.Context, id string) (domainSchedule.Schedule, error)
	ListSchedules(ctx context.Context) ([]domainSchedule.Schedule, error)
	// ListDueSchedules returns enabled schedules with next_fire_at <= now,
	// ordered by (next_fire_at asc, id asc).
	ListDueSchedules(ctx context.Context, now time.Time) ([]domainSchedule.Schedule, error)
	UpdateSchedule(ctx context.Context, s domainSchedule.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	// RecordScheduleFire updates last_fire_at, last_result and the
	// recomputed next_fire_at atomically. disable clears enabled for spent
	// one-shot schedules.
	RecordScheduleFire(ctx context.Context, id string, firedAt time.Time, result domainSchedule.Result, nextFireAt *time.Time, disable bool) error

	// Users
	CreateUser(ctx context.Context, u domainUser.User) error
	GetUserByUsername(ctx context.Context, username string) (domainUser.User, error)
	CountUsers(ctx context.Context) (int64, error)
}
