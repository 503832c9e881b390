package repository

import (
	"database/sql"
	"time"
)

// --- Persistence Models ---

type chatModel struct {
	ID                     string         `gorm:"primaryKey;column:id"`
	JID                    string         `gorm:"column:jid;not null;uniqueIndex"`
	Name                   string         `gorm:"column:name"`
	Kind                   string         `gorm:"column:kind;not null;default:'private'"`
	LastMessageAt          *time.Time     `gorm:"column:last_message_at"`
	LastProcessedMessageID sql.NullString `gorm:"column:last_processed_message_id"`
	Enabled                bool           `gorm:"column:enabled;default:true"`
	CreatedAt              time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt              time.Time      `gorm:"column:updated_at;not null"`
}

func (chatModel) TableName() string { return "chats" }

type botInstanceModel struct {
	ID          string         `gorm:"primaryKey;column:id"`
	TypeKey     string         `gorm:"column:type_key;not null;index"`
	Name        string         `gorm:"column:name;not null"`
	Description sql.NullString `gorm:"column:description"`
	Config      string         `gorm:"column:config;type:text;not null;default:'{}'"` // JSON
	Enabled     bool           `gorm:"column:enabled;default:true"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

func (botInstanceModel) TableName() string { return "bot_instances" }

type assignmentModel struct {
	ID            string    `gorm:"primaryKey;column:id"`
	ChatID        string    `gorm:"column:chat_id;not null;index;uniqueIndex:idx_chat_bot"`
	BotInstanceID string    `gorm:"column:bot_instance_id;not null;uniqueIndex:idx_chat_bot"`
	Priority      int       `gorm:"column:priority;not null;default:100"`
	Enabled       bool      `gorm:"column:enabled;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

func (assignmentModel) TableName() string { return "chat_bot_assignments" }

// The unique index on (bot_instance_id, external_message_id) is the
// at-most-once guarantee; EnsureProcessed relies on it.
type processedMessageModel struct {
	ID                string         `gorm:"primaryKey;column:id"`
	BotInstanceID     string         `gorm:"column:bot_instance_id;not null;uniqueIndex:idx_bot_message"`
	ChatID            string         `gorm:"column:chat_id;not null;index"`
	ExternalMessageID string         `gorm:"column:external_message_id;not null;uniqueIndex:idx_bot_message"`
	Status            string         `gorm:"column:status;not null;default:'pending';index"`
	ResponseExcerpt   sql.NullString `gorm:"column:response_excerpt"`
	ErrorKind         sql.NullString `gorm:"column:error_kind"`
	ProcessedAt       time.Time      `gorm:"column:processed_at;not null;index"`
}

func (processedMessageModel) TableName() string { return "processed_messages" }

type scheduleModel struct {
	ID         string         `gorm:"primaryKey;column:id"`
	Kind       string         `gorm:"column:kind;not null"`
	FireAt     *time.Time     `gorm:"column:fire_at"`
	Expression sql.NullString `gorm:"column:expression"`
	Timezone   sql.NullString `gorm:"column:timezone"`
	TargetJID  string         `gorm:"column:target_jid;not null"`
	Content    string         `gorm:"column:content;not null"`
	Enabled    bool           `gorm:"column:enabled;default:true"`
	NextFireAt *time.Time     `gorm:"column:next_fire_at;index"`
	LastFireAt *time.Time     `gorm:"column:last_fire_at"`
	LastResult sql.NullString `gorm:"column:last_result"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;not null"`
}

func (scheduleModel) TableName() string { return "schedules" }

type userModel struct {
	ID           string    `gorm:"primaryKey;column:id"`
	Username     string    `gorm:"column:username;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

func (userModel) TableName() string { return "users" }
