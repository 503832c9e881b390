package message

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusOk      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// ErrorKindInterrupted marks rows found non-terminal after a restart.
const ErrorKindInterrupted = "InterruptedAtShutdown"

// ProcessedMessage is the at-most-once ledger: one row per
// (bot_instance_id, external_message_id) pair the processor has dispatched.
type ProcessedMessage struct {
	ID                string    `json:"id"`
	BotInstanceID     string    `json:"bot_instance_id"`
	ChatID            string    `json:"chat_id"`
	ExternalMessageID string    `json:"external_message_id"`
	Status            Status    `json:"status"`
	ResponseExcerpt   string    `json:"response_excerpt,omitempty"`
	ErrorKind         string    `json:"error_kind,omitempty"`
	ProcessedAt       time.Time `json:"processed_at"`
}
