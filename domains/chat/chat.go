package chat

import (
	"context"
	"time"

	domainMessage "github.com/AzielCF/az-wabot/domains/message"
)

type Kind string

const (
	KindPrivate Kind = "private"
	KindGroup   Kind = "group"
	KindChannel Kind = "channel"
)

// Chat is a registered WhatsApp conversation the processor polls.
type Chat struct {
	ID   string `json:"id"`
	JID  string `json:"jid"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	// LastMessageAt is the most recent message instant observed on any poll.
	LastMessageAt *time.Time `json:"last_message_at"`
	// LastProcessedMessageID is the watermark: the gateway id of the newest
	// message any polling pass has considered.
	LastProcessedMessageID *string   `json:"last_processed_message_id"`
	Enabled                bool      `json:"enabled"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

type IChatUsecase interface {
	List(ctx context.Context) ([]Chat, error)
	Register(ctx context.Context, jid string) (Chat, error)
	Sync(ctx context.Context) ([]Chat, error)
	Delete(ctx context.Context, id string) error
	Messages(ctx context.Context, id string, limit int) ([]domainMessage.ProcessedMessage, error)
}
