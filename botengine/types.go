package botengine

import (
	"context"
	"time"

	domainBot "github.com/AzielCF/az-wabot/domains/bot"
	domainMessage "github.com/AzielCF/az-wabot/domains/message"
)

// Message is what a bot sees: the gateway fields plus any media payload
// the dispatcher pre-loaded for the bot's declared capabilities.
type Message struct {
	ExternalID string
	ChatID     string
	ChatJID    string
	SenderJID  string
	IsFromMe   bool
	Timestamp  time.Time
	Text       string

	// MediaType is "", "image", "audio" or "video". Media holds the
	// downloaded payload; MediaErr is set instead when the download
	// failed so the bot can decide how to surface it.
	MediaType string
	MimeType  string
	Media     []byte
	MediaErr  error
}

// Reply is an outbound text message. A nil *Reply means "do not reply".
type Reply struct {
	Text string
}

// LLM is the slice of the language-model client bots are allowed to use.
type LLM interface {
	Complete(ctx context.Context, model, system, userText string) (string, error)
	CompleteVision(ctx context.Context, model, system, userText string, image []byte) (string, error)
	Transcribe(ctx context.Context, model string, audio []byte, hintLanguage string) (string, error)
}

// AudioExtractor pulls the audio track out of a video payload.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, video []byte) ([]byte, error)
}

// StoreReader is the read-only store surface exposed to bots.
type StoreReader interface {
	ListProcessedForChat(ctx context.Context, chatID string, limit int) ([]domainMessage.ProcessedMessage, error)
}

// Models names the configured model per capability.
type Models struct {
	Chat   string
	Vision string
	Audio  string
}

// Env carries the shared dependencies a bot may use during Process.
type Env struct {
	LLM       LLM
	Extractor AudioExtractor
	Store     StoreReader
	Models    Models
	// Config is the instance's validated config with defaults applied.
	Config map[string]any
}

// Bot is one registered bot type. Process returns the reply to send, or
// nil for silence. A non-nil error records the dispatch as failed; a bot
// may return both a reply and an error when the user should still see a
// human-readable failure message.
type Bot interface {
	Info() domainBot.TypeInfo
	Process(ctx context.Context, env *Env, msg Message) (*Reply, error)
}
