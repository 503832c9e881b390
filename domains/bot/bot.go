package bot

import (
	"context"
	"time"
)

type Capability string

const (
	CapabilityText  Capability = "text"
	CapabilityImage Capability = "image"
	CapabilityAudio Capability = "audio"
	CapabilityVideo Capability = "video"
)

type OptionType string

const (
	OptionString     OptionType = "string"
	OptionInt        OptionType = "int"
	OptionBool       OptionType = "bool"
	OptionEnum       OptionType = "enum"
	OptionStringList OptionType = "list<string>"
)

// Option describes one recognized configuration key of a bot type.
type Option struct {
	Type     OptionType `json:"type"`
	Default  any        `json:"default,omitempty"`
	Required bool       `json:"required"`
	// Enum lists the accepted values for OptionEnum, or the accepted
	// elements for OptionStringList when restricted.
	Enum []string `json:"enum,omitempty"`
}

// ConfigSchema enumerates the recognized options of a bot type. Unknown
// keys in an instance config are rejected, not dropped.
type ConfigSchema map[string]Option

// TypeInfo is the registry entry describing a class of bot.
type TypeInfo struct {
	TypeKey      string       `json:"type_key"`
	DisplayName  string       `json:"display_name"`
	Capabilities []Capability `json:"capabilities"`
	ConfigSchema ConfigSchema `json:"config_schema"`
}

// Instance is a configured instance of a bot type.
type Instance struct {
	ID          string         `json:"id"`
	TypeKey     string         `json:"type_key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Config      map[string]any `json:"config"`
	Enabled     bool           `json:"enabled"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Assignment enables a bot instance on a chat. Lower priority dispatches
// earlier; ties break on bot instance id.
type Assignment struct {
	ID            string    `json:"id"`
	ChatID        string    `json:"chat_id"`
	BotInstanceID string    `json:"bot_instance_id"`
	Priority      int       `json:"priority"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CreateInstanceRequest struct {
	TypeKey     string         `json:"type_key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Config      map[string]any `json:"config"`
	Enabled     *bool          `json:"enabled"`
}

type UpdateInstanceRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Config      *map[string]any `json:"config"`
	Enabled     *bool           `json:"enabled"`
}

type AssignRequest struct {
	BotInstanceID string `json:"bot_instance_id"`
	Priority      int    `json:"priority"`
	Enabled       *bool  `json:"enabled"`
}

type UpdateAssignmentRequest struct {
	Priority *int  `json:"priority"`
	Enabled  *bool `json:"enabled"`
}

type IBotUsecase interface {
	ListTypes(ctx context.Context) []TypeInfo
	ListInstances(ctx context.Context) ([]Instance, error)
	CreateInstance(ctx context.Context, req CreateInstanceRequest) (Instance, error)
	UpdateInstance(ctx context.Context, id string, req UpdateInstanceRequest) (Instance, error)
	DeleteInstance(ctx context.Context, id string) error
	ListAssignments(ctx context.Context, chatID string) ([]Assignment, error)
	Assign(ctx context.Context, chatID string, req AssignRequest) (Assignment, error)
	UpdateAssignment(ctx context.Context, chatID, botInstanceID string, req UpdateAssignmentRequest) (Assignment, error)
	Unassign(ctx context.Context, chatID, botInstanceID string) error
}
