package validations

import (
	"context"
	"strings"

	domainBot "github.com/AzielCF/az-wabot/domains/bot"
	pkgError "github.com/AzielCF/az-wabot/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateCreateInstance(ctx context.Context, request domainBot.CreateInstanceRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.TypeKey, validation.Required),
		validation.Field(&request.Name, validation.Required, validation.Length(1, 120)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateAssign(ctx context.Context, request domainBot.AssignRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.BotInstanceID, validation.Required),
		validation.Field(&request.Priority, validation.Min(0)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

// ValidatePrefix enforces the bracketed prefix shape bots use to tell
// their own traffic apart from human messages.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if !strings.HasPrefix(prefix, "[") || strings.Index(prefix, "]") < 2 {
		return pkgError.BadConfigError("prefix must have the form [name]")
	}
	return nil
}
