package validations

import (
	"context"

	domainSchedule "github.com/AzielCF/az-wabot/domains/schedule"
	pkgError "github.com/AzielCF/az-wabot/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateCreateSchedule(ctx context.Context, request domainSchedule.CreateRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Kind, validation.Required, validation.In(domainSchedule.KindOnce, domainSchedule.KindCron)),
		validation.Field(&request.TargetJID, validation.Required),
		validation.Field(&request.Content, validation.Required),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	switch request.Kind {
	case domainSchedule.KindOnce:
		if request.FireAt == nil {
			return pkgError.ValidationError("fire_at is required for one-shot schedules")
		}
	case domainSchedule.KindCron:
		if request.Expression == "" {
			return pkgError.ValidationError("expression is required for cron schedules")
		}
	}
	return nil
}

func ValidateLoginRequest(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return pkgError.ValidationError("username and password are required")
	}
	return nil
}
