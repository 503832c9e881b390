package validations

import (
	"context"
	"strings"

	pkgError "github.com/AzielCF/az-wabot/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateRegisterChat(ctx context.Context, jid string) error {
	err := validation.Validate(jid,
		validation.Required,
		validation.By(func(value interface{}) error {
			s, _ := value.(string)
			if !strings.Contains(s, "@") {
				return pkgError.ValidationError("jid must contain a domain part")
			}
			return nil
		}),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
