package usecase

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/ccielab/enrollment-service/internal/entity"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ValidateStartEnrollmentInput(input StartEnrollmentInput) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(input.Name) == "" {
		errs = append(errs, ValidationError{"name", "is required"})
	} else if len(input.Name) < 3 {
		errs = append(errs, ValidationError{"name", "must have at least 3 characters"})
	} else if len(input.Name) > 200 {
		errs = append(errs, ValidationError{"name", "must not exceed 200 characters"})
	}

	if strings.TrimSpace(input.Email) == "" {
		errs = append(errs, ValidationError{"email", "is required"})
	} else if _, err := mail.ParseAddress(input.Email); err != nil {
		errs = append(errs, ValidationError{"email", "is invalid"})
	}

	if strings.TrimSpace(input.Phone) != "" && entity.NormalizePhone(input.Phone) == "" {
		errs = append(errs, ValidationError{"phone", "must be a valid phone number"})
	}

	if strings.TrimSpace(input.Course) == "" {
		errs = append(errs, ValidationError{"course", "is required"})
	}

	if strings.TrimSpace(input.Plan) == "" {
		errs = append(errs, ValidationError{"plan", "is required"})
	}

	if strings.TrimSpace(input.Price) == "" {
		errs = append(errs, ValidationError{"price", "is required"})
	} else if cents, err := entity.ParseAmount(input.Price); err != nil {
		errs = append(errs, ValidationError{"price", "must be a decimal amount"})
	} else if cents <= 0 {
		errs = append(errs, ValidationError{"price", "must be positive"})
	}

	return errs
}

func validGateway(gateway string) bool {
	return gateway == entity.GatewayPayPal || gateway == entity.GatewayStripe
}
