package usecase

import (
	"context"
	"fmt"

	"github.com/ccielab/enrollment-service/internal/entity"
)

type StartEnrollmentInput struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Course string `json:"course"`
	Plan   string `json:"plan"`
	Price  string `json:"price"` // decimal display string; converted once here
}

type StartEnrollmentOutput struct {
	EnrollmentID      string            `json:"enrollment_id"`
	ContactRef        entity.ContactRef `json:"contact_ref"`
	AvailableGateways []string          `json:"available_gateways"`
}

type StartEnrollmentUseCase struct {
	Repo      entity.EnrollmentRepository
	Directory ContactDirectory
	Currency  string
}

func NewStartEnrollmentUseCase(repo entity.EnrollmentRepository, directory ContactDirectory, currency string) *StartEnrollmentUseCase {
	if currency == "" {
		currency = "USD"
	}
	return &StartEnrollmentUseCase{Repo: repo, Directory: directory, Currency: currency}
}

// Execute takes the intake form from DRAFT to CONTACT_RESOLVED. Nothing
// here commits a side effect beyond the CRM contact (which is never rolled
// back), so any failure is safely retryable by the caller.
func (uc *StartEnrollmentUseCase) Execute(ctx context.Context, input StartEnrollmentInput) (*StartEnrollmentOutput, error) {
	validationErrors := ValidateStartEnrollmentInput(input)
	if len(validationErrors) > 0 {
		errMsg := "validation failed: "
		for _, e := range validationErrors {
			errMsg += e.Field + " (" + e.Message + "), "
		}
		return nil, &DomainError{
			Code:    "VALIDATION_ERROR",
			Message: errMsg,
		}
	}

	email := entity.NormalizeEmail(input.Email)
	phone := entity.NormalizePhone(input.Phone)
	priceCents, err := entity.ParseAmount(input.Price)
	if err != nil {
		return nil, &DomainError{Code: "VALIDATION_ERROR", Message: "price: " + err.Error()}
	}

	contactRef, err := uc.Directory.FindOrCreate(ctx, email, entity.ProfileFields{
		Name:   input.Name,
		Phone:  phone,
		Course: input.Course,
	})
	if err != nil {
		if Retryable(err) {
			return nil, &TechnicalError{
				Code:    "CRM_UNAVAILABLE",
				Message: "could not reach the contact directory, try again",
			}
		}
		return nil, fmt.Errorf("contact resolution failed: %w", err)
	}

	record := entity.NewEnrollmentRecord(entity.EnrollmentIntent{
		ContactID:  contactRef.ID,
		Email:      email,
		Name:       input.Name,
		Phone:      phone,
		CourseID:   input.Course,
		Plan:       input.Plan,
		PriceCents: priceCents,
		Currency:   uc.Currency,
	})
	record.State = entity.StateContactResolved

	if err := uc.Repo.Create(ctx, record); err != nil {
		return nil, &TechnicalError{
			Code:    "DATABASE_ERROR",
			Message: "failed to persist enrollment: " + err.Error(),
		}
	}

	return &StartEnrollmentOutput{
		EnrollmentID:      record.ID,
		ContactRef:        contactRef,
		AvailableGateways: []string{entity.GatewayPayPal, entity.GatewayStripe},
	}, nil
}
