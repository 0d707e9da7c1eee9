package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ccielab/enrollment-service/internal/entity"
)

func TestStartEnrollment(t *testing.T) {
	validInput := StartEnrollmentInput{
		Email:  "A@X.com",
		Name:   "Ada Lovelace",
		Phone:  "(55) 11 99999-9999",
		Course: "CCIE",
		Plan:   "full",
		Price:  "19.99",
	}

	t.Run("Success resolves contact and persists CONTACT_RESOLVED", func(t *testing.T) {
		repo := new(MockEnrollmentRepository)
		directory := new(MockContactDirectory)
		uc := NewStartEnrollmentUseCase(repo, directory, "USD")

		directory.On("FindOrCreate", mock.Anything, "a@x.com", entity.ProfileFields{
			Name:   "Ada Lovelace",
			Phone:  "+5511999999999",
			Course: "CCIE",
		}).Return(entity.ContactRef{ID: "crm-1", Email: "a@x.com"}, nil)

		repo.On("Create", mock.Anything, mock.MatchedBy(func(rec *entity.EnrollmentRecord) bool {
			return rec.State == entity.StateContactResolved &&
				rec.Intent.Email == "a@x.com" &&
				rec.Intent.ContactID == "crm-1" &&
				rec.Intent.PriceCents == 1999 &&
				rec.Intent.Currency == "USD"
		})).Return(nil)

		output, err := uc.Execute(context.Background(), validInput)

		assert.NoError(t, err)
		assert.NotEmpty(t, output.EnrollmentID)
		assert.Equal(t, "crm-1", output.ContactRef.ID)
		assert.Equal(t, []string{"PAYPAL", "STRIPE"}, output.AvailableGateways)
		repo.AssertExpectations(t)
		directory.AssertExpectations(t)
	})

	t.Run("Validation failure never touches CRM or database", func(t *testing.T) {
		repo := new(MockEnrollmentRepository)
		directory := new(MockContactDirectory)
		uc := NewStartEnrollmentUseCase(repo, directory, "USD")

		_, err := uc.Execute(context.Background(), StartEnrollmentInput{
			Email: "not-an-email",
			Name:  "Al",
			Price: "free",
		})

		var de *DomainError
		assert.ErrorAs(t, err, &de)
		assert.Equal(t, "VALIDATION_ERROR", de.Code)
		directory.AssertNotCalled(t, "FindOrCreate", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("CRM outage surfaces as retryable technical error", func(t *testing.T) {
		repo := new(MockEnrollmentRepository)
		directory := new(MockContactDirectory)
		uc := NewStartEnrollmentUseCase(repo, directory, "USD")

		directory.On("FindOrCreate", mock.Anything, mock.Anything, mock.Anything).
			Return(entity.ContactRef{}, fmt.Errorf("search contact: %w", ErrUpstreamUnavailable))

		_, err := uc.Execute(context.Background(), validInput)

		var te *TechnicalError
		assert.ErrorAs(t, err, &te)
		assert.Equal(t, "CRM_UNAVAILABLE", te.Code)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestValidateStartEnrollmentInput(t *testing.T) {
	base := StartEnrollmentInput{
		Email:  "a@x.com",
		Name:   "Ada Lovelace",
		Course: "CCIE",
		Plan:   "full",
		Price:  "19.99",
	}

	t.Run("Valid input has no errors", func(t *testing.T) {
		assert.Empty(t, ValidateStartEnrollmentInput(base))
	})

	t.Run("Phone is optional but must normalize when present", func(t *testing.T) {
		in := base
		in.Phone = ""
		assert.Empty(t, ValidateStartEnrollmentInput(in))

		in.Phone = "123"
		errs := ValidateStartEnrollmentInput(in)
		assert.Len(t, errs, 1)
		assert.Equal(t, "phone", errs[0].Field)
	})

	t.Run("Each broken field is reported", func(t *testing.T) {
		errs := ValidateStartEnrollmentInput(StartEnrollmentInput{
			Email: "nope",
			Name:  "Al",
			Price: "-1",
		})

		fields := map[string]bool{}
		for _, e := range errs {
			fields[e.Field] = true
		}
		for _, f := range []string{"name", "email", "course", "plan", "price"} {
			assert.True(t, fields[f], "expected error on %s", f)
		}
	})

	t.Run("Zero price is rejected", func(t *testing.T) {
		in := base
		in.Price = "0.00"
		errs := ValidateStartEnrollmentInput(in)
		assert.Len(t, errs, 1)
		assert.Equal(t, "price", errs[0].Field)
	})
}
