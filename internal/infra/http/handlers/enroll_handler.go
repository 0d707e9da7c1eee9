package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ccielab/enrollment-service/internal/infra/http/middleware"
	"github.com/ccielab/enrollment-service/internal/usecase"
)

type startEnrollment interface {
	Execute(ctx context.Context, input usecase.StartEnrollmentInput) (*usecase.StartEnrollmentOutput, error)
}

type confirmEnrollment interface {
	Execute(ctx context.Context, input usecase.ConfirmEnrollmentInput) (*usecase.ConfirmEnrollmentOutput, error)
}

type EnrollHandler struct {
	StartUC     startEnrollment
	ConfirmUC   confirmEnrollment
	rateLimiter *RateLimiter
}

func NewEnrollHandler(startUC startEnrollment, confirmUC confirmEnrollment) *EnrollHandler {
	return &EnrollHandler{
		StartUC:     startUC,
		ConfirmUC:   confirmUC,
		rateLimiter: NewRateLimiter(10, time.Minute),
	}
}

func (h *EnrollHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if !h.rateLimiter.Allow(getClientIP(r)) {
		writeErrorResponse(w, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again later.")
		return
	}

	var input usecase.StartEnrollmentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body")
		return
	}

	output, err := h.StartUC.Execute(r.Context(), input)
	if err != nil {
		h.writeUseCaseError(w, err)
		return
	}

	middleware.RecordEnrollmentStarted()
	writeJSON(w, http.StatusCreated, output)
}

func (h *EnrollHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var input usecase.ConfirmEnrollmentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body")
		return
	}

	output, err := h.ConfirmUC.Execute(r.Context(), input)
	if err != nil {
		h.writeUseCaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, output)
}

// writeUseCaseError maps the error taxonomy to HTTP. Domain errors are the
// user's to fix (or final, like a decline); technical errors are retryable
// and say so.
func (h *EnrollHandler) writeUseCaseError(w http.ResponseWriter, err error) {
	var de *usecase.DomainError
	if errors.As(err, &de) {
		status := http.StatusBadRequest
		switch de.Code {
		case "PAYMENT_DECLINED":
			status = http.StatusPaymentRequired
		case "ENROLLMENT_NOT_FOUND":
			status = http.StatusNotFound
		case "ENROLLMENT_FAILED", "GATEWAY_MISMATCH":
			status = http.StatusConflict
		}
		writeErrorResponse(w, status, de.Code, de.Message)
		return
	}

	var te *usecase.TechnicalError
	if errors.As(err, &te) {
		status := http.StatusInternalServerError
		switch te.Code {
		case "CRM_UNAVAILABLE", "GATEWAY_UNAVAILABLE":
			status = http.StatusServiceUnavailable
		}
		writeErrorResponse(w, status, te.Code, te.Message)
		return
	}

	writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
}
