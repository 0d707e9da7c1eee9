package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ccielab/enrollment-service/internal/usecase"
)

type MockStartEnrollment struct {
	mock.Mock
}

func (m *MockStartEnrollment) Execute(ctx context.Context, input usecase.StartEnrollmentInput) (*usecase.StartEnrollmentOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.StartEnrollmentOutput), args.Error(1)
}

type MockConfirmEnrollment struct {
	mock.Mock
}

func (m *MockConfirmEnrollment) Execute(ctx context.Context, input usecase.ConfirmEnrollmentInput) (*usecase.ConfirmEnrollmentOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.ConfirmEnrollmentOutput), args.Error(1)
}

func TestHandleStart(t *testing.T) {
	t.Run("Created on success", func(t *testing.T) {
		startUC := new(MockStartEnrollment)
		startUC.On("Execute", mock.Anything, mock.MatchedBy(func(in usecase.StartEnrollmentInput) bool {
			return in.Email == "a@x.com" && in.Course == "CCIE"
		})).Return(&usecase.StartEnrollmentOutput{EnrollmentID: "enr-1"}, nil)

		h := NewEnrollHandler(startUC, new(MockConfirmEnrollment))

		body, _ := json.Marshal(map[string]string{
			"email": "a@x.com", "name": "Ada Lovelace", "course": "CCIE",
			"plan": "full", "price": "19.99",
		})
		req := httptest.NewRequest("POST", "/enroll/start", bytes.NewReader(body))
		w := httptest.NewRecorder()

		h.HandleStart(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var out usecase.StartEnrollmentOutput
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		assert.Equal(t, "enr-1", out.EnrollmentID)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		h := NewEnrollHandler(new(MockStartEnrollment), new(MockConfirmEnrollment))

		req := httptest.NewRequest("POST", "/enroll/start", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()

		h.HandleStart(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Rate limit kicks in per client IP", func(t *testing.T) {
		startUC := new(MockStartEnrollment)
		startUC.On("Execute", mock.Anything, mock.Anything).
			Return(&usecase.StartEnrollmentOutput{EnrollmentID: "enr-1"}, nil)
		h := NewEnrollHandler(startUC, new(MockConfirmEnrollment))

		var last int
		for i := 0; i < 11; i++ {
			req := httptest.NewRequest("POST", "/enroll/start", bytes.NewReader([]byte("{}")))
			req.RemoteAddr = "10.0.0.1:1234"
			w := httptest.NewRecorder()
			h.HandleStart(w, req)
			last = w.Code
		}

		assert.Equal(t, http.StatusTooManyRequests, last)
	})
}

func TestHandleConfirm(t *testing.T) {
	post := func(h *EnrollHandler, input usecase.ConfirmEnrollmentInput) *httptest.ResponseRecorder {
		body, _ := json.Marshal(input)
		req := httptest.NewRequest("POST", "/enroll/confirm", bytes.NewReader(body))
		w := httptest.NewRecorder()
		h.HandleConfirm(w, req)
		return w
	}

	t.Run("OK on success", func(t *testing.T) {
		confirmUC := new(MockConfirmEnrollment)
		confirmUC.On("Execute", mock.Anything, mock.Anything).
			Return(&usecase.ConfirmEnrollmentOutput{EnrollmentID: "enr-1", State: "NOTIFIED"}, nil)
		h := NewEnrollHandler(new(MockStartEnrollment), confirmUC)

		w := post(h, usecase.ConfirmEnrollmentInput{EnrollmentID: "enr-1", Gateway: "STRIPE"})

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Error taxonomy maps to status codes", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
		}{
			{&usecase.DomainError{Code: "PAYMENT_DECLINED"}, http.StatusPaymentRequired},
			{&usecase.DomainError{Code: "ENROLLMENT_NOT_FOUND"}, http.StatusNotFound},
			{&usecase.DomainError{Code: "ENROLLMENT_FAILED"}, http.StatusConflict},
			{&usecase.DomainError{Code: "GATEWAY_MISMATCH"}, http.StatusConflict},
			{&usecase.DomainError{Code: "VALIDATION_ERROR"}, http.StatusBadRequest},
			{&usecase.TechnicalError{Code: "GATEWAY_UNAVAILABLE"}, http.StatusServiceUnavailable},
			{&usecase.TechnicalError{Code: "CRM_UNAVAILABLE"}, http.StatusServiceUnavailable},
			{&usecase.TechnicalError{Code: "DATABASE_ERROR"}, http.StatusInternalServerError},
		}

		for _, tc := range cases {
			confirmUC := new(MockConfirmEnrollment)
			confirmUC.On("Execute", mock.Anything, mock.Anything).Return(nil, tc.err)
			h := NewEnrollHandler(new(MockStartEnrollment), confirmUC)

			w := post(h, usecase.ConfirmEnrollmentInput{EnrollmentID: "enr-1", Gateway: "STRIPE"})

			assert.Equal(t, tc.status, w.Code, "error %v", tc.err)
		}
	})
}
