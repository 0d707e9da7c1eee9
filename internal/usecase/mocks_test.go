package usecase

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ccielab/enrollment-service/internal/entity"
)

type MockEnrollmentRepository struct {
	mock.Mock
}

func (m *MockEnrollmentRepository) Create(ctx context.Context, rec *entity.EnrollmentRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockEnrollmentRepository) FindByID(ctx context.Context, id string) (*entity.EnrollmentRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.EnrollmentRecord), args.Error(1)
}

func (m *MockEnrollmentRepository) FindByTransactionID(ctx context.Context, gateway, txnID string) (*entity.EnrollmentRecord, error) {
	args := m.Called(ctx, gateway, txnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.EnrollmentRecord), args.Error(1)
}

func (m *MockEnrollmentRepository) FindByPayableRef(ctx context.Context, gateway, payableRef string) (*entity.EnrollmentRecord, error) {
	args := m.Called(ctx, gateway, payableRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.EnrollmentRecord), args.Error(1)
}

func (m *MockEnrollmentRepository) ClaimTransaction(ctx context.Context, gateway, txnID, recordID string) (bool, error) {
	args := m.Called(ctx, gateway, txnID, recordID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnrollmentRepository) UpdateState(ctx context.Context, id, state, failReason string) error {
	args := m.Called(ctx, id, state, failReason)
	return args.Error(0)
}

func (m *MockEnrollmentRepository) SavePayableRef(ctx context.Context, id, gateway, payableRef string) error {
	args := m.Called(ctx, id, gateway, payableRef)
	return args.Error(0)
}

func (m *MockEnrollmentRepository) SaveOutcome(ctx context.Context, id string, outcome *entity.PaymentOutcome, state string) error {
	args := m.Called(ctx, id, outcome, state)
	return args.Error(0)
}

func (m *MockEnrollmentRepository) MarkCRMUpdated(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEnrollmentRepository) MarkNotified(ctx context.Context, id, kind string) error {
	args := m.Called(ctx, id, kind)
	return args.Error(0)
}

func (m *MockEnrollmentRepository) ScheduleCRMRetry(ctx context.Context, id string, attempts int, nextAt time.Time) error {
	args := m.Called(ctx, id, attempts, nextAt)
	return args.Error(0)
}

func (m *MockEnrollmentRepository) ListCRMPending(ctx context.Context, now time.Time, limit int) ([]*entity.EnrollmentRecord, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.EnrollmentRecord), args.Error(1)
}

func (m *MockEnrollmentRepository) ListUnnotified(ctx context.Context, limit int) ([]*entity.EnrollmentRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.EnrollmentRecord), args.Error(1)
}

func (m *MockEnrollmentRepository) DeleteAbandoned(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type MockContactDirectory struct {
	mock.Mock
}

func (m *MockContactDirectory) FindOrCreate(ctx context.Context, email string, fields entity.ProfileFields) (entity.ContactRef, error) {
	args := m.Called(ctx, email, fields)
	return args.Get(0).(entity.ContactRef), args.Error(1)
}

func (m *MockContactDirectory) RecordEnrollment(ctx context.Context, contactID string, enr CRMEnrollment) error {
	args := m.Called(ctx, contactID, enr)
	return args.Error(0)
}

type MockPaymentGateway struct {
	mock.Mock
	GatewayName string
}

func (m *MockPaymentGateway) Name() string {
	return m.GatewayName
}

func (m *MockPaymentGateway) CreatePayable(ctx context.Context, amountCents int64, currency, description string) (PayableRef, error) {
	args := m.Called(ctx, amountCents, currency, description)
	return args.Get(0).(PayableRef), args.Error(1)
}

func (m *MockPaymentGateway) Confirm(ctx context.Context, payableID, confirmationToken string) (*entity.PaymentOutcome, error) {
	args := m.Called(ctx, payableID, confirmationToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.PaymentOutcome), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(kind, recipient string, params NotificationParams) error {
	args := m.Called(kind, recipient, params)
	return args.Error(0)
}
