package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ccielab/enrollment-service/internal/entity"
)

func TestReconcileRetriesCRMPending(t *testing.T) {
	repo := new(MockEnrollmentRepository)
	directory := new(MockContactDirectory)
	notifier := new(MockNotifier)
	confirm := newConfirmUC(repo, directory, notifier)
	uc := NewReconcileEnrollmentsUseCase(repo, confirm)

	parked := intentRecord()
	parked.State = entity.StateCRMPending
	parked.Outcome = succeededOutcome("pi_123")
	parked.CRMAttempts = 3

	repo.On("ListCRMPending", mock.Anything, mock.Anything, 50).
		Return([]*entity.EnrollmentRecord{parked}, nil)
	repo.On("ListUnnotified", mock.Anything, 50).Return([]*entity.EnrollmentRecord{}, nil)
	repo.On("DeleteAbandoned", mock.Anything, mock.Anything).Return(int64(0), nil)

	// CRM is back: the sweep drives the saga to completion.
	directory.On("RecordEnrollment", mock.Anything, "crm-1", mock.Anything).Return(nil)
	repo.On("MarkCRMUpdated", mock.Anything, "enr-1").Return(nil)
	notifier.On("Notify", NotifyCustomerConfirmation, "a@x.com", mock.Anything).Return(nil)
	notifier.On("Notify", NotifyStaffEnrollment, staffEmail, mock.Anything).Return(nil)
	repo.On("MarkNotified", mock.Anything, "enr-1", mock.Anything).Return(nil)
	repo.On("UpdateState", mock.Anything, "enr-1", entity.StateNotified, "").Return(nil)

	uc.Execute(context.Background())

	assert.Equal(t, entity.StateNotified, parked.State)
	directory.AssertNumberOfCalls(t, "RecordEnrollment", 1)
	notifier.AssertNumberOfCalls(t, "Notify", 2)
	repo.AssertExpectations(t)
}

func TestReconcileRetriesUnnotified(t *testing.T) {
	repo := new(MockEnrollmentRepository)
	directory := new(MockContactDirectory)
	notifier := new(MockNotifier)
	confirm := newConfirmUC(repo, directory, notifier)
	uc := NewReconcileEnrollmentsUseCase(repo, confirm)

	stuck := intentRecord()
	stuck.State = entity.StateCRMUpdated
	stuck.Outcome = succeededOutcome("pi_123")
	stuck.CRMUpdated = true
	stuck.CustomerNotified = true // customer mail went out, staff mail didn't

	repo.On("ListCRMPending", mock.Anything, mock.Anything, 50).
		Return([]*entity.EnrollmentRecord{}, nil)
	repo.On("ListUnnotified", mock.Anything, 50).
		Return([]*entity.EnrollmentRecord{stuck}, nil)
	repo.On("DeleteAbandoned", mock.Anything, mock.Anything).Return(int64(2), nil)

	notifier.On("Notify", NotifyStaffEnrollment, staffEmail, mock.Anything).Return(nil)
	repo.On("MarkNotified", mock.Anything, "enr-1", NotifyStaffEnrollment).Return(nil)
	repo.On("UpdateState", mock.Anything, "enr-1", entity.StateNotified, "").Return(nil)

	uc.Execute(context.Background())

	assert.Equal(t, entity.StateNotified, stuck.State)
	// Already-sent kinds are never resent.
	notifier.AssertNotCalled(t, "Notify", NotifyCustomerConfirmation, mock.Anything, mock.Anything)
	directory.AssertNotCalled(t, "RecordEnrollment", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileSurvivesListErrors(t *testing.T) {
	repo := new(MockEnrollmentRepository)
	confirm := newConfirmUC(repo, new(MockContactDirectory), new(MockNotifier))
	uc := NewReconcileEnrollmentsUseCase(repo, confirm)

	repo.On("ListCRMPending", mock.Anything, mock.Anything, 50).
		Return(nil, assert.AnError)
	repo.On("ListUnnotified", mock.Anything, 50).
		Return(nil, assert.AnError)
	repo.On("DeleteAbandoned", mock.Anything, mock.Anything).Return(int64(0), nil)

	// A broken list query must not stop the rest of the sweep.
	uc.Execute(context.Background())

	repo.AssertCalled(t, "DeleteAbandoned", mock.Anything, mock.Anything)
}
