package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ccielab/enrollment-service/internal/entity"
)

// EnrollmentRepository persists enrollment records and the idempotency
// ledger. Two tables: enrollments (the record + intent snapshot + outcome)
// and payment_claims, whose primary key (gateway, transaction_id) is the
// compare-and-set guard against duplicate confirm callbacks.
type EnrollmentRepository struct {
	DB *sql.DB
}

func NewEnrollmentRepository(db *sql.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

const enrollmentColumns = `
	id, state, fail_reason,
	contact_id, email, name, phone, course_id, plan, price_cents, currency, gateway,
	payable_ref, txn_id, outcome_amount_cents, outcome_currency, outcome_status,
	crm_updated, customer_notified, staff_notified,
	crm_attempts, next_retry_at,
	created_at, updated_at, confirmed_at, completed_at`

func (r *EnrollmentRepository) Create(ctx context.Context, rec *entity.EnrollmentRecord) error {
	query := `
		INSERT INTO enrollments (
			id, state, contact_id, email, name, phone, course_id, plan,
			price_cents, currency, gateway, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.DB.ExecContext(ctx, query,
		rec.ID,
		rec.State,
		rec.Intent.ContactID,
		rec.Intent.Email,
		rec.Intent.Name,
		rec.Intent.Phone,
		rec.Intent.CourseID,
		rec.Intent.Plan,
		rec.Intent.PriceCents,
		rec.Intent.Currency,
		rec.Intent.Gateway,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*entity.EnrollmentRecord, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, id))
}

func (r *EnrollmentRepository) FindByTransactionID(ctx context.Context, gateway, txnID string) (*entity.EnrollmentRecord, error) {
	// Join through the claims ledger: a claim can exist for a record whose
	// outcome column was not written yet (crash between claim and save).
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments e
		JOIN payment_claims c ON c.enrollment_id = e.id
		WHERE c.gateway = $1 AND c.transaction_id = $2
	`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, gateway, txnID))
}

func (r *EnrollmentRepository) FindByPayableRef(ctx context.Context, gateway, payableRef string) (*entity.EnrollmentRecord, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE gateway = $1 AND payable_ref = $2`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, gateway, payableRef))
}

// ClaimTransaction is the atomic compare-and-set of the whole service. Out
// of N concurrent callbacks for one transaction id, exactly one INSERT
// lands; everyone else sees zero rows and must no-op.
func (r *EnrollmentRepository) ClaimTransaction(ctx context.Context, gateway, txnID, recordID string) (bool, error) {
	query := `
		INSERT INTO payment_claims (gateway, transaction_id, enrollment_id, claimed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (gateway, transaction_id) DO NOTHING
	`

	res, err := r.DB.ExecContext(ctx, query, gateway, txnID, recordID)
	if err != nil {
		return false, fmt.Errorf("failed to claim transaction %s: %w", txnID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *EnrollmentRepository) UpdateState(ctx context.Context, id, state, failReason string) error {
	query := `
		UPDATE enrollments
		SET state = $1,
		    fail_reason = $2,
		    updated_at = NOW(),
		    completed_at = CASE WHEN $1 = 'NOTIFIED' THEN NOW() ELSE completed_at END
		WHERE id = $3
	`
	_, err := r.DB.ExecContext(ctx, query, state, failReason, id)
	return err
}

func (r *EnrollmentRepository) SavePayableRef(ctx context.Context, id, gateway, payableRef string) error {
	query := `UPDATE enrollments SET gateway = $1, payable_ref = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.DB.ExecContext(ctx, query, gateway, payableRef, id)
	return err
}

func (r *EnrollmentRepository) SaveOutcome(ctx context.Context, id string, outcome *entity.PaymentOutcome, state string) error {
	query := `
		UPDATE enrollments
		SET txn_id = $1,
		    outcome_amount_cents = $2,
		    outcome_currency = $3,
		    outcome_status = $4,
		    state = $5,
		    confirmed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $6
	`
	_, err := r.DB.ExecContext(ctx, query,
		outcome.TransactionID,
		outcome.AmountCents,
		outcome.Currency,
		outcome.Status,
		state,
		id,
	)
	return err
}

func (r *EnrollmentRepository) MarkCRMUpdated(ctx context.Context, id string) error {
	query := `
		UPDATE enrollments
		SET crm_updated = TRUE, state = 'CRM_UPDATED', next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.DB.ExecContext(ctx, query, id)
	return err
}

func (r *EnrollmentRepository) MarkNotified(ctx context.Context, id, kind string) error {
	column := "customer_notified"
	if kind == "STAFF_ENROLLMENT" {
		column = "staff_notified"
	}
	query := fmt.Sprintf(`UPDATE enrollments SET %s = TRUE, updated_at = NOW() WHERE id = $1`, column)
	_, err := r.DB.ExecContext(ctx, query, id)
	return err
}

func (r *EnrollmentRepository) ScheduleCRMRetry(ctx context.Context, id string, attempts int, nextAt time.Time) error {
	query := `UPDATE enrollments SET crm_attempts = $1, next_retry_at = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.DB.ExecContext(ctx, query, attempts, nextAt, id)
	return err
}

func (r *EnrollmentRepository) ListCRMPending(ctx context.Context, now time.Time, limit int) ([]*entity.EnrollmentRecord, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE state = 'PAYMENT_CONFIRMED_CRM_PENDING'
		  AND next_retry_at IS NOT NULL
		  AND next_retry_at <= $1
		ORDER BY next_retry_at
		LIMIT $2
	`
	return r.scanMany(ctx, query, now, limit)
}

func (r *EnrollmentRepository) ListUnnotified(ctx context.Context, limit int) ([]*entity.EnrollmentRecord, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE state = 'CRM_UPDATED'
		ORDER BY updated_at
		LIMIT $1
	`
	return r.scanMany(ctx, query, limit)
}

func (r *EnrollmentRepository) DeleteAbandoned(ctx context.Context, olderThan time.Time) (int64, error) {
	// Only pre-payment states. Anything at or past PAYMENT_CONFIRMED
	// represents real money and is never garbage-collected.
	query := `
		DELETE FROM enrollments
		WHERE state IN ('DRAFT', 'CONTACT_RESOLVED', 'PAYMENT_INITIATED')
		  AND created_at < $1
	`
	res, err := r.DB.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *EnrollmentRepository) scanOne(row rowScanner) (*entity.EnrollmentRecord, error) {
	var rec entity.EnrollmentRecord
	var failReason, gateway, payableRef, txnID, outcomeCurrency, outcomeStatus sql.NullString
	var outcomeAmount sql.NullInt64
	var nextRetryAt, confirmedAt, completedAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.State, &failReason,
		&rec.Intent.ContactID, &rec.Intent.Email, &rec.Intent.Name, &rec.Intent.Phone,
		&rec.Intent.CourseID, &rec.Intent.Plan, &rec.Intent.PriceCents, &rec.Intent.Currency, &gateway,
		&payableRef, &txnID, &outcomeAmount, &outcomeCurrency, &outcomeStatus,
		&rec.CRMUpdated, &rec.CustomerNotified, &rec.StaffNotified,
		&rec.CRMAttempts, &nextRetryAt,
		&rec.CreatedAt, &rec.UpdatedAt, &confirmedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	rec.FailReason = failReason.String
	rec.Intent.Gateway = gateway.String
	rec.PayableRef = payableRef.String
	if nextRetryAt.Valid {
		rec.NextRetryAt = &nextRetryAt.Time
	}
	if confirmedAt.Valid {
		rec.ConfirmedAt = &confirmedAt.Time
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	if txnID.Valid && txnID.String != "" {
		rec.Outcome = &entity.PaymentOutcome{
			Gateway:       gateway.String,
			TransactionID: txnID.String,
			AmountCents:   outcomeAmount.Int64,
			Currency:      outcomeCurrency.String,
			Status:        outcomeStatus.String,
		}
	}

	return &rec, nil
}

func (r *EnrollmentRepository) scanMany(ctx context.Context, query string, args ...any) ([]*entity.EnrollmentRecord, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*entity.EnrollmentRecord
	for rows.Next() {
		rec, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
