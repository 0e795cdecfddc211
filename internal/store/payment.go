package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hartwellkc/clubsite/internal/model"
)

// PaymentStore is the service-scoped handle to payment rows, used by webhook
// reconciliation and admin actions. Member-facing reads go through the
// row-scoped view returned by Scoped.
type PaymentStore struct {
	db *sql.DB
}

func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

const paymentCols = `id, member_id, amount_cents, payment_type, membership_type_slug,
	description, stripe_checkout_session_id, stripe_payment_intent_id, status,
	failure_reason, created_at, updated_at`

func scanPayment(scanner interface{ Scan(...any) error }) (*model.Payment, error) {
	var p model.Payment
	var typeSlug, intentID, failureReason sql.NullString
	err := scanner.Scan(&p.ID, &p.MemberID, &p.AmountCents, &p.PaymentType,
		&typeSlug, &p.Description, &p.StripeCheckoutSessionID, &intentID,
		&p.Status, &failureReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if typeSlug.Valid {
		p.MembershipTypeSlug = &typeSlug.String
	}
	if intentID.Valid {
		p.StripePaymentIntentID = &intentID.String
	}
	if failureReason.Valid {
		p.FailureReason = &failureReason.String
	}
	return &p, nil
}

// CreateParams describes a pending payment mirroring a just-created checkout
// session.
type CreateParams struct {
	MemberID           int64
	AmountCents        int64
	PaymentType        string
	MembershipTypeSlug *string
	Description        string
	CheckoutSessionID  string
}

func (s *PaymentStore) Create(p CreateParams) (*model.Payment, error) {
	result, err := s.db.Exec(
		`INSERT INTO payments (member_id, amount_cents, payment_type,
		 membership_type_slug, description, stripe_checkout_session_id, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.MemberID, p.AmountCents, p.PaymentType, p.MembershipTypeSlug,
		p.Description, p.CheckoutSessionID, model.PaymentPending,
	)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *PaymentStore) GetByID(id int64) (*model.Payment, error) {
	row := s.db.QueryRow(`SELECT `+paymentCols+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (s *PaymentStore) GetBySessionID(sessionID string) (*model.Payment, error) {
	row := s.db.QueryRow(`SELECT `+paymentCols+` FROM payments WHERE stripe_checkout_session_id = ?`, sessionID)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment by session: %w", err)
	}
	return p, nil
}

func (s *PaymentStore) GetByIntentID(intentID string) (*model.Payment, error) {
	row := s.db.QueryRow(`SELECT `+paymentCols+` FROM payments WHERE stripe_payment_intent_id = ?`, intentID)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment by intent: %w", err)
	}
	return p, nil
}

// MarkSucceeded transitions the payment for a checkout session from pending to
// succeeded and records the payment intent id. The conditional update absorbs
// duplicate webhook deliveries: it reports false when no pending row matched.
func (s *PaymentStore) MarkSucceeded(sessionID, intentID string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE payments SET status = ?,
		 stripe_payment_intent_id = COALESCE(NULLIF(?, ''), stripe_payment_intent_id),
		 updated_at = CURRENT_TIMESTAMP
		 WHERE stripe_checkout_session_id = ? AND status = ?`,
		model.PaymentSucceeded, intentID, sessionID, model.PaymentPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment succeeded: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkFailedByIntent transitions a pending payment matched by payment intent id
// to failed, retaining the gateway's failure reason.
func (s *PaymentStore) MarkFailedByIntent(intentID, reason string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE payments SET status = ?, failure_reason = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE stripe_payment_intent_id = ? AND status = ?`,
		model.PaymentFailed, reason, intentID, model.PaymentPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkExpired fails a pending payment whose checkout session the gateway
// reports as expired. Used by the reconciliation sweep.
func (s *PaymentStore) MarkExpired(sessionID string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE payments SET status = ?, failure_reason = 'checkout session expired',
		 updated_at = CURRENT_TIMESTAMP
		 WHERE stripe_checkout_session_id = ? AND status = ?`,
		model.PaymentFailed, sessionID, model.PaymentPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment expired: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// SetIntentID backfills the payment intent id on the payment for a session if
// not already set. Used by the reconciliation sweep when the gateway reports
// an intent on a still-open session.
func (s *PaymentStore) SetIntentID(sessionID, intentID string) error {
	_, err := s.db.Exec(
		`UPDATE payments SET stripe_payment_intent_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE stripe_checkout_session_id = ? AND stripe_payment_intent_id IS NULL`,
		intentID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("set payment intent id: %w", err)
	}
	return nil
}

// MarkRefunded transitions a succeeded payment to refunded.
func (s *PaymentStore) MarkRefunded(id int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE payments SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		model.PaymentRefunded, id, model.PaymentSucceeded,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment refunded: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListStalePending returns pending payments created before the cutoff,
// candidates for reconciliation against the gateway.
func (s *PaymentStore) ListStalePending(cutoff time.Time) ([]*model.Payment, error) {
	rows, err := s.db.Query(
		`SELECT `+paymentCols+` FROM payments WHERE status = ? AND created_at < ? ORDER BY id`,
		model.PaymentPending, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale pending payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (s *PaymentStore) ListAll() ([]*model.Payment, error) {
	rows, err := s.db.Query(`SELECT ` + paymentCols + ` FROM payments ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func collectPayments(rows *sql.Rows) ([]*model.Payment, error) {
	var payments []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// MemberPayments is a row-scoped view over payments restricted to one member.
// Handlers acting on behalf of a signed-in member use this instead of the
// service-scoped store so ownership is enforced in the query itself.
type MemberPayments struct {
	db       *sql.DB
	memberID int64
}

// Scoped returns the view restricted to the given member's rows.
func (s *PaymentStore) Scoped(memberID int64) *MemberPayments {
	return &MemberPayments{db: s.db, memberID: memberID}
}

func (v *MemberPayments) List() ([]*model.Payment, error) {
	rows, err := v.db.Query(
		`SELECT `+paymentCols+` FROM payments WHERE member_id = ? ORDER BY created_at DESC, id DESC`,
		v.memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list member payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (v *MemberPayments) Get(id int64) (*model.Payment, error) {
	row := v.db.QueryRow(
		`SELECT `+paymentCols+` FROM payments WHERE id = ? AND member_id = ?`,
		id, v.memberID,
	)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member payment: %w", err)
	}
	return p, nil
}
