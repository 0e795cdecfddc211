package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hartwellkc/clubsite/internal/model"
)

type EntryFeeStore struct {
	db *sql.DB
}

func NewEntryFeeStore(db *sql.DB) *EntryFeeStore {
	return &EntryFeeStore{db: db}
}

const entryFeeCols = `id, member_id, show_name, class_name, amount_cents, paid, payment_id, created_at`

func scanEntryFee(scanner interface{ Scan(...any) error }) (*model.EntryFee, error) {
	var e model.EntryFee
	var paymentID sql.NullInt64
	err := scanner.Scan(&e.ID, &e.MemberID, &e.ShowName, &e.ClassName,
		&e.AmountCents, &e.Paid, &paymentID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if paymentID.Valid {
		e.PaymentID = &paymentID.Int64
	}
	return &e, nil
}

func (s *EntryFeeStore) Create(memberID int64, showName, className string, amountCents int64) (*model.EntryFee, error) {
	result, err := s.db.Exec(
		`INSERT INTO entry_fees (member_id, show_name, class_name, amount_cents) VALUES (?, ?, ?, ?)`,
		memberID, showName, className, amountCents,
	)
	if err != nil {
		return nil, fmt.Errorf("insert entry fee: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+entryFeeCols+` FROM entry_fees WHERE id = ?`, id)
	return scanEntryFee(row)
}

// GetUnpaidForMember returns the requested entry fees only when every id
// exists, is owned by the member, and is unpaid. Otherwise it returns nil.
func (s *EntryFeeStore) GetUnpaidForMember(ids []int64, memberID int64) ([]*model.EntryFee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, memberID)

	rows, err := s.db.Query(
		`SELECT `+entryFeeCols+` FROM entry_fees
		 WHERE id IN (`+placeholders+`) AND member_id = ? AND paid = 0 ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("get entry fees: %w", err)
	}
	defer rows.Close()

	var fees []*model.EntryFee
	for rows.Next() {
		e, err := scanEntryFee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry fee: %w", err)
		}
		fees = append(fees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(fees) != len(ids) {
		return nil, nil
	}
	return fees, nil
}

func (s *EntryFeeStore) ListUnpaidByMember(memberID int64) ([]*model.EntryFee, error) {
	rows, err := s.db.Query(
		`SELECT `+entryFeeCols+` FROM entry_fees WHERE member_id = ? AND paid = 0 ORDER BY id`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list unpaid entry fees: %w", err)
	}
	defer rows.Close()

	var fees []*model.EntryFee
	for rows.Next() {
		e, err := scanEntryFee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry fee: %w", err)
		}
		fees = append(fees, e)
	}
	return fees, rows.Err()
}

// AttachPayment links entry fees to the pending payment covering them.
func (s *EntryFeeStore) AttachPayment(ids []int64, paymentID int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, paymentID)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.Exec(
		`UPDATE entry_fees SET payment_id = ? WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("attach payment to entry fees: %w", err)
	}
	return nil
}

// MarkPaidByPayment marks every entry fee covered by the payment as paid and
// returns the number updated. Repeating the call is a no-op.
func (s *EntryFeeStore) MarkPaidByPayment(paymentID int64) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE entry_fees SET paid = 1 WHERE payment_id = ? AND paid = 0`,
		paymentID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark entry fees paid: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
