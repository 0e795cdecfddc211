package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hartwellkc/clubsite/internal/model"
)

// MemberStore is the service-scoped handle to member rows. Member-facing
// handlers only ever read their own row (by the session's member id);
// everything else here runs on behalf of webhooks, admin actions, or auth.
type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberCols = `id, email, name, phone, address, role, membership_type_slug,
	membership_status, membership_started_at, membership_expires_at,
	stripe_customer_id, email_confirmed_at, created_at, updated_at`

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	var phone, address, typeSlug, custID sql.NullString
	var startedAt, expiresAt, confirmedAt sql.NullTime
	err := scanner.Scan(&m.ID, &m.Email, &m.Name, &phone, &address, &m.Role,
		&typeSlug, &m.MembershipStatus, &startedAt, &expiresAt, &custID,
		&confirmedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if phone.Valid {
		m.Phone = &phone.String
	}
	if address.Valid {
		m.Address = &address.String
	}
	if typeSlug.Valid {
		m.MembershipTypeSlug = &typeSlug.String
	}
	if custID.Valid {
		m.StripeCustomerID = &custID.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		m.MembershipStartedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		m.MembershipExpiresAt = &t
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		m.EmailConfirmedAt = &t
	}
	return &m, nil
}

func (s *MemberStore) Create(email, name string) (*model.Member, error) {
	result, err := s.db.Exec(
		`INSERT INTO members (email, name) VALUES (?, ?)`,
		email, name,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MemberStore) GetByID(id int64) (*model.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) GetByEmail(email string) (*model.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM members WHERE email = ?`, email)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member by email: %w", err)
	}
	return m, nil
}

// SetStripeCustomerID backfills the gateway customer id for a member. This is
// the single privileged write against a member row outside the member's own
// authorization: write-once, the id is stable for all future charges.
func (s *MemberStore) SetStripeCustomerID(id int64, customerID string) error {
	_, err := s.db.Exec(
		`UPDATE members SET stripe_customer_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND stripe_customer_id IS NULL`,
		customerID, id,
	)
	if err != nil {
		return fmt.Errorf("set stripe customer id: %w", err)
	}
	return nil
}

// ActivateMembership advances a member to active status and extends the
// validity window by the purchased type's duration. The new window starts at
// the current expiry when the membership is still running, otherwise at now.
// A nil duration means lifetime: the expiry is cleared.
func (s *MemberStore) ActivateMembership(id int64, typeSlug string, durationMonths *int64) error {
	m, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("activate membership: member %d not found", id)
	}

	now := time.Now().UTC()
	started := now
	if m.MembershipStartedAt != nil {
		started = *m.MembershipStartedAt
	}

	var expires *time.Time
	if durationMonths != nil {
		base := now
		if m.MembershipExpiresAt != nil && m.MembershipExpiresAt.After(now) {
			base = *m.MembershipExpiresAt
		}
		e := base.AddDate(0, int(*durationMonths), 0)
		expires = &e
	}

	_, err = s.db.Exec(
		`UPDATE members SET membership_status = ?, membership_type_slug = ?,
		 membership_started_at = ?, membership_expires_at = ?,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.MembershipActive, typeSlug, started, expires, id,
	)
	if err != nil {
		return fmt.Errorf("activate membership: %w", err)
	}
	return nil
}

func (s *MemberStore) ConfirmEmail(id int64) error {
	_, err := s.db.Exec(
		`UPDATE members SET email_confirmed_at = CURRENT_TIMESTAMP,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ? AND email_confirmed_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	return nil
}

func (s *MemberStore) SetRole(id int64, role string) error {
	_, err := s.db.Exec(
		`UPDATE members SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		role, id,
	)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}
