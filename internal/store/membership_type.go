package store

import (
	"database/sql"
	"fmt"

	"github.com/hartwellkc/clubsite/internal/model"
)

type MembershipTypeStore struct {
	db *sql.DB
}

func NewMembershipTypeStore(db *sql.DB) *MembershipTypeStore {
	return &MembershipTypeStore{db: db}
}

const membershipTypeCols = `id, name, slug, price_cents, duration_months,
	benefits, sort_order, is_active, created_at, updated_at`

func scanMembershipType(scanner interface{ Scan(...any) error }) (*model.MembershipType, error) {
	var t model.MembershipType
	var duration sql.NullInt64
	err := scanner.Scan(&t.ID, &t.Name, &t.Slug, &t.PriceCents, &duration,
		&t.Benefits, &t.SortOrder, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		t.DurationMonths = &duration.Int64
	}
	return &t, nil
}

func (s *MembershipTypeStore) Create(name, slug string, priceCents int64, durationMonths *int64) (*model.MembershipType, error) {
	result, err := s.db.Exec(
		`INSERT INTO membership_types (name, slug, price_cents, duration_months) VALUES (?, ?, ?, ?)`,
		name, slug, priceCents, durationMonths,
	)
	if err != nil {
		return nil, fmt.Errorf("insert membership type: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+membershipTypeCols+` FROM membership_types WHERE id = ?`, id)
	return scanMembershipType(row)
}

func (s *MembershipTypeStore) GetBySlug(slug string) (*model.MembershipType, error) {
	row := s.db.QueryRow(`SELECT `+membershipTypeCols+` FROM membership_types WHERE slug = ?`, slug)
	t, err := scanMembershipType(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership type: %w", err)
	}
	return t, nil
}

// ListActive returns purchasable membership types in display order.
func (s *MembershipTypeStore) ListActive() ([]*model.MembershipType, error) {
	rows, err := s.db.Query(
		`SELECT ` + membershipTypeCols + ` FROM membership_types WHERE is_active = 1 ORDER BY sort_order, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list membership types: %w", err)
	}
	defer rows.Close()

	var types []*model.MembershipType
	for rows.Next() {
		t, err := scanMembershipType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (s *MembershipTypeStore) SetActive(id int64, active bool) error {
	_, err := s.db.Exec(
		`UPDATE membership_types SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("set membership type active: %w", err)
	}
	return nil
}
