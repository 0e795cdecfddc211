package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hartwellkc/clubsite/internal/model"
)

type AuthCodeStore struct {
	db *sql.DB
}

func NewAuthCodeStore(db *sql.DB) *AuthCodeStore {
	return &AuthCodeStore{db: db}
}

const authCodeCols = `id, code, member_id, used, expires_at, created_at`

func scanAuthCode(scanner interface{ Scan(...any) error }) (*model.AuthCode, error) {
	var c model.AuthCode
	err := scanner.Scan(&c.ID, &c.Code, &c.MemberID, &c.Used, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create generates a single-use login code valid for 15 minutes.
func (s *AuthCodeStore) Create(memberID int64) (*model.AuthCode, error) {
	codeBytes := make([]byte, 32)
	if _, err := rand.Read(codeBytes); err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	code := hex.EncodeToString(codeBytes)
	expiresAt := time.Now().UTC().Add(15 * time.Minute)

	result, err := s.db.Exec(
		`INSERT INTO auth_codes (code, member_id, expires_at) VALUES (?, ?, ?)`,
		code, memberID, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert auth code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+authCodeCols+` FROM auth_codes WHERE id = ?`, id)
	return scanAuthCode(row)
}

// Exchange consumes an unused, unexpired code and returns the member id it was
// issued for. The conditional update makes consumption atomic: a code can be
// exchanged at most once. Returns (0, nil) when the code is invalid.
func (s *AuthCodeStore) Exchange(code string) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE auth_codes SET used = 1 WHERE code = ? AND used = 0 AND expires_at > ?`,
		code, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("exchange auth code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	row := s.db.QueryRow(`SELECT member_id FROM auth_codes WHERE code = ?`, code)
	var memberID int64
	if err := row.Scan(&memberID); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("get exchanged code: %w", err)
	}
	return memberID, nil
}

func (s *AuthCodeStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM auth_codes WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired auth codes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
