package store

import (
	"testing"
	"time"
)

func TestAuthCodeExchange(t *testing.T) {
	db := openTestDB(t)
	members := NewMemberStore(db)
	codes := NewAuthCodeStore(db)

	m, _ := members.Create("alice@example.com", "Alice")
	code, err := codes.Create(m.ID)
	if err != nil {
		t.Fatalf("create auth code: %v", err)
	}

	memberID, err := codes.Exchange(code.Code)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if memberID != m.ID {
		t.Errorf("exchanged member id = %d, want %d", memberID, m.ID)
	}
}

func TestAuthCodeSingleUse(t *testing.T) {
	db := openTestDB(t)
	members := NewMemberStore(db)
	codes := NewAuthCodeStore(db)

	m, _ := members.Create("alice@example.com", "Alice")
	code, _ := codes.Create(m.ID)

	if id, _ := codes.Exchange(code.Code); id != m.ID {
		t.Fatal("first exchange should succeed")
	}
	id, err := codes.Exchange(code.Code)
	if err != nil {
		t.Fatalf("second exchange: %v", err)
	}
	if id != 0 {
		t.Error("a consumed code must not exchange again")
	}
}

func TestAuthCodeExpired(t *testing.T) {
	db := openTestDB(t)
	members := NewMemberStore(db)
	codes := NewAuthCodeStore(db)

	m, _ := members.Create("alice@example.com", "Alice")
	code, _ := codes.Create(m.ID)

	expired := time.Now().UTC().Add(-time.Minute)
	if _, err := db.Exec(`UPDATE auth_codes SET expires_at = ? WHERE id = ?`, expired, code.ID); err != nil {
		t.Fatalf("expire code: %v", err)
	}

	id, err := codes.Exchange(code.Code)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if id != 0 {
		t.Error("expired code must not exchange")
	}

	n, err := codes.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d codes, want 1", n)
	}
}

func TestAuthCodeExchangeUnknown(t *testing.T) {
	codes := NewAuthCodeStore(openTestDB(t))

	id, err := codes.Exchange("bogus")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if id != 0 {
		t.Error("unknown code must not exchange")
	}
}
