package store

import (
	"database/sql"
	"fmt"
)

// WebhookEventStore records processed gateway event ids. The gateway delivers
// at least once; the unique event_id column turns replays into no-ops.
type WebhookEventStore struct {
	db *sql.DB
}

func NewWebhookEventStore(db *sql.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

// Record stores an event id and reports whether it had already been processed.
func (s *WebhookEventStore) Record(eventID, eventType string) (alreadySeen bool, err error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO webhook_events (event_id, event_type) VALUES (?, ?)`,
		eventID, eventType,
	)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 0, nil
}

// Prune deletes audit rows older than the given number of days.
func (s *WebhookEventStore) Prune(days int) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM webhook_events WHERE processed_at <= datetime('now', ?)`,
		fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return 0, fmt.Errorf("prune webhook events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
