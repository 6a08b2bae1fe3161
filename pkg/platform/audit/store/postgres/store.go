package postgres

import (
	"context"
	"database/sql"
	"fmt"

	audit "lifeline/pkg/platform/audit"
	txcontext "lifeline/pkg/platform/tx"

	"github.com/google/uuid"
)

// Store implements audit.Store on the audit_events table. Appends join the
// caller's transaction when one is present in the context, so a moderation
// decision and its audit row commit together.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an audit event. Idempotent on event id.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	// Always derive category from action - eventCategories map is the source of truth
	category := audit.AuditEvent(event.Action).Category()

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, subject, action,
			actor_id, decision, reason, request_id, client_ip, client_device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		eventID,
		string(category),
		event.Timestamp,
		event.Subject,
		event.Action,
		event.ActorID,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.ClientDevice,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySubject returns events for a candidate or limiter identifier, oldest first.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, subject, action,
			   actor_id, decision, reason, request_id, client_ip, client_device
		FROM audit_events
		WHERE subject = $1
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, subject, action,
			   actor_id, decision, reason, request_id, client_ip, client_device
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			category string
			event    audit.Event
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&event.Subject,
			&event.Action,
			&event.ActorID,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.ClientIP,
			&event.ClientDevice,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
