package store

import (
	"database/sql"
	"fmt"
	"time"
)

type AuditEvent struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	ActionType string    `json:"action_type"`
	EntityID   string    `json:"entity_id,omitempty"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Store) AppendAuditEvent(e *AuditEvent) error {
	result, err := s.db.Exec(`
		INSERT INTO audit_events (user_id, action_type, entity_id, status, detail)
		VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.ActionType, e.EntityID, e.Status, e.Detail)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	e.ID, _ = result.LastInsertId()
	return nil
}

func (s *Store) RecentAuditEvents(limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, action_type, entity_id, status, detail, created_at
		FROM audit_events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var entity, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.ActionType, &entity, &e.Status, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.EntityID, e.Detail = entity.String, detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}
