package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Agent message status lifecycle. Terminal rows are immutable.
const (
	MessagePending    = "PENDING"
	MessageInProgress = "IN_PROGRESS"
	MessageCompleted  = "COMPLETED"
	MessageFailed     = "FAILED"
	MessageCancelled  = "CANCELLED"
)

func IsTerminalStatus(status string) bool {
	switch status {
	case MessageCompleted, MessageFailed, MessageCancelled:
		return true
	}
	return false
}

type AgentMessage struct {
	ID              string          `json:"id"`
	Sender          string          `json:"sender"`
	Recipient       string          `json:"recipient"`
	Action          string          `json:"action"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	UserID          string          `json:"user_id"`
	Priority        string          `json:"priority"`
	ConversationKey string          `json:"conversation_key,omitempty"`
	Status          string          `json:"status"`
	ResponsePayload json.RawMessage `json:"response_payload,omitempty"`
	ResponseText    string          `json:"response_text,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (s *Store) SaveAgentMessage(m *AgentMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO agent_messages (id, sender, recipient, action, payload, user_id, priority, conversation_key, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Sender, m.Recipient, m.Action, string(m.Payload), m.UserID, m.Priority, m.ConversationKey, m.Status)
	if err != nil {
		return fmt.Errorf("save agent message: %w", err)
	}
	return nil
}

func (s *Store) GetAgentMessage(id string) (*AgentMessage, error) {
	row := s.db.QueryRow(`
		SELECT id, sender, recipient, action, payload, user_id, priority, conversation_key,
		       status, response_payload, response_text, created_at, updated_at
		FROM agent_messages WHERE id = ?`, id)
	return scanAgentMessage(row)
}

// PendingMessagesFor lists PENDING rows addressed to an agent, oldest
// first within priority, HIGH before NORMAL before LOW.
func (s *Store) PendingMessagesFor(recipient string) ([]AgentMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, sender, recipient, action, payload, user_id, priority, conversation_key,
		       status, response_payload, response_text, created_at, updated_at
		FROM agent_messages
		WHERE recipient = ? AND status = ?
		ORDER BY CASE priority WHEN 'HIGH' THEN 0 WHEN 'NORMAL' THEN 1 ELSE 2 END, created_at`,
		recipient, MessagePending)
	if err != nil {
		return nil, fmt.Errorf("pending messages: %w", err)
	}
	defer rows.Close()

	var messages []AgentMessage
	for rows.Next() {
		m, err := scanAgentMessageRows(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// TransitionAgentMessage moves a message to a new status, writing the
// response fields when given. Rows already in a terminal status are
// left untouched and reported via the returned bool, which makes
// terminal transitions idempotent. Claiming via IN_PROGRESS is
// advisory: a recipient that finishes the work in one step may respond
// terminally straight from PENDING.
func (s *Store) TransitionAgentMessage(id, newStatus string, responsePayload json.RawMessage, responseText string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE agent_messages
		SET status = ?,
		    response_payload = COALESCE(?, response_payload),
		    response_text = CASE WHEN ? != '' THEN ? ELSE response_text END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (?, ?)`,
		newStatus, nullableJSON(responsePayload), responseText, responseText,
		id, MessagePending, MessageInProgress)
	if err != nil {
		return false, fmt.Errorf("transition message: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CancelAgentMessage is only legal from PENDING; anything later keeps
// its state.
func (s *Store) CancelAgentMessage(id string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE agent_messages
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`,
		MessageCancelled, id, MessagePending)
	if err != nil {
		return false, fmt.Errorf("cancel message: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func scanAgentMessage(row *sql.Row) (*AgentMessage, error) {
	var m AgentMessage
	var payload, respPayload, respText, convKey sql.NullString
	err := row.Scan(&m.ID, &m.Sender, &m.Recipient, &m.Action, &payload, &m.UserID, &m.Priority,
		&convKey, &m.Status, &respPayload, &respText, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent message: %w", err)
	}
	fillAgentMessage(&m, payload, respPayload, respText, convKey)
	return &m, nil
}

func scanAgentMessageRows(rows *sql.Rows) (*AgentMessage, error) {
	var m AgentMessage
	var payload, respPayload, respText, convKey sql.NullString
	err := rows.Scan(&m.ID, &m.Sender, &m.Recipient, &m.Action, &payload, &m.UserID, &m.Priority,
		&convKey, &m.Status, &respPayload, &respText, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan agent message: %w", err)
	}
	fillAgentMessage(&m, payload, respPayload, respText, convKey)
	return &m, nil
}

func fillAgentMessage(m *AgentMessage, payload, respPayload, respText, convKey sql.NullString) {
	if payload.Valid && payload.String != "" {
		m.Payload = json.RawMessage(payload.String)
	}
	if respPayload.Valid && respPayload.String != "" {
		m.ResponsePayload = json.RawMessage(respPayload.String)
	}
	m.ResponseText = respText.String
	m.ConversationKey = convKey.String
}
