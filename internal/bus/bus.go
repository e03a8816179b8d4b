package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kpapadakis/ledgerdesk/internal/config"
	"github.com/kpapadakis/ledgerdesk/internal/store"
)

const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
)

// Bus is the inter-agent request/response channel. Every message is a
// durable agent_messages row; senders block on WaitForResponse, and
// recipients discover work by polling Pending at the start of their
// next turn. A NATS notification on the terminal transition wakes
// waiters early, with a coarse poll as fallback, so correctness never
// depends on the notification arriving.
type Bus struct {
	store        *store.Store
	conn         *nats.Conn
	pollInterval time.Duration
	waitTimeout  time.Duration
}

func New(s *store.Store, srv *Server, cfg config.BusConfig) (*Bus, error) {
	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	b := &Bus{
		store:        s,
		conn:         conn,
		pollInterval: cfg.PollInterval,
		waitTimeout:  cfg.WaitTimeout,
	}
	if b.pollInterval <= 0 {
		b.pollInterval = 250 * time.Millisecond
	}
	if b.waitTimeout <= 0 {
		b.waitTimeout = 5 * time.Second
	}
	return b, nil
}

func (b *Bus) Close() {
	b.conn.Close()
}

// WaitTimeout is the configured upper bound senders should pass to
// WaitForResponse.
func (b *Bus) WaitTimeout() time.Duration {
	return b.waitTimeout
}

// Send creates a PENDING message addressed to another agent and nudges
// its inbox subject.
func (b *Bus) Send(senderID, recipientID, action string, payload any, userID, priority, conversationKey string) (*store.AgentMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if priority == "" {
		priority = PriorityNormal
	}

	m := &store.AgentMessage{
		ID:              uuid.NewString(),
		Sender:          senderID,
		Recipient:       recipientID,
		Action:          action,
		Payload:         raw,
		UserID:          userID,
		Priority:        priority,
		ConversationKey: conversationKey,
		Status:          store.MessagePending,
	}
	if err := b.store.SaveAgentMessage(m); err != nil {
		return nil, err
	}

	if err := b.conn.Publish(TopicInbox(recipientID), []byte(m.ID)); err != nil {
		slog.Warn("inbox notify failed, recipient will poll", "recipient", recipientID, "error", err)
	}
	return m, nil
}

// WaitForResponse blocks until the message reaches a terminal status or
// the timeout elapses. Timeout returns (nil, nil): the recipient may
// still finish the work later, so the caller proceeds with its
// best-effort default rather than treating the silence as fatal.
func (b *Bus) WaitForResponse(ctx context.Context, messageID string, timeout time.Duration) (*store.AgentMessage, error) {
	if timeout <= 0 {
		timeout = b.waitTimeout
	}

	notify := make(chan struct{}, 1)
	sub, err := b.conn.Subscribe(TopicResponse(messageID), func(_ *nats.Msg) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	if err != nil {
		slog.Warn("response subscribe failed, falling back to polling", "message", messageID, "error", err)
	} else {
		defer sub.Unsubscribe()
		b.conn.Flush()
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		// Re-read first: the respond may have landed before the
		// subscription was in place.
		m, err := b.store.GetAgentMessage(messageID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("message %s not found", messageID)
		}
		if store.IsTerminalStatus(m.Status) {
			return m, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			// Last look before giving up, in case the respond landed
			// during the final wait.
			m, err := b.store.GetAgentMessage(messageID)
			if err == nil && m != nil && store.IsTerminalStatus(m.Status) {
				return m, nil
			}
			slog.Warn("wait for response timed out", "message", messageID, "timeout", timeout)
			return nil, nil
		case <-notify:
		case <-ticker.C:
		}
	}
}

// Respond transitions a message and records the response. Calling it on
// an already-terminal message is a no-op returning the existing row, so
// duplicate responses are harmless.
func (b *Bus) Respond(messageID, newStatus string, responsePayload any, responseText string) (*store.AgentMessage, error) {
	var raw json.RawMessage
	if responsePayload != nil {
		data, err := json.Marshal(responsePayload)
		if err != nil {
			return nil, fmt.Errorf("marshal response payload: %w", err)
		}
		raw = data
	}

	applied, err := b.store.TransitionAgentMessage(messageID, newStatus, raw, responseText)
	if err != nil {
		return nil, err
	}

	m, err := b.store.GetAgentMessage(messageID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("message %s not found", messageID)
	}

	if applied && store.IsTerminalStatus(newStatus) {
		if err := b.conn.Publish(TopicResponse(messageID), []byte(newStatus)); err != nil {
			slog.Warn("response notify failed, waiter will poll", "message", messageID, "error", err)
		}
	}
	return m, nil
}

// MarkInProgress claims a pending message before working on it.
func (b *Bus) MarkInProgress(messageID string) error {
	_, err := b.store.TransitionAgentMessage(messageID, store.MessageInProgress, nil, "")
	return err
}

// Cancel withdraws a message that no agent has started on.
func (b *Bus) Cancel(messageID string) (bool, error) {
	return b.store.CancelAgentMessage(messageID)
}

// OnInbox invokes fn whenever a message is sent to the agent's inbox
// subject. Notifications are best-effort; callers still poll.
func (b *Bus) OnInbox(agentID string, fn func()) error {
	_, err := b.conn.Subscribe(TopicInbox(agentID), func(_ *nats.Msg) { fn() })
	if err != nil {
		return fmt.Errorf("subscribe inbox %s: %w", agentID, err)
	}
	return b.conn.Flush()
}

// Pending lists unclaimed messages addressed to an agent, highest
// priority first.
func (b *Bus) Pending(agentID string) ([]store.AgentMessage, error) {
	return b.store.PendingMessagesFor(agentID)
}
