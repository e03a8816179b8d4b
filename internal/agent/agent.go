package agent

import (
	"context"
	"time"

	"github.com/kpapadakis/ledgerdesk/internal/bus"
	"github.com/kpapadakis/ledgerdesk/internal/ledger"
	"github.com/kpapadakis/ledgerdesk/internal/nlp"
	"github.com/kpapadakis/ledgerdesk/internal/pending"
	"github.com/kpapadakis/ledgerdesk/internal/store"
)

// Agent ids are stable wire identifiers: they address bus messages and
// key conversation continuity, so renaming one is a breaking change.
const (
	IDPayable       = "payable"
	IDGeneralLedger = "generalledger"
	IDStatement     = "statement"
	IDReceivable    = "receivable"
	IDChat          = "chat"
)

type Request struct {
	UserID          string
	ConversationKey string
	Utterance       string
}

// Reply is the only thing a worker ever surfaces: internal errors are
// converted to Success=false with a user-safe message, with diagnostic
// detail going to the audit log instead.
type Reply struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func ok(message string, data map[string]any) *Reply {
	return &Reply{Success: true, Message: message, Data: data}
}

func fail(message string) *Reply {
	return &Reply{Success: false, Message: message}
}

// Agent is one interchangeable worker: it claims utterances it can
// serve and handles the ones dispatched to it. Handle never returns an
// error; worker failures must not escape to the router.
type Agent interface {
	ID() string
	Describe() string
	CanHandle(utterance string) bool
	Handle(ctx context.Context, req *Request) *Reply
}

// InboxWorker is implemented by agents that serve bus requests from
// other agents. ServeInbox drains PENDING messages addressed to the
// agent; it runs at the start of each Handle turn and from the inbox
// runner between turns.
type InboxWorker interface {
	Agent
	ServeInbox(ctx context.Context)
}

// Deps wires a worker to the core collaborators. The nlp pipeline is
// fixed at construction: strategy selection is a build-time decision,
// never a runtime rewrite of the worker.
type Deps struct {
	Store   *store.Store
	Ledger  *ledger.Engine
	Bus     *bus.Bus
	Pending *pending.Store
	NLP     *nlp.Pipeline

	// Chart-of-accounts codes the workers fall back to.
	DefaultExpenseCode string
}

func today() string {
	return time.Now().Format("2006-01-02")
}

func (d *Deps) audit(userID, actionType, entityID, status, detail string) {
	_ = d.Store.AppendAuditEvent(&store.AuditEvent{
		UserID:     userID,
		ActionType: actionType,
		EntityID:   entityID,
		Status:     status,
		Detail:     detail,
	})
}
