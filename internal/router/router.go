package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kpapadakis/ledgerdesk/internal/agent"
	"github.com/kpapadakis/ledgerdesk/internal/nlp"
	"github.com/kpapadakis/ledgerdesk/internal/pending"
	"github.com/kpapadakis/ledgerdesk/internal/store"
)

// apology is what the user sees whenever dispatch itself fails. Worker
// errors never leak into the conversation.
const apology = "Sorry, something went wrong on my end. Please try that again."

// intentAgents maps classifier labels to worker ids. Static on purpose:
// the classifier is a fallback hint, not an authority, and an unknown
// label simply falls through to chat.
var intentAgents = map[string]string{
	nlp.IntentPayable:    agent.IDPayable,
	nlp.IntentLedger:     agent.IDGeneralLedger,
	nlp.IntentStatement:  agent.IDStatement,
	nlp.IntentReceivable: agent.IDReceivable,
	nlp.IntentChat:       agent.IDChat,
}

// Router owns dispatch: exactly one worker handles each utterance, and
// turns within one conversation run serialized in arrival order.
type Router struct {
	agents   []agent.Agent // registration order decides claim ties
	byID     map[string]agent.Agent
	fallback agent.Agent

	store      *store.Store
	pending    *pending.Store
	classifier nlp.Classifier

	mu     sync.Mutex
	routes map[string]string // conversation key → last worker id
	convs  map[string]*sync.Mutex
}

func New(s *store.Store, p *pending.Store, classifier nlp.Classifier) *Router {
	return &Router{
		store:      s,
		pending:    p,
		classifier: classifier,
		byID:       make(map[string]agent.Agent),
		routes:     make(map[string]string),
		convs:      make(map[string]*sync.Mutex),
	}
}

// Register adds a worker. The first registered worker to claim an
// utterance wins, so order is part of the routing contract.
func (r *Router) Register(a agent.Agent) {
	r.agents = append(r.agents, a)
	r.byID[a.ID()] = a
	slog.Info("agent registered", "agent", a.ID(), "description", a.Describe())
}

// RegisterFallback sets the worker that takes everything nothing else
// claims.
func (r *Router) RegisterFallback(a agent.Agent) {
	r.fallback = a
	r.byID[a.ID()] = a
}

// Route dispatches one utterance to exactly one worker and returns its
// reply. Dispatch order: an active multi-turn operation the utterance
// plausibly answers, then conversation continuity, then worker
// self-claim in registration order, then the intent classifier, then
// the fallback.
func (r *Router) Route(ctx context.Context, userID, conversationKey, utterance string) *agent.Reply {
	mu := r.convMutex(conversationKey)
	mu.Lock()
	defer mu.Unlock()

	target := r.resolve(ctx, userID, conversationKey, utterance)

	// Record the route before invoking: a worker that parks a draft
	// and asks a question must already own the next turn even if it
	// then panics.
	r.mu.Lock()
	r.routes[conversationKey] = target.ID()
	r.mu.Unlock()

	reply := r.invoke(ctx, target, &agent.Request{
		UserID:          userID,
		ConversationKey: conversationKey,
		Utterance:       utterance,
	})

	go r.audit(userID, target.ID(), utterance, reply)
	return reply
}

func (r *Router) resolve(ctx context.Context, userID, conversationKey, utterance string) agent.Agent {
	// Short answers while a draft is parked go back to the draft's
	// owner; "yes" must never be re-classified as a new request.
	if op := r.pending.First(userID); op != nil && nlp.IsShortAnswer(utterance) {
		if a, ok := r.byID[op.AgentID]; ok {
			slog.Debug("routing to pending operation owner", "agent", a.ID(), "kind", op.Kind)
			return a
		}
	}

	// Conversation continuity: the previous worker keeps the turn if
	// it still wants it, and always keeps bare confirmation tokens.
	r.mu.Lock()
	lastID := r.routes[conversationKey]
	r.mu.Unlock()
	if last, ok := r.byID[lastID]; ok {
		if nlp.IsShortAnswer(utterance) || last.CanHandle(utterance) {
			return last
		}
	}

	for _, a := range r.agents {
		if a.CanHandle(utterance) {
			return a
		}
	}

	if r.classifier != nil {
		intent, err := r.classifier.Classify(ctx, utterance)
		if err != nil {
			slog.Warn("intent classification failed", "error", err)
		} else if id, ok := intentAgents[intent.Label]; ok {
			if a, ok := r.byID[id]; ok {
				return a
			}
		}
	}

	return r.fallback
}

// invoke shields the conversation from worker faults: a panic becomes
// an apology, never a dropped turn.
func (r *Router) invoke(ctx context.Context, a agent.Agent, req *agent.Request) (reply *agent.Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("worker panicked", "agent", a.ID(), "panic", rec)
			reply = &agent.Reply{Success: false, Message: apology}
		}
	}()

	reply = a.Handle(ctx, req)
	if reply == nil {
		slog.Error("worker returned no reply", "agent", a.ID())
		reply = &agent.Reply{Success: false, Message: apology}
	}
	return reply
}

func (r *Router) convMutex(conversationKey string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	mu, ok := r.convs[conversationKey]
	if !ok {
		mu = &sync.Mutex{}
		r.convs[conversationKey] = mu
	}
	return mu
}

// audit records the dispatch decision: which worker took the turn, the
// utterance that triggered it, and how the turn ended.
func (r *Router) audit(userID, agentID, utterance string, reply *agent.Reply) {
	status := "SUCCESS"
	if !reply.Success {
		status = "FAILURE"
	}
	err := r.store.AppendAuditEvent(&store.AuditEvent{
		UserID:     userID,
		ActionType: "ROUTE",
		EntityID:   agentID,
		Status:     status,
		Detail:     fmt.Sprintf("dispatched to %s: %s", agentID, utterance),
	})
	if err != nil {
		slog.Warn("audit append failed", "error", err)
	}
}
