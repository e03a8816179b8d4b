package pending

import (
	"hash/fnv"
	"maps"
	"sync"
	"time"
)

// Kind of multi-turn flow a draft belongs to. One active operation per
// (user, kind).
type Kind string

const (
	KindVendorDraft      Kind = "vendor_draft"
	KindBillDraft        Kind = "bill_draft"
	KindDuplicateConfirm Kind = "duplicate_confirm"
	KindStatementBalance Kind = "statement_balance"
)

// confirmOrder fixes which operation a bare "yes"/"no" answers when a
// user has more than one in flight.
var confirmOrder = []Kind{KindDuplicateConfirm, KindBillDraft, KindVendorDraft, KindStatementBalance}

// Operation is a parked multi-turn flow: a partially collected draft
// plus the worker that owns it.
type Operation struct {
	Kind      Kind              `json:"kind"`
	UserID    string            `json:"user_id"`
	AgentID   string            `json:"agent_id"`
	Fields    map[string]string `json:"fields"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (op *Operation) clone() *Operation {
	cp := *op
	cp.Fields = maps.Clone(op.Fields)
	return &cp
}

const shardCount = 16

type shard struct {
	mu  sync.Mutex
	ops map[string]*Operation // userID/kind → op
}

// Store keeps per-user drafts in a sharded map so concurrent users
// never contend on one lock, let alone one draft. A TTL of 0 means
// drafts live until explicitly cleared.
type Store struct {
	shards [shardCount]shard
	ttl    time.Duration
}

func NewStore(ttl time.Duration) *Store {
	s := &Store{ttl: ttl}
	for i := range s.shards {
		s.shards[i].ops = make(map[string]*Operation)
	}
	return s
}

func (s *Store) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &s.shards[h.Sum32()%shardCount]
}

func key(userID string, kind Kind) string {
	return userID + "/" + string(kind)
}

func (s *Store) expired(op *Operation, now time.Time) bool {
	return s.ttl > 0 && now.Sub(op.UpdatedAt) > s.ttl
}

// Get returns a copy of the active operation, or nil.
func (s *Store) Get(userID string, kind Kind) *Operation {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	op, ok := sh.ops[key(userID, kind)]
	if !ok {
		return nil
	}
	if s.expired(op, time.Now()) {
		delete(sh.ops, key(userID, kind))
		return nil
	}
	return op.clone()
}

// Put stores an operation, returning any same-kind draft it replaced.
// Last write wins: the caller decides whether to mention the discarded
// draft to the user.
func (s *Store) Put(userID string, op *Operation) *Operation {
	now := time.Now()
	op.UserID = userID
	op.CreatedAt = now
	op.UpdatedAt = now
	if op.Fields == nil {
		op.Fields = make(map[string]string)
	}

	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	prev := sh.ops[key(userID, op.Kind)]
	sh.ops[key(userID, op.Kind)] = op.clone()
	if prev == nil || s.expired(prev, now) {
		return nil
	}
	return prev.clone()
}

// Merge lays newly extracted fields over the stored draft. Empty values
// never overwrite: a turn that failed to extract a field must not wipe
// what an earlier turn collected. Returns the merged copy, or nil when
// no draft of that kind is active.
func (s *Store) Merge(userID string, kind Kind, fields map[string]string) *Operation {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	op, ok := sh.ops[key(userID, kind)]
	if !ok {
		return nil
	}
	if s.expired(op, time.Now()) {
		delete(sh.ops, key(userID, kind))
		return nil
	}

	for k, v := range fields {
		if v == "" {
			continue
		}
		op.Fields[k] = v
	}
	op.UpdatedAt = time.Now()
	return op.clone()
}

func (s *Store) Clear(userID string, kind Kind) {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.ops, key(userID, kind))
}

// First returns the highest-priority active operation for a user, in
// the fixed confirmation order, or nil when none is active. The router
// only checks existence; the owning worker reads the contents.
func (s *Store) First(userID string) *Operation {
	for _, kind := range confirmOrder {
		if op := s.Get(userID, kind); op != nil {
			return op
		}
	}
	return nil
}

// HasAny reports whether the user has any draft in flight.
func (s *Store) HasAny(userID string) bool {
	return s.First(userID) != nil
}

// SweepExpired drops every draft past the TTL and reports how many.
func (s *Store) SweepExpired() int {
	if s.ttl <= 0 {
		return 0
	}
	now := time.Now()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, op := range sh.ops {
			if s.expired(op, now) {
				delete(sh.ops, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}
