package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kpapadakis/ledgerdesk/internal/nlp"
	"github.com/kpapadakis/ledgerdesk/internal/pending"
	"github.com/kpapadakis/ledgerdesk/internal/store"
)

// Statement imports credit-card statements. The starting balance is
// never taken on faith: the proposed figure is parked and the user must
// confirm it before the adjusting entry is committed.
type Statement struct {
	deps *Deps
}

func NewStatement(deps *Deps) *Statement {
	return &Statement{deps: deps}
}

func (s *Statement) ID() string { return IDStatement }

func (s *Statement) Describe() string {
	return "Credit card statements and card balances"
}

var statementClaims = []string{"credit card", "statement", "card ending", "starting balance"}

func (s *Statement) CanHandle(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, kw := range statementClaims {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (s *Statement) Handle(ctx context.Context, req *Request) *Reply {
	if op := s.deps.Pending.Get(req.UserID, pending.KindStatementBalance); op != nil {
		return s.continueBalance(ctx, req, op)
	}
	return s.startBalance(ctx, req)
}

func (s *Statement) startBalance(ctx context.Context, req *Request) *Reply {
	fields, err := s.deps.NLP.Extractor.Extract(ctx, req.Utterance, []string{"card_last4", "amount"})
	if err != nil {
		fields = map[string]string{}
	}

	op := &pending.Operation{
		Kind:    pending.KindStatementBalance,
		AgentID: IDStatement,
		Fields:  fields,
	}
	s.deps.Pending.Put(req.UserID, op)

	switch {
	case fields["card_last4"] == "":
		return ok("Which card is the statement for? Tell me the last four digits, e.g. card ending 4821.", nil)
	case fields["amount"] == "":
		return ok(fmt.Sprintf("What is the starting balance on the card ending %s?", fields["card_last4"]), nil)
	}
	return ok(fmt.Sprintf("Start the card ending %s at a balance of %s? (yes/no)",
		fields["card_last4"], fields["amount"]), nil)
}

func (s *Statement) continueBalance(ctx context.Context, req *Request, op *pending.Operation) *Reply {
	if nlp.IsCancellation(req.Utterance) {
		s.deps.Pending.Clear(req.UserID, pending.KindStatementBalance)
		return ok("Okay, I've dropped the statement import.", nil)
	}
	if nlp.IsNegation(req.Utterance) {
		// Keep the card, drop the rejected figure. Merge can't unset a
		// field, so the draft is rewritten without it.
		delete(op.Fields, "amount")
		s.deps.Pending.Put(req.UserID, &pending.Operation{
			Kind:    pending.KindStatementBalance,
			AgentID: IDStatement,
			Fields:  op.Fields,
		})
		return ok("What should the starting balance be, then?", nil)
	}

	merged := op
	if !nlp.IsAffirmation(req.Utterance) {
		fields, err := s.deps.NLP.Extractor.Extract(ctx, req.Utterance, []string{"card_last4", "amount"})
		if err == nil {
			merged = s.deps.Pending.Merge(req.UserID, pending.KindStatementBalance, fields)
		}
		if merged == nil {
			merged = op
		}
	}

	switch {
	case merged.Fields["card_last4"] == "":
		return ok("Which card is the statement for? Tell me the last four digits.", nil)
	case merged.Fields["amount"] == "":
		return ok(fmt.Sprintf("What is the starting balance on the card ending %s?", merged.Fields["card_last4"]), nil)
	}

	if !nlp.IsAffirmation(req.Utterance) {
		return ok(fmt.Sprintf("Start the card ending %s at a balance of %s? (yes/no)",
			merged.Fields["card_last4"], merged.Fields["amount"]), nil)
	}
	return s.commitBalance(ctx, req, merged.Fields)
}

func (s *Statement) commitBalance(ctx context.Context, req *Request, fields map[string]string) *Reply {
	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil || amount.IsNegative() {
		return fail("I couldn't read that starting balance.")
	}

	last4 := fields["card_last4"]
	card := s.deps.ensureAccount(ctx, IDStatement, req.UserID, "22"+last4,
		"Credit Card ending "+last4, "liability")
	if card == nil {
		return fail("I couldn't set up a ledger account for that card.")
	}

	// One-sided opening entry; the engine balances it through the
	// suspense account or rejects it outright.
	j := &store.Journal{
		Date:     today(),
		Memo:     fmt.Sprintf("Opening balance, card ending %s", last4),
		TypeCode: "STATEMENT",
		Lines: []store.JournalLine{
			{AccountID: card.ID, Debit: decimal.Zero, Credit: amount, Description: "statement starting balance"},
		},
	}
	if err := s.deps.Ledger.Commit(j, true); err != nil {
		slog.Error("statement opening entry failed", "card", last4, "error", err)
		s.deps.audit(req.UserID, "STATEMENT_OPEN", "", "FAILURE", err.Error())
		return fail("I couldn't record the starting balance: the offsetting suspense account is missing.")
	}

	s.deps.Pending.Clear(req.UserID, pending.KindStatementBalance)
	s.deps.audit(req.UserID, "STATEMENT_OPEN", j.ID, "SUCCESS",
		fmt.Sprintf("card %s at %s", last4, amount.StringFixed(2)))
	return ok(fmt.Sprintf("Card ending %s now starts at %s. You can import the statement lines next.",
		last4, amount.StringFixed(2)),
		map[string]any{"journal_id": j.ID, "account_id": card.ID})
}
