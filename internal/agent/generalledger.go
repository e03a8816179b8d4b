package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kpapadakis/ledgerdesk/internal/ledger"
	"github.com/kpapadakis/ledgerdesk/internal/store"
)

// GeneralLedger owns the chart of accounts and raw journal entries. It
// is also the recipient of CREATE_ACCOUNT bus requests from the other
// agents.
type GeneralLedger struct {
	deps *Deps
}

func NewGeneralLedger(deps *Deps) *GeneralLedger {
	return &GeneralLedger{deps: deps}
}

func (g *GeneralLedger) ID() string { return IDGeneralLedger }

func (g *GeneralLedger) Describe() string {
	return "Chart of accounts and manual journal entries"
}

var ledgerClaims = []string{
	"journal", "ledger", "account", "debit", "credit", "post ", "trial balance",
}

func (g *GeneralLedger) CanHandle(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, kw := range ledgerClaims {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var (
	debitCodeRe   = regexp.MustCompile(`(?i)debit\s+(?:account\s+)?(\d{3,5})`)
	creditCodeRe  = regexp.MustCompile(`(?i)credit\s+(?:account\s+)?(\d{3,5})`)
	journalIDRe   = regexp.MustCompile(`(?i)journal\s+([0-9a-f-]{8,})`)
	lineEditRe    = regexp.MustCompile(`(?i)line\s+(\d+)\s+(debit|credit)\s+(?:to\s+)?\$?([\d,]+(?:\.\d{1,2})?)`)
	postJournalRe = regexp.MustCompile(`(?i)\bpost\b`)
)

func (g *GeneralLedger) Handle(ctx context.Context, req *Request) *Reply {
	g.ServeInbox(ctx)

	lower := strings.ToLower(req.Utterance)
	switch {
	case strings.Contains(lower, "create") && strings.Contains(lower, "account"):
		return g.createAccount(ctx, req)
	case lineEditRe.MatchString(req.Utterance):
		return g.editJournalLines(req)
	case postJournalRe.MatchString(req.Utterance) && journalIDRe.MatchString(req.Utterance):
		return g.postJournal(req)
	case debitCodeRe.MatchString(req.Utterance) || creditCodeRe.MatchString(req.Utterance):
		return g.recordJournal(ctx, req)
	}
	return ok("I handle the ledger: creating accounts, recording journal entries (say which account to debit and which to credit), editing lines and posting journals.", nil)
}

// ServeInbox drains CREATE_ACCOUNT requests from other agents. The
// message row's status is the source of truth; this runs both at the
// start of every turn and from the inbox runner between turns.
func (g *GeneralLedger) ServeInbox(ctx context.Context) {
	msgs, err := g.deps.Bus.Pending(IDGeneralLedger)
	if err != nil {
		slog.Error("inbox poll failed", "agent", IDGeneralLedger, "error", err)
		return
	}
	for _, m := range msgs {
		if ctx.Err() != nil {
			return
		}
		g.serveMessage(m)
	}
}

func (g *GeneralLedger) serveMessage(m store.AgentMessage) {
	if err := g.deps.Bus.MarkInProgress(m.ID); err != nil {
		slog.Error("claim inbox message failed", "message", m.ID, "error", err)
		return
	}
	if m.Action != ActionCreateAccount {
		_, _ = g.deps.Bus.Respond(m.ID, store.MessageFailed, nil,
			fmt.Sprintf("unsupported action %s", m.Action))
		return
	}

	var p createAccountPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil || p.Code == "" {
		_, _ = g.deps.Bus.Respond(m.ID, store.MessageFailed, nil, "malformed account request")
		return
	}
	if p.Type == "" {
		p.Type = "expense"
	}
	if p.Name == "" {
		p.Name = "Account " + p.Code
	}

	// Idempotent: a concurrent create of the same code just reports the
	// existing account.
	existing, err := g.deps.Store.GetAccountByCode(p.Code)
	if err == nil && existing != nil {
		_, _ = g.deps.Bus.Respond(m.ID, store.MessageCompleted,
			map[string]string{"account_id": existing.ID}, "account already exists")
		return
	}

	acc := &store.Account{ID: uuid.NewString(), Code: p.Code, Name: p.Name, Type: p.Type}
	if err := g.deps.Store.SaveAccount(acc); err != nil {
		slog.Error("create account from bus failed", "code", p.Code, "error", err)
		_, _ = g.deps.Bus.Respond(m.ID, store.MessageFailed, nil, "account creation failed")
		return
	}

	g.deps.audit(m.UserID, "ACCOUNT_CREATE", acc.ID, "SUCCESS",
		fmt.Sprintf("via bus request from %s", m.Sender))
	_, _ = g.deps.Bus.Respond(m.ID, store.MessageCompleted,
		map[string]string{"account_id": acc.ID}, "account created")
}

var accountNameRe = regexp.MustCompile(`(?i)account\s+(?:called\s+|named\s+)?"?([A-Za-z][\w&.\- ]*?)"?(?:\s+with|\s+code|[,.]|$)`)

func (g *GeneralLedger) createAccount(ctx context.Context, req *Request) *Reply {
	fields, err := g.deps.NLP.Extractor.Extract(ctx, req.Utterance, []string{"account_code"})
	if err != nil {
		fields = map[string]string{}
	}
	code := fields["account_code"]

	name := ""
	if m := accountNameRe.FindStringSubmatch(req.Utterance); m != nil {
		name = strings.TrimSpace(m[1])
	}
	if name == "" || strings.EqualFold(name, "account") {
		return ok("What should the account be called, and what code should it use? For example: create account Travel Expenses with code 6400.", nil)
	}
	if code == "" {
		return ok(fmt.Sprintf("What code should the %s account use? For example: create account %s with code 6400.", name, name), nil)
	}

	if existing, err := g.deps.Store.GetAccountByCode(code); err == nil && existing != nil {
		return fail(fmt.Sprintf("Account code %s is already taken by %s.", code, existing.Name))
	}

	acc := &store.Account{ID: uuid.NewString(), Code: code, Name: name, Type: "expense"}
	if err := g.deps.Store.SaveAccount(acc); err != nil {
		slog.Error("create account failed", "code", code, "error", err)
		g.deps.audit(req.UserID, "ACCOUNT_CREATE", "", "FAILURE", err.Error())
		return fail("I couldn't create that account. Please try again.")
	}

	g.deps.audit(req.UserID, "ACCOUNT_CREATE", acc.ID, "SUCCESS", req.Utterance)
	return ok(fmt.Sprintf("Created account %s (%s).", acc.Name, acc.Code),
		map[string]any{"account_id": acc.ID})
}

func (g *GeneralLedger) recordJournal(ctx context.Context, req *Request) *Reply {
	debitMatch := debitCodeRe.FindStringSubmatch(req.Utterance)
	creditMatch := creditCodeRe.FindStringSubmatch(req.Utterance)
	if debitMatch == nil || creditMatch == nil {
		return ok("Tell me both sides, for example: record $250 debit account 6000 credit account 1000.", nil)
	}

	fields, err := g.deps.NLP.Extractor.Extract(ctx, req.Utterance, []string{"amount", "date"})
	if err != nil || fields["amount"] == "" {
		return ok("How much is the entry for? For example: record $250 debit account 6000 credit account 1000.", nil)
	}
	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil || !amount.IsPositive() {
		return fail("I couldn't read that amount.")
	}

	debitAcc, err := g.deps.Store.GetAccountByCode(debitMatch[1])
	if err != nil || debitAcc == nil {
		return fail(fmt.Sprintf("I don't know account %s. Create it first.", debitMatch[1]))
	}
	creditAcc, err := g.deps.Store.GetAccountByCode(creditMatch[1])
	if err != nil || creditAcc == nil {
		return fail(fmt.Sprintf("I don't know account %s. Create it first.", creditMatch[1]))
	}

	date := fields["date"]
	if date == "" {
		date = today()
	}

	j := &store.Journal{
		Date:     date,
		Memo:     req.Utterance,
		TypeCode: "GENERAL",
		Lines: []store.JournalLine{
			{AccountID: debitAcc.ID, Debit: amount, Credit: decimal.Zero},
			{AccountID: creditAcc.ID, Debit: decimal.Zero, Credit: amount},
		},
	}
	if err := g.deps.Ledger.Commit(j, false); err != nil {
		slog.Error("journal commit failed", "error", err)
		g.deps.audit(req.UserID, "JOURNAL_CREATE", "", "FAILURE", err.Error())
		return fail("The journal entry couldn't be saved.")
	}

	g.deps.audit(req.UserID, "JOURNAL_CREATE", j.ID, "SUCCESS", req.Utterance)
	return ok(fmt.Sprintf("Recorded %s: debit %s, credit %s. Journal %s.",
		amount.StringFixed(2), debitAcc.Name, creditAcc.Name, j.ID),
		map[string]any{"journal_id": j.ID})
}

func (g *GeneralLedger) postJournal(req *Request) *Reply {
	id := journalIDRe.FindStringSubmatch(req.Utterance)[1]
	if err := g.deps.Ledger.Post(id); err != nil {
		if errors.Is(err, store.ErrPosted) {
			return fail("That journal is already posted; posted journals can't change.")
		}
		return fail("I couldn't post that journal.")
	}
	g.deps.audit(req.UserID, "JOURNAL_POST", id, "SUCCESS", "")
	return ok(fmt.Sprintf("Journal %s posted. It is now final.", id), nil)
}

func (g *GeneralLedger) editJournalLines(req *Request) *Reply {
	idMatch := journalIDRe.FindStringSubmatch(req.Utterance)
	if idMatch == nil {
		return ok("Which journal? For example: in journal <id> change line 3 debit to 120 and line 4 credit to 120.", nil)
	}

	var edits []ledger.LineEdit
	for _, m := range lineEditRe.FindAllStringSubmatch(req.Utterance, -1) {
		amount, err := decimal.NewFromString(strings.ReplaceAll(m[3], ",", ""))
		if err != nil {
			return fail("I couldn't read one of the amounts.")
		}
		var lineID int64
		fmt.Sscanf(m[1], "%d", &lineID)
		edit := ledger.LineEdit{LineID: lineID}
		if strings.EqualFold(m[2], "debit") {
			edit.Debit = &amount
		} else {
			edit.Credit = &amount
		}
		edits = append(edits, edit)
	}

	res, err := g.deps.Ledger.ApplyLineEdits(idMatch[1], edits)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPosted):
			return fail("That journal is already posted; posted journals reject edits.")
		case errors.Is(err, ledger.ErrImbalanced):
			g.deps.audit(req.UserID, "JOURNAL_EDIT", idMatch[1], "REJECTED", err.Error())
			return fail(fmt.Sprintf("Those edits would leave the journal out of balance: %v", err))
		}
		return fail("I couldn't apply those edits.")
	}

	g.deps.audit(req.UserID, "JOURNAL_EDIT", idMatch[1], "SUCCESS", req.Utterance)
	msg := "Lines updated and the journal still balances."
	if len(res.Warnings) > 0 {
		msg += " Note: " + res.Warnings[0] + "."
	}
	return ok(msg, map[string]any{"journal_id": idMatch[1]})
}
