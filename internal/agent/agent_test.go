package agent

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kpapadakis/ledgerdesk/internal/bus"
	"github.com/kpapadakis/ledgerdesk/internal/config"
	"github.com/kpapadakis/ledgerdesk/internal/ledger"
	"github.com/kpapadakis/ledgerdesk/internal/nlp"
	"github.com/kpapadakis/ledgerdesk/internal/pending"
	"github.com/kpapadakis/ledgerdesk/internal/store"
)

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	dir := t.TempDir()

	s, err := store.New(config.StoreConfig{Path: filepath.Join(dir, "agents.db")})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	srv, err := bus.NewServer(config.NATSConfig{Port: 0, DataDir: filepath.Join(dir, "nats")})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}
	t.Cleanup(srv.Close)

	b, err := bus.New(s, srv, config.BusConfig{
		WaitTimeout:  2 * time.Second,
		PollInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("create bus: %v", err)
	}
	t.Cleanup(b.Close)

	pipeline, err := nlp.Build(config.NLPConfig{Strategy: "pattern"}, "")
	if err != nil {
		t.Fatalf("build nlp pipeline: %v", err)
	}

	deps := &Deps{
		Store:              s,
		Ledger:             ledger.New(s, "9999"),
		Bus:                b,
		Pending:            pending.NewStore(0),
		NLP:                pipeline,
		DefaultExpenseCode: "6000",
	}

	for _, a := range []store.Account{
		{Code: "1000", Name: "Cash", Type: "asset"},
		{Code: "1200", Name: "Accounts Receivable", Type: "asset"},
		{Code: "2000", Name: "Accounts Payable", Type: "liability"},
		{Code: "4000", Name: "Revenue", Type: "revenue"},
		{Code: "6000", Name: "General Expense", Type: "expense"},
		{Code: "9999", Name: "Suspense", Type: "suspense"},
	} {
		a.ID = uuid.NewString()
		if err := s.SaveAccount(&a); err != nil {
			t.Fatalf("seed account %s: %v", a.Code, err)
		}
	}

	return deps
}

func request(user, utterance string) *Request {
	return &Request{UserID: user, ConversationKey: user, Utterance: utterance}
}

func TestVendorCreationFlow(t *testing.T) {
	deps := newTestDeps(t)
	p := NewPayable(deps)
	ctx := context.Background()

	reply := p.Handle(ctx, request("u1", "create vendor Acme Corp"))
	if !reply.Success {
		t.Fatalf("start vendor failed: %q", reply.Message)
	}
	op := deps.Pending.Get("u1", pending.KindVendorDraft)
	if op == nil || op.Fields["name"] != "Acme Corp" {
		t.Fatalf("expected vendor draft with name, got %+v", op)
	}

	reply = p.Handle(ctx, request("u1",
		"email billing@acme.example, phone 555-010-2030, address 1 Main Street Springfield"))
	if !reply.Success {
		t.Fatalf("fill vendor fields failed: %q", reply.Message)
	}
	if !strings.Contains(reply.Message, "Shall I create the vendor?") {
		t.Fatalf("expected confirmation question, got %q", reply.Message)
	}

	// Complete fields alone never commit; the vendor appears only after
	// the explicit yes.
	if v, _ := deps.Store.FindVendorByName("Acme Corp"); v != nil {
		t.Fatal("vendor created before confirmation")
	}

	reply = p.Handle(ctx, request("u1", "yes"))
	if !reply.Success {
		t.Fatalf("confirm vendor failed: %q", reply.Message)
	}
	v, err := deps.Store.FindVendorByName("Acme Corp")
	if err != nil || v == nil {
		t.Fatalf("expected vendor saved, got %v %v", v, err)
	}
	if v.Email != "billing@acme.example" || v.Address != "1 Main Street Springfield" {
		t.Fatalf("vendor fields lost: %+v", v)
	}
	if deps.Pending.Get("u1", pending.KindVendorDraft) != nil {
		t.Fatal("vendor draft not cleared after commit")
	}
}

func TestVendorCancellationDropsDraft(t *testing.T) {
	deps := newTestDeps(t)
	p := NewPayable(deps)
	ctx := context.Background()

	p.Handle(ctx, request("u1", "create vendor Acme Corp"))
	reply := p.Handle(ctx, request("u1", "cancel"))
	if !reply.Success {
		t.Fatalf("cancel failed: %q", reply.Message)
	}
	if deps.Pending.Get("u1", pending.KindVendorDraft) != nil {
		t.Fatal("expected draft cleared on cancel")
	}
}

func TestVendorDuplicateConfirmation(t *testing.T) {
	deps := newTestDeps(t)
	p := NewPayable(deps)
	ctx := context.Background()

	if err := deps.Store.SaveVendor(&store.Vendor{ID: uuid.NewString(), Name: "Acme Corp"}); err != nil {
		t.Fatalf("seed vendor: %v", err)
	}

	p.Handle(ctx, request("u1",
		"create vendor Acme Corp with email ap@acme.example, phone 555-123-4567, address 2 Side Street"))

	reply := p.Handle(ctx, request("u1", "yes"))
	if !strings.Contains(reply.Message, "already exists") {
		t.Fatalf("expected duplicate warning, got %q", reply.Message)
	}
	if deps.Pending.Get("u1", pending.KindDuplicateConfirm) == nil {
		t.Fatal("expected duplicate confirmation parked")
	}

	// Explicit yes creates the duplicate anyway.
	reply = p.Handle(ctx, request("u1", "yes"))
	if !reply.Success || !strings.Contains(reply.Message, "created") {
		t.Fatalf("expected duplicate created, got %q", reply.Message)
	}

	// Both drafts are gone.
	if deps.Pending.HasAny("u1") {
		t.Fatal("expected no pending operations after the duplicate decision")
	}
}

func TestVendorDuplicateDeclined(t *testing.T) {
	deps := newTestDeps(t)
	p := NewPayable(deps)
	ctx := context.Background()

	if err := deps.Store.SaveVendor(&store.Vendor{ID: uuid.NewString(), Name: "Acme Corp"}); err != nil {
		t.Fatalf("seed vendor: %v", err)
	}

	p.Handle(ctx, request("u1",
		"create vendor Acme Corp with email ap@acme.example, phone 555-123-4567, address 2 Side Street"))
	p.Handle(ctx, request("u1", "yes"))

	reply := p.Handle(ctx, request("u1", "no"))
	if !reply.Success {
		t.Fatalf("decline failed: %q", reply.Message)
	}
	if deps.Pending.HasAny("u1") {
		t.Fatal("expected drafts cleared after declining the duplicate")
	}
}

func TestBillFlowCommitsBalancedJournal(t *testing.T) {
	deps := newTestDeps(t)
	p := NewPayable(deps)
	ctx := context.Background()

	if err := deps.Store.SaveVendor(&store.Vendor{ID: uuid.NewString(), Name: "Acme Corp"}); err != nil {
		t.Fatalf("seed vendor: %v", err)
	}

	reply := p.Handle(ctx, request("u1", "add a bill from vendor Acme Corp for $500"))
	if !reply.Success || !strings.Contains(reply.Message, "Shall I record the bill?") {
		t.Fatalf("expected bill confirmation, got %q", reply.Message)
	}

	reply = p.Handle(ctx, request("u1", "yes"))
	if !reply.Success {
		t.Fatalf("bill commit failed: %q", reply.Message)
	}
	journalID, _ := reply.Data["journal_id"].(string)
	if journalID == "" {
		t.Fatalf("expected journal id in reply data, got %+v", reply.Data)
	}

	j, err := deps.Store.GetJournal(journalID)
	if err != nil || j == nil {
		t.Fatalf("load bill journal: %v", err)
	}
	if len(j.Lines) != 2 {
		t.Fatalf("expected 2 journal lines, got %d", len(j.Lines))
	}
	want := decimal.RequireFromString("500")
	if !j.Lines[0].Debit.Equal(want) || !j.Lines[1].Credit.Equal(want) {
		t.Fatalf("bill journal not debit/credit 500: %+v", j.Lines)
	}
	if deps.Pending.Get("u1", pending.KindBillDraft) != nil {
		t.Fatal("bill draft not cleared")
	}
}

func TestBillDraftIgnoresUnrelatedDigits(t *testing.T) {
	deps := newTestDeps(t)
	p := NewPayable(deps)
	ctx := context.Background()

	// The PO number must not be mistaken for the bill amount.
	reply := p.Handle(ctx, request("u1", "add a bill from vendor Acme Corp, PO 777, for $500"))
	if !reply.Success {
		t.Fatalf("start bill failed: %q", reply.Message)
	}

	op := deps.Pending.Get("u1", pending.KindBillDraft)
	if op == nil {
		t.Fatal("expected bill draft")
	}
	if op.Fields["amount"] != "500" {
		t.Fatalf("draft amount = %q, want 500", op.Fields["amount"])
	}
	if !strings.Contains(reply.Message, "for 500") {
		t.Fatalf("confirmation quotes the wrong amount: %q", reply.Message)
	}
}

func TestBillUnknownVendorAsksForVendorFirst(t *testing.T) {
	deps := newTestDeps(t)
	p := NewPayable(deps)
	ctx := context.Background()

	p.Handle(ctx, request("u1", "add a bill from vendor Nowhere Inc for $75"))
	reply := p.Handle(ctx, request("u1", "yes"))
	if !strings.Contains(reply.Message, "Create the vendor first") {
		t.Fatalf("expected vendor-first guidance, got %q", reply.Message)
	}
}

func TestStatementFlowCreatesCardAccount(t *testing.T) {
	deps := newTestDeps(t)
	st := NewStatement(deps)
	gl := NewGeneralLedger(deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The card account does not exist yet, so the commit sends a
	// CREATE_ACCOUNT request the runner must serve.
	NewInboxRunner(deps, 50*time.Millisecond, gl).Start(ctx)

	reply := st.Handle(ctx, request("u1", "Set a starting balance of $750 on my card ending 4821"))
	if !reply.Success || !strings.Contains(reply.Message, "(yes/no)") {
		t.Fatalf("expected balance confirmation, got %q", reply.Message)
	}

	reply = st.Handle(ctx, request("u1", "yes"))
	if !reply.Success {
		t.Fatalf("statement commit failed: %q", reply.Message)
	}

	card, err := deps.Store.GetAccountByCode("224821")
	if err != nil || card == nil {
		t.Fatalf("expected card account created, got %v %v", card, err)
	}

	journalID, _ := reply.Data["journal_id"].(string)
	j, err := deps.Store.GetJournal(journalID)
	if err != nil || j == nil {
		t.Fatalf("load statement journal: %v", err)
	}
	// One-sided entry autobalanced through suspense.
	if len(j.Lines) != 2 {
		t.Fatalf("expected autobalanced journal with 2 lines, got %d", len(j.Lines))
	}
	if deps.Pending.Get("u1", pending.KindStatementBalance) != nil {
		t.Fatal("statement draft not cleared")
	}
}

func TestStatementNegationDropsProposedFigure(t *testing.T) {
	deps := newTestDeps(t)
	st := NewStatement(deps)
	ctx := context.Background()

	st.Handle(ctx, request("u1", "Set a starting balance of $750 on my card ending 4821"))
	reply := st.Handle(ctx, request("u1", "no"))
	if !reply.Success {
		t.Fatalf("negation failed: %q", reply.Message)
	}

	op := deps.Pending.Get("u1", pending.KindStatementBalance)
	if op == nil {
		t.Fatal("expected draft kept after rejecting the figure")
	}
	if op.Fields["card_last4"] != "4821" {
		t.Fatalf("card lost from draft: %+v", op.Fields)
	}
	if _, ok := op.Fields["amount"]; ok {
		t.Fatalf("rejected amount still in draft: %+v", op.Fields)
	}
}

func TestGeneralLedgerRecordPostAndRejectEdits(t *testing.T) {
	deps := newTestDeps(t)
	gl := NewGeneralLedger(deps)
	ctx := context.Background()

	reply := gl.Handle(ctx, request("u1", "record $250 debit account 6000 credit account 1000"))
	if !reply.Success {
		t.Fatalf("record journal failed: %q", reply.Message)
	}
	journalID, _ := reply.Data["journal_id"].(string)
	if journalID == "" {
		t.Fatalf("expected journal id, got %+v", reply.Data)
	}

	reply = gl.Handle(ctx, request("u1", "post journal "+journalID))
	if !reply.Success {
		t.Fatalf("post journal failed: %q", reply.Message)
	}

	j, err := deps.Store.GetJournal(journalID)
	if err != nil || j == nil || !j.Posted {
		t.Fatalf("expected posted journal, got %+v (%v)", j, err)
	}

	lineID := strconv.FormatInt(j.Lines[0].ID, 10)
	reply = gl.Handle(ctx, request("u1",
		"in journal "+journalID+" change line "+lineID+" debit to 300"))
	if reply.Success {
		t.Fatal("expected edit of posted journal to fail")
	}
	if !strings.Contains(reply.Message, "posted") {
		t.Fatalf("expected posted-journal message, got %q", reply.Message)
	}
}

func TestGeneralLedgerCreateAccount(t *testing.T) {
	deps := newTestDeps(t)
	gl := NewGeneralLedger(deps)
	ctx := context.Background()

	reply := gl.Handle(ctx, request("u1", "create account Travel Expenses with code 6400"))
	if !reply.Success {
		t.Fatalf("create account failed: %q", reply.Message)
	}
	acc, err := deps.Store.GetAccountByCode("6400")
	if err != nil || acc == nil {
		t.Fatalf("expected account 6400, got %v %v", acc, err)
	}
	if acc.Name != "Travel Expenses" {
		t.Fatalf("expected name 'Travel Expenses', got %q", acc.Name)
	}

	// Taken code is rejected, not silently reused.
	reply = gl.Handle(ctx, request("u1", "create account Other Travel with code 6400"))
	if reply.Success {
		t.Fatal("expected duplicate code rejection")
	}
}

func TestGeneralLedgerServeInboxIsIdempotent(t *testing.T) {
	deps := newTestDeps(t)
	gl := NewGeneralLedger(deps)
	ctx := context.Background()

	m1, err := deps.Bus.Send(IDPayable, IDGeneralLedger, ActionCreateAccount,
		createAccountPayload{Code: "7000", Name: "Freight", Type: "expense"}, "u1", "NORMAL", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	m2, err := deps.Bus.Send(IDPayable, IDGeneralLedger, ActionCreateAccount,
		createAccountPayload{Code: "7000", Name: "Freight", Type: "expense"}, "u1", "NORMAL", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	gl.ServeInbox(ctx)

	acc, err := deps.Store.GetAccountByCode("7000")
	if err != nil || acc == nil {
		t.Fatalf("expected account created from inbox, got %v %v", acc, err)
	}

	for _, id := range []string{m1.ID, m2.ID} {
		m, err := deps.Store.GetAgentMessage(id)
		if err != nil || m == nil {
			t.Fatalf("load message %s: %v", id, err)
		}
		if m.Status != store.MessageCompleted {
			t.Fatalf("message %s not completed: %s", id, m.Status)
		}
	}
}

func TestGeneralLedgerInboxRejectsUnknownAction(t *testing.T) {
	deps := newTestDeps(t)
	gl := NewGeneralLedger(deps)
	ctx := context.Background()

	m, err := deps.Bus.Send(IDPayable, IDGeneralLedger, "DELETE_EVERYTHING", nil, "u1", "NORMAL", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	gl.ServeInbox(ctx)

	got, err := deps.Store.GetAgentMessage(m.ID)
	if err != nil || got == nil {
		t.Fatalf("load message: %v", err)
	}
	if got.Status != store.MessageFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
	if !strings.Contains(got.ResponseText, "unsupported action") {
		t.Fatalf("expected unsupported-action response, got %q", got.ResponseText)
	}
}

func TestReceivableInvoiceAndReceipt(t *testing.T) {
	deps := newTestDeps(t)
	r := NewReceivable(deps)
	ctx := context.Background()

	reply := r.Handle(ctx, request("u1", "invoice for Globex for $1,200"))
	if !reply.Success {
		t.Fatalf("invoice failed: %q", reply.Message)
	}
	journalID, _ := reply.Data["journal_id"].(string)
	j, err := deps.Store.GetJournal(journalID)
	if err != nil || j == nil {
		t.Fatalf("load invoice journal: %v", err)
	}
	want := decimal.RequireFromString("1200")
	if !j.Lines[0].Debit.Equal(want) || !j.Lines[1].Credit.Equal(want) {
		t.Fatalf("invoice journal lines wrong: %+v", j.Lines)
	}

	reply = r.Handle(ctx, request("u1", "payment received from Globex $300"))
	if !reply.Success {
		t.Fatalf("receipt failed: %q", reply.Message)
	}
	if reply.Data["journal_id"] == "" {
		t.Fatal("expected receipt journal id")
	}
}

func TestChatFallbackNeverClaims(t *testing.T) {
	c := NewChat()
	if c.CanHandle("create vendor Acme Corp") {
		t.Fatal("chat must not claim utterances")
	}
	reply := c.Handle(context.Background(), request("u1", "help"))
	if !reply.Success || reply.Message == "" {
		t.Fatalf("expected helpful fallback reply, got %+v", reply)
	}
}
