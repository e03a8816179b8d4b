package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kpapadakis/ledgerdesk/internal/store"
)

const (
	receivableAccountCode = "1200"
	revenueAccountCode    = "4000"
	cashAccountCode       = "1000"
)

// Receivable records customer invoices and incoming payments. Both are
// single-turn: the amounts land directly in balanced journals.
type Receivable struct {
	deps *Deps
}

func NewReceivable(deps *Deps) *Receivable {
	return &Receivable{deps: deps}
}

func (r *Receivable) ID() string { return IDReceivable }

func (r *Receivable) Describe() string {
	return "Customer invoices, receipts and accounts receivable"
}

var receivableClaims = []string{"receivable", "customer", "invoice for", "receipt", "payment received", "owes us"}

func (r *Receivable) CanHandle(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, kw := range receivableClaims {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (r *Receivable) Handle(ctx context.Context, req *Request) *Reply {
	fields, err := r.deps.NLP.Extractor.Extract(ctx, req.Utterance, []string{"name", "amount", "date"})
	if err != nil {
		fields = map[string]string{}
	}
	if fields["amount"] == "" {
		return ok("How much is it for? For example: invoice for Globex for $1,200, or payment received from Globex $300.", nil)
	}
	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil || !amount.IsPositive() {
		return fail("I couldn't read that amount.")
	}

	lower := strings.ToLower(req.Utterance)
	if strings.Contains(lower, "payment") || strings.Contains(lower, "receipt") || strings.Contains(lower, "received") {
		return r.recordReceipt(ctx, req, fields["name"], amount)
	}
	return r.recordInvoice(ctx, req, fields["name"], amount)
}

func (r *Receivable) recordInvoice(ctx context.Context, req *Request, customer string, amount decimal.Decimal) *Reply {
	ar := r.deps.ensureAccount(ctx, IDReceivable, req.UserID, receivableAccountCode, "Accounts Receivable", "asset")
	revenue := r.deps.ensureAccount(ctx, IDReceivable, req.UserID, revenueAccountCode, "Revenue", "income")
	if ar == nil || revenue == nil {
		return fail("The receivable ledger accounts are missing and I couldn't create them.")
	}

	memo := "Customer invoice"
	if customer != "" {
		memo = "Invoice for " + customer
	}
	j := &store.Journal{
		Date:     today(),
		Memo:     memo,
		TypeCode: "INVOICE",
		Lines: []store.JournalLine{
			{AccountID: ar.ID, Debit: amount, Credit: decimal.Zero},
			{AccountID: revenue.ID, Debit: decimal.Zero, Credit: amount},
		},
	}
	if err := r.deps.Ledger.Commit(j, false); err != nil {
		slog.Error("invoice journal failed", "error", err)
		r.deps.audit(req.UserID, "INVOICE_CREATE", "", "FAILURE", err.Error())
		return fail("I couldn't record that invoice.")
	}

	r.deps.audit(req.UserID, "INVOICE_CREATE", j.ID, "SUCCESS", memo)
	return ok(fmt.Sprintf("Invoiced %s: %s receivable, %s revenue.", amount.StringFixed(2), ar.Name, revenue.Name),
		map[string]any{"journal_id": j.ID})
}

func (r *Receivable) recordReceipt(ctx context.Context, req *Request, customer string, amount decimal.Decimal) *Reply {
	cash := r.deps.ensureAccount(ctx, IDReceivable, req.UserID, cashAccountCode, "Cash", "asset")
	ar := r.deps.ensureAccount(ctx, IDReceivable, req.UserID, receivableAccountCode, "Accounts Receivable", "asset")
	if cash == nil || ar == nil {
		return fail("The receivable ledger accounts are missing and I couldn't create them.")
	}

	memo := "Customer payment"
	if customer != "" {
		memo = "Payment received from " + customer
	}
	j := &store.Journal{
		Date:     today(),
		Memo:     memo,
		TypeCode: "RECEIPT",
		Lines: []store.JournalLine{
			{AccountID: cash.ID, Debit: amount, Credit: decimal.Zero},
			{AccountID: ar.ID, Debit: decimal.Zero, Credit: amount},
		},
	}
	if err := r.deps.Ledger.Commit(j, false); err != nil {
		slog.Error("receipt journal failed", "error", err)
		r.deps.audit(req.UserID, "RECEIPT_CREATE", "", "FAILURE", err.Error())
		return fail("I couldn't record that payment.")
	}

	r.deps.audit(req.UserID, "RECEIPT_CREATE", j.ID, "SUCCESS", memo)
	return ok(fmt.Sprintf("Recorded %s received: debit %s, credit %s.", amount.StringFixed(2), cash.Name, ar.Name),
		map[string]any{"journal_id": j.ID})
}
