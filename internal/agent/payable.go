package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kpapadakis/ledgerdesk/internal/nlp"
	"github.com/kpapadakis/ledgerdesk/internal/pending"
	"github.com/kpapadakis/ledgerdesk/internal/store"
)

// Account code the payable side credits for unpaid bills.
const payableAccountCode = "2000"

var vendorRequiredFields = []string{"name", "email", "phone", "address"}

// Payable handles vendors and the bills they send. Vendor and bill
// creation are multi-turn: missing fields are collected across turns in
// the pending store, and nothing is committed without an explicit
// confirmation.
type Payable struct {
	deps *Deps
}

func NewPayable(deps *Deps) *Payable {
	return &Payable{deps: deps}
}

func (p *Payable) ID() string { return IDPayable }

func (p *Payable) Describe() string {
	return "Vendors, supplier bills and accounts payable"
}

var payableClaims = []string{"vendor", "supplier", "bill", "payable", "owe "}

func (p *Payable) CanHandle(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, kw := range payableClaims {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (p *Payable) Handle(ctx context.Context, req *Request) *Reply {
	// Mid-flow answers resolve against the highest-priority active
	// draft: duplicate confirmation, then bill, then vendor.
	if op := p.deps.Pending.Get(req.UserID, pending.KindDuplicateConfirm); op != nil {
		return p.continueDuplicate(req, op)
	}
	if op := p.deps.Pending.Get(req.UserID, pending.KindBillDraft); op != nil {
		return p.continueBill(ctx, req, op)
	}
	if op := p.deps.Pending.Get(req.UserID, pending.KindVendorDraft); op != nil {
		return p.continueVendor(ctx, req, op)
	}

	lower := strings.ToLower(req.Utterance)
	switch {
	case strings.Contains(lower, "bill") || strings.Contains(lower, "invoice from"):
		return p.startBill(ctx, req)
	case strings.Contains(lower, "vendor") || strings.Contains(lower, "supplier"):
		return p.startVendor(ctx, req)
	}
	return ok("I handle vendors and bills: try 'create vendor Acme Corp' or 'add a bill from Acme Corp for $500'.", nil)
}

// --- vendor flow ---

func (p *Payable) startVendor(ctx context.Context, req *Request) *Reply {
	fields, err := p.deps.NLP.Extractor.Extract(ctx, req.Utterance,
		[]string{"name", "email", "phone", "address", "contact_name"})
	if err != nil {
		slog.Warn("vendor extraction failed", "error", err)
		fields = map[string]string{}
	}

	op := &pending.Operation{
		Kind:    pending.KindVendorDraft,
		AgentID: IDPayable,
		Fields:  fields,
	}
	if replaced := p.deps.Pending.Put(req.UserID, op); replaced != nil {
		p.deps.audit(req.UserID, "VENDOR_DRAFT", "", "REPLACED",
			fmt.Sprintf("discarded draft for %s", replaced.Fields["name"]))
	}

	missing := missingFields(fields, vendorRequiredFields)
	if len(missing) > 0 {
		return ok(vendorQuestion(fields["name"], missing), nil)
	}
	return ok(vendorSummary(fields)+" Shall I create the vendor?", nil)
}

func (p *Payable) continueVendor(ctx context.Context, req *Request, op *pending.Operation) *Reply {
	if nlp.IsCancellation(req.Utterance) || nlp.IsNegation(req.Utterance) {
		p.deps.Pending.Clear(req.UserID, pending.KindVendorDraft)
		return ok("Okay, I've dropped the vendor draft.", nil)
	}

	merged := op
	if !nlp.IsAffirmation(req.Utterance) {
		fields, err := p.deps.NLP.Extractor.Extract(ctx, req.Utterance,
			[]string{"name", "email", "phone", "address", "contact_name"})
		if err == nil {
			merged = p.deps.Pending.Merge(req.UserID, pending.KindVendorDraft, fields)
		}
		if merged == nil {
			merged = op
		}
	}

	missing := missingFields(merged.Fields, vendorRequiredFields)
	if len(missing) > 0 {
		return ok(vendorQuestion(merged.Fields["name"], missing), nil)
	}

	// Fields are complete, but completion alone never commits: the
	// extraction may have misread something, so the user must say so.
	if !nlp.IsAffirmation(req.Utterance) {
		return ok(vendorSummary(merged.Fields)+" Shall I create the vendor?", nil)
	}

	existing, err := p.deps.Store.FindVendorByName(merged.Fields["name"])
	if err != nil {
		slog.Error("duplicate lookup failed", "error", err)
		return fail("Something went wrong checking for duplicates. Please try again.")
	}
	if existing != nil {
		dup := &pending.Operation{
			Kind:    pending.KindDuplicateConfirm,
			AgentID: IDPayable,
			Fields:  merged.Fields,
		}
		p.deps.Pending.Put(req.UserID, dup)
		return ok(fmt.Sprintf("A vendor named %s already exists. Create another with the same name?", merged.Fields["name"]), nil)
	}

	return p.createVendor(req, merged.Fields)
}

func (p *Payable) continueDuplicate(req *Request, op *pending.Operation) *Reply {
	switch {
	case nlp.IsAffirmation(req.Utterance):
		p.deps.Pending.Clear(req.UserID, pending.KindDuplicateConfirm)
		return p.createVendor(req, op.Fields)
	case nlp.IsNegation(req.Utterance) || nlp.IsCancellation(req.Utterance):
		p.deps.Pending.Clear(req.UserID, pending.KindDuplicateConfirm)
		p.deps.Pending.Clear(req.UserID, pending.KindVendorDraft)
		return ok("Okay, I won't create the duplicate vendor.", nil)
	}
	return ok(fmt.Sprintf("A vendor named %s already exists. Should I create another with the same name? (yes/no)", op.Fields["name"]), nil)
}

func (p *Payable) createVendor(req *Request, fields map[string]string) *Reply {
	v := &store.Vendor{
		ID:          uuid.NewString(),
		Name:        fields["name"],
		ContactName: fields["contact_name"],
		Email:       fields["email"],
		Phone:       fields["phone"],
		Address:     fields["address"],
	}
	if err := p.deps.Store.SaveVendor(v); err != nil {
		slog.Error("save vendor failed", "error", err)
		p.deps.audit(req.UserID, "VENDOR_CREATE", "", "FAILURE", err.Error())
		return fail("I couldn't save the vendor. Please try again.")
	}

	p.deps.Pending.Clear(req.UserID, pending.KindVendorDraft)
	p.deps.audit(req.UserID, "VENDOR_CREATE", v.ID, "SUCCESS", v.Name)
	return ok(fmt.Sprintf("Vendor %s created.", v.Name), map[string]any{"vendor_id": v.ID})
}

// --- bill flow ---

var billRequiredFields = []string{"vendor_name", "amount"}

func (p *Payable) startBill(ctx context.Context, req *Request) *Reply {
	fields, err := p.deps.NLP.Extractor.Extract(ctx, req.Utterance,
		[]string{"name", "amount", "due_date", "account_code"})
	if err != nil {
		fields = map[string]string{}
	}
	// The extractor's generic name capture is the vendor on this flow.
	if fields["name"] != "" {
		fields["vendor_name"] = fields["name"]
		delete(fields, "name")
	}

	op := &pending.Operation{
		Kind:    pending.KindBillDraft,
		AgentID: IDPayable,
		Fields:  fields,
	}
	if replaced := p.deps.Pending.Put(req.UserID, op); replaced != nil {
		p.deps.audit(req.UserID, "BILL_DRAFT", "", "REPLACED",
			fmt.Sprintf("discarded bill draft for %s", replaced.Fields["vendor_name"]))
	}

	missing := missingFields(fields, billRequiredFields)
	if len(missing) > 0 {
		return ok(billQuestion(fields, missing), nil)
	}
	return ok(billSummary(fields)+" Shall I record the bill?", nil)
}

func (p *Payable) continueBill(ctx context.Context, req *Request, op *pending.Operation) *Reply {
	if nlp.IsCancellation(req.Utterance) || nlp.IsNegation(req.Utterance) {
		p.deps.Pending.Clear(req.UserID, pending.KindBillDraft)
		return ok("Okay, I've dropped the bill draft.", nil)
	}

	merged := op
	if !nlp.IsAffirmation(req.Utterance) {
		fields, err := p.deps.NLP.Extractor.Extract(ctx, req.Utterance,
			[]string{"name", "amount", "due_date", "account_code"})
		if err == nil {
			if fields["name"] != "" {
				fields["vendor_name"] = fields["name"]
				delete(fields, "name")
			}
			merged = p.deps.Pending.Merge(req.UserID, pending.KindBillDraft, fields)
		}
		if merged == nil {
			merged = op
		}
	}

	missing := missingFields(merged.Fields, billRequiredFields)
	if len(missing) > 0 {
		return ok(billQuestion(merged.Fields, missing), nil)
	}
	if !nlp.IsAffirmation(req.Utterance) {
		return ok(billSummary(merged.Fields)+" Shall I record the bill?", nil)
	}
	return p.commitBill(ctx, req, merged.Fields)
}

func (p *Payable) commitBill(ctx context.Context, req *Request, fields map[string]string) *Reply {
	vendor, err := p.deps.Store.FindVendorByName(fields["vendor_name"])
	if err != nil {
		slog.Error("vendor lookup failed", "error", err)
		return fail("Something went wrong looking up the vendor. Please try again.")
	}
	if vendor == nil {
		return ok(fmt.Sprintf("I don't know a vendor named %s. Create the vendor first, then add the bill.", fields["vendor_name"]), nil)
	}

	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil || !amount.IsPositive() {
		return fail("I couldn't read the bill amount.")
	}

	// Expense side: a requested account may not exist yet, in which
	// case the general-ledger agent is asked to create it. Timeouts
	// degrade to the default expense account.
	expenseCode := fields["account_code"]
	if expenseCode == "" {
		expenseCode = p.deps.DefaultExpenseCode
	}
	expense := p.deps.ensureAccount(ctx, IDPayable, req.UserID, expenseCode,
		"Expenses "+expenseCode, "expense")
	payable := p.deps.ensureAccount(ctx, IDPayable, req.UserID, payableAccountCode,
		"Accounts Payable", "liability")
	if expense == nil || payable == nil {
		return fail("The ledger accounts for this bill are missing and I couldn't create them.")
	}

	bill := &store.Bill{
		ID:       uuid.NewString(),
		VendorID: vendor.ID,
		Amount:   amount,
		DueDate:  fields["due_date"],
		Memo:     req.Utterance,
	}
	if err := p.deps.Store.SaveBill(bill); err != nil {
		slog.Error("save bill failed", "error", err)
		p.deps.audit(req.UserID, "BILL_CREATE", "", "FAILURE", err.Error())
		return fail("I couldn't save the bill. Please try again.")
	}

	j := &store.Journal{
		Date:     today(),
		Memo:     fmt.Sprintf("Bill from %s", vendor.Name),
		TypeCode: "BILL",
		Lines: []store.JournalLine{
			{AccountID: expense.ID, Debit: amount, Credit: decimal.Zero, Description: "bill " + bill.ID},
			{AccountID: payable.ID, Debit: decimal.Zero, Credit: amount, Description: "bill " + bill.ID},
		},
	}
	if err := p.deps.Ledger.Commit(j, true); err != nil {
		slog.Error("bill journal failed", "bill", bill.ID, "error", err)
		p.deps.audit(req.UserID, "BILL_CREATE", bill.ID, "FAILURE", err.Error())
		return fail("The bill was saved but its ledger entry failed. Please check the journal.")
	}

	p.deps.Pending.Clear(req.UserID, pending.KindBillDraft)
	p.deps.audit(req.UserID, "BILL_CREATE", bill.ID, "SUCCESS",
		fmt.Sprintf("%s from %s", amount.StringFixed(2), vendor.Name))
	return ok(fmt.Sprintf("Recorded a %s bill from %s (debit %s, credit %s).",
		amount.StringFixed(2), vendor.Name, expense.Name, payable.Name),
		map[string]any{"bill_id": bill.ID, "journal_id": j.ID})
}

// --- helpers ---

func missingFields(fields map[string]string, required []string) []string {
	var missing []string
	for _, f := range required {
		if fields[f] == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

func vendorQuestion(name string, missing []string) string {
	labels := map[string]string{
		"name": "the vendor's name", "email": "an email", "phone": "a phone number",
		"address": "an address", "contact_name": "a contact person",
	}
	asks := make([]string, 0, len(missing))
	for _, f := range missing {
		asks = append(asks, labels[f])
	}
	if name != "" {
		return fmt.Sprintf("To set up %s I still need %s.", name, strings.Join(asks, ", "))
	}
	return fmt.Sprintf("I can set that vendor up; I need %s.", strings.Join(asks, ", "))
}

func vendorSummary(fields map[string]string) string {
	return fmt.Sprintf("I have %s: email %s, phone %s, address %s.",
		fields["name"], fields["email"], fields["phone"], fields["address"])
}

func billQuestion(fields map[string]string, missing []string) string {
	labels := map[string]string{
		"vendor_name": "which vendor the bill is from",
		"amount":      "the amount",
	}
	asks := make([]string, 0, len(missing))
	for _, f := range missing {
		asks = append(asks, labels[f])
	}
	return fmt.Sprintf("To record the bill I still need %s.", strings.Join(asks, " and "))
}

func billSummary(fields map[string]string) string {
	s := fmt.Sprintf("A bill from %s for %s", fields["vendor_name"], fields["amount"])
	if fields["due_date"] != "" {
		s += ", due " + fields["due_date"]
	}
	return s + "."
}
