package ledger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kpapadakis/ledgerdesk/internal/config"
	"github.com/kpapadakis/ledgerdesk/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, a := range []*store.Account{
		{ID: "acc-cash", Code: "1000", Name: "Cash", Type: "asset"},
		{ID: "acc-exp", Code: "6000", Name: "Office Expense", Type: "expense"},
		{ID: "acc-susp", Code: "9999", Name: "Suspense", Type: "suspense"},
	} {
		if err := s.SaveAccount(a); err != nil {
			t.Fatalf("save account: %v", err)
		}
	}
	return New(s, "9999"), s
}

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		lines    []store.JournalLine
		balanced bool
		delta    decimal.Decimal
	}{
		{
			name: "balanced",
			lines: []store.JournalLine{
				{AccountID: "acc-exp", Debit: d(100), Credit: decimal.Zero},
				{AccountID: "acc-cash", Debit: decimal.Zero, Credit: d(100)},
			},
			balanced: true,
			delta:    decimal.Zero,
		},
		{
			name: "imbalance of 20",
			lines: []store.JournalLine{
				{AccountID: "acc-exp", Debit: d(100), Credit: decimal.Zero},
				{AccountID: "acc-cash", Debit: decimal.Zero, Credit: d(80)},
			},
			balanced: false,
			delta:    d(20),
		},
		{
			name: "within rounding tolerance",
			lines: []store.JournalLine{
				{AccountID: "acc-exp", Debit: d(33.34), Credit: decimal.Zero},
				{AccountID: "acc-cash", Debit: decimal.Zero, Credit: d(33.33)},
			},
			balanced: true,
			delta:    d(0.01),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(&store.Journal{Lines: tt.lines})
			if res.Balanced != tt.balanced {
				t.Errorf("expected balanced=%v, got %v (delta %s)", tt.balanced, res.Balanced, res.Delta)
			}
			if !res.Delta.Equal(tt.delta) {
				t.Errorf("expected delta %s, got %s", tt.delta, res.Delta)
			}
		})
	}
}

func TestAutobalanceAppendsSuspenseLine(t *testing.T) {
	eng, _ := newTestEngine(t)

	j := &store.Journal{
		ID: "jrn-auto", Date: "2026-08-30", TypeCode: "GENERAL",
		Lines: []store.JournalLine{
			{AccountID: "acc-exp", Debit: d(100), Credit: decimal.Zero},
			{AccountID: "acc-cash", Debit: decimal.Zero, Credit: d(80)},
		},
	}
	if err := eng.Autobalance(j); err != nil {
		t.Fatalf("autobalance: %v", err)
	}
	if len(j.Lines) != 3 {
		t.Fatalf("expected 3 lines after autobalance, got %d", len(j.Lines))
	}
	last := j.Lines[2]
	if last.AccountID != "acc-susp" {
		t.Errorf("expected suspense line, got account %s", last.AccountID)
	}
	if !last.Credit.Equal(d(20)) || !last.Debit.IsZero() {
		t.Errorf("expected credit 20 on suspense line, got debit=%s credit=%s", last.Debit, last.Credit)
	}
	if res := Validate(j); !res.Balanced {
		t.Errorf("expected balanced after autobalance, delta %s", res.Delta)
	}
}

func TestAutobalanceWithoutSuspenseAccount(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.suspenseCode = "0000" // no such account

	j := &store.Journal{
		Lines: []store.JournalLine{
			{AccountID: "acc-exp", Debit: d(50), Credit: decimal.Zero},
		},
	}
	err := eng.Autobalance(j)
	if !errors.Is(err, ErrNoSuspense) {
		t.Fatalf("expected ErrNoSuspense, got %v", err)
	}
	if len(j.Lines) != 1 {
		t.Errorf("autobalance must not fabricate lines on failure, got %d lines", len(j.Lines))
	}
}

func TestCommitRejectsImbalanceWithoutAutobalance(t *testing.T) {
	eng, s := newTestEngine(t)

	j := &store.Journal{
		Date: "2026-08-30", TypeCode: "GENERAL",
		Lines: []store.JournalLine{
			{AccountID: "acc-exp", Debit: d(10), Credit: decimal.Zero},
		},
	}
	err := eng.Commit(j, false)
	if !errors.Is(err, ErrImbalanced) {
		t.Fatalf("expected ErrImbalanced, got %v", err)
	}

	// Nothing persisted
	got, err := s.GetJournal(j.ID)
	if err != nil {
		t.Fatalf("get journal: %v", err)
	}
	if got != nil {
		t.Error("rejected journal must not be persisted")
	}
}

func TestApplyLineEditsBalancedPair(t *testing.T) {
	eng, _ := newTestEngine(t)
	j := commitTestJournal(t, eng)

	newDebit, newCredit := d(150), d(150)
	res, err := eng.ApplyLineEdits(j.ID, []LineEdit{
		{LineID: j.Lines[0].ID, Debit: &newDebit},
		{LineID: j.Lines[1].ID, Credit: &newCredit},
	})
	if err != nil {
		t.Fatalf("apply edits: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("balanced pair should carry no warnings, got %v", res.Warnings)
	}
	if check := Validate(res.Journal); !check.Balanced {
		t.Errorf("expected balanced after edit, delta %s", check.Delta)
	}
	if !res.Journal.Lines[0].Debit.Equal(d(150)) {
		t.Errorf("expected debit 150, got %s", res.Journal.Lines[0].Debit)
	}
}

func TestApplyLineEditsRejectsImbalancedBatch(t *testing.T) {
	eng, _ := newTestEngine(t)
	j := commitTestJournal(t, eng)

	newDebit := d(500)
	_, err := eng.ApplyLineEdits(j.ID, []LineEdit{
		{LineID: j.Lines[0].ID, Debit: &newDebit},
	})
	if !errors.Is(err, ErrImbalanced) {
		t.Fatalf("expected ErrImbalanced, got %v", err)
	}

	// Whole batch rejected, nothing written
	got, err := eng.store.GetJournal(j.ID)
	if err != nil {
		t.Fatalf("reload journal: %v", err)
	}
	if !got.Lines[0].Debit.Equal(d(100)) {
		t.Errorf("expected original debit 100 intact, got %s", got.Lines[0].Debit)
	}
}

func TestApplyLineEditsOddShapeWarns(t *testing.T) {
	eng, _ := newTestEngine(t)
	j := commitTestJournal(t, eng)

	// Description-only edit: balance untouched but shape is not the
	// guaranteed pair.
	desc := "re-described"
	res, err := eng.ApplyLineEdits(j.ID, []LineEdit{
		{LineID: j.Lines[0].ID, Description: &desc},
	})
	if err != nil {
		t.Fatalf("apply edits: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", res.Warnings)
	}
	if res.Journal.Lines[0].Description != "re-described" {
		t.Errorf("description edit not applied: %s", res.Journal.Lines[0].Description)
	}
}

func TestApplyLineEditsPostedJournal(t *testing.T) {
	eng, _ := newTestEngine(t)
	j := commitTestJournal(t, eng)

	if err := eng.Post(j.ID); err != nil {
		t.Fatalf("post: %v", err)
	}
	desc := "too late"
	_, err := eng.ApplyLineEdits(j.ID, []LineEdit{{LineID: j.Lines[0].ID, Description: &desc}})
	if !errors.Is(err, store.ErrPosted) {
		t.Fatalf("expected ErrPosted, got %v", err)
	}
}

func commitTestJournal(t *testing.T, eng *Engine) *store.Journal {
	t.Helper()
	j := &store.Journal{
		Date: "2026-08-30", TypeCode: "GENERAL", Memo: "supplies",
		Lines: []store.JournalLine{
			{AccountID: "acc-exp", Debit: d(100), Credit: decimal.Zero},
			{AccountID: "acc-cash", Debit: decimal.Zero, Credit: d(100)},
		},
	}
	if err := eng.Commit(j, false); err != nil {
		t.Fatalf("commit journal: %v", err)
	}
	got, err := eng.store.GetJournal(j.ID)
	if err != nil {
		t.Fatalf("reload journal: %v", err)
	}
	return got
}
