package ledger

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kpapadakis/ledgerdesk/internal/store"
)

// Rounding slack permitted between debit and credit totals, in currency
// units. Anything beyond this is a real imbalance.
var tolerance = decimal.NewFromFloat(0.01)

var (
	ErrNoSuspense = errors.New("suspense account not configured in chart of accounts")
	ErrImbalanced = errors.New("journal is imbalanced")
	ErrNotFound   = errors.New("journal not found")
)

// Engine enforces the double-entry invariant on every journal write.
// Workers never write journals except through it.
type Engine struct {
	store        *store.Store
	suspenseCode string
}

func New(s *store.Store, suspenseCode string) *Engine {
	return &Engine{store: s, suspenseCode: suspenseCode}
}

// Result of a balance check. Delta is debit total minus credit total;
// positive means credits are short.
type Result struct {
	Balanced bool            `json:"balanced"`
	Delta    decimal.Decimal `json:"delta"`
}

func Validate(j *store.Journal) Result {
	debits, credits := decimal.Zero, decimal.Zero
	for _, line := range j.Lines {
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	delta := debits.Sub(credits)
	return Result{Balanced: delta.Abs().LessThanOrEqual(tolerance), Delta: delta}
}

// Autobalance appends a single suspense line absorbing the delta on
// whichever side is short. It never fabricates an account: if the
// suspense code resolves to nothing the journal is rejected as-is.
func (e *Engine) Autobalance(j *store.Journal) error {
	res := Validate(j)
	if res.Balanced {
		return nil
	}

	suspense, err := e.store.GetAccountByCode(e.suspenseCode)
	if err != nil {
		return fmt.Errorf("lookup suspense account: %w", err)
	}
	if suspense == nil {
		return fmt.Errorf("%w: cannot absorb imbalance of %s (code %s)",
			ErrNoSuspense, res.Delta.Abs(), e.suspenseCode)
	}

	line := store.JournalLine{
		AccountID:   suspense.ID,
		Debit:       decimal.Zero,
		Credit:      decimal.Zero,
		Description: "auto-balancing entry",
	}
	if res.Delta.IsPositive() {
		line.Credit = res.Delta
	} else {
		line.Debit = res.Delta.Neg()
	}
	j.Lines = append(j.Lines, line)

	if check := Validate(j); !check.Balanced {
		return fmt.Errorf("%w: delta %s remains after autobalance", ErrImbalanced, check.Delta)
	}
	slog.Info("journal autobalanced", "journal", j.ID, "suspense", suspense.Code, "delta", res.Delta)
	return nil
}

// Commit validates and persists a journal. With autobalance enabled an
// imbalanced entry gets a suspense line before the write; without it
// the imbalance is a hard rejection carrying the delta.
func (e *Engine) Commit(j *store.Journal, autobalance bool) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}

	res := Validate(j)
	if !res.Balanced {
		if !autobalance {
			return fmt.Errorf("%w: debit/credit delta %s", ErrImbalanced, res.Delta)
		}
		if err := e.Autobalance(j); err != nil {
			return err
		}
	}

	if err := e.store.SaveJournal(j); err != nil {
		return fmt.Errorf("persist journal: %w", err)
	}
	return nil
}

func (e *Engine) Post(journalID string) error {
	return e.store.MarkJournalPosted(journalID)
}
