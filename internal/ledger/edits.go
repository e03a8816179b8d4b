package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kpapadakis/ledgerdesk/internal/store"
)

// LineEdit targets one existing line. Nil fields are left untouched.
type LineEdit struct {
	LineID      int64
	Debit       *decimal.Decimal
	Credit      *decimal.Decimal
	Description *string
}

type EditResult struct {
	Journal  *store.Journal `json:"journal"`
	Warnings []string       `json:"warnings,omitempty"`
}

// ApplyLineEdits edits an unposted journal's lines, simulating the full
// post-edit totals before anything is written. An imbalanced simulation
// rejects the whole batch. The one edit shape guaranteed to preserve
// balance (exactly one debit edit and one credit edit of equal
// magnitude) is committed as a single atomic unit; every other shape is
// applied line-by-line with a warning that balance stays the caller's
// responsibility.
func (e *Engine) ApplyLineEdits(journalID string, edits []LineEdit) (*EditResult, error) {
	j, err := e.store.GetJournal(journalID)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	if j == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, journalID)
	}
	if j.Posted {
		return nil, fmt.Errorf("%w: journal %s rejects edits", store.ErrPosted, journalID)
	}
	if len(edits) == 0 {
		return &EditResult{Journal: j}, nil
	}

	// Simulate the full post-edit line set before writing anything.
	simulated := make([]store.JournalLine, len(j.Lines))
	copy(simulated, j.Lines)
	byID := make(map[int64]int, len(simulated))
	for i, line := range simulated {
		byID[line.ID] = i
	}
	for _, edit := range edits {
		i, ok := byID[edit.LineID]
		if !ok {
			return nil, fmt.Errorf("line %d not in journal %s", edit.LineID, journalID)
		}
		if edit.Debit != nil {
			simulated[i].Debit = *edit.Debit
		}
		if edit.Credit != nil {
			simulated[i].Credit = *edit.Credit
		}
		if edit.Description != nil {
			simulated[i].Description = *edit.Description
		}
	}

	sim := store.Journal{Lines: simulated}
	if res := Validate(&sim); !res.Balanced {
		return nil, fmt.Errorf("%w: edits would leave delta %s", ErrImbalanced, res.Delta)
	}

	result := &EditResult{}
	if !isBalancedPair(edits) {
		result.Warnings = append(result.Warnings,
			"edit shape does not guarantee balance; caller is responsible for debit/credit totals")
	}

	// ReplaceJournalLines swaps the whole set in one transaction, so the
	// balanced pair commits or rolls back as a unit.
	if err := e.store.ReplaceJournalLines(journalID, simulated); err != nil {
		return nil, fmt.Errorf("apply line edits: %w", err)
	}

	j, err = e.store.GetJournal(journalID)
	if err != nil {
		return nil, fmt.Errorf("reload journal: %w", err)
	}
	result.Journal = j
	return result, nil
}

// isBalancedPair reports whether the batch is exactly one debit-side
// edit and one credit-side edit of equal magnitude.
func isBalancedPair(edits []LineEdit) bool {
	if len(edits) != 2 {
		return false
	}
	var debit, credit *decimal.Decimal
	for _, edit := range edits {
		switch {
		case edit.Debit != nil && edit.Credit == nil:
			if debit != nil {
				return false
			}
			debit = edit.Debit
		case edit.Credit != nil && edit.Debit == nil:
			if credit != nil {
				return false
			}
			credit = edit.Credit
		default:
			return false
		}
	}
	return debit != nil && credit != nil && debit.Equal(*credit)
}
