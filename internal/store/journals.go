package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPosted is returned when a write touches a journal that has already
// been posted. Posted journals are immutable.
var ErrPosted = errors.New("journal already posted")

// ErrJournalNotFound is returned by writes addressing a journal id that
// does not exist.
var ErrJournalNotFound = errors.New("journal not found")

type Journal struct {
	ID        string        `json:"id"`
	Date      string        `json:"date"`
	Memo      string        `json:"memo,omitempty"`
	TypeCode  string        `json:"type_code"`
	Posted    bool          `json:"posted"`
	Lines     []JournalLine `json:"lines"`
	CreatedAt time.Time     `json:"created_at"`
}

type JournalLine struct {
	ID          int64           `json:"id,omitempty"`
	AccountID   string          `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// SaveJournal writes the header and all lines in one transaction. A
// partially written journal (header without lines) is never visible.
func (s *Store) SaveJournal(j *Journal) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO journals (id, date, memo, type_code, posted)
		VALUES (?, ?, ?, ?, ?)`,
		j.ID, j.Date, j.Memo, j.TypeCode, j.Posted)
	if err != nil {
		return fmt.Errorf("insert journal: %w", err)
	}

	for _, line := range j.Lines {
		_, err = tx.Exec(`
			INSERT INTO journal_lines (journal_id, account_id, debit, credit, description)
			VALUES (?, ?, ?, ?, ?)`,
			j.ID, line.AccountID, line.Debit.String(), line.Credit.String(), line.Description)
		if err != nil {
			return fmt.Errorf("insert journal line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal: %w", err)
	}
	return nil
}

func (s *Store) GetJournal(id string) (*Journal, error) {
	row := s.db.QueryRow(`
		SELECT id, date, memo, type_code, posted, created_at
		FROM journals WHERE id = ?`, id)

	var j Journal
	var memo sql.NullString
	err := row.Scan(&j.ID, &j.Date, &memo, &j.TypeCode, &j.Posted, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	j.Memo = memo.String

	rows, err := s.db.Query(`
		SELECT id, account_id, debit, credit, description
		FROM journal_lines WHERE journal_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get journal lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line JournalLine
		var desc sql.NullString
		var debit, credit string
		if err := rows.Scan(&line.ID, &line.AccountID, &debit, &credit, &desc); err != nil {
			return nil, fmt.Errorf("scan journal line: %w", err)
		}
		line.Description = desc.String
		if line.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("parse debit: %w", err)
		}
		if line.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("parse credit: %w", err)
		}
		j.Lines = append(j.Lines, line)
	}
	return &j, rows.Err()
}

// ReplaceJournalLines swaps the full line set of an unposted journal in
// one transaction. The posted flag is re-checked inside the transaction
// so a concurrent post cannot race the rewrite.
func (s *Store) ReplaceJournalLines(journalID string, lines []JournalLine) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var posted bool
	err = tx.QueryRow(`SELECT posted FROM journals WHERE id = ?`, journalID).Scan(&posted)
	if err == sql.ErrNoRows {
		return fmt.Errorf("journal %s not found", journalID)
	}
	if err != nil {
		return fmt.Errorf("check posted: %w", err)
	}
	if posted {
		return ErrPosted
	}

	if _, err := tx.Exec(`DELETE FROM journal_lines WHERE journal_id = ?`, journalID); err != nil {
		return fmt.Errorf("delete old lines: %w", err)
	}
	for _, line := range lines {
		_, err = tx.Exec(`
			INSERT INTO journal_lines (journal_id, account_id, debit, credit, description)
			VALUES (?, ?, ?, ?, ?)`,
			journalID, line.AccountID, line.Debit.String(), line.Credit.String(), line.Description)
		if err != nil {
			return fmt.Errorf("insert line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit line edits: %w", err)
	}
	return nil
}

func (s *Store) MarkJournalPosted(id string) error {
	res, err := s.db.Exec(`UPDATE journals SET posted = TRUE WHERE id = ? AND posted = FALSE`, id)
	if err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Zero rows means either the journal is already posted or it
		// does not exist; the two are different failures to the caller.
		var posted bool
		err := s.db.QueryRow(`SELECT posted FROM journals WHERE id = ?`, id).Scan(&posted)
		if err == sql.ErrNoRows {
			return fmt.Errorf("journal %s: %w", id, ErrJournalNotFound)
		}
		if err != nil {
			return fmt.Errorf("mark posted: %w", err)
		}
		return ErrPosted
	}
	return nil
}
