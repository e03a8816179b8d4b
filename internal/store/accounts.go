package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Account struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) SaveAccount(a *Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, code, name, type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET code = excluded.code, name = excluded.name, type = excluded.type`,
		a.ID, a.Code, a.Name, a.Type)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(id string) (*Account, error) {
	row := s.db.QueryRow(`
		SELECT id, code, name, type, created_at
		FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetAccountByCode resolves an account by its ledger code (e.g. the
// suspense account lookup code).
func (s *Store) GetAccountByCode(code string) (*Account, error) {
	row := s.db.QueryRow(`
		SELECT id, code, name, type, created_at
		FROM accounts WHERE code = ?`, code)
	return scanAccount(row)
}

func (s *Store) ListAccounts() ([]Account, error) {
	rows, err := s.db.Query(`
		SELECT id, code, name, type, created_at
		FROM accounts ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}
