package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Bill struct {
	ID         string          `json:"id"`
	VendorID   string          `json:"vendor_id"`
	BillNumber string          `json:"bill_number,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	DueDate    string          `json:"due_date,omitempty"`
	Memo       string          `json:"memo,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (s *Store) SaveBill(b *Bill) error {
	_, err := s.db.Exec(`
		INSERT INTO bills (id, vendor_id, bill_number, amount, due_date, memo)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.VendorID, b.BillNumber, b.Amount.String(), b.DueDate, b.Memo)
	if err != nil {
		return fmt.Errorf("save bill: %w", err)
	}
	return nil
}

func (s *Store) GetBill(id string) (*Bill, error) {
	row := s.db.QueryRow(`
		SELECT id, vendor_id, bill_number, amount, due_date, memo, created_at
		FROM bills WHERE id = ?`, id)

	var b Bill
	var number, due, memo sql.NullString
	var amount string
	err := row.Scan(&b.ID, &b.VendorID, &number, &amount, &due, &memo, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan bill: %w", err)
	}
	b.BillNumber, b.DueDate, b.Memo = number.String, due.String, memo.String
	b.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse bill amount: %w", err)
	}
	return &b, nil
}

func (s *Store) ListBillsForVendor(vendorID string) ([]Bill, error) {
	rows, err := s.db.Query(`
		SELECT id, vendor_id, bill_number, amount, due_date, memo, created_at
		FROM bills WHERE vendor_id = ? ORDER BY created_at`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var bills []Bill
	for rows.Next() {
		var b Bill
		var number, due, memo sql.NullString
		var amount string
		if err := rows.Scan(&b.ID, &b.VendorID, &number, &amount, &due, &memo, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		b.BillNumber, b.DueDate, b.Memo = number.String, due.String, memo.String
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse bill amount: %w", err)
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}
