package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type Vendor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactName string    `json:"contact_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) SaveVendor(v *Vendor) error {
	_, err := s.db.Exec(`
		INSERT INTO vendors (id, name, contact_name, email, phone, address)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, contact_name = excluded.contact_name,
			email = excluded.email, phone = excluded.phone, address = excluded.address`,
		v.ID, v.Name, v.ContactName, v.Email, v.Phone, v.Address)
	if err != nil {
		return fmt.Errorf("save vendor: %w", err)
	}
	return nil
}

func (s *Store) GetVendor(id string) (*Vendor, error) {
	row := s.db.QueryRow(`
		SELECT id, name, contact_name, email, phone, address, created_at
		FROM vendors WHERE id = ?`, id)
	return scanVendor(row)
}

// FindVendorByName does a case-insensitive exact match, used for
// duplicate detection before creating a vendor.
func (s *Store) FindVendorByName(name string) (*Vendor, error) {
	row := s.db.QueryRow(`
		SELECT id, name, contact_name, email, phone, address, created_at
		FROM vendors WHERE LOWER(name) = ?`, strings.ToLower(name))
	return scanVendor(row)
}

func (s *Store) ListVendors() ([]Vendor, error) {
	rows, err := s.db.Query(`
		SELECT id, name, contact_name, email, phone, address, created_at
		FROM vendors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()

	var vendors []Vendor
	for rows.Next() {
		var v Vendor
		var contact, email, phone, address sql.NullString
		if err := rows.Scan(&v.ID, &v.Name, &contact, &email, &phone, &address, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		v.ContactName, v.Email, v.Phone, v.Address = contact.String, email.String, phone.String, address.String
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func scanVendor(row *sql.Row) (*Vendor, error) {
	var v Vendor
	var contact, email, phone, address sql.NullString
	err := row.Scan(&v.ID, &v.Name, &contact, &email, &phone, &address, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan vendor: %w", err)
	}
	v.ContactName, v.Email, v.Phone, v.Address = contact.String, email.String, phone.String, address.String
	return &v, nil
}
