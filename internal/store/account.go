package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// InsertAccount stores a new account and returns the stored record with the
// server-assigned id and creation time.
func (db *DB) InsertAccount(a Account) (Account, error) {
	now := time.Now().UnixMilli()
	if a.Status == "" {
		a.Status = StatusPending
	}
	res, err := db.Exec(`
		INSERT INTO accounts (name, phone_number, status, linking_token, is_active, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.PhoneNumber, a.Status, a.LinkingToken, a.IsActive, a.LastSeen, now)
	if err != nil {
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Account{}, fmt.Errorf("insert account id: %w", err)
	}
	a.ID = id
	a.CreatedAt = now
	return a, nil
}

// GetAccount returns an account by id, or ErrNotFound.
func (db *DB) GetAccount(id int64) (Account, error) {
	var a Account
	err := db.QueryRow(`
		SELECT id, name, phone_number, status, linking_token, is_active, last_seen, created_at
		FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.PhoneNumber, &a.Status, &a.LinkingToken, &a.IsActive, &a.LastSeen, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// ListAccounts returns all accounts, newest first.
func (db *DB) ListAccounts() ([]Account, error) {
	rows, err := db.Query(`
		SELECT id, name, phone_number, status, linking_token, is_active, last_seen, created_at
		FROM accounts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.PhoneNumber, &a.Status, &a.LinkingToken, &a.IsActive, &a.LastSeen, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccount applies a partial update and returns the stored record.
// A missing id is an error, never a silent no-op.
func (db *DB) UpdateAccount(id int64, p AccountPatch) (Account, error) {
	var sets []string
	var args []any
	if p.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, *p.Name)
	}
	if p.PhoneNumber != nil {
		sets, args = append(sets, "phone_number = ?"), append(args, *p.PhoneNumber)
	}
	if p.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, *p.Status)
	}
	if p.LinkingToken != nil {
		sets, args = append(sets, "linking_token = ?"), append(args, *p.LinkingToken)
	}
	if p.IsActive != nil {
		sets, args = append(sets, "is_active = ?"), append(args, *p.IsActive)
	}
	if p.LastSeen != nil {
		sets, args = append(sets, "last_seen = ?"), append(args, *p.LastSeen)
	}
	if len(sets) == 0 {
		return db.GetAccount(id)
	}
	args = append(args, id)

	res, err := db.Exec(`UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Account{}, fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Account{}, err
	}
	if n == 0 {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return db.GetAccount(id)
}

// DeleteAccount removes an account. Contacts and messages keep their
// (now dangling) account reference; no cascading cleanup.
func (db *DB) DeleteAccount(id int64) error {
	res, err := db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return nil
}
