package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InsertContact stores a new contact and returns the stored record with the
// server-assigned id.
func (db *DB) InsertContact(c Contact) (Contact, error) {
	now := time.Now().UnixMilli()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Name == "" {
		c.Name = c.Phone
	}
	_, err := db.Exec(`
		INSERT INTO contacts (id, account_id, phone, name, last_message, last_message_time, unread_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.Phone, c.Name, c.LastMessage, c.LastMessageTime, c.UnreadCount, now)
	if err != nil {
		return Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	c.CreatedAt = now
	return c, nil
}

// GetContact returns a contact by id, or ErrNotFound.
func (db *DB) GetContact(id string) (Contact, error) {
	return db.scanContact(db.QueryRow(contactSelect+` WHERE id = ?`, id), id)
}

// GetContactByPhone returns the contact for an (account, address) pair,
// or ErrNotFound.
func (db *DB) GetContactByPhone(accountID int64, phone string) (Contact, error) {
	return db.scanContact(db.QueryRow(contactSelect+` WHERE account_id = ? AND phone = ?`, accountID, phone), phone)
}

const contactSelect = `
	SELECT id, account_id, phone, name, last_message, last_message_time, unread_count, created_at
	FROM contacts`

func (db *DB) scanContact(row *sql.Row, ref any) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.AccountID, &c.Phone, &c.Name, &c.LastMessage, &c.LastMessageTime, &c.UnreadCount, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return Contact{}, fmt.Errorf("contact %v: %w", ref, ErrNotFound)
	}
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

// ListContacts returns all contacts ordered by last message recency.
func (db *DB) ListContacts() ([]Contact, error) {
	rows, err := db.Query(contactSelect + ` ORDER BY last_message_time DESC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Phone, &c.Name, &c.LastMessage, &c.LastMessageTime, &c.UnreadCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// UpdateContact applies a partial update and returns the stored record.
func (db *DB) UpdateContact(id string, p ContactPatch) (Contact, error) {
	var sets []string
	var args []any
	if p.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, *p.Name)
	}
	if p.LastMessage != nil {
		sets, args = append(sets, "last_message = ?"), append(args, *p.LastMessage)
	}
	if p.LastMessageTime != nil {
		sets, args = append(sets, "last_message_time = ?"), append(args, *p.LastMessageTime)
	}
	if p.UnreadCount != nil {
		sets, args = append(sets, "unread_count = ?"), append(args, *p.UnreadCount)
	}
	if len(sets) == 0 {
		return db.GetContact(id)
	}
	args = append(args, id)

	res, err := db.Exec(`UPDATE contacts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Contact{}, fmt.Errorf("update contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Contact{}, err
	}
	if n == 0 {
		return Contact{}, fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}
	return db.GetContact(id)
}

// DeleteContact removes a contact. Not used by the core flows; present for
// administrative cleanup.
func (db *DB) DeleteContact(id string) error {
	res, err := db.Exec(`DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}
	return nil
}
