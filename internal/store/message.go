package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertMessage stores a message and refreshes the counterparty contact's
// denormalized preview in the same transaction, creating the contact row if
// this is the first message to or from that address. The unread count is
// bumped only for received messages. Returns both stored records.
func (db *DB) InsertMessage(m Message) (Message, Contact, error) {
	now := time.Now().UnixMilli()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = MessageSent
	}
	if m.Timestamp == 0 {
		m.Timestamp = now
	}

	tx, err := db.Begin()
	if err != nil {
		return Message{}, Contact{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO messages (id, account_id, to_phone, from_phone, direction, body, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AccountID, m.ToPhone, m.FromPhone, m.Direction, m.Body, m.Status, m.Timestamp, now); err != nil {
		return Message{}, Contact{}, fmt.Errorf("insert message: %w", err)
	}
	m.CreatedAt = now

	unreadBump := 0
	if m.Direction == DirectionReceived {
		unreadBump = 1
	}
	phone := m.Counterparty()
	contactID := uuid.NewString()
	if _, err := tx.Exec(`
		INSERT INTO contacts (id, account_id, phone, name, last_message, last_message_time, unread_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, phone) DO UPDATE SET
			last_message = excluded.last_message,
			last_message_time = excluded.last_message_time,
			unread_count = contacts.unread_count + ?`,
		contactID, m.AccountID, phone, phone, m.Body, m.Timestamp, unreadBump, now, unreadBump); err != nil {
		return Message{}, Contact{}, fmt.Errorf("upsert contact preview: %w", err)
	}

	var c Contact
	if err := tx.QueryRow(`
		SELECT id, account_id, phone, name, last_message, last_message_time, unread_count, created_at
		FROM contacts WHERE account_id = ? AND phone = ?`, m.AccountID, phone).
		Scan(&c.ID, &c.AccountID, &c.Phone, &c.Name, &c.LastMessage, &c.LastMessageTime, &c.UnreadCount, &c.CreatedAt); err != nil {
		return Message{}, Contact{}, fmt.Errorf("read contact preview: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, Contact{}, fmt.Errorf("commit message: %w", err)
	}
	return m, c, nil
}

// GetMessage returns a message by id, or ErrNotFound.
func (db *DB) GetMessage(id string) (Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT id, account_id, to_phone, from_phone, direction, body, status, timestamp, created_at
		FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.AccountID, &m.ToPhone, &m.FromPhone, &m.Direction, &m.Body, &m.Status, &m.Timestamp, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// ListMessages returns all messages ascending by timestamp.
func (db *DB) ListMessages() ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, account_id, to_phone, from_phone, direction, body, status, timestamp, created_at
		FROM messages ORDER BY timestamp ASC, created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AccountID, &m.ToPhone, &m.FromPhone, &m.Direction, &m.Body, &m.Status, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpdateMessageStatus moves a message forward in its delivery lifecycle and
// returns the stored record. Terminal statuses are immutable: updating an
// already-delivered or failed message returns the record unchanged.
func (db *DB) UpdateMessageStatus(id string, status MessageStatus) (Message, error) {
	current, err := db.GetMessage(id)
	if err != nil {
		return Message{}, err
	}
	if current.Status != MessageSent || MessageStatusRegresses(current.Status, status) {
		return current, nil
	}
	if _, err := db.Exec(`UPDATE messages SET status = ? WHERE id = ? AND status = ?`, status, id, MessageSent); err != nil {
		return Message{}, fmt.Errorf("update message status: %w", err)
	}
	return db.GetMessage(id)
}

// DeleteMessage removes a message. Not used by the core flows; present for
// administrative cleanup.
func (db *DB) DeleteMessage(id string) error {
	res, err := db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}
