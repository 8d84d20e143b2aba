package store

import (
	"context"
	"fmt"
	"time"
)

// UpsertInbox inserts or updates an inbox keyed by its phone address.
// Returns the inbox ID.
func (db *DB) UpsertInbox(ctx context.Context, in *Inbox) (int64, error) {
	if in.CreatedAt == 0 {
		in.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO inboxes (phone_address, display_name, active, is_primary, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(phone_address) DO UPDATE SET
			display_name = excluded.display_name,
			active = excluded.active,
			is_primary = excluded.is_primary`,
		in.PhoneAddress, in.DisplayName, in.Active, in.Primary, in.CreatedAt)
	if err != nil {
		return 0, err
	}
	if err := db.QueryRowContext(ctx, `SELECT id FROM inboxes WHERE phone_address = ?`, in.PhoneAddress).Scan(&in.ID); err != nil {
		return 0, fmt.Errorf("read inbox id: %w", err)
	}
	return in.ID, nil
}

// ListActiveInboxes returns active inboxes, primary first, then by creation.
func (db *DB) ListActiveInboxes(ctx context.Context) ([]Inbox, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, phone_address, display_name, active, is_primary, created_at
		FROM inboxes
		WHERE active = 1
		ORDER BY is_primary DESC, created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var inboxes []Inbox
	for rows.Next() {
		var in Inbox
		if err := rows.Scan(&in.ID, &in.PhoneAddress, &in.DisplayName, &in.Active, &in.Primary, &in.CreatedAt); err != nil {
			return nil, err
		}
		inboxes = append(inboxes, in)
	}
	return inboxes, rows.Err()
}

// SetPrimaryInbox marks one inbox primary and clears the flag on all others.
func (db *DB) SetPrimaryInbox(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE inboxes SET is_primary = 0 WHERE id != ?`, id); err != nil {
		return fmt.Errorf("clear primary: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE inboxes SET is_primary = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("set primary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("inbox %d not found", id)
	}
	return tx.Commit()
}

// EnsureInbox inserts the inbox unless its phone address is already known,
// leaving an existing row untouched. Reports whether a row was created.
func (db *DB) EnsureInbox(ctx context.Context, in *Inbox) (bool, error) {
	if in.CreatedAt == 0 {
		in.CreatedAt = time.Now().UnixMilli()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO inboxes (phone_address, display_name, active, is_primary, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(phone_address) DO NOTHING`,
		in.PhoneAddress, in.DisplayName, in.Active, in.Primary, in.CreatedAt)
	if err != nil {
		return false, err
	}
	created, _ := res.RowsAffected()
	if err := db.QueryRowContext(ctx, `SELECT id FROM inboxes WHERE phone_address = ?`, in.PhoneAddress).Scan(&in.ID); err != nil {
		return false, fmt.Errorf("read inbox id: %w", err)
	}
	return created > 0, nil
}
