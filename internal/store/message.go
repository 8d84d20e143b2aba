package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const messageColumns = `id, patient_id, direction, body, channel, inbox_address, read, external_id, created_at`

// InsertMessage stores a message. It is idempotent on (channel, external_id):
// re-inserting a known provider message returns the existing row and false.
func (db *DB) InsertMessage(ctx context.Context, m *Message) (bool, error) {
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	if m.Channel == "" {
		m.Channel = "sms"
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO messages (patient_id, direction, body, channel, inbox_address, read, external_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel, external_id) DO NOTHING`,
		m.PatientID, string(m.Direction), m.Body, m.Channel, nullString(m.InboxAddress), nullBool(m.Read), nullString(m.ExternalID), m.CreatedAt)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := db.scanMessage(db.QueryRowContext(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE channel = ? AND external_id = ?`, m.Channel, m.ExternalID))
		if err != nil {
			return false, fmt.Errorf("load existing message: %w", err)
		}
		if existing != nil {
			*m = *existing
		}
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}
	m.ID = id
	return true, nil
}

// InsertMessages stores a batch in one transaction with the same
// idempotency as InsertMessage. It returns how many rows were new.
func (db *DB) InsertMessages(ctx context.Context, msgs []*Message) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	inserted := 0
	for _, m := range msgs {
		if m.CreatedAt == 0 {
			m.CreatedAt = now
		}
		if m.Channel == "" {
			m.Channel = "sms"
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (patient_id, direction, body, channel, inbox_address, read, external_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(channel, external_id) DO NOTHING`,
			m.PatientID, string(m.Direction), m.Body, m.Channel, nullString(m.InboxAddress), nullBool(m.Read), nullString(m.ExternalID), m.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("insert message in batch: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			if id, err := res.LastInsertId(); err == nil {
				m.ID = id
			}
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return inserted, nil
}

// GetMessage returns a message by ID, or nil if it does not exist.
func (db *DB) GetMessage(ctx context.Context, id int64) (*Message, error) {
	return db.scanMessage(db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
}

// ListMessages returns messages matching the filter, oldest first.
func (db *DB) ListMessages(ctx context.Context, f MessageFilter) ([]Message, error) {
	where, args := f.clause()
	rows, err := db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages`+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessagesByPatient returns every message grouped by patient, oldest first.
func (db *DB) MessagesByPatient(ctx context.Context) (map[int64][]Message, error) {
	msgs, err := db.ListMessages(ctx, MessageFilter{})
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]Message)
	for _, m := range msgs {
		out[m.PatientID] = append(out[m.PatientID], m)
	}
	return out, nil
}

// CountUnread counts inbound messages whose read flag is false or unset.
func (db *DB) CountUnread(ctx context.Context, f MessageFilter) (int, error) {
	where, args := f.clause()
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}
	where += "direction = 'inbound' AND (read IS NULL OR read = 0)"

	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`+where, args...).Scan(&n)
	return n, err
}

// MarkRead sets the read flag on the given messages.
func (db *DB) MarkRead(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := db.ExecContext(ctx, `UPDATE messages SET read = 1 WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func (f MessageFilter) clause() (string, []any) {
	var conds []string
	var args []any
	if f.PatientID != 0 {
		conds = append(conds, "patient_id = ?")
		args = append(args, f.PatientID)
	}
	if f.InboxAddress != "" {
		if f.IncludeLegacy {
			conds = append(conds, "(inbox_address = ? OR inbox_address IS NULL)")
		} else {
			conds = append(conds, "inbox_address = ?")
		}
		args = append(args, f.InboxAddress)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessageRow(r rowScanner) (Message, error) {
	var (
		m         Message
		direction string
		inbox     sql.NullString
		read      sql.NullBool
		external  sql.NullString
	)
	if err := r.Scan(&m.ID, &m.PatientID, &direction, &m.Body, &m.Channel, &inbox, &read, &external, &m.CreatedAt); err != nil {
		return Message{}, err
	}
	m.Direction = Direction(direction)
	m.InboxAddress = inbox.String
	m.Read = boolPtr(read)
	m.ExternalID = external.String
	return m, nil
}

func (db *DB) scanMessage(row *sql.Row) (*Message, error) {
	m, err := scanMessageRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
