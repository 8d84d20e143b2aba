package store

import (
	"context"
	"database/sql"
	"time"
)

const patientColumns = `id, name, phone, email, preferred_channel, status, created_at`

// UpsertPatient inserts a patient, or updates it when ID is already set.
// CreatedAt defaults to now on insert. Returns the patient ID.
func (db *DB) UpsertPatient(ctx context.Context, p *Patient) (int64, error) {
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().UnixMilli()
	}
	if p.PreferredChannel == "" {
		p.PreferredChannel = "sms"
	}
	if p.Status == "" {
		p.Status = "active"
	}
	if p.ID == 0 {
		res, err := db.ExecContext(ctx, `
			INSERT INTO patients (name, phone, email, preferred_channel, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.Name, p.Phone, p.Email, p.PreferredChannel, p.Status, p.CreatedAt)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		p.ID = id
		return id, nil
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO patients (id, name, phone, email, preferred_channel, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			email = excluded.email,
			preferred_channel = excluded.preferred_channel,
			status = excluded.status`,
		p.ID, p.Name, p.Phone, p.Email, p.PreferredChannel, p.Status, p.CreatedAt)
	return p.ID, err
}

// ListPatients returns every patient ordered by ID.
func (db *DB) ListPatients(ctx context.Context) ([]Patient, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var patients []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.PreferredChannel, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// GetPatient returns a patient by ID, or nil if it does not exist.
func (db *DB) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return db.scanPatient(db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id))
}

// FindPatientByPhone returns the oldest patient with the given phone, or nil.
func (db *DB) FindPatientByPhone(ctx context.Context, phone string) (*Patient, error) {
	return db.scanPatient(db.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE phone = ? ORDER BY id LIMIT 1`, phone))
}

func (db *DB) scanPatient(row *sql.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.PreferredChannel, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
