// Package sqlite persists sessions into a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// ErrSessionNotFound is returned by Load for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// startedAtLayout is fixed width so that started_at sorts as text.
const startedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ports.SessionSink on a SQLite database.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// SessionSummary is one row of the session index.
type SessionSummary struct {
	ID          string
	StartedAt   time.Time
	SlotCount   int
	SampleCount int
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string, logger ports.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps PRAGMAs and in-memory databases consistent.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Persist stores the session in one transaction. A session id that is
// already stored is left untouched, so a repeated delivery is a no-op.
func (s *Store) Persist(ctx context.Context, p *domain.SessionPayload) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, started_at, slot_count, sample_count) VALUES (?, ?, ?, ?)`,
		p.ID, p.StartedAt.UTC().Format(startedAtLayout), len(p.Slots), p.SampleCount())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Info("session already stored", ports.String("session", p.ID))
		return tx.Commit()
	}

	devStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO session_devices (session_id, slot, device_id) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer devStmt.Close()

	sampleStmt, err := tx.PrepareContext(ctx, `INSERT INTO samples
		(session_id, slot, seq, ts, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, mag_x, mag_y, mag_z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer sampleStmt.Close()

	for _, rec := range p.Slots {
		if _, err := devStmt.ExecContext(ctx, p.ID, int(rec.Slot), rec.DeviceID); err != nil {
			return fmt.Errorf("insert device %s: %w", rec.Slot, err)
		}
		for i, smp := range rec.Samples {
			if _, err := sampleStmt.ExecContext(ctx, p.ID, int(rec.Slot), i, smp.Timestamp,
				smp.Accel.X, smp.Accel.Y, smp.Accel.Z,
				smp.Gyro.X, smp.Gyro.Y, smp.Gyro.Z,
				smp.Mag.X, smp.Mag.Y, smp.Mag.Z,
			); err != nil {
				return fmt.Errorf("insert sample %s/%d: %w", rec.Slot, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("session stored",
		ports.String("session", p.ID),
		ports.Int("samples", p.SampleCount()),
	)
	return nil
}

// Load reads a stored session back into a payload.
func (s *Store) Load(ctx context.Context, id string) (*domain.SessionPayload, error) {
	var startedAt string
	err := s.db.QueryRowContext(ctx, `SELECT started_at FROM sessions WHERE id = ?`, id).Scan(&startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	p := &domain.SessionPayload{ID: id, StartedAt: ts}

	rows, err := s.db.QueryContext(ctx,
		`SELECT slot, device_id FROM session_devices WHERE session_id = ? ORDER BY slot`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var rec domain.SlotRecord
		var slot int
		if err := rows.Scan(&slot, &rec.DeviceID); err != nil {
			rows.Close()
			return nil, err
		}
		rec.Slot = domain.SlotID(slot)
		rec.Samples = []domain.SensorSample{}
		p.Slots = append(p.Slots, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT slot, ts, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, mag_x, mag_y, mag_z
		FROM samples WHERE session_id = ? ORDER BY slot, seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var slot int
		var smp domain.SensorSample
		if err := rows.Scan(&slot, &smp.Timestamp,
			&smp.Accel.X, &smp.Accel.Y, &smp.Accel.Z,
			&smp.Gyro.X, &smp.Gyro.Y, &smp.Gyro.Z,
			&smp.Mag.X, &smp.Mag.Y, &smp.Mag.Z,
		); err != nil {
			return nil, err
		}
		if rec := p.Slot(domain.SlotID(slot)); rec != nil {
			rec.Samples = append(rec.Samples, smp)
		}
	}
	return p, rows.Err()
}

// Sessions lists stored sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, slot_count, sample_count FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var startedAt string
		if err := rows.Scan(&sum.ID, &startedAt, &sum.SlotCount, &sum.SampleCount); err != nil {
			return nil, err
		}
		if sum.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
