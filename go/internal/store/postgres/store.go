// Package postgres persists timer documents as JSONB rows.
package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/sqlutil"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS timers (
	id         TEXT PRIMARY KEY,
	timer_id   TEXT NOT NULL UNIQUE,
	doc        JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS timers_created_at_idx ON timers (created_at);
CREATE INDEX IF NOT EXISTS timers_status_idx ON timers (status);

CREATE TABLE IF NOT EXISTS timer_actions (
	id       TEXT PRIMARY KEY,
	timer_id TEXT NOT NULL,
	doc      JSONB NOT NULL,
	ts       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS timer_actions_ts_idx ON timer_actions (ts);
`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	err := sqlutil.Run(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure timer schema: %w", err)
	}
	return nil
}

func (s *Store) CreateTimer(ctx context.Context, rec models.TimerRecord) (string, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode timer %s: %w", rec.TimerID, err)
	}
	ref := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO timers (id, timer_id, doc, status, created_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)
	`, ref, rec.TimerID, string(doc), string(rec.Status), rec.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert timer %s: %w", rec.TimerID, err)
	}
	return ref, nil
}

func (s *Store) UpdateTimer(ctx context.Context, ref string, rec models.TimerRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode timer %s: %w", rec.TimerID, err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE timers SET doc = $2::jsonb, status = $3, created_at = COALESCE($4, created_at)
		WHERE id = $1
	`, ref, string(doc), string(rec.Status), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("update timer %s: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update timer %s: %w", ref, store.ErrNotFound)
	}
	return nil
}

func (s *Store) GetTimer(ctx context.Context, timerID string) (*models.TimerRecord, error) {
	var (
		ref string
		doc []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT id, doc FROM timers WHERE timer_id = $1`, timerID).Scan(&ref, &doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get timer %s: %w", timerID, err)
	}
	rec, err := decodeTimer(ref, doc)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListActiveTimers(ctx context.Context) ([]models.TimerRecord, error) {
	return s.queryTimers(ctx, `
		SELECT id, doc FROM timers
		WHERE status NOT IN ('ended', 'expired')
		ORDER BY created_at ASC NULLS LAST
	`)
}

func (s *Store) AppendAction(ctx context.Context, entry models.AuditEntry) error {
	doc, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO timer_actions (id, timer_id, doc, ts)
		VALUES ($1, $2, $3::jsonb, $4)
	`, uuid.NewString(), entry.TimerID, string(doc), entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert %s action for %s: %w", entry.Action, entry.TimerID, err)
	}
	return nil
}

func (s *Store) ListTimersCreatedBetween(ctx context.Context, from, to time.Time) ([]models.TimerRecord, error) {
	return s.queryTimers(ctx, `
		SELECT id, doc FROM timers
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at ASC
	`, from, to)
}

func (s *Store) ListTimersCreatedSince(ctx context.Context, since time.Time) ([]models.TimerRecord, error) {
	return s.queryTimers(ctx, `
		SELECT id, doc FROM timers
		WHERE created_at >= $1
		ORDER BY created_at ASC
	`, since)
}

func (s *Store) ListActionsBetween(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc FROM timer_actions
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		entry, ok := store.DecodeAction(doc)
		if !ok {
			log.Warn().Msg("Skipping unreadable timer action")
			continue
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return out, nil
}

func (s *Store) queryTimers(ctx context.Context, query string, args ...any) ([]models.TimerRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	defer rows.Close()

	var out []models.TimerRecord
	for rows.Next() {
		var (
			ref string
			raw []byte
		)
		if err := rows.Scan(&ref, &raw); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		rec, err := decodeTimer(ref, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	return out, nil
}

func decodeTimer(ref string, raw []byte) (models.TimerRecord, error) {
	doc, err := decodeDoc(raw)
	if err != nil {
		return models.TimerRecord{}, fmt.Errorf("decode timer %s: %w", ref, err)
	}
	return store.DecodeTimer(ref, doc), nil
}

// decodeDoc keeps numbers as json.Number so integer fields survive intact.
func decodeDoc(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
