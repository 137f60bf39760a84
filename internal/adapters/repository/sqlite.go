package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/leadflow/internal/domain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	data       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS offers (
	id           TEXT PRIMARY KEY,
	lead_id      TEXT NOT NULL,
	candidate_id TEXT NOT NULL,
	status       TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	data         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_offers_lead ON offers(lead_id, seq);
CREATE TABLE IF NOT EXISTS claims (
	id              TEXT PRIMARY KEY,
	lead_id         TEXT NOT NULL,
	candidate_id    TEXT NOT NULL,
	idempotency_key TEXT NOT NULL UNIQUE,
	status          TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	data            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_claims_lead ON claims(lead_id, seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_one_confirmed ON claims(lead_id) WHERE status = 'CONFIRMED';
`

// SQLiteStore persists records with modernc.org/sqlite. Each row keeps the
// full record as JSON next to the columns used for lookups and constraints.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
}

// NewSQLiteStore opens dsn and applies the schema.
func NewSQLiteStore(ctx context.Context, dsn string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sqlite %q: %w", p, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveLead(ctx context.Context, lead model.Lead) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("save lead %s: %w", lead.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO leads(id, status, created_at, data) VALUES(?,?,?,?)
ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		lead.ID, string(lead.Status), lead.CreatedAt.UTC(), string(data))
	if err != nil {
		return fmt.Errorf("save lead %s: %w", lead.ID, classify(err))
	}
	return nil
}

func (s *SQLiteStore) SaveOffer(ctx context.Context, offer model.Offer) error {
	data, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("save offer %s: %w", offer.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO offers(id, lead_id, candidate_id, status, seq, data)
VALUES(?,?,?,?,(SELECT COALESCE(MAX(seq), 0) + 1 FROM offers),?)
ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		offer.ID, offer.LeadID, offer.CandidateID, string(offer.Status), string(data))
	if err != nil {
		return fmt.Errorf("save offer %s: %w", offer.ID, classify(err))
	}
	return nil
}

func (s *SQLiteStore) SaveClaim(ctx context.Context, cl model.Claim) error {
	data, err := json.Marshal(cl)
	if err != nil {
		return fmt.Errorf("save claim %s: %w", cl.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO claims(id, lead_id, candidate_id, idempotency_key, status, seq, data)
VALUES(?,?,?,?,?,(SELECT COALESCE(MAX(seq), 0) + 1 FROM claims),?)
ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		cl.ID, cl.LeadID, cl.CandidateID, cl.IdempotencyKey, string(cl.Status), string(data))
	if err != nil {
		return fmt.Errorf("save claim %s: %w", cl.ID, classify(err))
	}
	return nil
}

func (s *SQLiteStore) Lead(ctx context.Context, id string) (model.Lead, error) {
	var l model.Lead
	err := s.one(ctx, &l, `SELECT data FROM leads WHERE id = ?`, id)
	if err != nil {
		return model.Lead{}, fmt.Errorf("lead %s: %w", id, err)
	}
	return l, nil
}

func (s *SQLiteStore) Offer(ctx context.Context, id string) (model.Offer, error) {
	var o model.Offer
	if err := s.one(ctx, &o, `SELECT data FROM offers WHERE id = ?`, id); err != nil {
		return model.Offer{}, fmt.Errorf("offer %s: %w", id, err)
	}
	return o, nil
}

func (s *SQLiteStore) Claim(ctx context.Context, id string) (model.Claim, error) {
	var c model.Claim
	if err := s.one(ctx, &c, `SELECT data FROM claims WHERE id = ?`, id); err != nil {
		return model.Claim{}, fmt.Errorf("claim %s: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteStore) OffersByLead(ctx context.Context, leadID string) ([]model.Offer, error) {
	out, err := many[model.Offer](ctx, s.db, `SELECT data FROM offers WHERE lead_id = ? ORDER BY seq`, leadID)
	if err != nil {
		return nil, fmt.Errorf("offers of %s: %w", leadID, err)
	}
	return out, nil
}

func (s *SQLiteStore) ClaimsByLead(ctx context.Context, leadID string) ([]model.Claim, error) {
	out, err := many[model.Claim](ctx, s.db, `SELECT data FROM claims WHERE lead_id = ? ORDER BY seq`, leadID)
	if err != nil {
		return nil, fmt.Errorf("claims of %s: %w", leadID, err)
	}
	return out, nil
}

func (s *SQLiteStore) CountLeads(ctx context.Context) (map[model.LeadStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count leads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[model.LeadStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count leads: %w", err)
		}
		out[model.LeadStatus(status)] = n
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) one(ctx context.Context, dst any, query string, args ...any) error {
	var data string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dst)
}

func many[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]T, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// classify maps constraint violations onto ErrConflict.
func classify(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
