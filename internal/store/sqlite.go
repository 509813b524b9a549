package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/orgdesk/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS organizations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	fields     TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id      TEXT PRIMARY KEY,
	org_id      TEXT NOT NULL REFERENCES organizations(id),
	status      TEXT NOT NULL,
	payload     TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS batches (
	id            TEXT PRIMARY KEY,
	state         TEXT NOT NULL,
	done          INTEGER NOT NULL DEFAULT 0,
	checkpoint_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_org_id ON outcomes(org_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status);
CREATE INDEX IF NOT EXISTS idx_batches_done ON batches(done, checkpoint_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertOrganization(ctx context.Context, rec *model.OrganizationRecord) error {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, fields = excluded.fields, updated_at = excluded.updated_at`,
		rec.ID, rec.Name, string(fieldsJSON), rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert organization %s", rec.ID)
}

func (s *SQLiteStore) GetOrganization(ctx context.Context, id string) (*model.OrganizationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, fields, created_at, updated_at FROM organizations WHERE id = ?`, id)

	var rec model.OrganizationRecord
	var fieldsJSON string
	err := row.Scan(&rec.ID, &rec.Name, &fieldsJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get organization %s", id)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fields")
	}
	return &rec, nil
}

func (s *SQLiteStore) ListOrganizationIDs(ctx context.Context, filter OrgFilter) ([]string, error) {
	query := `SELECT id FROM organizations WHERE 1=1`
	var args []any

	if filter.MissingField != "" {
		query += ` AND COALESCE(json_extract(fields, '$.' || ? || '.value'), '') = ''`
		args = append(args, string(filter.MissingField))
	}
	query += ` ORDER BY id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list organizations")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan organization id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list organizations")
}

func (s *SQLiteStore) AppendOutcome(ctx context.Context, out *model.EnrichmentOutcome) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal outcome")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, org_id, status, payload, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		out.RunID, out.OrgID, string(out.Status), string(payload), out.StartedAt, out.Duration.Milliseconds(),
	)
	return eris.Wrapf(err, "sqlite: insert outcome %s", out.RunID)
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.EnrichmentOutcome, error) {
	query := `SELECT payload FROM outcomes WHERE 1=1`
	var args []any

	if filter.OrgID != "" {
		query += ` AND org_id = ?`
		args = append(args, filter.OrgID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outcomes")
	}
	defer rows.Close()

	var outs []model.EnrichmentOutcome
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		var out model.EnrichmentOutcome
		if err := json.Unmarshal([]byte(payload), &out); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal outcome")
		}
		outs = append(outs, out)
	}
	return outs, eris.Wrap(rows.Err(), "sqlite: list outcomes")
}

func (s *SQLiteStore) SaveBatchState(ctx context.Context, st *model.BatchState) error {
	if err := st.Validate(); err != nil {
		return eris.Wrap(err, "sqlite: batch state")
	}
	st.CheckpointAt = time.Now().UTC()

	stateJSON, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal batch state")
	}

	done := 0
	if st.Done {
		done = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batches (id, state, done, checkpoint_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, done = excluded.done, checkpoint_at = excluded.checkpoint_at`,
		st.BatchID, string(stateJSON), done, st.CheckpointAt,
	)
	return eris.Wrapf(err, "sqlite: save batch %s", st.BatchID)
}

func (s *SQLiteStore) LoadBatchState(ctx context.Context, batchID string) (*model.BatchState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT state FROM batches WHERE id = ?`, batchID)
	return scanBatchState(row)
}

func (s *SQLiteStore) LatestOpenBatch(ctx context.Context) (*model.BatchState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state FROM batches WHERE done = 0 ORDER BY checkpoint_at DESC LIMIT 1`)
	return scanBatchState(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatchState(row rowScanner) (*model.BatchState, error) {
	var stateJSON string
	err := row.Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan batch state")
	}
	var st model.BatchState
	if err := json.Unmarshal([]byte(stateJSON), &st); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal batch state")
	}
	return &st, nil
}
