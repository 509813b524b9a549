package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/orgdesk/enrich-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// which keeps the Postgres store unit-testable without a database.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests).
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: func() {}}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS organizations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	fields     JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id      TEXT PRIMARY KEY,
	org_id      TEXT NOT NULL REFERENCES organizations(id),
	status      TEXT NOT NULL,
	payload     JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS batches (
	id            TEXT PRIMARY KEY,
	state         JSONB NOT NULL,
	done          BOOLEAN NOT NULL DEFAULT false,
	checkpoint_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_org_id ON outcomes(org_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status);
CREATE INDEX IF NOT EXISTS idx_batches_done ON batches(done, checkpoint_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

func (s *PostgresStore) UpsertOrganization(ctx context.Context, rec *model.OrganizationRecord) error {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err = s.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, fields, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Name, fieldsJSON, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert organization %s", rec.ID)
}

func (s *PostgresStore) GetOrganization(ctx context.Context, id string) (*model.OrganizationRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, fields, created_at, updated_at FROM organizations WHERE id = $1`, id)

	var rec model.OrganizationRecord
	var fieldsJSON []byte
	err := row.Scan(&rec.ID, &rec.Name, &fieldsJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get organization %s", id)
	}
	if err := json.Unmarshal(fieldsJSON, &rec.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal fields")
	}
	return &rec, nil
}

func (s *PostgresStore) ListOrganizationIDs(ctx context.Context, filter OrgFilter) ([]string, error) {
	query := `SELECT id FROM organizations WHERE 1=1`
	var args []any

	if filter.MissingField != "" {
		args = append(args, string(filter.MissingField))
		query += ` AND COALESCE(fields -> $1 ->> 'value', '') = ''`
	}
	query += ` ORDER BY id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list organizations")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan organization id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list organizations")
}

func (s *PostgresStore) AppendOutcome(ctx context.Context, out *model.EnrichmentOutcome) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal outcome")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO outcomes (run_id, org_id, status, payload, started_at, duration_ms) VALUES ($1, $2, $3, $4, $5, $6)`,
		out.RunID, out.OrgID, string(out.Status), payload, out.StartedAt, out.Duration.Milliseconds(),
	)
	return eris.Wrapf(err, "postgres: insert outcome %s", out.RunID)
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.EnrichmentOutcome, error) {
	query := `SELECT payload FROM outcomes WHERE 1=1`
	var args []any

	if filter.OrgID != "" {
		args = append(args, filter.OrgID)
		query += ` AND org_id = $` + itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + itoa(len(args))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var outs []model.EnrichmentOutcome
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		var out model.EnrichmentOutcome
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal outcome")
		}
		outs = append(outs, out)
	}
	return outs, eris.Wrap(rows.Err(), "postgres: list outcomes")
}

func (s *PostgresStore) SaveBatchState(ctx context.Context, st *model.BatchState) error {
	if err := st.Validate(); err != nil {
		return eris.Wrap(err, "postgres: batch state")
	}
	st.CheckpointAt = time.Now().UTC()

	stateJSON, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal batch state")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO batches (id, state, done, checkpoint_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, done = EXCLUDED.done, checkpoint_at = EXCLUDED.checkpoint_at`,
		st.BatchID, stateJSON, st.Done, st.CheckpointAt,
	)
	return eris.Wrapf(err, "postgres: save batch %s", st.BatchID)
}

func (s *PostgresStore) LoadBatchState(ctx context.Context, batchID string) (*model.BatchState, error) {
	row := s.pool.QueryRow(ctx, `SELECT state FROM batches WHERE id = $1`, batchID)
	return scanPGBatchState(row)
}

func (s *PostgresStore) LatestOpenBatch(ctx context.Context) (*model.BatchState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT state FROM batches WHERE done = false ORDER BY checkpoint_at DESC LIMIT 1`)
	return scanPGBatchState(row)
}

func scanPGBatchState(row pgx.Row) (*model.BatchState, error) {
	var stateJSON []byte
	err := row.Scan(&stateJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan batch state")
	}
	var st model.BatchState
	if err := json.Unmarshal(stateJSON, &st); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal batch state")
	}
	return &st, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
