package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobscout/internal/db"
	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"insert_run":     `INSERT INTO runs (id, invocation, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"finish_run":     `UPDATE runs SET status = $1, report = $2, location = $3, error = $4, updated_at = $5 WHERE id = $6`,
	"get_run":        `SELECT id, invocation, status, report, location, error, created_at, updated_at FROM runs WHERE id = $1`,
	"delete_records": `DELETE FROM records WHERE run_id = $1`,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	invocation JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	report     JSONB,
	location   TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_domains (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	domain   TEXT NOT NULL,
	tier     TEXT NOT NULL,
	yielded  INTEGER NOT NULL,
	required INTEGER NOT NULL,
	attempts INTEGER NOT NULL,
	tiers    TEXT NOT NULL,
	cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, domain)
);

CREATE TABLE IF NOT EXISTS records (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	domain       TEXT NOT NULL,
	tier         TEXT NOT NULL,
	query        TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	organization TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	fields       JSONB NOT NULL,
	fetched_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS retry_queue (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	request        JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_records_url ON records(url);
CREATE INDEX IF NOT EXISTS idx_retry_next ON retry_queue(next_retry_at);
`

// Driver implements Store.
func (s *PostgresStore) Driver() string { return "postgres" }

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}

	inv, err := json.Marshal(run.Invocation)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal invocation")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, invocation, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, inv, string(run.Status), run.CreatedAt.UTC(), run.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id string, report *model.RunReport, location string) error {
	return s.finishRun(ctx, id, model.RunStatusComplete, report, location, "")
}

func (s *PostgresStore) FailRun(ctx context.Context, id string, report *model.RunReport, errMsg string) error {
	return s.finishRun(ctx, id, model.RunStatusFailed, report, "", errMsg)
}

func (s *PostgresStore) finishRun(ctx context.Context, id string, status model.RunStatus, report *model.RunReport, location, errMsg string) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, report = $2, location = $3, error = $4, updated_at = $5 WHERE id = $6`,
		string(status), data, location, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", id)
	}

	if report == nil {
		return nil
	}
	rows := make([][]any, 0, len(report.Domains))
	for _, r := range report.Rows() {
		rows = append(rows, []any{r.RunID, string(r.Domain), string(r.Tier), r.Yielded, r.Required, r.Attempts, r.Tiers, r.CostUSD})
	}
	_, err = db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "run_domains",
		Columns:      []string{"run_id", "domain", "tier", "yielded", "required", "attempts", "tiers", "cost_usd"},
		ConflictKeys: []string{"run_id", "domain"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert run domains")
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, invocation, status, report, location, error, created_at, updated_at FROM runs WHERE id = $1`,
		id,
	)
	r, err := scanPGRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, invocation, status, report, location, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// ReportRows returns the persisted per-domain rows of a run.
func (s *PostgresStore) ReportRows(ctx context.Context, runID string) ([]model.ReportRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, domain, tier, yielded, required, attempts, tiers, cost_usd
		 FROM run_domains WHERE run_id = $1 ORDER BY domain`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list report rows")
	}
	defer rows.Close()

	var out []model.ReportRow
	for rows.Next() {
		var r model.ReportRow
		var domain, tier string
		if err := rows.Scan(&r.RunID, &domain, &tier, &r.Yielded, &r.Required, &r.Attempts, &r.Tiers, &r.CostUSD); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report row")
		}
		r.Domain = model.Domain(domain)
		r.Tier = model.TierID(tier)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list report rows iterate")
}

func scanPGRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var invJSON []byte
	var reportJSON *[]byte

	if err := row.Scan(&r.ID, &invJSON, &status, &reportJSON, &r.Location, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)

	if err := json.Unmarshal(invJSON, &r.Invocation); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal invocation")
	}
	if reportJSON != nil {
		r.Report = &model.RunReport{}
		if err := json.Unmarshal(*reportJSON, r.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
	}
	return &r, nil
}

// SaveRecords replaces the records stored for runID, loading them with COPY.
func (s *PostgresStore) SaveRecords(ctx context.Context, runID string, records []model.Record) (int64, error) {
	if _, err := s.pool.Exec(ctx, `DELETE FROM records WHERE run_id = $1`, runID); err != nil {
		return 0, eris.Wrap(err, "postgres: clear records")
	}

	rows := make([][]any, 0, len(records))
	for i, r := range records {
		row, err := recordRow(runID, i, r)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	n, err := db.CopyFrom(ctx, s.pool, "records", recordColumns, rows)
	return n, eris.Wrap(err, "postgres: save records")
}

func (s *PostgresStore) ListRecords(ctx context.Context, runID string) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT domain, tier, query, fields, fetched_at FROM records WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var domain, tier, query string
		var fields []byte
		var fetchedAt time.Time
		if err := rows.Scan(&domain, &tier, &query, &fields, &fetchedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		r, err := decodeRecord(domain, tier, query, fields, fetchedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

// Retry queue

func (s *PostgresStore) EnqueueRetry(ctx context.Context, entry resilience.RetryEntry) error {
	req, err := json.Marshal(entry.Request)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal retry request")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO retry_queue
		 (id, request, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $3, error_type = $4, retry_count = $5,
		   next_retry_at = $7, last_failed_at = $9`,
		entry.ID, req, entry.Error, entry.ErrorType, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue retry")
}

func (s *PostgresStore) ListRetries(ctx context.Context, filter resilience.RetryFilter) ([]resilience.RetryEntry, error) {
	due := filter.DueBefore
	if due.IsZero() {
		due = time.Now()
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, request, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
		 FROM retry_queue
		 WHERE next_retry_at <= $1 AND retry_count < max_retries
		 ORDER BY next_retry_at ASC
		 LIMIT $2`,
		due, listLimit(filter.Limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list retries")
	}
	defer rows.Close()

	var entries []resilience.RetryEntry
	for rows.Next() {
		var e resilience.RetryEntry
		var req []byte
		if err := rows.Scan(&e.ID, &req, &e.Error, &e.ErrorType, &e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan retry entry")
		}
		if err := json.Unmarshal(req, &e.Request); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal retry request")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list retries iterate")
}

func (s *PostgresStore) UpdateRetry(ctx context.Context, entry resilience.RetryEntry) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE retry_queue
		 SET error = $1, error_type = $2, retry_count = $3, next_retry_at = $4, last_failed_at = $5
		 WHERE id = $6`,
		entry.Error, entry.ErrorType, entry.RetryCount, entry.NextRetryAt, entry.LastFailedAt, entry.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update retry %s", entry.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "retry entry %s", entry.ID)
	}
	return nil
}

func (s *PostgresStore) RemoveRetry(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM retry_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove retry")
}

func (s *PostgresStore) CountRetries(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM retry_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count retries")
}
