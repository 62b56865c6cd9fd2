package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Retry timestamps are stored as unix milliseconds so due-date comparisons
// are numeric.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	invocation TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	report     TEXT,
	location   TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_domains (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	domain   TEXT NOT NULL,
	tier     TEXT NOT NULL,
	yielded  INTEGER NOT NULL,
	required INTEGER NOT NULL,
	attempts INTEGER NOT NULL,
	tiers    TEXT NOT NULL,
	cost_usd REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, domain)
);

CREATE TABLE IF NOT EXISTS records (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	seq          INTEGER NOT NULL,
	domain       TEXT NOT NULL,
	tier         TEXT NOT NULL,
	query        TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	organization TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	fields       TEXT NOT NULL,
	fetched_at   DATETIME NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS retry_queue (
	id             TEXT PRIMARY KEY,
	request        TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  INTEGER NOT NULL,
	created_at     INTEGER NOT NULL,
	last_failed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_records_url ON records(url);
CREATE INDEX IF NOT EXISTS idx_retry_next ON retry_queue(next_retry_at);
`

// Driver implements Store.
func (s *SQLiteStore) Driver() string { return "sqlite" }

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
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
		return eris.Wrap(err, "sqlite: marshal invocation")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, invocation, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(inv), string(run.Status), run.CreatedAt.UTC(), run.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, report *model.RunReport, location string) error {
	return s.finishRun(ctx, id, model.RunStatusComplete, report, location, "")
}

func (s *SQLiteStore) FailRun(ctx context.Context, id string, report *model.RunReport, errMsg string) error {
	return s.finishRun(ctx, id, model.RunStatusFailed, report, "", errMsg)
}

func (s *SQLiteStore) finishRun(ctx context.Context, id string, status model.RunStatus, report *model.RunReport, location, errMsg string) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	var reportJSON sql.NullString
	if data != nil {
		reportJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin finish run")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, report = ?, location = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), reportJSON, location, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", id)
	}
	if err := checkRowsAffected(res, "run", id); err != nil {
		return err
	}

	if report != nil {
		for _, r := range report.Rows() {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO run_domains (run_id, domain, tier, yielded, required, attempts, tiers, cost_usd)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (run_id, domain) DO UPDATE SET
				   tier = excluded.tier, yielded = excluded.yielded, required = excluded.required,
				   attempts = excluded.attempts, tiers = excluded.tiers, cost_usd = excluded.cost_usd`,
				id, string(r.Domain), string(r.Tier), r.Yielded, r.Required, r.Attempts, r.Tiers, r.CostUSD,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert run domain %s", r.Domain)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit finish run")
}

// ReportRows returns the persisted per-domain rows of a run.
func (s *SQLiteStore) ReportRows(ctx context.Context, runID string) ([]model.ReportRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, domain, tier, yielded, required, attempts, tiers, cost_usd
		 FROM run_domains WHERE run_id = ? ORDER BY domain`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list report rows")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ReportRow
	for rows.Next() {
		var r model.ReportRow
		var domain, tier string
		if err := rows.Scan(&r.RunID, &domain, &tier, &r.Yielded, &r.Required, &r.Attempts, &r.Tiers, &r.CostUSD); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report row")
		}
		r.Domain = model.Domain(domain)
		r.Tier = model.TierID(tier)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list report rows iterate")
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, invocation, status, report, location, error, created_at, updated_at FROM runs WHERE id = ?`,
		id,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, invocation, status, report, location, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveRecords replaces the records stored for runID.
func (s *SQLiteStore) SaveRecords(ctx context.Context, runID string, records []model.Record) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save records")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, runID); err != nil {
		return 0, eris.Wrap(err, "sqlite: clear records")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (run_id, seq, domain, tier, query, title, organization, location, url, fields, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert record")
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range records {
		row, err := recordRow(runID, i, r)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert record %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit records")
	}
	return int64(len(records)), nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, runID string) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, tier, query, fields, fetched_at FROM records WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close() //nolint:errcheck

	var records []model.Record
	for rows.Next() {
		var domain, tier, query, fields string
		var fetchedAt time.Time
		if err := rows.Scan(&domain, &tier, &query, &fields, &fetchedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		r, err := decodeRecord(domain, tier, query, []byte(fields), fetchedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

// Retry queue

func (s *SQLiteStore) EnqueueRetry(ctx context.Context, entry resilience.RetryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	req, err := json.Marshal(entry.Request)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal retry request")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO retry_queue
		 (id, request, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		entry.ID, string(req), entry.Error, entry.ErrorType, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt.UnixMilli(), entry.CreatedAt.UnixMilli(), entry.LastFailedAt.UnixMilli(),
	)
	return eris.Wrap(err, "sqlite: enqueue retry")
}

// ListRetries returns retryable entries due at or before filter.DueBefore
// (now when zero), soonest first.
func (s *SQLiteStore) ListRetries(ctx context.Context, filter resilience.RetryFilter) ([]resilience.RetryEntry, error) {
	due := filter.DueBefore
	if due.IsZero() {
		due = time.Now()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
		 FROM retry_queue
		 WHERE next_retry_at <= ? AND retry_count < max_retries
		 ORDER BY next_retry_at ASC
		 LIMIT ?`,
		due.UnixMilli(), listLimit(filter.Limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list retries")
	}
	defer rows.Close() //nolint:errcheck

	var entries []resilience.RetryEntry
	for rows.Next() {
		var e resilience.RetryEntry
		var req string
		var next, created, failed int64
		if err := rows.Scan(&e.ID, &req, &e.Error, &e.ErrorType, &e.RetryCount, &e.MaxRetries,
			&next, &created, &failed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan retry entry")
		}
		if err := json.Unmarshal([]byte(req), &e.Request); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal retry request")
		}
		e.NextRetryAt = time.UnixMilli(next).UTC()
		e.CreatedAt = time.UnixMilli(created).UTC()
		e.LastFailedAt = time.UnixMilli(failed).UTC()
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list retries iterate")
}

func (s *SQLiteStore) UpdateRetry(ctx context.Context, entry resilience.RetryEntry) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE retry_queue SET error = ?, error_type = ?, retry_count = ?, next_retry_at = ?, last_failed_at = ? WHERE id = ?`,
		entry.Error, entry.ErrorType, entry.RetryCount,
		entry.NextRetryAt.UnixMilli(), entry.LastFailedAt.UnixMilli(), entry.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update retry %s", entry.ID)
	}
	return checkRowsAffected(res, "retry entry", entry.ID)
}

func (s *SQLiteStore) RemoveRetry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM retry_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove retry")
}

func (s *SQLiteStore) CountRetries(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM retry_queue`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count retries")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var invJSON string
	var status string
	var reportJSON sql.NullString

	err := row.Scan(&r.ID, &invJSON, &status, &reportJSON, &r.Location, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "sqlite: get run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)

	if err := json.Unmarshal([]byte(invJSON), &r.Invocation); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal invocation")
	}
	if reportJSON.Valid {
		r.Report = &model.RunReport{}
		if err := json.Unmarshal([]byte(reportJSON.String), r.Report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
	}
	return &r, nil
}
