// Package store is the typed wrapper over the relational job table: enqueue,
// batched claim, finalize, requeue, and stuck-job scan/recovery. It
// encapsulates all SQL the engine issues (spec §4.1).
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DefaultTable is the table name used when the operator does not override it.
const DefaultTable = "oxen_queue"

const jobColumns = `id, job_type, batch_id, created_ts, started_ts, body, status, result, recovered, running_time, unique_key, priority`

// Job is a row of the job table, projected for the columns the engine reads.
type Job struct {
	ID          int64          `db:"id"`
	JobType     string         `db:"job_type"`
	BatchID     sql.NullInt64  `db:"batch_id"`
	CreatedTs   time.Time      `db:"created_ts"`
	StartedTs   sql.NullTime   `db:"started_ts"`
	Body        string         `db:"body"`
	Status      string         `db:"status"`
	Result      sql.NullString `db:"result"`
	Recovered   bool           `db:"recovered"`
	RunningTime sql.NullInt32  `db:"running_time"`
	UniqueKey   sql.NullInt64  `db:"unique_key"`
	Priority    int64          `db:"priority"`
}

// EnqueueInput describes a single row to insert.
type EnqueueInput struct {
	JobType       string
	Body          string
	Priority      *int64
	UniqueKeyHash *uint32
	StartAt       *time.Time
	Extra         map[string]any
}

// Store wraps a connection pool and table name. It holds no other state; all
// coordination between concurrent callers happens via the table itself.
type Store struct {
	db          *sqlx.DB
	table       string
	extraFields []string
}

// New builds a Store against db, an already-connected pool the caller owns.
// table defaults to DefaultTable when empty.
func New(db *sqlx.DB, table string, extraFields []string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{db: db, table: table, extraFields: extraFields}
}

// ValidateExtraFields fails fast if a declared extra field has no
// corresponding column in the table, per spec §9's re-architecture guidance.
func (s *Store) ValidateExtraFields(ctx context.Context) error {
	if len(s.extraFields) == 0 {
		return nil
	}

	var cols []string
	err := s.db.SelectContext(ctx, &cols,
		`SELECT column_name FROM information_schema.columns WHERE table_name = $1`, s.table)
	if err != nil {
		return fmt.Errorf("store: probe columns of %s: %w", s.table, err)
	}

	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	for _, f := range s.extraFields {
		if !have[f] {
			return fmt.Errorf("store: extra field %q has no corresponding column in %s", f, s.table)
		}
	}
	return nil
}

// Enqueue inserts a single waiting row. A unique_key conflict is reported as
// deduplicated rather than as an error.
func (s *Store) Enqueue(ctx context.Context, in EnqueueInput) (id int64, deduplicated bool, err error) {
	priority := time.Now().UnixMilli()
	if in.Priority != nil {
		priority = *in.Priority
	}
	createdTs := time.Now()
	if in.StartAt != nil {
		createdTs = *in.StartAt
	}

	cols := []string{"job_type", "body", "priority", "created_ts", "status"}
	vals := []any{in.JobType, in.Body, priority, createdTs, "waiting"}

	if in.UniqueKeyHash != nil {
		cols = append(cols, "unique_key")
		vals = append(vals, *in.UniqueKeyHash)
	}
	for _, f := range s.extraFields {
		if v, ok := in.Extra[f]; ok {
			cols = append(cols, f)
			vals = append(vals, v)
		}
	}

	placeholders := make([]string, len(vals))
	for i := range vals {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id`,
		s.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	err = s.db.QueryRowContext(ctx, query, vals...).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, true, nil
		}
		return 0, false, fmt.Errorf("store: enqueue: %w", err)
	}
	return id, false, nil
}

// EnqueueMany inserts a batch in one transaction, one INSERT ... ON CONFLICT
// (unique_key) DO NOTHING per row. Rows conflicting on unique_key against a
// live row are silently dropped; all others are persisted (spec §4.1).
func (s *Store) EnqueueMany(ctx context.Context, jobs []EnqueueInput) (inserted int, err error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: enqueue_many: begin: %w", err)
	}
	defer tx.Rollback()

	for _, in := range jobs {
		priority := time.Now().UnixMilli()
		if in.Priority != nil {
			priority = *in.Priority
		}
		createdTs := time.Now()
		if in.StartAt != nil {
			createdTs = *in.StartAt
		}

		cols := []string{"job_type", "body", "priority", "created_ts", "status", "unique_key"}
		vals := []any{in.JobType, in.Body, priority, createdTs, "waiting"}
		if in.UniqueKeyHash != nil {
			vals = append(vals, *in.UniqueKeyHash)
		} else {
			vals = append(vals, nil)
		}
		for _, f := range s.extraFields {
			if v, ok := in.Extra[f]; ok {
				cols = append(cols, f)
				vals = append(vals, v)
			}
		}

		placeholders := make([]string, len(vals))
		for i := range vals {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		query := fmt.Sprintf(`
			INSERT INTO %s (%s)
			VALUES (%s)
			ON CONFLICT (unique_key) DO NOTHING
			RETURNING id
		`, s.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

		var returnedID int64
		rowErr := tx.QueryRowContext(ctx, query, vals...).Scan(&returnedID)
		switch {
		case rowErr == nil:
			inserted++
		case errors.Is(rowErr, sql.ErrNoRows):
			// ON CONFLICT DO NOTHING produced no row: deduplicated, not an error.
		default:
			return inserted, fmt.Errorf("store: enqueue_many: insert: %w", rowErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("store: enqueue_many: commit: %w", err)
	}
	return inserted, nil
}

// Claim atomically tags up to n waiting, eligible rows of jobType with a
// freshly allocated batch id and reads them back (spec §4.1's tag-then-read
// protocol). Returns an empty, non-error slice when the queue is empty.
func (s *Store) Claim(ctx context.Context, jobType string, n int) ([]Job, error) {
	if n <= 0 {
		return nil, nil
	}

	batchID := newBatchID()

	updateQuery := fmt.Sprintf(`
		UPDATE %s
		SET batch_id = $1, started_ts = now(), status = 'processing'
		WHERE id IN (
			SELECT id FROM %s
			WHERE job_type = $2
			  AND status = 'waiting'
			  AND batch_id IS NULL
			  AND created_ts <= now()
			ORDER BY priority ASC, id ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
	`, s.table, s.table)

	res, err := s.db.ExecContext(ctx, updateQuery, batchID, jobType, n)
	if err != nil {
		return nil, fmt.Errorf("store: claim update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("store: claim rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	selectQuery := fmt.Sprintf(`SELECT %s FROM %s WHERE batch_id = $1 ORDER BY priority ASC, id ASC`, jobColumns, s.table)
	var jobs []Job
	if err := s.db.SelectContext(ctx, &jobs, selectQuery, batchID); err != nil {
		return nil, fmt.Errorf("store: claim read-back: %w", err)
	}
	return jobs, nil
}

// Finalize moves a claimed job to a terminal status, writing its result and
// computed running_time. batch_id is left untouched for forensics.
func (s *Store) Finalize(ctx context.Context, id int64, status, result string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1,
		    result = $2,
		    running_time = GREATEST(0, EXTRACT(EPOCH FROM (now() - started_ts))::int)
		WHERE id = $3
	`, s.table)

	if _, err := s.db.ExecContext(ctx, query, status, result, id); err != nil {
		return fmt.Errorf("store: finalize job %d: %w", id, err)
	}
	return nil
}

// Requeue returns a claimed job to waiting, delayed by delay, for the retry
// path (spec §4.1).
func (s *Store) Requeue(ctx context.Context, id int64, delay time.Duration) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'waiting', batch_id = NULL, created_ts = now() + $1 * interval '1 second'
		WHERE id = $2
	`, s.table)

	if _, err := s.db.ExecContext(ctx, query, delay.Seconds(), id); err != nil {
		return fmt.Errorf("store: requeue job %d: %w", id, err)
	}
	return nil
}

// ScanStuck returns the ids of jobType rows stranded in processing past
// threshold, without mutating them.
func (s *Store) ScanStuck(ctx context.Context, jobType string, threshold time.Duration) ([]int64, error) {
	query := fmt.Sprintf(`
		SELECT id FROM %s
		WHERE job_type = $1 AND status = 'processing' AND started_ts < now() - $2 * interval '1 second'
	`, s.table)

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, query, jobType, threshold.Seconds()); err != nil {
		return nil, fmt.Errorf("store: scan stuck %s: %w", jobType, err)
	}
	return ids, nil
}

// RecoverStuck flips stranded processing rows of jobType back to waiting,
// clearing batch_id and setting recovered, and reports how many were moved
// (spec §4.1, §4.5).
func (s *Store) RecoverStuck(ctx context.Context, jobType string, threshold time.Duration) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'waiting', batch_id = NULL, recovered = true
		WHERE job_type = $1 AND status = 'processing' AND started_ts < now() - $2 * interval '1 second'
	`, s.table)

	res, err := s.db.ExecContext(ctx, query, jobType, threshold.Seconds())
	if err != nil {
		return 0, fmt.Errorf("store: recover stuck %s: %w", jobType, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: recover stuck rows affected: %w", err)
	}
	return int(n), nil
}

// Delete removes a terminal row. The engine never calls this itself; it is
// exposed for the operator's own cleanup per spec §3's lifecycle note.
func (s *Store) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("store: delete job %d: %w", id, err)
	}
	return nil
}

// newBatchID allocates a batch id unique across all workers and all time
// (spec §4.1 invariant I4), by rendering a UUID's high 64 bits into a bigint.
func newBatchID() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]))
}

// isUniqueViolation reports whether err is a Postgres unique_violation,
// the signal the Enqueue contract maps to "deduplicated" rather than fatal.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
