package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mbheramil/smart-seo-fixer/internal/job"
)

// SQLiteStore is the default durable store.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore() *SQLiteStore { return &SQLiteStore{} }

func (s *SQLiteStore) Init(path string) error {
	if path == "" {
		path = "seoqueue.db"
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.db = db
	return s.migrate()
}

func (s *SQLiteStore) migrate() error {
	q := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		job_type TEXT,
		status TEXT,
		items TEXT,
		options TEXT,
		total_items INTEGER,
		processed_items INTEGER,
		failed_items INTEGER,
		failed_item_refs TEXT,
		cancel_requested INTEGER,
		retried_from TEXT,
		claim_owner TEXT,
		claimed_until DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);
	`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const jobColumns = `id,job_type,status,items,options,total_items,processed_items,failed_items,failed_item_refs,cancel_requested,retried_from,created_at,updated_at,completed_at`

func (s *SQLiteStore) Create(ctx context.Context, j *job.Job) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = job.StatusPending
	}
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	j.TotalItems = len(j.Items)

	items, err := json.Marshal(j.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	opts, err := json.Marshal(j.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	refs, err := json.Marshal(j.FailedItemRefs)
	if err != nil {
		return fmt.Errorf("marshal failed refs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs(`+jobColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.Type, j.Status, string(items), string(opts), j.TotalItems, j.ProcessedItems, j.FailedItems,
		string(refs), boolInt(j.CancelRequested), j.RetriedFrom, j.CreatedAt, j.UpdatedAt, nullTime(j.CompletedAt))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteStore) Save(ctx context.Context, j *job.Job) error {
	j.UpdatedAt = time.Now().UTC()
	refs, err := json.Marshal(j.FailedItemRefs)
	if err != nil {
		return fmt.Errorf("marshal failed refs: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status=?, processed_items=?, failed_items=?, failed_item_refs=?, updated_at=?, completed_at=? WHERE id=?`,
		j.Status, j.ProcessedItems, j.FailedItems, string(refs), j.UpdatedAt, nullTime(j.CompletedAt), j.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return job.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RequestCancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET cancel_requested=1, updated_at=? WHERE id=?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return job.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]*job.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs`
	var args []interface{}
	switch {
	case f.Status != "" && f.Type != "":
		q += ` WHERE status = ? AND job_type = ?`
		args = append(args, f.Status, f.Type)
	case f.Status != "":
		q += ` WHERE status = ?`
		args = append(args, f.Status)
	case f.Type != "":
		q += ` WHERE job_type = ?`
		args = append(args, f.Type)
	}
	q += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Claim takes the lease with a compare-and-swap against the current
// owner and lease expiry, all inside one transaction so two concurrent
// Advance calls cannot both win.
func (s *SQLiteStore) Claim(ctx context.Context, id, owner string, until time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET claim_owner=?, claimed_until=? WHERE id=? AND (claim_owner IS NULL OR claim_owner='' OR claim_owner=? OR claimed_until <= ?)`,
		owner, until.UTC(), id, owner, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE id=?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if exists == 0 {
			return job.ErrNotFound
		}
		return job.ErrAlreadyRunning
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Release(ctx context.Context, id, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET claim_owner='', claimed_until=NULL WHERE id=? AND claim_owner=?`, id, owner)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	j := &job.Job{}
	var items, opts, refs string
	var cancel int
	var createdAt, updatedAt, completedAt sql.NullTime
	err := row.Scan(&j.ID, &j.Type, &j.Status, &items, &opts, &j.TotalItems, &j.ProcessedItems,
		&j.FailedItems, &refs, &cancel, &j.RetriedFrom, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal([]byte(items), &j.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if opts != "" && opts != "null" {
		if err := json.Unmarshal([]byte(opts), &j.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	if refs != "" && refs != "null" {
		if err := json.Unmarshal([]byte(refs), &j.FailedItemRefs); err != nil {
			return nil, fmt.Errorf("unmarshal failed refs: %w", err)
		}
	}
	j.CancelRequested = cancel != 0
	if createdAt.Valid {
		j.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		j.UpdatedAt = updatedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = completedAt.Time
	}
	return j, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
