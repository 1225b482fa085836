package jobdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/TimKotowski/pg-jobqueue/internal/txn"
)

const (
	tableName      = "scheduled_job"
	NoRowsAffected = 0
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrDuplicateJob    = errors.New("job with the same fingerprint already exists")
	ErrStaleReschedule = errors.New("reschedule would move due time backwards")
)

// JobDB is the persistence layer of the job queue. Every method runs on the
// transaction carried by ctx when there is one.
type JobDB interface {
	// InsertJob inserts rec. Records carrying a fingerprint that already exists
	// are not inserted and ErrDuplicateJob is returned.
	InsertJob(ctx context.Context, rec *JobRecord) error

	GetJob(ctx context.Context, id string) (*JobRecord, error)

	// FindDueJobs returns records due at now that are unlocked or whose lease
	// expired, lowest priority value first, then earliest due time.
	FindDueJobs(ctx context.Context, now time.Time, limit int) ([]JobRecord, error)

	// TryClaim leases the record to owner until expiresAt when it is due and
	// unlocked or its lease expired before now. Single conditional update, false
	// means another owner holds it or already moved it forward.
	TryClaim(ctx context.Context, id, owner string, now, expiresAt time.Time) (bool, error)

	DeleteJob(ctx context.Context, id string) error

	// Reschedule clears the lease and moves the record to dueAt. The due time
	// never moves backwards, ErrStaleReschedule is returned instead.
	Reschedule(ctx context.Context, id string, dueAt time.Time) error

	DeleteJobsByType(ctx context.Context, jobType string) (int, error)

	FindJobsByType(ctx context.Context, jobType string) ([]JobRecord, error)

	// RecordFailure stores the failure message while keeping the lease in place.
	RecordFailure(ctx context.Context, id, message string) error

	// DeadLetter parks the record so selection skips it until it is requeued.
	DeadLetter(ctx context.Context, id string, at time.Time, message string) error

	FindDeadLettered(ctx context.Context, limit int) ([]JobRecord, error)

	// Requeue clears the dead letter mark, lease and attempts and makes the record due at dueAt.
	Requeue(ctx context.Context, id string, dueAt time.Time) error
}

type jobDB struct {
	db *bun.DB
}

func NewJobDB(db *bun.DB) JobDB {
	return &jobDB{
		db: db,
	}
}

func (r *jobDB) InsertJob(ctx context.Context, rec *JobRecord) error {
	q := txn.Conn(ctx, r.db).NewInsert().Model(rec)
	if rec.Fingerprint != nil {
		q = q.On("CONFLICT (fingerprint) DO NOTHING")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", rec.Type, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == NoRowsAffected {
		return ErrDuplicateJob
	}

	return nil
}

func (r *jobDB) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	rec := new(JobRecord)
	err := txn.Conn(ctx, r.db).NewSelect().
		Model(rec).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return rec, nil
}

func (r *jobDB) FindDueJobs(ctx context.Context, now time.Time, limit int) ([]JobRecord, error) {
	var records []JobRecord
	q := txn.Conn(ctx, r.db).NewSelect().
		Model(&records).
		Where("due_at <= ?", now.UTC()).
		Where("dead_lettered_at IS NULL").
		Where("(lock_owner IS NULL OR lock_expires_at IS NULL OR lock_expires_at < ?)", now.UTC()).
		Order("priority ASC", "due_at ASC", "id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

func (r *jobDB) TryClaim(ctx context.Context, id, owner string, now, expiresAt time.Time) (bool, error) {
	res, err := txn.Conn(ctx, r.db).NewUpdate().
		Table(tableName).
		Set("lock_owner = ?", owner).
		Set("lock_expires_at = ?", expiresAt.UTC()).
		Set("attempts = attempts + 1").
		Where("id = ?", id).
		Where("due_at <= ?", now.UTC()).
		Where("dead_lettered_at IS NULL").
		Where("(lock_owner IS NULL OR lock_expires_at IS NULL OR lock_expires_at < ?)", now.UTC()).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

func (r *jobDB) DeleteJob(ctx context.Context, id string) error {
	res, err := txn.Conn(ctx, r.db).NewDelete().
		Table(tableName).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	return r.expectRow(res, id)
}

func (r *jobDB) Reschedule(ctx context.Context, id string, dueAt time.Time) error {
	conn := txn.Conn(ctx, r.db)
	res, err := conn.NewUpdate().
		Table(tableName).
		Set("lock_owner = NULL").
		Set("lock_expires_at = NULL").
		Set("attempts = 0").
		Set("last_error = NULL").
		Set("due_at = ?", dueAt.UTC()).
		Where("id = ?", id).
		Where("due_at <= ?", dueAt.UTC()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows != NoRowsAffected {
		return nil
	}

	if _, err := r.GetJob(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s to %s", ErrStaleReschedule, id, dueAt.UTC().Format(time.RFC3339))
}

func (r *jobDB) DeleteJobsByType(ctx context.Context, jobType string) (int, error) {
	res, err := txn.Conn(ctx, r.db).NewDelete().
		Table(tableName).
		Where("type = ?", jobType).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(rows), nil
}

func (r *jobDB) FindJobsByType(ctx context.Context, jobType string) ([]JobRecord, error) {
	var records []JobRecord
	err := txn.Conn(ctx, r.db).NewSelect().
		Model(&records).
		Where("type = ?", jobType).
		Order("due_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *jobDB) RecordFailure(ctx context.Context, id, message string) error {
	res, err := txn.Conn(ctx, r.db).NewUpdate().
		Table(tableName).
		Set("last_error = ?", message).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	return r.expectRow(res, id)
}

func (r *jobDB) DeadLetter(ctx context.Context, id string, at time.Time, message string) error {
	res, err := txn.Conn(ctx, r.db).NewUpdate().
		Table(tableName).
		Set("dead_lettered_at = ?", at.UTC()).
		Set("last_error = ?", message).
		Set("lock_owner = NULL").
		Set("lock_expires_at = NULL").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	return r.expectRow(res, id)
}

func (r *jobDB) FindDeadLettered(ctx context.Context, limit int) ([]JobRecord, error) {
	var records []JobRecord
	q := txn.Conn(ctx, r.db).NewSelect().
		Model(&records).
		Where("dead_lettered_at IS NOT NULL").
		Order("dead_lettered_at ASC", "id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

func (r *jobDB) Requeue(ctx context.Context, id string, dueAt time.Time) error {
	res, err := txn.Conn(ctx, r.db).NewUpdate().
		Table(tableName).
		Set("dead_lettered_at = NULL").
		Set("lock_owner = NULL").
		Set("lock_expires_at = NULL").
		Set("attempts = 0").
		Set("due_at = ?", dueAt.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	return r.expectRow(res, id)
}

func (r *jobDB) expectRow(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == NoRowsAffected {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	return nil
}
