package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"

	"github.com/TimKotowski/pg-jobqueue/internal/jobdb"
)

// Queue is the only writer of the lease and due columns of job records.
// Every call joins the transaction carried by ctx, if any.
type Queue struct {
	db       jobdb.JobDB
	registry *Registry
	clock    clockwork.Clock
	conf     *Config
}

func NewQueue(conf *Config, db jobdb.JobDB, registry *Registry, clock clockwork.Clock) *Queue {
	return &Queue{
		db:       db,
		registry: registry,
		clock:    clock,
		conf:     conf,
	}
}

// CreateJob validates and inserts rec, filling in its id and creation time.
// A zero DueAt makes the record due immediately.
func (q *Queue) CreateJob(ctx context.Context, rec *JobRecord) (string, error) {
	if rec.Type == "" {
		return "", errors.New("create job: type is empty")
	}
	if rec.RunEvery < 0 {
		return "", fmt.Errorf("create job %s: negative run every %s", rec.Type, rec.RunEvery)
	}
	if rec.Arguments == nil {
		rec.Arguments = Arguments{}
	}

	// factories are side-effect free, building the job checks its arguments
	if _, err := q.registry.Build(rec); err != nil {
		return "", fmt.Errorf("create job %s: %w", rec.Type, err)
	}

	now := q.clock.Now().UTC()
	rec.ID = ulid.Make().String()
	rec.CreatedAt = now
	if rec.DueAt.IsZero() {
		rec.DueAt = now
	}
	rec.LockOwner = nil
	rec.LockExpiresAt = nil
	rec.Attempts = 0

	if err := q.db.InsertJob(ctx, rec); err != nil {
		return "", err
	}

	return rec.ID, nil
}

// FindDueJobs returns up to Config.FetchLimit records that are due at now and
// not under a live lease.
func (q *Queue) FindDueJobs(ctx context.Context, now time.Time) ([]JobRecord, error) {
	records, err := q.db.FindDueJobs(ctx, now, q.conf.FetchLimit)
	if err != nil {
		return nil, fmt.Errorf("find due jobs: %w", err)
	}
	return records, nil
}

// TryClaim leases the record to owner for lease. False means someone else holds it.
func (q *Queue) TryClaim(ctx context.Context, id, owner string, lease time.Duration) (bool, error) {
	now := q.clock.Now()
	ok, err := q.db.TryClaim(ctx, id, owner, now, now.Add(lease))
	if err != nil {
		return false, fmt.Errorf("claim job %s: %w", id, err)
	}
	return ok, nil
}

func (q *Queue) ReleaseAndDelete(ctx context.Context, id string) error {
	if err := q.db.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// ReleaseAndReschedule clears the lease and moves the record to newDueAt.
// ErrStaleReschedule is returned when newDueAt lies before the current due time.
func (q *Queue) ReleaseAndReschedule(ctx context.Context, id string, newDueAt time.Time) error {
	if err := q.db.Reschedule(ctx, id, newDueAt); err != nil {
		return fmt.Errorf("reschedule job %s: %w", id, err)
	}
	return nil
}

// DeleteJobsByType removes every record of jobType, locked or not.
func (q *Queue) DeleteJobsByType(ctx context.Context, jobType string) (int, error) {
	n, err := q.db.DeleteJobsByType(ctx, jobType)
	if err != nil {
		return 0, fmt.Errorf("delete jobs of type %s: %w", jobType, err)
	}
	return n, nil
}

func (q *Queue) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	return q.db.GetJob(ctx, id)
}

func (q *Queue) FindJobsByType(ctx context.Context, jobType string) ([]JobRecord, error) {
	return q.db.FindJobsByType(ctx, jobType)
}

// RecordFailure keeps the lease, the record is retried once it expires.
func (q *Queue) RecordFailure(ctx context.Context, id string, cause error) error {
	if err := q.db.RecordFailure(ctx, id, cause.Error()); err != nil {
		return fmt.Errorf("record failure of job %s: %w", id, err)
	}
	return nil
}

// DeadLetter parks the record until Requeue is called for it.
func (q *Queue) DeadLetter(ctx context.Context, id string, cause error) error {
	if err := q.db.DeadLetter(ctx, id, q.clock.Now(), cause.Error()); err != nil {
		return fmt.Errorf("dead letter job %s: %w", id, err)
	}
	return nil
}

func (q *Queue) FindDeadLettered(ctx context.Context, limit int) ([]JobRecord, error) {
	return q.db.FindDeadLettered(ctx, limit)
}

// Requeue makes a dead lettered or stuck record due now with a fresh attempt count.
func (q *Queue) Requeue(ctx context.Context, id string) error {
	if err := q.db.Requeue(ctx, id, q.clock.Now()); err != nil {
		return fmt.Errorf("requeue job %s: %w", id, err)
	}
	return nil
}
