package jobdb

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// JobRecord is one persisted queue entry.
type JobRecord struct {
	bun.BaseModel `bun:"table:scheduled_job,alias:sj"`

	ID             string        `bun:"id,pk"`
	Type           string        `bun:"type,notnull"`
	CreatedAt      time.Time     `bun:"created_at,notnull"`
	DueAt          time.Time     `bun:"due_at,notnull"`
	Priority       int           `bun:"priority,notnull"`
	Arguments      Arguments     `bun:"arguments,type:text,notnull"`
	LockOwner      *string       `bun:"lock_owner"`
	LockExpiresAt  *time.Time    `bun:"lock_expires_at"`
	RunEvery       time.Duration `bun:"run_every,notnull"`
	FirstRun       *time.Time    `bun:"first_run"`
	Attempts       int           `bun:"attempts,notnull"`
	LastError      *string       `bun:"last_error"`
	DeadLetteredAt *time.Time    `bun:"dead_lettered_at"`
	Fingerprint    *string       `bun:"fingerprint"`
}

// Recurring reports whether the record is rescheduled after a successful run
// instead of being deleted.
func (r *JobRecord) Recurring() bool {
	return r.RunEvery > 0
}

// Locked reports whether the record is under a lease that is still valid at now.
func (r *JobRecord) Locked(now time.Time) bool {
	return r.LockOwner != nil && r.LockExpiresAt != nil && !r.LockExpiresAt.Before(now)
}

func (r *JobRecord) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		if r.DueAt.IsZero() {
			r.DueAt = r.CreatedAt
		}
		if r.Arguments == nil {
			r.Arguments = Arguments{}
		}
	}
	return nil
}
