package jobqueue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type JobState string

const (
	StateClaimed   JobState = "CLAIMED"
	StateRunning   JobState = "RUNNING"
	StateCompleted JobState = "COMPLETED"
	StateFailed    JobState = "FAILED"
)

// RunResult describes what RunJob did with one claimed record.
type RunResult struct {
	JobID string
	Type  string
	State JobState

	// Set when State is StateFailed, a *JobError.
	Err error

	// Next due time of a recurring record that completed.
	RescheduledTo *time.Time

	// The record was deleted after a one-off run completed.
	Deleted bool

	// The record was parked because it ran out of attempts.
	DeadLettered bool
}

// RunJob takes a record this instance claimed through CLAIMED, RUNNING and
// COMPLETED or FAILED. Execute runs inside the nested transaction provider, so
// jobs created by the job commit together with its own writes. Releasing the
// record happens afterwards in its own statement.
//
// A failed record keeps its lease and is retried once the lease expires,
// unless Config.MaxAttempts is reached, then it is dead lettered.
func (e *Engine) RunJob(ctx context.Context, rec *JobRecord) RunResult {
	result := RunResult{JobID: rec.ID, Type: rec.Type, State: StateClaimed}
	logger := e.logger.With(zap.String("job_id", rec.ID), zap.String("job_type", rec.Type))

	job, err := e.registry.Build(rec)
	if err != nil {
		return e.fail(ctx, rec, result, StageConstruct, err, logger)
	}

	result.State = StateRunning
	start := e.clock.Now()
	if err := e.nested.RunInTx(ctx, job.Execute); err != nil {
		return e.fail(ctx, rec, result, StageExecute, err, logger)
	}

	if !rec.Recurring() {
		if err := e.queue.ReleaseAndDelete(ctx, rec.ID); err != nil {
			return e.fail(ctx, rec, result, StageRelease, err, logger)
		}
		result.Deleted = true
	} else {
		next, err := e.scheduleNextJob(ctx, rec)
		if err != nil {
			return e.fail(ctx, rec, result, StageRelease, err, logger)
		}
		result.RescheduledTo = &next
	}

	result.State = StateCompleted
	e.metrics.JobsCompleted.WithLabelValues(rec.Type).Inc()
	logger.Info("job completed",
		zap.Duration("took", e.clock.Since(start)),
		zap.Bool("deleted", result.Deleted),
		zap.Timep("next_due_at", result.RescheduledTo))

	return result
}

// scheduleNextJob moves a completed recurring record to its next due time.
func (e *Engine) scheduleNextJob(ctx context.Context, rec *JobRecord) (time.Time, error) {
	next := nextDueAt(rec, e.clock.Now())
	if err := e.queue.ReleaseAndReschedule(ctx, rec.ID, next); err != nil {
		return time.Time{}, err
	}
	return next, nil
}

func (e *Engine) fail(ctx context.Context, rec *JobRecord, result RunResult, stage Stage, cause error, logger *zap.Logger) RunResult {
	jobErr := &JobError{JobID: rec.ID, Type: rec.Type, Stage: stage, Err: cause}
	result.State = StateFailed
	result.Err = jobErr
	e.metrics.JobsFailed.WithLabelValues(rec.Type, string(stage)).Inc()

	// the record may already be gone when deleting it failed halfway
	if errors.Is(cause, ErrJobNotFound) {
		logger.Warn("job record vanished", zap.String("stage", string(stage)), zap.Error(cause))
		return result
	}

	if e.conf.MaxAttempts > 0 && rec.Attempts >= e.conf.MaxAttempts {
		if err := e.queue.DeadLetter(ctx, rec.ID, jobErr); err != nil {
			logger.Error("could not dead letter job", zap.Error(err))
		} else {
			result.DeadLettered = true
			e.metrics.DeadLettered.WithLabelValues(rec.Type).Inc()
		}
		logger.Error("job failed and was dead lettered",
			zap.String("stage", string(stage)),
			zap.Int("attempts", rec.Attempts),
			zap.Error(cause))
		return result
	}

	if err := e.queue.RecordFailure(ctx, rec.ID, jobErr); err != nil {
		logger.Error("could not record job failure", zap.Error(err))
	}
	logger.Error("job failed, retried once the lease expires",
		zap.String("stage", string(stage)),
		zap.Int("attempts", rec.Attempts),
		zap.Timep("lease_expires_at", rec.LockExpiresAt),
		zap.Error(cause))

	return result
}
