package jobqueue

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/TimKotowski/pg-jobqueue/bulk"
	"github.com/TimKotowski/pg-jobqueue/internal/taskdb"
	"github.com/TimKotowski/pg-jobqueue/internal/txn"
)

var (
	_ Job = &cleanupJob{}
)

type (
	findIDsFunc     = func(ctx context.Context) ([]string, error)
	deleteBatchFunc = func(ctx context.Context, ids []string) (*bulk.Result[string, error], error)
)

// cleanupJob deletes everything find returns in batches of batchSize, each
// batch under its own transaction. A failing batch is reported once all
// batches ran, the batches committed before it stay deleted.
type cleanupJob struct {
	jobType   string
	batchSize int
	tx        txn.Provider
	find      findIDsFunc
	delete    deleteBatchFunc
	logger    *zap.Logger
	metrics   *Metrics
}

func newWorkbasketCleanupJob(conf *Config, tx txn.Provider, workbaskets taskdb.WorkbasketDB, metrics *Metrics) Factory {
	return func(rec *JobRecord) (Job, error) {
		return &cleanupJob{
			jobType:   WorkbasketCleanupJobType,
			batchSize: conf.BatchSize,
			tx:        tx,
			find:      workbaskets.FindCleanupCandidates,
			delete:    workbaskets.DeleteWorkbaskets,
			logger:    conf.Logger.With(zap.String("job_id", rec.ID), zap.String("job_type", rec.Type)),
			metrics:   metrics,
		}, nil
	}
}

func newTaskCleanupJob(conf *Config, tx txn.Provider, tasks taskdb.TaskDB, now func() time.Time, metrics *Metrics) Factory {
	return func(rec *JobRecord) (Job, error) {
		minAge := conf.TaskCleanupMinAge
		return &cleanupJob{
			jobType:   TaskCleanupJobType,
			batchSize: conf.BatchSize,
			tx:        tx,
			find: func(ctx context.Context) ([]string, error) {
				return tasks.FindCleanupCandidates(ctx, now().Add(-minAge))
			},
			delete:  tasks.DeleteTasks,
			logger:  conf.Logger.With(zap.String("job_id", rec.ID), zap.String("job_type", rec.Type)),
			metrics: metrics,
		}, nil
	}
}

func (j *cleanupJob) Execute(ctx context.Context) error {
	ids, err := j.find(ctx)
	if err != nil {
		return fmt.Errorf("find cleanup candidates: %w", err)
	}
	if len(ids) == 0 {
		j.logger.Debug("nothing to clean up")
		return nil
	}

	var (
		deleted   int
		batches   int
		batchErrs error
	)
	for batch := range slices.Chunk(ids, j.batchSize) {
		batches++
		result, err := txn.RunWithResult(ctx, j.tx, func(ctx context.Context) (*bulk.Result[string, error], error) {
			return j.delete(ctx, batch)
		})
		if err != nil {
			j.logger.Error("cleanup batch failed",
				zap.Int("batch", batches),
				zap.Int("size", len(batch)),
				zap.Error(err))
			batchErrs = multierr.Append(batchErrs, fmt.Errorf("batch %d: %w", batches, err))
			continue
		}

		for _, id := range result.FailedKeys() {
			cause, _ := result.ErrorFor(id)
			j.logger.Warn("could not delete item", zap.String("item_id", id), zap.Error(cause))
		}
		if j.metrics != nil && result.ContainsErrors() {
			j.metrics.BulkItemFailures.WithLabelValues(j.jobType).Add(float64(result.Len()))
		}
		deleted += result.SucceededCount(len(batch))
	}

	j.logger.Info("cleanup finished",
		zap.Int("candidates", len(ids)),
		zap.Int("deleted", deleted),
		zap.Int("batches", batches))

	return batchErrs
}
