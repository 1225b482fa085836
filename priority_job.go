package jobqueue

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/TimKotowski/pg-jobqueue/internal/batchsql"
	"github.com/TimKotowski/pg-jobqueue/internal/taskdb"
	"github.com/TimKotowski/pg-jobqueue/internal/txn"
)

//go:generate mockgen -source=priority_job.go -destination=mocks/mock_priority.go -package=mock_jobqueue

type TaskSummary = taskdb.TaskSummary

// PriorityCalculator computes the priority a task should have. The bool is
// false when the calculator has no opinion about the task.
type PriorityCalculator interface {
	CalculatePriority(ctx context.Context, task TaskSummary) (int, bool)
}

type PriorityCalculatorFunc func(ctx context.Context, task TaskSummary) (int, bool)

func (f PriorityCalculatorFunc) CalculatePriority(ctx context.Context, task TaskSummary) (int, bool) {
	return f(ctx, task)
}

// PriorityWorker pages through non terminal tasks, asks the calculator for each
// and writes the changed priorities with one grouped update per page.
type PriorityWorker struct {
	db         *bun.DB
	tasks      taskdb.TaskDB
	calculator PriorityCalculator
	tx         txn.Provider
	batchSize  int
	logger     *zap.Logger
}

// NewPriorityWorker returns a worker running every page through tx.
func NewPriorityWorker(db *bun.DB, tasks taskdb.TaskDB, calculator PriorityCalculator, tx txn.Provider, batchSize int, logger *zap.Logger) *PriorityWorker {
	return &PriorityWorker{
		db:         db,
		tasks:      tasks,
		calculator: calculator,
		tx:         tx,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// hasDifferentPriority accepts every priority except the one task already has.
func hasDifferentPriority(task TaskSummary) func(priority int) bool {
	return func(priority int) bool {
		return priority != task.Priority
	}
}

// getCalculatedPriority returns the new priority of task, false when the
// calculator has none or it equals the current one.
func (w *PriorityWorker) getCalculatedPriority(ctx context.Context, task TaskSummary) (int, bool) {
	priority, ok := w.calculator.CalculatePriority(ctx, task)
	if !ok || !hasDifferentPriority(task)(priority) {
		return 0, false
	}
	return priority, true
}

// ExecuteBatch recomputes the priority of all non terminal tasks, or of ids
// only when given, and returns the ids whose priority changed.
func (w *PriorityWorker) ExecuteBatch(ctx context.Context, ids []string) ([]string, error) {
	var (
		updated []string
		afterID string
	)
	for {
		var page []TaskSummary
		var pageUpdated []string
		err := w.tx.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			page, err = w.tasks.FindTaskSummaries(ctx, afterID, ids, w.batchSize)
			if err != nil {
				return fmt.Errorf("load task page after %q: %w", afterID, err)
			}

			pageUpdated = pageUpdated[:0]
			runner := batchsql.NewRunner(txn.Conn(ctx, w.db), "task", "id", "priority")
			for _, task := range page {
				if priority, ok := w.getCalculatedPriority(ctx, task); ok {
					runner.AddUpdate(task.ID, priority)
					pageUpdated = append(pageUpdated, task.ID)
				}
			}
			_, err = runner.ExecuteBatch(ctx)
			return err
		})
		if err != nil {
			return updated, err
		}
		updated = append(updated, pageUpdated...)

		if len(page) < w.batchSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	w.logger.Debug("priorities recomputed", zap.Int("updated", len(updated)))
	return updated, nil
}

var _ Job = &priorityUpdateJob{}

type priorityUpdateJob struct {
	worker *PriorityWorker
	logger *zap.Logger
}

// newPriorityUpdateJob commits every page on its own, a failure keeps the
// pages already written.
func newPriorityUpdateJob(conf *Config, db *bun.DB, tasks taskdb.TaskDB, calculator PriorityCalculator, tx txn.Provider) Factory {
	return func(rec *JobRecord) (Job, error) {
		logger := conf.Logger.With(zap.String("job_id", rec.ID), zap.String("job_type", rec.Type))
		j := &priorityUpdateJob{logger: logger}
		if calculator != nil {
			j.worker = NewPriorityWorker(db, tasks, calculator, tx, conf.BatchSize, logger)
		}
		return j, nil
	}
}

func (j *priorityUpdateJob) Execute(ctx context.Context) error {
	if j.worker == nil {
		j.logger.Info("no priority calculator configured, skipping")
		return nil
	}

	updated, err := j.worker.ExecuteBatch(ctx, nil)
	if err != nil {
		return fmt.Errorf("recompute priorities (%d updated before failing): %w", len(updated), err)
	}
	j.logger.Info("priorities recomputed", zap.Int("updated", len(updated)))

	return nil
}
