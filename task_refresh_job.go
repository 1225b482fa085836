package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/TimKotowski/pg-jobqueue/bulk"
	"github.com/TimKotowski/pg-jobqueue/internal/batchsql"
	"github.com/TimKotowski/pg-jobqueue/internal/jobdb"
	"github.com/TimKotowski/pg-jobqueue/internal/taskdb"
	"github.com/TimKotowski/pg-jobqueue/internal/txn"
)

var _ Job = &taskRefreshJob{}

// taskRefreshJob brings a bounded set of tasks in line with their
// classification after it changed. Priority and due date are updated in the
// transaction of the job itself.
type taskRefreshJob struct {
	taskIDs             []string
	priorityChanged     bool
	serviceLevelChanged bool
	db                  *bun.DB
	tasks               taskdb.TaskDB
	worker              *PriorityWorker
	tx                  txn.Provider
	logger              *zap.Logger
}

func newTaskRefreshJob(conf *Config, db *bun.DB, tasks taskdb.TaskDB, calculator PriorityCalculator, tx txn.Provider) Factory {
	return func(rec *JobRecord) (Job, error) {
		ids, err := rec.Arguments.List(ArgTaskIDs)
		if err != nil {
			return nil, err
		}
		priorityChanged, err := rec.Arguments.Bool(ArgPriorityChanged)
		if err != nil {
			return nil, err
		}
		serviceLevelChanged, err := rec.Arguments.Bool(ArgServiceLevelChanged)
		if err != nil {
			return nil, err
		}

		logger := conf.Logger.With(zap.String("job_id", rec.ID), zap.String("job_type", rec.Type))
		j := &taskRefreshJob{
			taskIDs:             ids,
			priorityChanged:     priorityChanged,
			serviceLevelChanged: serviceLevelChanged,
			db:                  db,
			tasks:               tasks,
			tx:                  tx,
			logger:              logger,
		}
		if calculator != nil {
			j.worker = NewPriorityWorker(db, tasks, calculator, tx, len(ids), logger)
		}
		return j, nil
	}
}

// TaskRefreshArguments builds the arguments of a TaskRefreshJob.
func TaskRefreshArguments(taskIDs []string, priorityChanged, serviceLevelChanged bool) Arguments {
	return Arguments{
		ArgTaskIDs:             jobdb.JoinList(taskIDs),
		ArgPriorityChanged:     strconv.FormatBool(priorityChanged),
		ArgServiceLevelChanged: strconv.FormatBool(serviceLevelChanged),
	}
}

func (j *taskRefreshJob) Execute(ctx context.Context) error {
	return j.tx.RunInTx(ctx, func(ctx context.Context) error {
		if j.priorityChanged {
			if err := j.refreshPriorities(ctx); err != nil {
				return err
			}
		}
		if j.serviceLevelChanged {
			if err := j.refreshDueDates(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *taskRefreshJob) refreshPriorities(ctx context.Context) error {
	if j.worker == nil {
		j.logger.Info("no priority calculator configured, priorities left as they are")
		return nil
	}

	updated, err := j.worker.ExecuteBatch(ctx, j.taskIDs)
	if err != nil {
		return fmt.Errorf("refresh priorities: %w", err)
	}
	j.logger.Debug("priorities refreshed", zap.Int("updated", len(updated)))

	return nil
}

// refreshDueDates sets due = planned + service level of the task's classification.
func (j *taskRefreshJob) refreshDueDates(ctx context.Context) error {
	tasks, err := j.tasks.FindTasks(ctx, j.taskIDs)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	serviceLevels := make(map[string]*taskdb.Classification)
	skipped := bulk.New[string, error]()
	runner := batchsql.NewRunner(txn.Conn(ctx, j.db), "task", "id", "due", batchsql.WithValueType("TIMESTAMPTZ"))
	for _, task := range tasks {
		if taskdb.IsTerminal(task.State) {
			continue
		}

		c, ok := serviceLevels[task.ClassificationID]
		if !ok {
			c, err = j.tasks.GetClassification(ctx, task.ClassificationID)
			if errors.Is(err, taskdb.ErrClassificationNotFound) {
				skipped.AddError(task.ID, err)
				continue
			}
			if err != nil {
				return err
			}
			serviceLevels[task.ClassificationID] = c
		}
		sl, err := c.ServiceLevelDuration()
		if err != nil {
			skipped.AddError(task.ID, err)
			continue
		}

		runner.AddUpdate(task.ID, task.Planned.Add(sl).UTC())
	}
	for _, id := range skipped.FailedKeys() {
		cause, _ := skipped.ErrorFor(id)
		j.logger.Warn("due date not refreshed", zap.String("task_id", id), zap.Error(cause))
	}

	n, err := runner.ExecuteBatch(ctx)
	if err != nil {
		return fmt.Errorf("refresh due dates: %w", err)
	}
	j.logger.Debug("due dates refreshed", zap.Int64("updated", n))

	return nil
}
