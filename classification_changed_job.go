package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/TimKotowski/pg-jobqueue/hash"
	"github.com/TimKotowski/pg-jobqueue/internal/jobdb"
	"github.com/TimKotowski/pg-jobqueue/internal/taskdb"
)

var _ Job = &classificationChangedJob{}

// classificationChangedJob fans a classification change out into one
// TaskRefreshJob per batch of affected tasks instead of refreshing them inline.
type classificationChangedJob struct {
	parentID            string
	priority            int
	classificationID    string
	priorityChanged     bool
	serviceLevelChanged bool
	batchSize           int
	queue               *Queue
	tasks               taskdb.TaskDB
	logger              *zap.Logger
}

func newClassificationChangedJob(conf *Config, queue *Queue, tasks taskdb.TaskDB) Factory {
	return func(rec *JobRecord) (Job, error) {
		classificationID, err := rec.Arguments.String(ArgClassificationID)
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

		return &classificationChangedJob{
			parentID:            rec.ID,
			priority:            rec.Priority,
			classificationID:    classificationID,
			priorityChanged:     priorityChanged,
			serviceLevelChanged: serviceLevelChanged,
			batchSize:           conf.BatchSize,
			queue:               queue,
			tasks:               tasks,
			logger: conf.Logger.With(
				zap.String("job_id", rec.ID),
				zap.String("job_type", rec.Type),
				zap.String("classification_id", classificationID)),
		}, nil
	}
}

// ClassificationChangedArguments builds the arguments of a ClassificationChangedJob.
func ClassificationChangedArguments(classificationID string, priorityChanged, serviceLevelChanged bool) Arguments {
	return Arguments{
		ArgClassificationID:    classificationID,
		ArgPriorityChanged:     strconv.FormatBool(priorityChanged),
		ArgServiceLevelChanged: strconv.FormatBool(serviceLevelChanged),
	}
}

func (j *classificationChangedJob) Execute(ctx context.Context) error {
	if !j.priorityChanged && !j.serviceLevelChanged {
		j.logger.Debug("classification change affects neither priority nor service level")
		return nil
	}

	ids, err := j.tasks.FindAffectedTaskIDs(ctx, j.classificationID)
	if err != nil {
		return fmt.Errorf("find tasks of classification %s: %w", j.classificationID, err)
	}

	var created, skipped int
	for batch := range slices.Chunk(ids, j.batchSize) {
		args := Arguments{
			ArgTaskIDs:             jobdb.JoinList(batch),
			ArgPriorityChanged:     strconv.FormatBool(j.priorityChanged),
			ArgServiceLevelChanged: strconv.FormatBool(j.serviceLevelChanged),
		}
		fingerprint := hash.Fingerprint(TaskRefreshJobType, j.parentID, args)

		_, err := j.queue.CreateJob(ctx, &JobRecord{
			Type:        TaskRefreshJobType,
			Priority:    j.priority,
			Arguments:   args,
			Fingerprint: &fingerprint,
		})
		if errors.Is(err, ErrDuplicateJob) {
			// created by an earlier run of this record that could not be released
			skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("create refresh job: %w", err)
		}
		created++
	}

	j.logger.Info("classification change cascaded",
		zap.Int("affected_tasks", len(ids)),
		zap.Int("refresh_jobs", created),
		zap.Int("already_present", skipped))

	return nil
}
