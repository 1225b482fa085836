package taskdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/TimKotowski/pg-jobqueue/bulk"
	"github.com/TimKotowski/pg-jobqueue/internal/txn"
)

var (
	ErrTaskNotFound           = errors.New("task not found")
	ErrTaskNotTerminal        = errors.New("task is not in a terminal state")
	ErrClassificationNotFound = errors.New("classification not found")
)

// TaskDB reads and deletes tasks on behalf of the maintenance jobs.
type TaskDB interface {
	InsertTasks(ctx context.Context, tasks []Task) error

	FindTasks(ctx context.Context, ids []string) ([]Task, error)

	// FindTaskSummaries returns up to limit non terminal tasks with an id greater
	// than afterID, ordered by id. When ids is non empty only those tasks are considered.
	FindTaskSummaries(ctx context.Context, afterID string, ids []string, limit int) ([]TaskSummary, error)

	// FindAffectedTaskIDs returns the ids of the non terminal tasks of a classification.
	FindAffectedTaskIDs(ctx context.Context, classificationID string) ([]string, error)

	// FindCleanupCandidates returns terminal tasks completed before the cutoff.
	FindCleanupCandidates(ctx context.Context, completedBefore time.Time) ([]string, error)

	// DeleteTasks deletes terminal tasks. Missing or non terminal tasks are
	// reported per id in the result, the error is reserved for store failures.
	DeleteTasks(ctx context.Context, ids []string) (*bulk.Result[string, error], error)

	GetClassification(ctx context.Context, id string) (*Classification, error)

	InsertClassifications(ctx context.Context, classifications []Classification) error
}

type taskDB struct {
	db *bun.DB
}

func NewTaskDB(db *bun.DB) TaskDB {
	return &taskDB{db: db}
}

func (r *taskDB) InsertTasks(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	_, err := txn.Conn(ctx, r.db).NewInsert().Model(&tasks).Exec(ctx)
	return err
}

func (r *taskDB) FindTasks(ctx context.Context, ids []string) ([]Task, error) {
	var tasks []Task
	if len(ids) == 0 {
		return tasks, nil
	}
	err := txn.Conn(ctx, r.db).NewSelect().
		Model(&tasks).
		Where("id IN (?)", bun.In(ids)).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskDB) FindTaskSummaries(ctx context.Context, afterID string, ids []string, limit int) ([]TaskSummary, error) {
	var summaries []TaskSummary
	q := txn.Conn(ctx, r.db).NewSelect().
		Model(&summaries).
		Where("state NOT IN (?)", bun.In(TerminalStates)).
		Where("id > ?", afterID).
		Order("id ASC")
	if len(ids) > 0 {
		q = q.Where("id IN (?)", bun.In(ids))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *taskDB) FindAffectedTaskIDs(ctx context.Context, classificationID string) ([]string, error) {
	var ids []string
	err := txn.Conn(ctx, r.db).NewSelect().
		Model((*Task)(nil)).
		Column("id").
		Where("classification_id = ?", classificationID).
		Where("state NOT IN (?)", bun.In(TerminalStates)).
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *taskDB) FindCleanupCandidates(ctx context.Context, completedBefore time.Time) ([]string, error) {
	var ids []string
	err := txn.Conn(ctx, r.db).NewSelect().
		Model((*Task)(nil)).
		Column("id").
		Where("state IN (?)", bun.In(TerminalStates)).
		Where("completed_at IS NOT NULL").
		Where("completed_at < ?", completedBefore.UTC()).
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *taskDB) DeleteTasks(ctx context.Context, ids []string) (*bulk.Result[string, error], error) {
	result := bulk.New[string, error]()
	if len(ids) == 0 {
		return result, nil
	}
	conn := txn.Conn(ctx, r.db)

	var found []Task
	err := conn.NewSelect().
		Model(&found).
		Column("id", "state").
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	states := make(map[string]TaskState, len(found))
	for _, t := range found {
		states[t.ID] = t.State
	}

	deletable := make([]string, 0, len(ids))
	for _, id := range ids {
		state, ok := states[id]
		switch {
		case !ok:
			result.AddError(id, fmt.Errorf("%w: %s", ErrTaskNotFound, id))
		case !IsTerminal(state):
			result.AddError(id, fmt.Errorf("%w: %s is %s", ErrTaskNotTerminal, id, state))
		default:
			deletable = append(deletable, id)
		}
	}
	if len(deletable) == 0 {
		return result, nil
	}

	_, err = conn.NewDelete().
		Model((*Task)(nil)).
		Where("id IN (?)", bun.In(deletable)).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *taskDB) GetClassification(ctx context.Context, id string) (*Classification, error) {
	c := new(Classification)
	err := txn.Conn(ctx, r.db).NewSelect().
		Model(c).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrClassificationNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *taskDB) InsertClassifications(ctx context.Context, classifications []Classification) error {
	if len(classifications) == 0 {
		return nil
	}
	_, err := txn.Conn(ctx, r.db).NewInsert().Model(&classifications).Exec(ctx)
	return err
}
