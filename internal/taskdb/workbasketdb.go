package taskdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/TimKotowski/pg-jobqueue/bulk"
	"github.com/TimKotowski/pg-jobqueue/internal/txn"
)

var (
	ErrWorkbasketNotFound  = errors.New("workbasket not found")
	ErrWorkbasketInUse     = errors.New("workbasket still holds pending tasks")
	ErrWorkbasketNotMarked = errors.New("workbasket is not marked for deletion")
)

type WorkbasketDB interface {
	InsertWorkbaskets(ctx context.Context, workbaskets []Workbasket) error

	// FindCleanupCandidates returns workbaskets marked for deletion that no
	// longer hold any non terminal task.
	FindCleanupCandidates(ctx context.Context) ([]string, error)

	// DeleteWorkbaskets deletes marked, empty workbaskets. Per id failures are
	// reported in the result, the error is reserved for store failures.
	DeleteWorkbaskets(ctx context.Context, ids []string) (*bulk.Result[string, error], error)

	FindWorkbaskets(ctx context.Context) ([]Workbasket, error)
}

type workbasketDB struct {
	db *bun.DB
}

func NewWorkbasketDB(db *bun.DB) WorkbasketDB {
	return &workbasketDB{db: db}
}

func (r *workbasketDB) InsertWorkbaskets(ctx context.Context, workbaskets []Workbasket) error {
	if len(workbaskets) == 0 {
		return nil
	}
	_, err := txn.Conn(ctx, r.db).NewInsert().Model(&workbaskets).Exec(ctx)
	return err
}

func (r *workbasketDB) FindCleanupCandidates(ctx context.Context) ([]string, error) {
	conn := txn.Conn(ctx, r.db)
	pending := conn.NewSelect().
		Model((*Task)(nil)).
		ColumnExpr("1").
		Where("t.workbasket_id = w.id").
		Where("t.state NOT IN (?)", bun.In(TerminalStates))

	var ids []string
	err := conn.NewSelect().
		Model((*Workbasket)(nil)).
		Column("id").
		Where("mark_for_deletion = ?", true).
		Where("NOT EXISTS (?)", pending).
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *workbasketDB) DeleteWorkbaskets(ctx context.Context, ids []string) (*bulk.Result[string, error], error) {
	result := bulk.New[string, error]()
	if len(ids) == 0 {
		return result, nil
	}
	conn := txn.Conn(ctx, r.db)

	var found []Workbasket
	err := conn.NewSelect().
		Model(&found).
		Column("id", "mark_for_deletion").
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	marked := make(map[string]bool, len(found))
	for _, wb := range found {
		marked[wb.ID] = wb.MarkForDeletion
	}

	var busy []string
	err = conn.NewSelect().
		Model((*Task)(nil)).
		ColumnExpr("DISTINCT workbasket_id").
		Where("workbasket_id IN (?)", bun.In(ids)).
		Where("state NOT IN (?)", bun.In(TerminalStates)).
		Scan(ctx, &busy)
	if err != nil {
		return nil, err
	}
	inUse := make(map[string]struct{}, len(busy))
	for _, id := range busy {
		inUse[id] = struct{}{}
	}

	deletable := make([]string, 0, len(ids))
	for _, id := range ids {
		isMarked, ok := marked[id]
		_, pending := inUse[id]
		switch {
		case !ok:
			result.AddError(id, fmt.Errorf("%w: %s", ErrWorkbasketNotFound, id))
		case !isMarked:
			result.AddError(id, fmt.Errorf("%w: %s", ErrWorkbasketNotMarked, id))
		case pending:
			result.AddError(id, fmt.Errorf("%w: %s", ErrWorkbasketInUse, id))
		default:
			deletable = append(deletable, id)
		}
	}
	if len(deletable) == 0 {
		return result, nil
	}

	_, err = conn.NewDelete().
		Model((*Workbasket)(nil)).
		Where("id IN (?)", bun.In(deletable)).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *workbasketDB) FindWorkbaskets(ctx context.Context) ([]Workbasket, error) {
	var workbaskets []Workbasket
	err := txn.Conn(ctx, r.db).NewSelect().
		Model(&workbaskets).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return workbaskets, nil
}
