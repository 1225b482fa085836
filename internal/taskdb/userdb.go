package taskdb

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/TimKotowski/pg-jobqueue/internal/txn"
)

type UserDB interface {
	FindUsers(ctx context.Context) ([]User, error)

	// ExistingData returns the locally maintained data column keyed by user id.
	ExistingData(ctx context.Context) (map[string]*string, error)

	// ReplaceAll removes every stored user and inserts users in their place.
	// Run it inside a transaction, otherwise readers can observe the empty table.
	ReplaceAll(ctx context.Context, users []User) (int, error)
}

type userDB struct {
	db *bun.DB
}

func NewUserDB(db *bun.DB) UserDB {
	return &userDB{db: db}
}

func (r *userDB) FindUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := txn.Conn(ctx, r.db).NewSelect().
		Model(&users).
		Order("user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userDB) ExistingData(ctx context.Context) (map[string]*string, error) {
	var rows []User
	err := txn.Conn(ctx, r.db).NewSelect().
		Model(&rows).
		Column("user_id", "data").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	data := make(map[string]*string, len(rows))
	for _, u := range rows {
		data[u.UserID] = u.Data
	}
	return data, nil
}

func (r *userDB) ReplaceAll(ctx context.Context, users []User) (int, error) {
	conn := txn.Conn(ctx, r.db)
	_, err := conn.NewDelete().
		Model((*User)(nil)).
		Where("1 = 1").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}

	res, err := conn.NewInsert().Model(&users).Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
