// Package txn provides the transaction boundary jobs run in. The active
// transaction travels in the context so stores pick it up with Conn.
package txn

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

type Provider interface {
	// RunInTx runs fn inside a transaction, committing when fn returns nil and
	// rolling back when it returns an error or panics. The error is returned as is.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// WithTx returns a context carrying tx.
func WithTx(ctx context.Context, tx bun.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext returns the transaction carried by ctx.
func FromContext(ctx context.Context) (bun.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(bun.Tx)
	return tx, ok
}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db bun.IDB) bun.IDB {
	if tx, ok := FromContext(ctx); ok {
		return tx
	}
	return db
}

var (
	_ Provider = &standalone{}
	_ Provider = &nested{}
)

type standalone struct {
	db *bun.DB
}

// NewStandalone returns a Provider that opens and owns a new transaction on
// every call, even when ctx already carries one.
func NewStandalone(db *bun.DB) Provider {
	return &standalone{db: db}
}

func (s *standalone) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	var committed bool
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true

	return nil
}

type nested struct {
	fallback Provider
}

// NewNested returns a Provider that joins the transaction carried by ctx and
// delegates to fallback when there is none. A failing fn inside a joined
// transaction returns its error to the owner, which then rolls back.
func NewNested(fallback Provider) Provider {
	return &nested{fallback: fallback}
}

func (n *nested) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := FromContext(ctx); ok {
		return fn(ctx)
	}
	return n.fallback.RunInTx(ctx, fn)
}

// RunWithResult runs fn through p and returns its value once the transaction committed.
func RunWithResult[T any](ctx context.Context, p Provider, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		return *new(T), err
	}

	return result, nil
}
