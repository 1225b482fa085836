// Package bulk collects per-item failures of batch operations so a batch can
// partially succeed without failing as a whole.
package bulk

import (
	"fmt"

	"go.uber.org/multierr"
)

// Result records which keys of a batch failed and why.
// A key that was never added is considered successful.
type Result[K comparable, E any] struct {
	errs  map[K]E
	order []K
}

func New[K comparable, E any]() *Result[K, E] {
	return &Result[K, E]{
		errs: make(map[K]E),
	}
}

// AddError records a failure for key. Only the first failure per key is kept,
// false is returned when the key had already failed.
func (r *Result[K, E]) AddError(key K, err E) bool {
	if r.errs == nil {
		r.errs = make(map[K]E)
	}
	if _, ok := r.errs[key]; ok {
		return false
	}
	r.errs[key] = err
	r.order = append(r.order, key)

	return true
}

// AddErrors merges the failures of other into r.
func (r *Result[K, E]) AddErrors(other *Result[K, E]) {
	if other == nil {
		return
	}
	for _, key := range other.order {
		r.AddError(key, other.errs[key])
	}
}

func (r *Result[K, E]) ContainsErrors() bool {
	return len(r.order) > 0
}

func (r *Result[K, E]) ErrorFor(key K) (E, bool) {
	err, ok := r.errs[key]
	return err, ok
}

// FailedKeys returns the failed keys in the order they were recorded.
func (r *Result[K, E]) FailedKeys() []K {
	keys := make([]K, len(r.order))
	copy(keys, r.order)
	return keys
}

func (r *Result[K, E]) ErrorMap() map[K]E {
	m := make(map[K]E, len(r.errs))
	for k, v := range r.errs {
		m[k] = v
	}
	return m
}

// Len is the number of failed keys.
func (r *Result[K, E]) Len() int {
	return len(r.order)
}

// SucceededCount is the number of keys of a batch of size total that did not fail.
func (r *Result[K, E]) SucceededCount(total int) int {
	succeeded := total - len(r.order)
	if succeeded < 0 {
		return 0
	}
	return succeeded
}

// Combine folds every recorded failure into a single error, nil when the batch
// fully succeeded.
func Combine[K comparable, E error](r *Result[K, E]) error {
	if r == nil {
		return nil
	}
	var combined error
	for _, key := range r.order {
		combined = multierr.Append(combined, fmt.Errorf("%v: %w", key, r.errs[key]))
	}
	return combined
}
