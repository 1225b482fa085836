package bulk_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"

	"github.com/TimKotowski/pg-jobqueue/bulk"
)

func TestResult(t *testing.T) {
	t.Run("empty result has no errors", func(t *testing.T) {
		r := bulk.New[string, error]()
		assert.False(t, r.ContainsErrors())
		assert.Equal(t, 0, r.Len())
		assert.Equal(t, 5, r.SucceededCount(5))
		assert.NoError(t, bulk.Combine(r))
	})

	t.Run("first failure per key wins", func(t *testing.T) {
		r := bulk.New[string, error]()
		first := errors.New("in use")
		assert.True(t, r.AddError("wb-1", first))
		assert.False(t, r.AddError("wb-1", errors.New("other")))

		err, ok := r.ErrorFor("wb-1")
		assert.True(t, ok)
		assert.Equal(t, first, err)
		assert.Equal(t, 1, r.Len())
		assert.Equal(t, []string{"wb-1"}, r.FailedKeys())
	})

	t.Run("absent key is a success", func(t *testing.T) {
		r := bulk.New[string, error]()
		r.AddError("wb-1", errors.New("boom"))

		_, ok := r.ErrorFor("wb-2")
		assert.False(t, ok)
		assert.Equal(t, 2, r.SucceededCount(3))
	})

	t.Run("merge keeps insertion order and deduplicates", func(t *testing.T) {
		a := bulk.New[int, error]()
		a.AddError(3, errors.New("a3"))
		a.AddError(1, errors.New("a1"))

		b := bulk.New[int, error]()
		b.AddError(1, errors.New("b1"))
		b.AddError(2, errors.New("b2"))

		a.AddErrors(b)
		a.AddErrors(nil)

		assert.Equal(t, []int{3, 1, 2}, a.FailedKeys())
		err, _ := a.ErrorFor(1)
		assert.EqualError(t, err, "a1")
		assert.Len(t, a.ErrorMap(), 3)
	})

	t.Run("combine folds all failures", func(t *testing.T) {
		sentinel := errors.New("constraint")
		r := bulk.New[string, error]()
		r.AddError("x", sentinel)
		r.AddError("y", errors.New("other"))

		combined := bulk.Combine(r)
		assert.Len(t, multierr.Errors(combined), 2)
		assert.ErrorIs(t, combined, sentinel)
	})

	t.Run("zero value is usable", func(t *testing.T) {
		var r bulk.Result[string, string]
		assert.True(t, r.AddError("k", "reason"))
		assert.True(t, r.ContainsErrors())
	})
}
