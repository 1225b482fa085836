package hash_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TimKotowski/pg-jobqueue/hash"
)

func TestFingerprint(t *testing.T) {
	t.Run("independent of argument order", func(t *testing.T) {
		a := hash.Fingerprint("TaskRefreshJob", "parent-1", map[string]string{"taskIds": "T-1,T-2", "priorityChanged": "true"})
		b := hash.Fingerprint("TaskRefreshJob", "parent-1", map[string]string{"priorityChanged": "true", "taskIds": "T-1,T-2"})

		assert.Equal(t, a, b)
		assert.Len(t, a, sha256.Size*2)
	})

	t.Run("scope and values change the key", func(t *testing.T) {
		args := map[string]string{"taskIds": "T-1"}
		base := hash.Fingerprint("TaskRefreshJob", "parent-1", args)

		assert.NotEqual(t, base, hash.Fingerprint("TaskRefreshJob", "parent-2", args))
		assert.NotEqual(t, base, hash.Fingerprint("TaskCleanupJob", "parent-1", args))
		assert.NotEqual(t, base, hash.Fingerprint("TaskRefreshJob", "parent-1", map[string]string{"taskIds": "T-2"}))
	})

	t.Run("parts are separated", func(t *testing.T) {
		h1 := hash.NewHash(sha256.New())
		h1.WriteStrings("ab", "c")
		h2 := hash.NewHash(sha256.New())
		h2.WriteStrings("a", "bc")

		assert.NotEqual(t, h1.Key(), h2.Key())
	})
}
