package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDueAt(t *testing.T) {
	base := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		dueAt    time.Time
		firstRun *time.Time
		now      time.Time
		want     time.Time
	}{
		{
			name:  "on time run keeps the cadence",
			dueAt: base,
			now:   base.Add(5 * time.Minute),
			want:  base.Add(time.Hour),
		},
		{
			name:  "late run is due again now",
			dueAt: base,
			now:   base.Add(3 * time.Hour),
			want:  base.Add(3 * time.Hour),
		},
		{
			name:     "never before first run",
			dueAt:    base,
			firstRun: ptr(base.Add(24 * time.Hour)),
			now:      base,
			want:     base.Add(24 * time.Hour),
		},
		{
			name:     "first run in the past has no effect",
			dueAt:    base,
			firstRun: ptr(base.Add(-24 * time.Hour)),
			now:      base,
			want:     base.Add(time.Hour),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &JobRecord{DueAt: tt.dueAt, RunEvery: time.Hour, FirstRun: tt.firstRun}
			got := nextDueAt(rec, tt.now)

			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.False(t, got.Before(rec.DueAt), "due time moved backwards")
		})
	}
}

func TestNextDueAtIsMonotonic(t *testing.T) {
	base := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
	firstRun := base.Add(90 * time.Minute)
	rec := &JobRecord{DueAt: base, RunEvery: 25 * time.Minute, FirstRun: &firstRun}

	now := base
	for i := range 50 {
		// runs drift between early and very late
		now = now.Add(time.Duration(i%7) * 11 * time.Minute)
		next := nextDueAt(rec, now)

		assert.False(t, next.Before(rec.DueAt), "step %d moved backwards", i)
		assert.False(t, next.Before(firstRun), "step %d before first run", i)
		rec.DueAt = next
	}
}

func TestSeedDueAt(t *testing.T) {
	base := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, base, seedDueAt(time.Time{}, time.Hour, base))
	assert.Equal(t, base.Add(time.Hour), seedDueAt(base.Add(time.Hour), time.Hour, base))
	assert.Equal(t, base, seedDueAt(base, time.Hour, base))
	// missed runs are skipped, the grid of first run is kept
	assert.Equal(t, base.Add(3*time.Hour), seedDueAt(base, time.Hour, base.Add(150*time.Minute)))
	assert.Equal(t, base.Add(2*time.Hour), seedDueAt(base, time.Hour, base.Add(2*time.Hour)))
}

func ptr[T any](v T) *T {
	return &v
}
