package jobqueue

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasDifferentPriority(t *testing.T) {
	task := TaskSummary{ID: "T-1", Priority: 7}
	different := hasDifferentPriority(task)

	assert.False(t, different(7))
	for _, p := range []int{math.MinInt, -7, 0, 6, 8, math.MaxInt} {
		assert.True(t, different(p), "priority %d", p)
	}
}

func TestGetCalculatedPriority(t *testing.T) {
	ctx := context.Background()
	task := TaskSummary{ID: "T-1", Priority: 7}

	tests := []struct {
		name      string
		calc      PriorityCalculatorFunc
		want      int
		wantFound bool
	}{
		{
			name: "calculator has no value",
			calc: func(ctx context.Context, task TaskSummary) (int, bool) { return 0, false },
		},
		{
			name: "calculator returns the current priority",
			calc: func(ctx context.Context, task TaskSummary) (int, bool) { return 7, true },
		},
		{
			name:      "calculator returns a new priority",
			calc:      func(ctx context.Context, task TaskSummary) (int, bool) { return 3, true },
			want:      3,
			wantFound: true,
		},
		{
			name:      "zero is a valid priority",
			calc:      func(ctx context.Context, task TaskSummary) (int, bool) { return 0, true },
			want:      0,
			wantFound: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &PriorityWorker{calculator: tt.calc}
			got, ok := w.getCalculatedPriority(ctx, task)

			assert.Equal(t, tt.wantFound, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
