package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()

	assert.Equal(t, 15*time.Second, c.PollInterval)
	assert.Equal(t, 100, c.BatchSize)
	assert.Equal(t, DriverPostgres, c.Driver)
	assert.NotEmpty(t, c.InstanceID)
	assert.NotEqual(t, c.InstanceID, NewConfig().InstanceID, "instances get distinct owners")
	assert.True(t, c.Schedules[WorkbasketCleanupJobType].Enabled)
	assert.False(t, c.Schedules[PriorityUpdateJobType].Enabled)
	assert.NoError(t, c.validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []ConfigFunc
	}{
		{"zero batch size", []ConfigFunc{WithBatchSize(0)}},
		{"zero lease", []ConfigFunc{WithLeaseDuration(0)}},
		{"empty instance", []ConfigFunc{WithInstanceID("")}},
		{"enabled schedule without interval", []ConfigFunc{WithSchedule(TaskCleanupJobType, Schedule{Enabled: true})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewConfig(tt.opts...).validate())
		})
	}

	assert.NoError(t, NewConfig(WithSchedule(TaskCleanupJobType, Schedule{})).validate(), "disabled schedules need no interval")
}
