package jobqueue_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobqueue "github.com/TimKotowski/pg-jobqueue"
)

const settingsYAML = `
driver: sqlite
dsn: /var/lib/jobqueue/jobs.db
poll_interval: 30s
batch_size: 50
max_attempts: 5
schedules:
  WorkbasketCleanupJob:
    enabled: false
  UserInfoRefreshJob:
    enabled: true
    run_every: 6h
    first_run: 2025-10-01T02:00:00Z
`

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobqueue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(settingsYAML), 0o600))
	t.Setenv("JOBQUEUE_BATCH_SIZE", "25")
	t.Setenv("JOBQUEUE_INSTANCE_ID", "worker-7")

	settings, err := jobqueue.LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", settings.Driver)
	assert.Equal(t, 25, settings.BatchSize, "environment wins over the file")

	conf := jobqueue.NewConfig(settings.Options()...)
	assert.Equal(t, jobqueue.DriverSQLite, conf.Driver)
	assert.Equal(t, "/var/lib/jobqueue/jobs.db", conf.DSN)
	assert.Equal(t, 30*time.Second, conf.PollInterval)
	assert.Equal(t, 25, conf.BatchSize)
	assert.Equal(t, 5, conf.MaxAttempts)
	assert.Equal(t, "worker-7", conf.InstanceID)
	assert.Equal(t, 30*time.Minute, conf.LeaseDuration, "unset values keep their default")

	assert.False(t, conf.Schedules[jobqueue.WorkbasketCleanupJobType].Enabled)
	assert.Equal(t, 24*time.Hour, conf.Schedules[jobqueue.WorkbasketCleanupJobType].RunEvery)

	users := conf.Schedules[jobqueue.UserInfoRefreshJobType]
	assert.True(t, users.Enabled)
	assert.Equal(t, 6*time.Hour, users.RunEvery)
	assert.True(t, time.Date(2025, 10, 1, 2, 0, 0, 0, time.UTC).Equal(users.FirstRun))

	assert.True(t, conf.Schedules[jobqueue.TaskCleanupJobType].Enabled)
}

func TestLoadSettingsWithoutFile(t *testing.T) {
	t.Setenv("JOBQUEUE_DSN", "postgres://localhost/jobs")

	settings, err := jobqueue.LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/jobs", settings.DSN)
}

func TestLoadSettingsRejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobqueue.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll_interval: [1, 2]\n"), 0o600))
	_, err := jobqueue.LoadSettings(path)
	assert.Error(t, err)

	t.Setenv("JOBQUEUE_FETCH_LIMIT", "many")
	_, err = jobqueue.LoadSettings("")
	assert.Error(t, err)
}
