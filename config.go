package jobqueue

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Schedule describes when a recurring job type runs.
type Schedule struct {
	Enabled bool

	// Earliest instant of the first run. Zero means as soon as the schedule is seeded.
	FirstRun time.Time

	// Minimum distance between two due times of the same job.
	RunEvery time.Duration
}

type Config struct {
	////////////////////
	// ENGINE SECTION //
	////////////////////

	// Interval at which the engine selects and runs due jobs.
	PollInterval time.Duration

	// Upper bound of due records looked at per cycle.
	FetchLimit int

	// How long a claim stays exclusive. A job running longer than its lease may be
	// claimed and run again by another instance, so choose it generously.
	LeaseDuration time.Duration

	// Lock owner written into claimed records. Must differ between instances.
	InstanceID string

	// Consecutive failed claims after which a record is dead lettered.
	// Zero retries forever.
	MaxAttempts int

	/////////////////
	// JOB SECTION //
	/////////////////

	// Number of ids handled per batch by the cleanup, cascading and priority jobs.
	BatchSize int

	// Terminal tasks completed longer ago than this are removed by the task cleanup job.
	TaskCleanupMinAge time.Duration

	// Schedules of the recurring job types, keyed by job type.
	Schedules map[string]Schedule

	/////////////////////
	// GENERAL SECTION //
	/////////////////////

	// DriverPostgres or DriverSQLite.
	Driver string

	// Postgres connection string, or SQLite database file path.
	DSN string

	// Postgres schema the engine tables live in, applied as search_path.
	Schema string

	TLSConfig *tls.Config

	Logger *zap.Logger

	// Metrics are registered here when set.
	Registerer prometheus.Registerer
}

type ConfigFunc func(c *Config)

func NewConfig(opts ...ConfigFunc) *Config {
	c := &Config{
		PollInterval:      time.Duration(15) * time.Second,
		FetchLimit:        20,
		LeaseDuration:     time.Duration(30) * time.Minute,
		InstanceID:        defaultInstanceID(),
		MaxAttempts:       0,
		BatchSize:         100,
		TaskCleanupMinAge: time.Duration(14*24) * time.Hour,
		Schedules:         defaultSchedules(),
		Driver:            DriverPostgres,
		Logger:            zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func defaultSchedules() map[string]Schedule {
	return map[string]Schedule{
		WorkbasketCleanupJobType: {Enabled: true, RunEvery: 24 * time.Hour},
		TaskCleanupJobType:       {Enabled: true, RunEvery: 24 * time.Hour},
		PriorityUpdateJobType:    {Enabled: false, RunEvery: time.Hour},
		UserInfoRefreshJobType:   {Enabled: false, RunEvery: 24 * time.Hour},
	}
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "jobqueue"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString())
}

func (c *Config) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.LeaseDuration <= 0 {
		return fmt.Errorf("lease duration must be positive, got %s", c.LeaseDuration)
	}
	if c.InstanceID == "" {
		return fmt.Errorf("instance id must not be empty")
	}
	for jobType, s := range c.Schedules {
		if s.Enabled && s.RunEvery <= 0 {
			return fmt.Errorf("schedule of %s: run every must be positive, got %s", jobType, s.RunEvery)
		}
	}
	return nil
}

func WithPollInterval(interval time.Duration) ConfigFunc {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

func WithFetchLimit(limit int) ConfigFunc {
	return func(c *Config) {
		c.FetchLimit = limit
	}
}

func WithLeaseDuration(lease time.Duration) ConfigFunc {
	return func(c *Config) {
		c.LeaseDuration = lease
	}
}

func WithInstanceID(id string) ConfigFunc {
	return func(c *Config) {
		c.InstanceID = id
	}
}

func WithMaxAttempts(attempts int) ConfigFunc {
	return func(c *Config) {
		c.MaxAttempts = attempts
	}
}

func WithBatchSize(size int) ConfigFunc {
	return func(c *Config) {
		c.BatchSize = size
	}
}

func WithTaskCleanupMinAge(age time.Duration) ConfigFunc {
	return func(c *Config) {
		c.TaskCleanupMinAge = age
	}
}

func WithSchedule(jobType string, schedule Schedule) ConfigFunc {
	return func(c *Config) {
		if c.Schedules == nil {
			c.Schedules = make(map[string]Schedule)
		}
		c.Schedules[jobType] = schedule
	}
}

func WithDriver(driver string) ConfigFunc {
	return func(c *Config) {
		c.Driver = driver
	}
}

func WithDSN(dsn string) ConfigFunc {
	return func(c *Config) {
		c.DSN = dsn
	}
}

func WithSchema(schema string) ConfigFunc {
	return func(c *Config) {
		c.Schema = schema
	}
}

func WithTLSConfig(tlsConfig *tls.Config) ConfigFunc {
	return func(c *Config) {
		c.TLSConfig = tlsConfig
	}
}

func WithLogger(logger *zap.Logger) ConfigFunc {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

func WithRegisterer(reg prometheus.Registerer) ConfigFunc {
	return func(c *Config) {
		c.Registerer = reg
	}
}
