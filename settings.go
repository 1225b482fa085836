package jobqueue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "JOBQUEUE_"

// Settings is the file and environment form of Config. Zero values keep the
// Config defaults.
type Settings struct {
	Driver     string `yaml:"driver" env:"DRIVER"`
	DSN        string `yaml:"dsn" env:"DSN"`
	Schema     string `yaml:"schema" env:"SCHEMA"`
	InstanceID string `yaml:"instance_id" env:"INSTANCE_ID"`

	PollInterval  time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	FetchLimit    int           `yaml:"fetch_limit" env:"FETCH_LIMIT"`
	LeaseDuration time.Duration `yaml:"lease_duration" env:"LEASE_DURATION"`
	MaxAttempts   int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`

	BatchSize         int           `yaml:"batch_size" env:"BATCH_SIZE"`
	TaskCleanupMinAge time.Duration `yaml:"task_cleanup_min_age" env:"TASK_CLEANUP_MIN_AGE"`

	Schedules map[string]ScheduleSettings `yaml:"schedules"`

	// Used by the command line only.
	MetricsAddr   string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	DirectoryFile string `yaml:"directory_file" env:"DIRECTORY_FILE"`
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL"`
}

type ScheduleSettings struct {
	Enabled  *bool         `yaml:"enabled"`
	FirstRun time.Time     `yaml:"first_run"`
	RunEvery time.Duration `yaml:"run_every"`
}

// LoadSettings reads the YAML file at path, when given, and applies the
// JOBQUEUE_ environment variables on top.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, s); err != nil {
				return nil, fmt.Errorf("parse settings %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(s, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return s, nil
}

// Options converts the non zero settings to config options.
func (s *Settings) Options() []ConfigFunc {
	var opts []ConfigFunc
	if s.Driver != "" {
		opts = append(opts, WithDriver(s.Driver))
	}
	if s.DSN != "" {
		opts = append(opts, WithDSN(s.DSN))
	}
	if s.Schema != "" {
		opts = append(opts, WithSchema(s.Schema))
	}
	if s.InstanceID != "" {
		opts = append(opts, WithInstanceID(s.InstanceID))
	}
	if s.PollInterval > 0 {
		opts = append(opts, WithPollInterval(s.PollInterval))
	}
	if s.FetchLimit > 0 {
		opts = append(opts, WithFetchLimit(s.FetchLimit))
	}
	if s.LeaseDuration > 0 {
		opts = append(opts, WithLeaseDuration(s.LeaseDuration))
	}
	if s.MaxAttempts > 0 {
		opts = append(opts, WithMaxAttempts(s.MaxAttempts))
	}
	if s.BatchSize > 0 {
		opts = append(opts, WithBatchSize(s.BatchSize))
	}
	if s.TaskCleanupMinAge > 0 {
		opts = append(opts, WithTaskCleanupMinAge(s.TaskCleanupMinAge))
	}

	for jobType, sched := range s.Schedules {
		opts = append(opts, func(c *Config) {
			current, ok := c.Schedules[jobType]
			if !ok {
				current = Schedule{Enabled: true}
			}
			if sched.Enabled != nil {
				current.Enabled = *sched.Enabled
			}
			if !sched.FirstRun.IsZero() {
				current.FirstRun = sched.FirstRun
			}
			if sched.RunEvery > 0 {
				current.RunEvery = sched.RunEvery
			}
			WithSchedule(jobType, current)(c)
		})
	}

	return opts
}
