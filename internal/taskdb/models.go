package taskdb

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type TaskState = string

const (
	READY      TaskState = "READY"
	CLAIMED    TaskState = "CLAIMED"
	COMPLETED  TaskState = "COMPLETED"
	CANCELLED  TaskState = "CANCELLED"
	TERMINATED TaskState = "TERMINATED"
)

// TerminalStates are the states a task never leaves.
var TerminalStates = []TaskState{COMPLETED, CANCELLED, TERMINATED}

func IsTerminal(state TaskState) bool {
	for _, s := range TerminalStates {
		if s == state {
			return true
		}
	}
	return false
}

type Task struct {
	bun.BaseModel `bun:"table:task,alias:t"`

	ID               string     `bun:"id,pk"`
	State            TaskState  `bun:"state,notnull"`
	Priority         int        `bun:"priority,notnull"`
	ClassificationID string     `bun:"classification_id,notnull"`
	WorkbasketID     string     `bun:"workbasket_id,notnull"`
	Planned          time.Time  `bun:"planned,notnull"`
	Due              *time.Time `bun:"due"`
	Modified         time.Time  `bun:"modified,notnull"`
	CompletedAt      *time.Time `bun:"completed_at"`
}

// TaskSummary is the read-only projection handed to priority calculators.
type TaskSummary struct {
	bun.BaseModel `bun:"table:task,alias:t"`

	ID               string     `bun:"id,pk"`
	State            TaskState  `bun:"state"`
	Priority         int        `bun:"priority"`
	ClassificationID string     `bun:"classification_id"`
	WorkbasketID     string     `bun:"workbasket_id"`
	Planned          time.Time  `bun:"planned"`
	Due              *time.Time `bun:"due"`
}

type Workbasket struct {
	bun.BaseModel `bun:"table:workbasket,alias:w"`

	ID              string `bun:"id,pk"`
	Key             string `bun:"key,notnull"`
	Domain          string `bun:"domain,notnull"`
	Name            string `bun:"name,notnull"`
	MarkForDeletion bool   `bun:"mark_for_deletion,notnull"`
}

type Classification struct {
	bun.BaseModel `bun:"table:classification,alias:c"`

	ID       string `bun:"id,pk"`
	Key      string `bun:"key,notnull"`
	Priority int    `bun:"priority,notnull"`

	// Go duration string, e.g. "48h". Empty means no service level.
	ServiceLevel string `bun:"service_level,notnull"`
}

// ServiceLevelDuration parses ServiceLevel, zero when none is set.
func (c *Classification) ServiceLevelDuration() (time.Duration, error) {
	if c.ServiceLevel == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.ServiceLevel)
	if err != nil {
		return 0, fmt.Errorf("classification %s: invalid service level %q: %w", c.ID, c.ServiceLevel, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("classification %s: negative service level %q", c.ID, c.ServiceLevel)
	}
	return d, nil
}

// User is a directory entry mirrored into the local store.
type User struct {
	bun.BaseModel `bun:"table:user_info,alias:u"`

	UserID    string     `bun:"user_id,pk" yaml:"id"`
	FirstName string     `bun:"first_name,notnull" yaml:"first_name"`
	LastName  string     `bun:"last_name,notnull" yaml:"last_name"`
	FullName  string     `bun:"full_name,notnull" yaml:"full_name"`
	Email     string     `bun:"email,notnull" yaml:"email"`
	Groups    StringList `bun:"groups,type:text,notnull" yaml:"groups"`

	// Locally maintained, never provided by the directory.
	Data *string `bun:"data" yaml:"-"`
}

// StringList is persisted as comma separated text.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return strings.Join(l, ","), nil
}

func (l *StringList) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported string list column type %T", src)
	}
	if s == "" {
		*l = nil
		return nil
	}
	*l = strings.Split(s, ",")
	return nil
}
