package jobdb

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidArgument = errors.New("invalid job argument")

// ArgumentError reports a missing or malformed job argument.
type ArgumentError struct {
	Key    string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("job argument %q: %s", e.Key, e.Reason)
}

func (e *ArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// Arguments is the opaque key/value payload of a job record, persisted as JSON text.
type Arguments map[string]string

func (a Arguments) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *Arguments) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Arguments{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported arguments column type %T", src)
	}

	m := make(map[string]string)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("decode job arguments: %w", err)
		}
	}
	*a = m

	return nil
}

// Clone returns an independent copy.
func (a Arguments) Clone() Arguments {
	c := make(Arguments, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// String returns the value of key, failing when it is absent or blank.
func (a Arguments) String(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", &ArgumentError{Key: key, Reason: "missing"}
	}
	if strings.TrimSpace(v) == "" {
		return "", &ArgumentError{Key: key, Reason: "empty"}
	}
	return v, nil
}

func (a Arguments) Bool(key string) (bool, error) {
	v, ok := a[key]
	if !ok {
		return false, &ArgumentError{Key: key, Reason: "missing"}
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &ArgumentError{Key: key, Reason: fmt.Sprintf("not a boolean: %q", v)}
	}
	return b, nil
}

// List splits a comma separated value. At least one non blank element is required.
func (a Arguments) List(key string) ([]string, error) {
	v, err := a.String(key)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(v, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, &ArgumentError{Key: key, Reason: "contains an empty element"}
		}
		list = append(list, p)
	}

	return list, nil
}

// JoinList is the inverse of List.
func JoinList(values []string) string {
	return strings.Join(values, ",")
}
