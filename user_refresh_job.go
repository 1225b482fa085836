package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TimKotowski/pg-jobqueue/internal/taskdb"
	"github.com/TimKotowski/pg-jobqueue/internal/txn"
)

var (
	ErrNoDirectory = errors.New("no directory configured")

	_ Job = &userInfoRefreshJob{}
)

// userInfoRefreshJob replaces the user table with the directory content. The
// replace runs in one transaction so readers never observe an empty table.
type userInfoRefreshJob struct {
	directory      Directory
	postprocessors []UserPostprocessor
	users          taskdb.UserDB
	tx             txn.Provider
	logger         *zap.Logger
}

func newUserInfoRefreshJob(conf *Config, directory Directory, postprocessors []UserPostprocessor, users taskdb.UserDB, tx txn.Provider) Factory {
	return func(rec *JobRecord) (Job, error) {
		return &userInfoRefreshJob{
			directory:      directory,
			postprocessors: postprocessors,
			users:          users,
			tx:             tx,
			logger:         conf.Logger.With(zap.String("job_id", rec.ID), zap.String("job_type", rec.Type)),
		}, nil
	}
}

func (j *userInfoRefreshJob) Execute(ctx context.Context) error {
	if j.directory == nil {
		return ErrNoDirectory
	}

	entries, err := j.directory.SearchUsersInRole(ctx)
	if err != nil {
		return fmt.Errorf("search directory: %w", err)
	}

	users, err := j.postprocess(ctx, entries)
	if err != nil {
		return err
	}

	n, err := txn.RunWithResult(ctx, j.tx, func(ctx context.Context) (int, error) {
		existing, err := j.users.ExistingData(ctx)
		if err != nil {
			return 0, fmt.Errorf("read existing user data: %w", err)
		}
		for i := range users {
			users[i].Data = existing[users[i].UserID]
		}

		return j.users.ReplaceAll(ctx, users)
	})
	if err != nil {
		return fmt.Errorf("replace users: %w", err)
	}

	j.logger.Info("user info refreshed", zap.Int("directory_entries", len(entries)), zap.Int("stored", n))
	return nil
}

// postprocess runs every postprocessor in order and drops repeated ids, the
// last entry of an id wins.
func (j *userInfoRefreshJob) postprocess(ctx context.Context, entries []User) ([]User, error) {
	index := make(map[string]int, len(entries))
	users := make([]User, 0, len(entries))
	for _, entry := range entries {
		u := entry
		for _, p := range j.postprocessors {
			processed, err := p.Process(ctx, u)
			if err != nil {
				return nil, fmt.Errorf("postprocess user %s: %w", entry.UserID, err)
			}
			u = processed
		}
		if u.FullName == "" {
			u.FullName = strings.TrimSpace(u.FirstName + " " + u.LastName)
		}
		u.Data = nil

		if i, ok := index[u.UserID]; ok {
			users[i] = u
			continue
		}
		index[u.UserID] = len(users)
		users = append(users, u)
	}
	return users, nil
}
