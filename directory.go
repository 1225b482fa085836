package jobqueue

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/TimKotowski/pg-jobqueue/internal/taskdb"
)

//go:generate mockgen -source=directory.go -destination=mocks/mock_directory.go -package=mock_jobqueue

type User = taskdb.User

// Directory is the authoritative source of users the local user table mirrors.
type Directory interface {
	SearchUsersInRole(ctx context.Context) ([]User, error)
}

// UserPostprocessor adjusts a directory entry before it is stored.
type UserPostprocessor interface {
	Process(ctx context.Context, user User) (User, error)
}

var _ Directory = &FileDirectory{}

// FileDirectory serves the users listed in a YAML file. The file is read on
// every search so edits are picked up by the next sync.
//
//	users:
//	  - id: u-1
//	    first_name: Ada
//	    last_name: Byron
//	    email: ada@example.com
//	    groups: [admins]
type FileDirectory struct {
	Path string
}

func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{Path: path}
}

type directoryFile struct {
	Users []User `yaml:"users"`
}

func (d *FileDirectory) SearchUsersInRole(ctx context.Context) ([]User, error) {
	raw, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}

	var f directoryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse directory file %s: %w", d.Path, err)
	}
	for i, u := range f.Users {
		if u.UserID == "" {
			return nil, fmt.Errorf("directory file %s: user %d has no id", d.Path, i)
		}
	}

	return f.Users, nil
}
