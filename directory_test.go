package jobqueue_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobqueue "github.com/TimKotowski/pg-jobqueue"
)

func writeDirectory(t *testing.T, content string) *jobqueue.FileDirectory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return jobqueue.NewFileDirectory(path)
}

func TestFileDirectory(t *testing.T) {
	directory := writeDirectory(t, `
users:
  - id: u-1
    first_name: Ada
    last_name: Byron
    email: ada@example.com
    groups: [admins, auditors]
  - id: u-2
    full_name: Build Robot
`)

	users, err := directory.SearchUsersInRole(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u-1", users[0].UserID)
	assert.Equal(t, "Ada", users[0].FirstName)
	assert.Equal(t, []string{"admins", "auditors"}, []string(users[0].Groups))
	assert.Equal(t, "Build Robot", users[1].FullName)
	assert.Nil(t, users[1].Data)
}

func TestFileDirectoryErrors(t *testing.T) {
	ctx := context.Background()

	_, err := jobqueue.NewFileDirectory(filepath.Join(t.TempDir(), "missing.yaml")).SearchUsersInRole(ctx)
	assert.Error(t, err)

	_, err = writeDirectory(t, "users:\n  - first_name: Nobody\n").SearchUsersInRole(ctx)
	assert.ErrorContains(t, err, "has no id")
}
