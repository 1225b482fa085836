package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest"
	"github.com/ory/dockertest/docker"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/zap/zaptest"

	jobqueue "github.com/TimKotowski/pg-jobqueue"
	"github.com/TimKotowski/pg-jobqueue/migrations"
)

const (
	postgresDefaultPassword = "password"
	postgresDefaultUser     = "jobqueue"
	postgresDefaultDB       = "jobqueue"

	tag = "17"
)

type Resource struct {
	Dsn string

	DB *bun.DB

	ContainerName string

	ContainerID string
}

// NewPool connects to the local Docker daemon, skipping the test when it is
// unreachable or when running with -short.
func NewPool(t *testing.T) *dockertest.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker is not reachable: %v", err)
	}

	return pool
}

func SetUp(pool *dockertest.Pool, t *testing.T) Resource {
	t.Helper()
	ctx := context.Background()
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        tag,
		Env: []string{
			"POSTGRES_PASSWORD=" + postgresDefaultPassword,
			"POSTGRES_USER=" + postgresDefaultUser,
			"POSTGRES_DB=" + postgresDefaultDB,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("purging postgres container: %v", err)
		}
	})

	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresDefaultUser,
		postgresDefaultPassword,
		resource.GetBoundIP("5432/tcp"),
		resource.GetPort("5432/tcp"),
		postgresDefaultDB,
	)

	pool.MaxWait = 30 * time.Second
	db, err := pgIsReady(pool, databaseURL)
	require.NoError(t, err)

	if db == nil {
		require.NoError(t, errors.New("something went horribly wrong, db connection unsuccessful"))
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	err = migrations.Migrate(ctx, db, zaptest.NewLogger(t))
	require.NoError(t, err)

	return Resource{
		Dsn:           databaseURL,
		DB:            db,
		ContainerName: resource.Container.Name,
		ContainerID:   resource.Container.ID,
	}
}

func pgIsReady(pool *dockertest.Pool, dsn string) (*bun.DB, error) {
	var err error
	var db *bun.DB

	if err := pool.Retry(func() error {
		db, err = jobqueue.GetDBConnection(jobqueue.NewConfig(jobqueue.WithDSN(dsn)))
		if err != nil {
			return err
		}
		return db.Ping()
	}); err != nil {
		return nil, err
	}

	return db, nil
}
