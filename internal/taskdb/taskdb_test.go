package taskdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimKotowski/pg-jobqueue/bulk"
	"github.com/TimKotowski/pg-jobqueue/internal/taskdb"
	"github.com/TimKotowski/pg-jobqueue/internal/txn"
	"github.com/TimKotowski/pg-jobqueue/testHelper/sqlite"
)

var base = time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)

func task(id, state, classificationID, workbasketID string) taskdb.Task {
	t := taskdb.Task{
		ID:               id,
		State:            state,
		ClassificationID: classificationID,
		WorkbasketID:     workbasketID,
		Planned:          base,
		Modified:         base,
	}
	if taskdb.IsTerminal(state) {
		completed := base
		t.CompletedAt = &completed
	}
	return t
}

func errFor(result *bulk.Result[string, error], id string) error {
	err, _ := result.ErrorFor(id)
	return err
}

func TestFindTaskSummaries(t *testing.T) {
	ctx := context.Background()
	db := taskdb.NewTaskDB(sqlite.SetUp(t))

	require.NoError(t, db.InsertTasks(ctx, []taskdb.Task{
		task("T-1", taskdb.READY, "CLI-1", "WB-1"),
		task("T-2", taskdb.COMPLETED, "CLI-1", "WB-1"),
		task("T-3", taskdb.CLAIMED, "CLI-1", "WB-1"),
		task("T-4", taskdb.READY, "CLI-2", "WB-1"),
		task("T-5", taskdb.CANCELLED, "CLI-2", "WB-1"),
	}))

	t.Run("pages by key over non terminal tasks", func(t *testing.T) {
		page, err := db.FindTaskSummaries(ctx, "", nil, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "T-1", page[0].ID)
		assert.Equal(t, "T-3", page[1].ID)

		page, err = db.FindTaskSummaries(ctx, page[1].ID, nil, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "T-4", page[0].ID)

		page, err = db.FindTaskSummaries(ctx, "T-4", nil, 2)
		require.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run("restricted to a subset", func(t *testing.T) {
		page, err := db.FindTaskSummaries(ctx, "", []string{"T-2", "T-4"}, 10)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "T-4", page[0].ID)
	})

	t.Run("affected ids of a classification", func(t *testing.T) {
		ids, err := db.FindAffectedTaskIDs(ctx, "CLI-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"T-1", "T-3"}, ids)
	})
}

func TestTaskCleanup(t *testing.T) {
	ctx := context.Background()
	db := taskdb.NewTaskDB(sqlite.SetUp(t))

	old := task("T-old", taskdb.COMPLETED, "CLI-1", "WB-1")
	recent := task("T-recent", taskdb.TERMINATED, "CLI-1", "WB-1")
	recentAt := base.Add(48 * time.Hour)
	recent.CompletedAt = &recentAt
	require.NoError(t, db.InsertTasks(ctx, []taskdb.Task{
		old,
		recent,
		task("T-open", taskdb.READY, "CLI-1", "WB-1"),
	}))

	ids, err := db.FindCleanupCandidates(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"T-old"}, ids)

	result, err := db.DeleteTasks(ctx, []string{"T-old", "T-open", "T-missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"T-open", "T-missing"}, result.FailedKeys())
	assert.ErrorIs(t, errFor(result, "T-open"), taskdb.ErrTaskNotTerminal)
	assert.ErrorIs(t, errFor(result, "T-missing"), taskdb.ErrTaskNotFound)
	assert.Equal(t, 1, result.SucceededCount(3))

	left, err := db.FindTasks(ctx, []string{"T-old", "T-recent", "T-open"})
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestClassification(t *testing.T) {
	ctx := context.Background()
	db := taskdb.NewTaskDB(sqlite.SetUp(t))

	require.NoError(t, db.InsertClassifications(ctx, []taskdb.Classification{
		{ID: "CLI-1", Key: "L10000", Priority: 2, ServiceLevel: "48h"},
		{ID: "CLI-2", Key: "L20000", ServiceLevel: "soon"},
	}))

	c, err := db.GetClassification(ctx, "CLI-1")
	require.NoError(t, err)
	sl, err := c.ServiceLevelDuration()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, sl)

	c, err = db.GetClassification(ctx, "CLI-2")
	require.NoError(t, err)
	_, err = c.ServiceLevelDuration()
	assert.Error(t, err)

	_, err = db.GetClassification(ctx, "CLI-missing")
	assert.ErrorIs(t, err, taskdb.ErrClassificationNotFound)
}

func TestWorkbasketCleanup(t *testing.T) {
	ctx := context.Background()
	bunDB := sqlite.SetUp(t)
	tasks := taskdb.NewTaskDB(bunDB)
	db := taskdb.NewWorkbasketDB(bunDB)

	require.NoError(t, db.InsertWorkbaskets(ctx, []taskdb.Workbasket{
		{ID: "WB-empty", Key: "A", Domain: "D", Name: "A", MarkForDeletion: true},
		{ID: "WB-done", Key: "B", Domain: "D", Name: "B", MarkForDeletion: true},
		{ID: "WB-busy", Key: "C", Domain: "D", Name: "C", MarkForDeletion: true},
		{ID: "WB-live", Key: "E", Domain: "D", Name: "E"},
	}))
	require.NoError(t, tasks.InsertTasks(ctx, []taskdb.Task{
		task("T-1", taskdb.COMPLETED, "CLI-1", "WB-done"),
		task("T-2", taskdb.READY, "CLI-1", "WB-busy"),
	}))

	ids, err := db.FindCleanupCandidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"WB-done", "WB-empty"}, ids)

	result, err := db.DeleteWorkbaskets(ctx, []string{"WB-empty", "WB-busy", "WB-live", "WB-missing"})
	require.NoError(t, err)
	assert.ErrorIs(t, errFor(result, "WB-busy"), taskdb.ErrWorkbasketInUse)
	assert.ErrorIs(t, errFor(result, "WB-live"), taskdb.ErrWorkbasketNotMarked)
	assert.ErrorIs(t, errFor(result, "WB-missing"), taskdb.ErrWorkbasketNotFound)
	assert.NoError(t, errFor(result, "WB-empty"))

	left, err := db.FindWorkbaskets(ctx)
	require.NoError(t, err)
	assert.Len(t, left, 3)
}

func TestUserReplaceAll(t *testing.T) {
	ctx := context.Background()
	bunDB := sqlite.SetUp(t)
	db := taskdb.NewUserDB(bunDB)
	note := "desk 4"

	_, err := db.ReplaceAll(ctx, []taskdb.User{
		{UserID: "u-1", FirstName: "Ada", LastName: "Byron", FullName: "Ada Byron", Groups: taskdb.StringList{"admins", "ops"}, Data: &note},
		{UserID: "u-2", FirstName: "Max", LastName: "Planck", FullName: "Max Planck"},
	})
	require.NoError(t, err)

	data, err := db.ExistingData(ctx)
	require.NoError(t, err)
	require.Contains(t, data, "u-1")
	assert.Equal(t, "desk 4", *data["u-1"])
	assert.Nil(t, data["u-2"])

	t.Run("rolled back replace keeps the old rows", func(t *testing.T) {
		err := txn.NewStandalone(bunDB).RunInTx(ctx, func(ctx context.Context) error {
			n, err := db.ReplaceAll(ctx, []taskdb.User{{UserID: "u-3", FullName: "New"}})
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		users, err := db.FindUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, taskdb.StringList{"admins", "ops"}, users[0].Groups)
		assert.Nil(t, users[1].Groups)
	})

	t.Run("empty directory wipes the table", func(t *testing.T) {
		n, err := db.ReplaceAll(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)

		users, err := db.FindUsers(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)
	})
}
