package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/db"
	"github.com/taskloop/taskloop/internal/task/models"
	usermodels "github.com/taskloop/taskloop/internal/user/models"
	userstore "github.com/taskloop/taskloop/internal/user/store"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

const (
	testUserID  = "user-1"
	otherUserID = "user-2"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	conn, err := sqlx.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	pool := db.NewPool(conn, conn)

	// Tasks reference users, so the users schema goes in first.
	users, err := userstore.NewSQLRepository(pool)
	require.NoError(t, err)
	now := time.Now().UTC()
	for i, id := range []string{testUserID, otherUserID} {
		require.NoError(t, users.Create(context.Background(), &usermodels.User{
			ID:           id,
			Email:        []string{"alice@example.com", "bob@example.com"}[i],
			PasswordHash: "x",
			CreatedAt:    now,
			UpdatedAt:    now,
		}))
	}

	repo, err := NewSQLRepository(pool)
	require.NoError(t, err)
	return repo
}

func newTask(userID, title string) *models.Task {
	now := time.Now().UTC()
	return &models.Task{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      title,
		Priority:   v1.PriorityMedium,
		Recurrence: v1.RecurrenceNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateAndGetTask(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := newTask(testUserID, "Buy milk")
	task.Tags = []string{"errands", "home"}
	require.NoError(t, repo.CreateTask(ctx, task))

	got, err := repo.GetTask(ctx, testUserID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", got.Title)
	assert.Equal(t, []string{"errands", "home"}, got.Tags)
}

func TestGetTask_OwnershipIsolation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := newTask(testUserID, "Private")
	require.NoError(t, repo.CreateTask(ctx, task))

	// Another user's lookup reports NotFound, not a permission error.
	_, err := repo.GetTask(ctx, otherUserID, task.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestListTasks_Filters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	done := newTask(testUserID, "Done")
	done.Completed = true
	done.CompletedAt = &now
	require.NoError(t, repo.CreateTask(ctx, done))

	past := now.Add(-24 * time.Hour)
	overdue := newTask(testUserID, "Overdue")
	overdue.DueAt = &past
	overdue.Priority = v1.PriorityHigh
	require.NoError(t, repo.CreateTask(ctx, overdue))

	tagged := newTask(testUserID, "Tagged")
	tagged.Tags = []string{"work"}
	require.NoError(t, repo.CreateTask(ctx, tagged))

	foreign := newTask(otherUserID, "Foreign")
	require.NoError(t, repo.CreateTask(ctx, foreign))

	all, err := repo.ListTasks(ctx, testUserID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	completed := true
	list, err := repo.ListTasks(ctx, testUserID, &Filter{Completed: &completed})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Done", list[0].Title)

	list, err = repo.ListTasks(ctx, testUserID, &Filter{Overdue: true, Now: now})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Overdue", list[0].Title)

	list, err = repo.ListTasks(ctx, testUserID, &Filter{Priority: v1.PriorityHigh})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Overdue", list[0].Title)

	list, err = repo.ListTasks(ctx, testUserID, &Filter{Tag: "work"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Tagged", list[0].Title)
}

func TestListTasks_SortDueAtNullAsInfinity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	noDue := newTask(testUserID, "No due")
	require.NoError(t, repo.CreateTask(ctx, noDue))

	later := now.Add(48 * time.Hour)
	far := newTask(testUserID, "Far")
	far.DueAt = &later
	require.NoError(t, repo.CreateTask(ctx, far))

	soon := now.Add(time.Hour)
	near := newTask(testUserID, "Near")
	near.DueAt = &soon
	require.NoError(t, repo.CreateTask(ctx, near))

	// A missing due date sorts as infinitely late: last ascending,
	// first descending.
	list, err := repo.ListTasks(ctx, testUserID, &Filter{SortBy: SortByDueAt, SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Near", list[0].Title)
	assert.Equal(t, "Far", list[1].Title)
	assert.Equal(t, "No due", list[2].Title)

	list, err = repo.ListTasks(ctx, testUserID, &Filter{SortBy: SortByDueAt, SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "No due", list[0].Title)
	assert.Equal(t, "Far", list[1].Title)
	assert.Equal(t, "Near", list[2].Title)
}

func TestListTasks_SortPriority(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, p := range []v1.Priority{v1.PriorityLow, v1.PriorityHigh, v1.PriorityMedium} {
		task := newTask(testUserID, string(p))
		task.Priority = p
		require.NoError(t, repo.CreateTask(ctx, task))
	}

	list, err := repo.ListTasks(ctx, testUserID, &Filter{SortBy: SortByPriority, SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "high", list[0].Title)
	assert.Equal(t, "medium", list[1].Title)
	assert.Equal(t, "low", list[2].Title)
}

func TestListTasks_SearchEscapesLike(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	literal := newTask(testUserID, "100% done")
	require.NoError(t, repo.CreateTask(ctx, literal))
	other := newTask(testUserID, "100 things")
	require.NoError(t, repo.CreateTask(ctx, other))

	list, err := repo.ListTasks(ctx, testUserID, &Filter{Search: "100%"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "100% done", list[0].Title)
}

func TestUpdateTask(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := newTask(testUserID, "Original")
	require.NoError(t, repo.CreateTask(ctx, task))

	task.Title = "Renamed"
	task.Priority = v1.PriorityHigh
	task.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.UpdateTask(ctx, task))

	got, err := repo.GetTask(ctx, testUserID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, v1.PriorityHigh, got.Priority)

	// Updates through the wrong owner touch nothing.
	task.UserID = otherUserID
	err = repo.UpdateTask(ctx, task)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteTask(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := newTask(testUserID, "Doomed")
	task.Tags = []string{"tmp"}
	require.NoError(t, repo.CreateTask(ctx, task))

	require.NoError(t, repo.DeleteTask(ctx, testUserID, task.ID))

	_, err := repo.GetTask(ctx, testUserID, task.ID)
	assert.True(t, apperr.IsNotFound(err))

	err = repo.DeleteTask(ctx, testUserID, task.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestToggleComplete_WritesOutboxAtomically(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := newTask(testUserID, "Ship it")
	require.NoError(t, repo.CreateTask(ctx, task))

	mkOutbox := func(task *models.Task) *OutboxInsert {
		payload, _ := json.Marshal(map[string]any{"taskId": task.ID})
		return &OutboxInsert{
			EventID:   uuid.NewString(),
			Topic:     "task-events",
			EventType: "task.completed",
			OwnerID:   task.UserID,
			Payload:   payload,
		}
	}

	toggled, err := repo.ToggleComplete(ctx, testUserID, task.ID, mkOutbox)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)
	require.NotNil(t, toggled.CompletedAt)

	entries, err := repo.UnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "task.completed", entries[0].EventType)
	assert.Equal(t, testUserID, entries[0].OwnerID)

	// Un-completing emits nothing.
	toggled, err = repo.ToggleComplete(ctx, testUserID, task.ID, mkOutbox)
	require.NoError(t, err)
	assert.False(t, toggled.Completed)
	assert.Nil(t, toggled.CompletedAt)

	entries, err = repo.UnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, repo.MarkOutboxPublished(ctx, []int64{entries[0].ID}))
	entries, err = repo.UnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTagLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := newTask(testUserID, "Tagged")
	require.NoError(t, repo.CreateTask(ctx, task))

	require.NoError(t, repo.AddTag(ctx, testUserID, task.ID, "work"))
	// Re-attaching is a no-op, not an error.
	require.NoError(t, repo.AddTag(ctx, testUserID, task.ID, "work"))

	tags, err := repo.ListTags(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "work", tags[0].Name)

	require.NoError(t, repo.RemoveTag(ctx, testUserID, task.ID, "work"))

	got, err := repo.GetTask(ctx, testUserID, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Tags)

	// The tag survives detachment.
	tags, err = repo.ListTags(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, tags, 1)

	require.NoError(t, repo.DeleteTag(ctx, testUserID, tags[0].ID))
	tags, err = repo.ListTags(ctx, testUserID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestRemoveTag_AbsentIsNoOp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := newTask(testUserID, "Tagless")
	require.NoError(t, repo.CreateTask(ctx, task))

	// Removing a tag that was never attached succeeds silently.
	require.NoError(t, repo.RemoveTag(ctx, testUserID, task.ID, "nonexistent"))

	// Double removal of a real tag is equally silent.
	require.NoError(t, repo.AddTag(ctx, testUserID, task.ID, "work"))
	require.NoError(t, repo.RemoveTag(ctx, testUserID, task.ID, "work"))
	require.NoError(t, repo.RemoveTag(ctx, testUserID, task.ID, "work"))

	// A missing task still reports NotFound.
	err := repo.RemoveTag(ctx, testUserID, "no-such-task", "work")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestClaimDueReminders(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := now.Add(-time.Minute)
	ready := newTask(testUserID, "Ready")
	ready.RemindAt = &due
	require.NoError(t, repo.CreateTask(ctx, ready))

	future := now.Add(time.Hour)
	notYet := newTask(testUserID, "Not yet")
	notYet.RemindAt = &future
	require.NoError(t, repo.CreateTask(ctx, notYet))

	doneTask := newTask(testUserID, "Done")
	doneTask.RemindAt = &due
	doneTask.Completed = true
	require.NoError(t, repo.CreateTask(ctx, doneTask))

	claims, err := repo.ClaimDueReminders(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, ready.ID, claims[0].TaskID)

	// The flip is durable: a second sweep claims nothing.
	claims, err = repo.ClaimDueReminders(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, claims)

	emails, err := repo.UserEmails(ctx, []string{testUserID})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", emails[testUserID])
}
