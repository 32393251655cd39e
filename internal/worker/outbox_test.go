package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront-payments/internal/config"
	"storefront-payments/internal/model"
	"storefront-payments/internal/repository"
	"storefront-payments/internal/testutil"
)

func newTestWorker(t *testing.T, maxAttempts int) (*OutboxWorker, repository.OutboxRepository, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	repo := repository.NewOutboxRepository(db, maxAttempts)
	cfg := config.Outbox{PollInterval: 10 * time.Millisecond, BatchSize: 10, MaxAttempts: maxAttempts, BaseBackoff: time.Second}
	w := NewOutboxWorker(repo, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return w, repo, db
}

func loadTask(t *testing.T, db *gorm.DB, id string) *model.OutboxTask {
	t.Helper()
	var task model.OutboxTask
	require.NoError(t, db.First(&task, "id = ?", id).Error)
	return &task
}

func TestRunOnceSuccess(t *testing.T) {
	ctx := context.Background()
	w, repo, db := newTestWorker(t, 3)

	var seen []string
	w.Register(model.TaskEmail, func(ctx context.Context, task *model.OutboxTask) error {
		seen = append(seen, string(task.Payload))
		return nil
	})

	task, err := repo.Enqueue(ctx, nil, model.TaskEmail, map[string]string{"to": "a@example.com"}, time.Now().Add(-time.Second))
	require.NoError(t, err)

	ran, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Equal(t, []string{`{"to":"a@example.com"}`}, seen)

	stored := loadTask(t, db, task.ID)
	assert.Equal(t, model.TaskDone, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
}

func TestRunOnceSkipsFutureTasks(t *testing.T) {
	ctx := context.Background()
	w, repo, _ := newTestWorker(t, 3)
	w.Register(model.TaskFulfillment, func(ctx context.Context, task *model.OutboxTask) error {
		t.Fatal("handler must not run before the task is due")
		return nil
	})

	_, err := repo.Enqueue(ctx, nil, model.TaskFulfillment, map[string]string{"orderId": "o1"}, time.Now().Add(time.Hour))
	require.NoError(t, err)

	ran, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, ran)
}

func TestRunOnceRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	w, repo, db := newTestWorker(t, 2)

	calls := 0
	w.Register(model.TaskEmail, func(ctx context.Context, task *model.OutboxTask) error {
		calls++
		return errors.New("smtp unavailable")
	})

	start := time.Now()
	w.now = func() time.Time { return start }

	task, err := repo.Enqueue(ctx, nil, model.TaskEmail, map[string]string{}, start.Add(-time.Second))
	require.NoError(t, err)

	_, err = w.RunOnce(ctx)
	require.NoError(t, err)

	stored := loadTask(t, db, task.ID)
	assert.Equal(t, model.TaskPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "smtp unavailable", stored.LastError)
	assert.WithinDuration(t, start.Add(time.Second), stored.NextRunAt, time.Millisecond)

	// not due yet
	ran, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, ran)

	w.now = func() time.Time { return start.Add(2 * time.Second) }
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)

	stored = loadTask(t, db, task.ID)
	assert.Equal(t, model.TaskDead, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, 2, calls)
}

func TestRunOncePermanentErrorDeadLettersImmediately(t *testing.T) {
	ctx := context.Background()
	w, repo, db := newTestWorker(t, 5)
	w.Register(model.TaskEmail, func(ctx context.Context, task *model.OutboxTask) error {
		return Permanent(errors.New("recipient is empty"))
	})

	task, err := repo.Enqueue(ctx, nil, model.TaskEmail, map[string]string{}, time.Now().Add(-time.Second))
	require.NoError(t, err)

	_, err = w.RunOnce(ctx)
	require.NoError(t, err)

	stored := loadTask(t, db, task.ID)
	assert.Equal(t, model.TaskDead, stored.Status)
	assert.Equal(t, "recipient is empty", stored.LastError)
}

func TestRunOnceUnknownKindAndPanic(t *testing.T) {
	ctx := context.Background()
	w, repo, db := newTestWorker(t, 1)
	w.Register(model.TaskEmail, func(ctx context.Context, task *model.OutboxTask) error {
		panic("template exploded")
	})

	orphan, err := repo.Enqueue(ctx, nil, model.TaskFulfillment, map[string]string{}, time.Now().Add(-time.Second))
	require.NoError(t, err)
	panicky, err := repo.Enqueue(ctx, nil, model.TaskEmail, map[string]string{}, time.Now().Add(-time.Second))
	require.NoError(t, err)

	ran, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ran)

	assert.Equal(t, model.TaskDead, loadTask(t, db, orphan.ID).Status)
	stored := loadTask(t, db, panicky.ID)
	assert.Equal(t, model.TaskDead, stored.Status)
	assert.Contains(t, stored.LastError, "template exploded")
}

func TestRunStopsOnCancel(t *testing.T) {
	w, _, _ := newTestWorker(t, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestBackoff(t *testing.T) {
	base := 2 * time.Second
	assert.Equal(t, 2*time.Second, Backoff(base, 0))
	assert.Equal(t, 2*time.Second, Backoff(base, 1))
	assert.Equal(t, 4*time.Second, Backoff(base, 2))
	assert.Equal(t, 16*time.Second, Backoff(base, 4))
}

func TestIsPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
	assert.False(t, IsPermanent(errors.New("x")))
}
