package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"storefront-payments/internal/model"
)

type OutboxRepository interface {
	Enqueue(ctx context.Context, tx *gorm.DB, kind model.TaskKind, payload any, runAt time.Time) (*model.OutboxTask, error)
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxTask, error)
	// Claim moves a pending task to processing and counts the attempt. It
	// reports false when another worker got there first.
	Claim(ctx context.Context, id string) (bool, error)
	MarkDone(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, nextRunAt time.Time, lastErr string) error
	MarkDead(ctx context.Context, id string, lastErr string) error
	// ReleaseStale returns processing tasks untouched since before cutoff to pending.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
	ListByStatus(ctx context.Context, status model.TaskStatus, limit int) ([]*model.OutboxTask, error)
	Requeue(ctx context.Context, id string, runAt time.Time) (bool, error)
}

type outboxRepoImpl struct {
	db          *gorm.DB
	maxAttempts int
}

func NewOutboxRepository(db *gorm.DB, maxAttempts int) OutboxRepository {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &outboxRepoImpl{
		db:          db,
		maxAttempts: maxAttempts,
	}
}

func (r *outboxRepoImpl) Enqueue(ctx context.Context, tx *gorm.DB, kind model.TaskKind, payload any, runAt time.Time) (*model.OutboxTask, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s task payload: %w", kind, err)
	}

	db := r.db
	if tx != nil {
		db = tx
	}

	task := &model.OutboxTask{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     body,
		Status:      model.TaskPending,
		MaxAttempts: r.maxAttempts,
		NextRunAt:   runAt,
	}
	if err := db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("enqueue %s task: %w", kind, err)
	}
	return task, nil
}

func (r *outboxRepoImpl) FetchDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxTask, error) {
	var tasks []*model.OutboxTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_run_at <= ?", model.TaskPending, now).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("fetch due tasks: %w", err)
	}
	return tasks, nil
}

func (r *outboxRepoImpl) Claim(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.OutboxTask{}).
		Where("id = ? AND status = ?", id, model.TaskPending).
		Updates(map[string]interface{}{
			"status":     model.TaskProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("claim task: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *outboxRepoImpl) MarkDone(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, map[string]interface{}{
		"status":     model.TaskDone,
		"last_error": "",
	})
}

func (r *outboxRepoImpl) Reschedule(ctx context.Context, id string, nextRunAt time.Time, lastErr string) error {
	return r.setStatus(ctx, id, map[string]interface{}{
		"status":      model.TaskPending,
		"next_run_at": nextRunAt,
		"last_error":  lastErr,
	})
}

func (r *outboxRepoImpl) MarkDead(ctx context.Context, id string, lastErr string) error {
	return r.setStatus(ctx, id, map[string]interface{}{
		"status":     model.TaskDead,
		"last_error": lastErr,
	})
}

func (r *outboxRepoImpl) setStatus(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	err := r.db.WithContext(ctx).Model(&model.OutboxTask{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	return nil
}

func (r *outboxRepoImpl) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.OutboxTask{}).
		Where("status = ? AND updated_at < ?", model.TaskProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":     model.TaskPending,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (r *outboxRepoImpl) ListByStatus(ctx context.Context, status model.TaskStatus, limit int) ([]*model.OutboxTask, error) {
	var tasks []*model.OutboxTask
	q := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list %s tasks: %w", status, err)
	}
	return tasks, nil
}

func (r *outboxRepoImpl) Requeue(ctx context.Context, id string, runAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.OutboxTask{}).
		Where("id = ? AND status = ?", id, model.TaskDead).
		Updates(map[string]interface{}{
			"status":      model.TaskPending,
			"attempts":    0,
			"next_run_at": runAt,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("requeue task: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
