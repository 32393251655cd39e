package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storefront-payments/internal/config"
	"storefront-payments/internal/model"
	"storefront-payments/internal/repository"
)

// staleAfter is how long a task may sit in processing before another poll
// assumes its worker died and hands it out again.
const staleAfter = 5 * time.Minute

// Handler executes one outbox task. Returning an error schedules a retry
// unless the error is wrapped with Permanent.
type Handler func(ctx context.Context, task *model.OutboxTask) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The task is dead-lettered at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

type OutboxWorker struct {
	repo     repository.OutboxRepository
	handlers map[model.TaskKind]Handler
	cfg      config.Outbox
	logger   *slog.Logger
	now      func() time.Time
}

func NewOutboxWorker(repo repository.OutboxRepository, cfg config.Outbox, logger *slog.Logger) *OutboxWorker {
	return &OutboxWorker{
		repo:     repo,
		handlers: make(map[model.TaskKind]Handler),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Register binds h to kind. It must be called before Run.
func (w *OutboxWorker) Register(kind model.TaskKind, h Handler) {
	w.handlers[kind] = h
}

// Run polls until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "outbox worker started", "poll_interval", w.cfg.PollInterval, "batch_size", w.cfg.BatchSize)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "outbox poll failed", "err", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes the tasks that are due now and returns how many it ran.
func (w *OutboxWorker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()

	released, err := w.repo.ReleaseStale(ctx, now.Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("release stale tasks: %w", err)
	}
	if released > 0 {
		w.logger.WarnContext(ctx, "released stale outbox tasks", "count", released)
	}

	tasks, err := w.repo.FetchDue(ctx, now, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch due tasks: %w", err)
	}

	ran := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		claimed, err := w.repo.Claim(ctx, task.ID)
		if err != nil {
			w.logger.ErrorContext(ctx, "claim outbox task failed", "task_id", task.ID, "err", err)
			continue
		}
		if !claimed {
			continue
		}
		task.Attempts++
		w.process(ctx, task)
		ran++
	}
	return ran, nil
}

func (w *OutboxWorker) process(ctx context.Context, task *model.OutboxTask) {
	log := w.logger.With("task_id", task.ID, "kind", task.Kind, "attempt", task.Attempts)

	handler, ok := w.handlers[task.Kind]
	if !ok {
		w.deadLetter(ctx, log, task, fmt.Errorf("no handler registered for %s", task.Kind))
		return
	}

	err := w.safeRun(ctx, handler, task)
	if err == nil {
		if err := w.repo.MarkDone(ctx, task.ID); err != nil {
			log.ErrorContext(ctx, "mark outbox task done failed", "err", err)
		}
		return
	}

	if IsPermanent(err) || task.Attempts >= task.MaxAttempts {
		w.deadLetter(ctx, log, task, err)
		return
	}

	next := w.now().Add(Backoff(w.cfg.BaseBackoff, task.Attempts))
	log.WarnContext(ctx, "outbox task failed, retrying", "next_run_at", next, "err", err)
	if err := w.repo.Reschedule(ctx, task.ID, next, err.Error()); err != nil {
		log.ErrorContext(ctx, "reschedule outbox task failed", "err", err)
	}
}

func (w *OutboxWorker) safeRun(ctx context.Context, h Handler, task *model.OutboxTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, task)
}

func (w *OutboxWorker) deadLetter(ctx context.Context, log *slog.Logger, task *model.OutboxTask, cause error) {
	log.ErrorContext(ctx, "outbox task dead-lettered", "err", cause)
	if err := w.repo.MarkDead(ctx, task.ID, cause.Error()); err != nil {
		log.ErrorContext(ctx, "mark outbox task dead failed", "err", err)
	}
}

// Backoff returns base * 2^(attempt-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	return base * time.Duration(1<<(attempt-1))
}
