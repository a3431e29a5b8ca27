package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/janisliepins/stockflow-backend/pkg/enums"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
)

const (
	defaultBatchSize  = 50
	maxBackoffSeconds = 3600
)

// ProcessorParams configure the notification sweep.
type ProcessorParams struct {
	Repo      Repository
	Sender    Sender
	Lock      Lock
	Logger    *logger.Logger
	BatchSize int
}

// Processor drains due notification tasks. Each cycle claims the sweep lock,
// loads the oldest due batch and attempts delivery; failures go back to
// PENDING with an exponential delay.
type Processor struct {
	repo      Repository
	sender    Sender
	lock      Lock
	logger    *logger.Logger
	batchSize int
	now       func() time.Time
}

// NewProcessor builds the sweep processor.
func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("sender required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	lock := params.Lock
	if lock == nil {
		lock = NoopLock{}
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Processor{
		repo:      params.Repo,
		sender:    params.Sender,
		lock:      lock,
		logger:    params.Logger,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

// RunCycle processes one due batch. It returns the number of tasks handled.
func (p *Processor) RunCycle(ctx context.Context) (int, error) {
	locked, err := p.lock.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		p.logger.Info(ctx, "another sweep holds the lock, skipping cycle")
		return 0, nil
	}
	defer func() {
		if relErr := p.lock.Release(ctx); relErr != nil {
			p.logger.Error(ctx, "failed to release sweep lock", relErr)
		}
	}()

	now := p.now().UTC()
	tasks, err := p.repo.FindDue(ctx, now, p.batchSize)
	if err != nil {
		return 0, err
	}

	for i := range tasks {
		task := &tasks[i]
		taskCtx := p.logger.WithField(ctx, "task_id", task.ID)

		task.Status = enums.NotificationTaskProcessing
		if err := p.repo.Save(ctx, task); err != nil {
			return i, err
		}

		if sendErr := p.sender.SendLowStock(taskCtx, task); sendErr != nil {
			task.Attempts++
			task.Status = enums.NotificationTaskPending
			task.NextAttemptAt = now.Add(Backoff(task.Attempts))
			p.logger.Error(p.logger.WithField(taskCtx, "attempts", task.Attempts),
				"notification delivery failed, rescheduled", sendErr)
		} else {
			task.Status = enums.NotificationTaskSent
		}
		if err := p.repo.Save(ctx, task); err != nil {
			return i, err
		}
	}
	return len(tasks), nil
}

// Backoff returns the delay before a task's next delivery attempt, doubling
// per attempt and capped at an hour.
func Backoff(attempts int) time.Duration {
	exp := attempts
	if exp > 6 {
		exp = 6
	}
	seconds := 1 << exp
	if seconds > maxBackoffSeconds {
		seconds = maxBackoffSeconds
	}
	return time.Duration(seconds) * time.Second
}
