package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/config"
	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	apperrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/metrics"
	"github.com/janisliepins/stockflow-backend/pkg/outbox"
)

const (
	workerName         = "outbox"
	defaultBatchSize   = 20
	defaultPoll        = 20 * time.Second
	defaultMaxAttempts = 5
	defaultStaleAfter  = 5 * time.Minute
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// eventStore is the slice of the outbox repository the dispatcher drives.
type eventStore interface {
	FindCandidateIDs(ctx context.Context, now, staleBefore time.Time, maxAttempts, limit int) ([]int64, error)
	Claim(ctx context.Context, id int64, now, staleBefore time.Time, maxAttempts int, workerID string) (bool, error)
	FindByID(ctx context.Context, id int64) (*models.OutboxEvent, error)
	Save(ctx context.Context, event *models.OutboxEvent) error
}

// orderFailer marks the order behind a dead ingestion event as failed.
type orderFailer interface {
	MarkFailed(ctx context.Context, tx *gorm.DB, orderID int64, message string) (*models.CustomerOrder, error)
}

// ServiceParams configure the outbox dispatcher.
type ServiceParams struct {
	Config   config.OutboxConfig
	Logger   *logger.Logger
	Repo     eventStore
	Registry *outbox.Registry
	Orders   orderFailer
	TX       txRunner
	Metrics  *metrics.WorkerMetrics
	WorkerID string
	Now      func() time.Time
}

// Service polls the outbox and dispatches claimed events to their handlers.
// Claims are conditional updates, so any number of dispatcher replicas can
// poll the same table; an event is handled by at most one of them at a time.
type Service struct {
	logg        *logger.Logger
	repo        eventStore
	registry    *outbox.Registry
	orders      orderFailer
	tx          txRunner
	metrics     *metrics.WorkerMetrics
	workerID    string
	batchSize   int
	maxAttempts int
	poll        time.Duration
	staleAfter  time.Duration
	now         func() time.Time
}

// NewService builds the dispatcher.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repo == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("handler registry is required")
	}
	if params.Orders == nil {
		return nil, errors.New("orders service is required")
	}
	if params.TX == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.WorkerID == "" {
		return nil, errors.New("worker id is required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := params.Config.PollInterval
	if poll <= 0 {
		poll = defaultPoll
	}
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	staleAfter := params.Config.StaleLockAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		logg:        params.Logger,
		repo:        params.Repo,
		registry:    params.Registry,
		orders:      params.Orders,
		tx:          params.TX,
		metrics:     params.Metrics,
		workerID:    params.WorkerID,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		poll:        poll,
		staleAfter:  staleAfter,
		now:         now,
	}, nil
}

// Run polls until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if _, err := s.RunCycle(ctx); err != nil {
			s.logg.Error(ctx, "outbox cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox dispatcher context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle claims and dispatches one batch of due events. It returns how
// many events it handled.
func (s *Service) RunCycle(ctx context.Context) (int, error) {
	start := s.now()
	now := start.UTC()
	staleBefore := now.Add(-s.staleAfter)

	ids, err := s.repo.FindCandidateIDs(ctx, now, staleBefore, s.maxAttempts, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("find candidates: %w", err)
	}

	handled := 0
	for _, id := range ids {
		claimed, err := s.repo.Claim(ctx, id, now, staleBefore, s.maxAttempts, s.workerID)
		if err != nil {
			return handled, fmt.Errorf("claim event %d: %w", id, err)
		}
		if !claimed {
			// Another worker got there first, or the row became ineligible.
			continue
		}
		if err := s.dispatch(ctx, id); err != nil {
			return handled, err
		}
		handled++
	}

	if s.metrics != nil {
		s.metrics.ObserveCycle(workerName, s.now().Sub(start))
	}
	return handled, nil
}

func (s *Service) dispatch(ctx context.Context, id int64) error {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load claimed event %d: %w", id, err)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"attempts":   event.Attempts,
	})

	handler, ok := s.registry.Lookup(event.EventType)
	if !ok {
		// No handler will ever exist for this row; retrying cannot help.
		cause := fmt.Errorf("no handler registered for event type %q", event.EventType)
		s.logg.Error(ctx, "unroutable outbox event", cause)
		return s.markDead(ctx, event, cause)
	}

	if handleErr := handler(ctx, event); handleErr != nil {
		// Business outcomes are already persisted by the handler; retrying
		// the event cannot change them.
		if apperrors.IsBusiness(handleErr) {
			s.logg.Warn(s.logg.WithField(ctx, "cause", handleErr.Error()), "outbox event consumed with business failure")
			return s.markProcessed(ctx, event)
		}
		return s.markFailure(ctx, event, handleErr)
	}
	return s.markProcessed(ctx, event)
}

func (s *Service) markProcessed(ctx context.Context, event *models.OutboxEvent) error {
	now := s.now().UTC()
	event.Status = enums.OutboxStatusProcessed
	event.ProcessedAt = &now
	event.LastError = nil
	if err := s.repo.Save(ctx, event); err != nil {
		return fmt.Errorf("mark processed %d: %w", event.ID, err)
	}
	if s.metrics != nil {
		s.metrics.IncProcessed(workerName)
	}
	s.logg.Info(ctx, "outbox event processed")
	return nil
}

func (s *Service) markFailure(ctx context.Context, event *models.OutboxEvent, cause error) error {
	event.Attempts++
	msg := cause.Error()
	event.LastError = &msg

	if event.Attempts >= s.maxAttempts {
		return s.markDead(ctx, event, cause)
	}

	event.Status = enums.OutboxStatusFailed
	event.AvailableAt = s.now().UTC().Add(outbox.Backoff(event.Attempts))
	if err := s.repo.Save(ctx, event); err != nil {
		return fmt.Errorf("mark failed %d: %w", event.ID, err)
	}
	if s.metrics != nil {
		s.metrics.IncFailed(workerName)
	}
	s.logg.Error(s.logg.WithField(ctx, "available_at", event.AvailableAt), "outbox event failed, will retry", cause)
	return nil
}

// markDead retires the event. A dead ingestion event means the order will
// never be dispatched, so the order itself is marked failed too.
func (s *Service) markDead(ctx context.Context, event *models.OutboxEvent, cause error) error {
	event.Status = enums.OutboxStatusDead
	msg := cause.Error()
	event.LastError = &msg
	if err := s.repo.Save(ctx, event); err != nil {
		return fmt.Errorf("mark dead %d: %w", event.ID, err)
	}
	if s.metrics != nil {
		s.metrics.IncDead(workerName)
	}
	s.logg.Error(ctx, "outbox event dead", cause)

	if event.EventType != enums.EventExternalOrderIngested {
		return nil
	}
	orderID := event.AggregateID
	if orderID == 0 {
		var payload struct {
			OrderID int64 `json:"orderId"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			s.logg.Error(ctx, "dead event payload unreadable, order left as-is", err)
			return nil
		}
		orderID = payload.OrderID
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.orders.MarkFailed(ctx, tx, orderID, "order processing exhausted retries")
		return err
	})
	if err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, orderID), "failed to mark order failed for dead event", err)
	}
	return nil
}
