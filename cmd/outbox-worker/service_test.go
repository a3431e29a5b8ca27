package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/config"
	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/outbox"
)

type dbRunner struct{ db *gorm.DB }

func (r dbRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type recordingFailer struct {
	failed []int64
	err    error
}

func (f *recordingFailer) MarkFailed(ctx context.Context, tx *gorm.DB, orderID int64, message string) (*models.CustomerOrder, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.failed = append(f.failed, orderID)
	return &models.CustomerOrder{ID: orderID, Status: enums.OrderStatusFailed}, nil
}

type dispatcherFixture struct {
	db       *gorm.DB
	repo     *outbox.Repository
	registry *outbox.Registry
	failer   *recordingFailer
	handled  []int64
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	dsn := "file:outboxworker_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}))

	return &dispatcherFixture{
		db:       db,
		repo:     outbox.NewRepository(db),
		registry: outbox.NewRegistry(),
		failer:   &recordingFailer{},
	}
}

func (f *dispatcherFixture) newService(t *testing.T, cfg config.OutboxConfig, now func() time.Time) *Service {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		Repo:     f.repo,
		Registry: f.registry,
		Orders:   f.failer,
		TX:       dbRunner{db: f.db},
		WorkerID: "worker-test",
		Now:      now,
	})
	require.NoError(t, err)
	return svc
}

func (f *dispatcherFixture) seed(t *testing.T, mutate func(*models.OutboxEvent)) *models.OutboxEvent {
	t.Helper()

	event := &models.OutboxEvent{
		EventType:   enums.EventExternalOrderIngested,
		AggregateID: 7,
		Payload:     []byte(`{"orderId":7}`),
		Status:      enums.OutboxStatusPending,
		AvailableAt: time.Now().UTC().Add(-time.Second),
	}
	if mutate != nil {
		mutate(event)
	}
	require.NoError(t, f.db.Create(event).Error)
	return event
}

func (f *dispatcherFixture) reload(t *testing.T, id int64) *models.OutboxEvent {
	t.Helper()

	var event models.OutboxEvent
	require.NoError(t, f.db.First(&event, id).Error)
	return &event
}

func TestRunCycleDispatchesDueEvents(t *testing.T) {
	f := newDispatcherFixture(t)
	err := f.registry.Register(enums.EventExternalOrderIngested, func(ctx context.Context, event *models.OutboxEvent) error {
		f.handled = append(f.handled, event.ID)
		return nil
	})
	require.NoError(t, err)

	first := f.seed(t, nil)
	second := f.seed(t, func(e *models.OutboxEvent) { e.AggregateID = 8 })
	future := f.seed(t, func(e *models.OutboxEvent) {
		e.AvailableAt = time.Now().UTC().Add(time.Hour)
	})

	svc := f.newService(t, config.OutboxConfig{}, nil)
	handled, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, []int64{first.ID, second.ID}, f.handled)

	got := f.reload(t, first.ID)
	assert.Equal(t, enums.OutboxStatusProcessed, got.Status)
	require.NotNil(t, got.ProcessedAt)
	assert.Nil(t, got.LastError)
	assert.Nil(t, got.LockedBy)

	assert.Equal(t, enums.OutboxStatusPending, f.reload(t, future.ID).Status)
}

func TestRunCycleSchedulesRetryWithBackoff(t *testing.T) {
	f := newDispatcherFixture(t)
	err := f.registry.Register(enums.EventExternalOrderIngested, func(ctx context.Context, event *models.OutboxEvent) error {
		return errors.New("downstream unavailable")
	})
	require.NoError(t, err)

	event := f.seed(t, nil)
	base := time.Now().UTC()
	svc := f.newService(t, config.OutboxConfig{}, func() time.Time { return base })

	handled, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	got := f.reload(t, event.ID)
	assert.Equal(t, enums.OutboxStatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "downstream unavailable", *got.LastError)
	assert.WithinDuration(t, base.Add(outbox.Backoff(1)), got.AvailableAt, time.Second)
}

func TestRunCycleConsumesBusinessFailures(t *testing.T) {
	f := newDispatcherFixture(t)
	err := f.registry.Register(enums.EventExternalOrderIngested, func(ctx context.Context, event *models.OutboxEvent) error {
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "no stock left")
	})
	require.NoError(t, err)

	event := f.seed(t, nil)
	svc := f.newService(t, config.OutboxConfig{}, nil)

	handled, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	// The handler already persisted the rejection; the event is done.
	got := f.reload(t, event.ID)
	assert.Equal(t, enums.OutboxStatusProcessed, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.Empty(t, f.failer.failed)
}

func TestRunCycleRetiresExhaustedIngestionEvents(t *testing.T) {
	f := newDispatcherFixture(t)
	err := f.registry.Register(enums.EventExternalOrderIngested, func(ctx context.Context, event *models.OutboxEvent) error {
		return errors.New("still broken")
	})
	require.NoError(t, err)

	event := f.seed(t, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusFailed
		e.Attempts = 4
	})

	svc := f.newService(t, config.OutboxConfig{MaxAttempts: 5}, nil)
	handled, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	got := f.reload(t, event.ID)
	assert.Equal(t, enums.OutboxStatusDead, got.Status)
	assert.Equal(t, 5, got.Attempts)
	assert.Equal(t, []int64{7}, f.failer.failed)
}

func TestRunCycleDeadLettersUnroutableEvents(t *testing.T) {
	f := newDispatcherFixture(t)
	// Only the rejection handler is registered; ingestion events have nowhere
	// to go and must not burn retries.
	err := f.registry.Register(enums.EventExternalOrderRejected, func(ctx context.Context, event *models.OutboxEvent) error {
		return nil
	})
	require.NoError(t, err)

	event := f.seed(t, nil)
	svc := f.newService(t, config.OutboxConfig{}, nil)

	handled, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	got := f.reload(t, event.ID)
	assert.Equal(t, enums.OutboxStatusDead, got.Status)
	assert.Equal(t, 0, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Equal(t, []int64{7}, f.failer.failed)
}

func TestRunCycleReclaimsStaleProcessingEvents(t *testing.T) {
	f := newDispatcherFixture(t)
	err := f.registry.Register(enums.EventExternalOrderIngested, func(ctx context.Context, event *models.OutboxEvent) error {
		f.handled = append(f.handled, event.ID)
		return nil
	})
	require.NoError(t, err)

	lockedAt := time.Now().UTC().Add(-10 * time.Minute)
	crashedWorker := "worker-crashed"
	stale := f.seed(t, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusProcessing
		e.LockedAt = &lockedAt
		e.LockedBy = &crashedWorker
	})
	freshLock := time.Now().UTC()
	liveWorker := "worker-live"
	held := f.seed(t, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusProcessing
		e.LockedAt = &freshLock
		e.LockedBy = &liveWorker
	})

	svc := f.newService(t, config.OutboxConfig{StaleLockAfter: 5 * time.Minute}, nil)
	handled, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)
	assert.Equal(t, []int64{stale.ID}, f.handled)

	assert.Equal(t, enums.OutboxStatusProcessed, f.reload(t, stale.ID).Status)
	assert.Equal(t, enums.OutboxStatusProcessing, f.reload(t, held.ID).Status)
}

func TestNewServiceValidatesParams(t *testing.T) {
	f := newDispatcherFixture(t)
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})

	_, err := NewService(ServiceParams{
		Logger:   logg,
		Repo:     f.repo,
		Registry: f.registry,
		Orders:   f.failer,
		TX:       dbRunner{db: f.db},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker id")
}
