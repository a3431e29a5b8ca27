package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}))

	t.Cleanup(func() {
		db.Exec("DELETE FROM outbox_events")
	})
	return db
}

func seedEvent(t *testing.T, db *gorm.DB, mutate func(*models.OutboxEvent)) *models.OutboxEvent {
	t.Helper()

	event := &models.OutboxEvent{
		EventType:   enums.EventExternalOrderIngested,
		AggregateID: 1,
		Payload:     []byte(`{}`),
		Status:      enums.OutboxStatusPending,
		AvailableAt: time.Now().UTC().Add(-time.Second),
	}
	if mutate != nil {
		mutate(event)
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

func TestFindCandidateIDsEligibility(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	now := time.Now().UTC()
	staleBefore := now.Add(-5 * time.Minute)

	pending := seedEvent(t, db, nil)
	failedDue := seedEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusFailed
		e.Attempts = 2
	})
	staleAt := now.Add(-10 * time.Minute)
	staleProcessing := seedEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusProcessing
		e.LockedAt = &staleAt
	})

	// None of these may surface.
	seedEvent(t, db, func(e *models.OutboxEvent) {
		e.AvailableAt = now.Add(time.Hour)
	})
	seedEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusFailed
		e.Attempts = 5
	})
	freshAt := now.Add(-time.Second)
	seedEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusProcessing
		e.LockedAt = &freshAt
	})
	seedEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusProcessed
	})
	seedEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusDead
	})

	ids, err := repo.FindCandidateIDs(context.Background(), now, staleBefore, 5, 20)
	require.NoError(t, err)
	assert.Equal(t, []int64{pending.ID, failedDue.ID, staleProcessing.ID}, ids)
}

func TestClaimIsExclusive(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	now := time.Now().UTC()
	staleBefore := now.Add(-5 * time.Minute)
	event := seedEvent(t, db, nil)

	ok, err := repo.Claim(context.Background(), event.ID, now, staleBefore, 5, "worker-a")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second claim re-checks eligibility and must lose.
	ok, err = repo.Claim(context.Background(), event.ID, now, staleBefore, 5, "worker-b")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxStatusProcessing, got.Status)
	require.NotNil(t, got.LockedBy)
	assert.Equal(t, "worker-a", *got.LockedBy)
}

func TestClaimReclaimsStaleLock(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	now := time.Now().UTC()
	staleAt := now.Add(-10 * time.Minute)
	event := seedEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusProcessing
		e.LockedAt = &staleAt
		lockedBy := "worker-crashed"
		e.LockedBy = &lockedBy
	})

	ok, err := repo.Claim(context.Background(), event.ID, now, now.Add(-5*time.Minute), 5, "worker-b")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LockedBy)
	assert.Equal(t, "worker-b", *got.LockedBy)
}

func TestSaveClearsLock(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	now := time.Now().UTC()
	event := seedEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusProcessing
		e.LockedAt = &now
		lockedBy := "worker-a"
		e.LockedBy = &lockedBy
	})

	event.Status = enums.OutboxStatusProcessed
	processedAt := now
	event.ProcessedAt = &processedAt
	require.NoError(t, repo.Save(context.Background(), event))

	got, err := repo.FindByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxStatusProcessed, got.Status)
	assert.Nil(t, got.LockedAt)
	assert.Nil(t, got.LockedBy)
	require.NotNil(t, got.ProcessedAt)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 16*time.Second, Backoff(4))
	assert.Equal(t, 5*time.Minute, Backoff(9))
	assert.Equal(t, 5*time.Minute, Backoff(50))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	noop := func(ctx context.Context, event *models.OutboxEvent) error { return nil }
	require.NoError(t, reg.Register(enums.EventExternalOrderIngested, noop))

	assert.Error(t, reg.Register(enums.EventExternalOrderIngested, noop), "duplicate registration")
	assert.Error(t, reg.Register(enums.OutboxEventType("BOGUS"), noop), "unknown type")
	assert.Error(t, reg.Register(enums.EventExternalOrderRejected, nil), "nil handler")

	_, ok := reg.Lookup(enums.EventExternalOrderIngested)
	assert.True(t, ok)
	_, ok = reg.Lookup(enums.EventExternalOrderCancelResult)
	assert.False(t, ok)
}
