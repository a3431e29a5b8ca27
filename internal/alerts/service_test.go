package alerts

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	dsn := "file:alerts_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Alert{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(NewRepository(db), logg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc, db
}

func seedAlert(t *testing.T, db *gorm.DB, inventoryID int64, createdAt time.Time) models.Alert {
	t.Helper()
	alert := models.Alert{
		AlertType:   enums.AlertLowStock,
		InventoryID: inventoryID,
		Message:     "inventory is low",
		CreatedAt:   createdAt,
	}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatalf("seed alert: %v", err)
	}
	return alert
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	alert := seedAlert(t, db, 1, time.Now().UTC())

	first, err := svc.Acknowledge(ctx, alert.ID)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if first.AcknowledgedAt == nil {
		t.Fatal("acknowledged_at not set")
	}

	second, err := svc.Acknowledge(ctx, alert.ID)
	if err != nil {
		t.Fatalf("repeat acknowledge: %v", err)
	}
	if second.AcknowledgedAt == nil || !second.AcknowledgedAt.Equal(*first.AcknowledgedAt) {
		t.Fatalf("repeat acknowledge moved the timestamp: %v vs %v", second.AcknowledgedAt, first.AcknowledgedAt)
	}

	_, err = svc.Acknowledge(ctx, 404)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	var acked models.Alert
	for i := 0; i < 5; i++ {
		alert := seedAlert(t, db, int64(i+1), base.Add(time.Duration(i)*time.Minute))
		if i == 0 {
			acked = alert
		}
	}
	if _, err := svc.Acknowledge(ctx, acked.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	open, err := svc.List(ctx, ListParams{Unacknowledged: true})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open.Items) != 4 {
		t.Fatalf("expected 4 open alerts, got %d", len(open.Items))
	}
	for _, item := range open.Items {
		if item.AcknowledgedAt != nil {
			t.Fatalf("acknowledged alert leaked into open list: %+v", item)
		}
	}

	// Newest first, two pages of two plus a final page of one.
	page, err := svc.List(ctx, ListParams{Limit: 2})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("unexpected first page: %d items, cursor %q", len(page.Items), page.NextCursor)
	}
	if page.Items[0].InventoryID != 5 {
		t.Fatalf("expected newest alert first, got inventory %d", page.Items[0].InventoryID)
	}

	seen := map[int64]bool{}
	cursor := ""
	for {
		page, err := svc.List(ctx, ListParams{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, item := range page.Items {
			if seen[item.ID] {
				t.Fatalf("alert %d returned twice", item.ID)
			}
			seen[item.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != 5 {
		t.Fatalf("pagination missed rows: saw %d of 5", len(seen))
	}

	_, err = svc.List(ctx, ListParams{Cursor: "not-base64!"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION for bad cursor, got %v", err)
	}
}
