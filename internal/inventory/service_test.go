package inventory

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/internal/movements"
	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
)

type txRunnerFunc struct{ db *gorm.DB }

func (t txRunnerFunc) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return t.db.WithContext(ctx).Transaction(fn)
}

type fakeNotifier struct {
	calls []int64
	fail  error
}

func (f *fakeNotifier) NotifyLowStock(ctx context.Context, tx *gorm.DB, inv *models.Inventory) error {
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, inv.ID)
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Inventory{}, &models.StockMovement{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (Service, *fakeNotifier) {
	t.Helper()

	recorder, err := movements.NewService(movements.NewRepository(db))
	if err != nil {
		t.Fatalf("new movements service: %v", err)
	}
	notifier := &fakeNotifier{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(NewRepository(db), txRunnerFunc{db: db}, recorder, notifier, logg)
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	return svc, notifier
}

func seedInventory(t *testing.T, db *gorm.DB, inv models.Inventory) models.Inventory {
	t.Helper()
	if err := db.Create(&inv).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	return inv
}

func loadInventory(t *testing.T, db *gorm.DB, id int64) models.Inventory {
	t.Helper()
	var inv models.Inventory
	if err := db.First(&inv, "id = ?", id).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	return inv
}

func countMovements(t *testing.T, db *gorm.DB, movementType enums.MovementType) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.StockMovement{}).Where("movement_type = ?", movementType).Count(&n).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	return n
}

func TestReserveHappyPath(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	inv := seedInventory(t, db, models.Inventory{ProductID: 1, Quantity: 10, ReorderLevel: 2, ClearLowQuantity: 4})

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, 1, 3, 100)
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	got := loadInventory(t, db, inv.ID)
	if got.Quantity != 10 || got.ReservedQuantity != 3 {
		t.Fatalf("unexpected state after reserve: %+v", got)
	}
	if got.Version != inv.Version+1 {
		t.Fatalf("expected version bump, got %d", got.Version)
	}
	if n := countMovements(t, db, enums.MovementOrderReserved); n != 1 {
		t.Fatalf("expected 1 reserve movement, got %d", n)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	seedInventory(t, db, models.Inventory{ProductID: 1, Quantity: 5, ReservedQuantity: 4, ClearLowQuantity: 0})

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, 1, 2, 100)
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeOutOfStock {
		t.Fatalf("expected OUT_OF_STOCK, got %v", err)
	}

	// Nothing may change on a failed reserve.
	got := loadInventory(t, db, 1)
	if got.ReservedQuantity != 4 {
		t.Fatalf("reservation leaked: %+v", got)
	}
	if n := countMovements(t, db, enums.MovementOrderReserved); n != 0 {
		t.Fatalf("expected no movement, got %d", n)
	}
}

func TestReserveUnknownProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, 999, 1, 100)
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInventoryNotFound {
		t.Fatalf("expected INVENTORY_NOT_FOUND, got %v", err)
	}
}

func TestFulfillConsumesReservation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	inv := seedInventory(t, db, models.Inventory{ProductID: 1, Quantity: 10, ReservedQuantity: 4, ClearLowQuantity: 0})

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Fulfill(context.Background(), tx, 1, 4, 100)
	})
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	got := loadInventory(t, db, inv.ID)
	if got.Quantity != 6 || got.ReservedQuantity != 0 {
		t.Fatalf("unexpected state after fulfill: %+v", got)
	}
}

func TestFulfillBeyondReservationFails(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	seedInventory(t, db, models.Inventory{ProductID: 1, Quantity: 10, ReservedQuantity: 2, ClearLowQuantity: 0})

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Fulfill(context.Background(), tx, 1, 3, 100)
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestReleaseRestoresAvailability(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	inv := seedInventory(t, db, models.Inventory{ProductID: 1, Quantity: 10, ReservedQuantity: 4, ClearLowQuantity: 0})

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Release(context.Background(), tx, 1, 4, 100)
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}

	got := loadInventory(t, db, inv.ID)
	if got.Quantity != 10 || got.ReservedQuantity != 0 {
		t.Fatalf("unexpected state after release: %+v", got)
	}
	if n := countMovements(t, db, enums.MovementOrderReleased); n != 1 {
		t.Fatalf("expected release movement, got %d", n)
	}
}

func TestReturnIncreasesQuantity(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	inv := seedInventory(t, db, models.Inventory{ProductID: 1, Quantity: 6, ClearLowQuantity: 0})

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Return(context.Background(), tx, 1, 2, 100)
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if got := loadInventory(t, db, inv.ID); got.Quantity != 8 {
		t.Fatalf("unexpected quantity after return: %+v", got)
	}
}

func TestLowStockHysteresis(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, notifier := newTestService(t, db)
	inv := seedInventory(t, db, models.Inventory{ProductID: 1, Quantity: 10, ReorderLevel: 3, ClearLowQuantity: 5})
	ctx := context.Background()

	// Drop available to the reorder level: flag flips on, one notification.
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(ctx, tx, 1, 7, 100)
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := loadInventory(t, db, inv.ID); !got.LowQuantity {
		t.Fatalf("expected low flag set: %+v", got)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.calls))
	}

	// Further drops while already low do not re-notify.
	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(ctx, tx, 1, 1, 101)
	})
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("expected no extra notification, got %d", len(notifier.calls))
	}

	// Releasing back to available == 5 is not enough (must exceed clear level).
	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Release(ctx, tx, 1, 3, 100)
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := loadInventory(t, db, inv.ID); !got.LowQuantity {
		t.Fatalf("expected flag to stay set at clear threshold: %+v", got)
	}

	// Crossing the clear threshold flips the flag off, silently.
	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Release(ctx, tx, 1, 1, 100)
	})
	if err != nil {
		t.Fatalf("final release: %v", err)
	}
	if got := loadInventory(t, db, inv.ID); got.LowQuantity {
		t.Fatalf("expected flag cleared: %+v", got)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("clear must not notify, got %d calls", len(notifier.calls))
	}

	// Re-entering low stock notifies again.
	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(ctx, tx, 1, 3, 102)
	})
	if err != nil {
		t.Fatalf("re-reserve: %v", err)
	}
	if len(notifier.calls) != 2 {
		t.Fatalf("expected second notification, got %d", len(notifier.calls))
	}
}

func TestAdjust(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	seedInventory(t, db, models.Inventory{ProductID: 1, Quantity: 5, ReservedQuantity: 2, ClearLowQuantity: 0})
	ctx := context.Background()

	if _, err := svc.Adjust(ctx, AdjustInput{ProductID: 1, Delta: 0, Reason: "x"}); err == nil {
		t.Fatal("expected validation error for zero delta")
	}
	if _, err := svc.Adjust(ctx, AdjustInput{ProductID: 1, Delta: 1}); err == nil {
		t.Fatal("expected validation error for missing reason")
	}

	// Cannot adjust below reservations.
	_, err := svc.Adjust(ctx, AdjustInput{ProductID: 1, Delta: -4, Reason: "shrinkage"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}

	got, err := svc.Adjust(ctx, AdjustInput{ProductID: 1, Delta: 10, Reason: "cycle count"})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got.Quantity != 15 {
		t.Fatalf("unexpected quantity: %+v", got)
	}
	if n := countMovements(t, db, enums.MovementManualAdjustment); n != 1 {
		t.Fatalf("expected adjustment movement, got %d", n)
	}
}

func TestUpdateLevelsReappliesHysteresis(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, notifier := newTestService(t, db)
	seedInventory(t, db, models.Inventory{ProductID: 1, Quantity: 5, ClearLowQuantity: 0})

	got, err := svc.UpdateLevels(context.Background(), UpdateLevelsInput{ProductID: 1, ReorderLevel: 6, ClearLowQuantity: 8})
	if err != nil {
		t.Fatalf("update levels: %v", err)
	}
	if !got.LowQuantity {
		t.Fatalf("expected low flag after raising reorder level: %+v", got)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("expected notification on threshold change, got %d", len(notifier.calls))
	}

	if _, err := svc.UpdateLevels(context.Background(), UpdateLevelsInput{ProductID: 1, ReorderLevel: 5, ClearLowQuantity: 3}); err == nil {
		t.Fatal("expected validation error for clear below reorder")
	}
}

func TestStandaloneStockOperations(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	seedInventory(t, db, models.Inventory{ProductID: 1, Quantity: 5, ClearLowQuantity: 0})
	ctx := context.Background()

	got, err := svc.AddStock(ctx, 1, 5)
	if err != nil {
		t.Fatalf("add stock: %v", err)
	}
	if got.Quantity != 10 {
		t.Fatalf("unexpected quantity after add: %+v", got)
	}
	if _, err := svc.ReduceStock(ctx, 1, 20); err == nil {
		t.Fatal("expected error reducing below zero")
	}

	got, err = svc.ReserveStock(ctx, StockOpInput{ProductID: 1, Quantity: 4, OrderID: 300})
	if err != nil {
		t.Fatalf("reserve stock: %v", err)
	}
	if got.ReservedQuantity != 4 {
		t.Fatalf("unexpected reservation: %+v", got)
	}
	if _, err := svc.ReserveStock(ctx, StockOpInput{ProductID: 1, Quantity: 4}); err == nil {
		t.Fatal("expected validation error for missing order id")
	}

	got, err = svc.CancelReservation(ctx, StockOpInput{ProductID: 1, Quantity: 1, OrderID: 300})
	if err != nil {
		t.Fatalf("cancel reservation: %v", err)
	}
	if got.ReservedQuantity != 3 {
		t.Fatalf("unexpected reservation after cancel: %+v", got)
	}

	got, err = svc.FulfillReservation(ctx, StockOpInput{ProductID: 1, Quantity: 3, OrderID: 300})
	if err != nil {
		t.Fatalf("fulfill reservation: %v", err)
	}
	if got.Quantity != 7 || got.ReservedQuantity != 0 {
		t.Fatalf("unexpected state after fulfill: %+v", got)
	}

	available, err := svc.GetAvailable(ctx, 1)
	if err != nil {
		t.Fatalf("get available: %v", err)
	}
	if available != 7 {
		t.Fatalf("expected 7 available, got %d", available)
	}
	if n := countMovements(t, db, enums.MovementManualAdjustment); n != 1 {
		t.Fatalf("expected one adjustment movement, got %d", n)
	}
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	// One connection funnels the writers; sqlite rejects concurrent
	// write transactions instead of queueing them.
	sqlDB.SetMaxOpenConns(1)

	svc, _ := newTestService(t, db)
	inv := seedInventory(t, db, models.Inventory{ProductID: 1, Quantity: 10, ClearLowQuantity: 0})

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ReserveStock(context.Background(), StockOpInput{
				ProductID: 1,
				Quantity:  3,
				OrderID:   int64(200 + i),
			})
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeOutOfStock {
			t.Fatalf("losing reservation must fail with OUT_OF_STOCK, got %v", err)
		}
	}
	if wins != 3 {
		t.Fatalf("expected 3 winning reservations for 10 units, got %d", wins)
	}

	got := loadInventory(t, db, inv.ID)
	if got.ReservedQuantity > got.Quantity {
		t.Fatalf("reservations exceed stock: %+v", got)
	}
	if got.ReservedQuantity != 9 {
		t.Fatalf("expected 9 units reserved, got %+v", got)
	}
	if n := countMovements(t, db, enums.MovementOrderReserved); n != 3 {
		t.Fatalf("expected one movement per winner, got %d", n)
	}
}

func TestCreateValidations(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{Quantity: 1}); err == nil {
		t.Fatal("expected error for missing product id")
	}
	if _, err := svc.Create(ctx, CreateInput{ProductID: 1, Quantity: -1}); err == nil {
		t.Fatal("expected error for negative quantity")
	}

	created, err := svc.Create(ctx, CreateInput{ProductID: 1, Quantity: 2, ReorderLevel: 3, ClearLowQuantity: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.LowQuantity {
		t.Fatalf("expected new row below reorder level to start low: %+v", created)
	}

	// Duplicate product rows are rejected by the unique index.
	if _, err := svc.Create(ctx, CreateInput{ProductID: 1, Quantity: 2, ClearLowQuantity: 0}); err == nil {
		t.Fatal("expected conflict for duplicate product inventory")
	}
}
