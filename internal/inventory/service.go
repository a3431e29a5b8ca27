package inventory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MovementRecorder appends an audit record for each stock mutation.
type MovementRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, movement models.StockMovement) error
}

// LowStockNotifier reacts to the low-quantity flag flipping on. Implemented
// by the notifications service; called at most once per flip.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, tx *gorm.DB, inv *models.Inventory) error
}

// CreateInput seeds an inventory row for a product.
type CreateInput struct {
	ProductID        int64
	Quantity         int
	ReorderLevel     int
	ClearLowQuantity int
}

// AdjustInput applies a manual stock correction.
type AdjustInput struct {
	ProductID int64
	Delta     int
	Reason    string
}

// StockOpInput names a standalone reservation operation on one product.
// These run in their own transaction, unlike the tx-scoped order hooks.
type StockOpInput struct {
	ProductID int64
	Quantity  int
	OrderID   int64
}

// UpdateLevelsInput changes the hysteresis thresholds.
type UpdateLevelsInput struct {
	ProductID        int64
	ReorderLevel     int
	ClearLowQuantity int
}

// ListParams are the supported list filters.
type ListParams struct {
	Limit   int
	Cursor  string
	LowOnly bool
}

// ListResult wraps one page of inventory rows.
type ListResult struct {
	Items      []models.Inventory `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// Service owns every mutation of inventory counters. Order-driven operations
// take the caller's transaction so stock changes commit atomically with the
// order state they belong to.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Inventory, error)
	Get(ctx context.Context, id int64) (*models.Inventory, error)
	GetByProductID(ctx context.Context, productID int64) (*models.Inventory, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Adjust(ctx context.Context, input AdjustInput) (*models.Inventory, error)
	UpdateLevels(ctx context.Context, input UpdateLevelsInput) (*models.Inventory, error)
	GetAvailable(ctx context.Context, productID int64) (int, error)

	AddStock(ctx context.Context, productID int64, qty int) (*models.Inventory, error)
	ReduceStock(ctx context.Context, productID int64, qty int) (*models.Inventory, error)
	ReserveStock(ctx context.Context, input StockOpInput) (*models.Inventory, error)
	CancelReservation(ctx context.Context, input StockOpInput) (*models.Inventory, error)
	FulfillReservation(ctx context.Context, input StockOpInput) (*models.Inventory, error)

	Reserve(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error
	Release(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error
	Fulfill(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error
	Return(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error
}

type service struct {
	repo      Repository
	tx        txRunner
	movements MovementRecorder
	notifier  LowStockNotifier
	logger    *logger.Logger
}

// NewService builds the inventory service with its required collaborators.
func NewService(repo Repository, tx txRunner, movements MovementRecorder, notifier LowStockNotifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if movements == nil {
		return nil, fmt.Errorf("movement recorder required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("low stock notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, movements: movements, notifier: notifier, logger: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Inventory, error) {
	if input.ProductID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	if input.ClearLowQuantity < input.ReorderLevel {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "clear threshold must be at or above reorder level")
	}

	inv := &models.Inventory{
		ProductID:        input.ProductID,
		Quantity:         input.Quantity,
		ReorderLevel:     input.ReorderLevel,
		ClearLowQuantity: input.ClearLowQuantity,
		LowQuantity:      input.Quantity <= input.ReorderLevel,
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "create inventory")
	}
	return inv, nil
}

func (s *service) Get(ctx context.Context, id int64) (*models.Inventory, error) {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInventoryNotFound, "inventory not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	return inv, nil
}

func (s *service) GetByProductID(ctx context.Context, productID int64) (*models.Inventory, error) {
	inv, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInventoryNotFound, "inventory not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	return inv, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listInventoryParams{Limit: params.Limit, LowOnly: params.LowOnly}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	items, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory")
	}

	result := &ListResult{Items: items}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.Inventory, error) {
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	var adjusted *models.Inventory
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		inv, err := s.mutate(ctx, tx, input.ProductID, enums.MovementManualAdjustment, input.Delta, nil, &input.Reason, func(inv *models.Inventory) error {
			next := inv.Quantity + input.Delta
			if next < 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "adjustment would drive quantity negative")
			}
			if next < inv.ReservedQuantity {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "adjustment would break reservations").
					WithDetails(map[string]any{"reserved": inv.ReservedQuantity, "quantity": next})
			}
			inv.Quantity = next
			return nil
		})
		if err != nil {
			return err
		}
		adjusted = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}

func (s *service) UpdateLevels(ctx context.Context, input UpdateLevelsInput) (*models.Inventory, error) {
	if input.ReorderLevel < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reorder level must not be negative")
	}
	if input.ClearLowQuantity < input.ReorderLevel {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "clear threshold must be at or above reorder level")
	}

	var updated *models.Inventory
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inv, err := repo.FindByProductIDForUpdate(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeInventoryNotFound, "inventory not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
		}

		inv.ReorderLevel = input.ReorderLevel
		inv.ClearLowQuantity = input.ClearLowQuantity
		if err := s.applyHysteresis(ctx, tx, inv); err != nil {
			return err
		}
		if err := repo.Save(ctx, inv); err != nil {
			return mapSaveError(err)
		}
		updated = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) GetAvailable(ctx context.Context, productID int64) (int, error) {
	inv, err := s.GetByProductID(ctx, productID)
	if err != nil {
		return 0, err
	}
	return inv.Available(), nil
}

// AddStock receives stock into the warehouse. Recorded as a manual
// adjustment since no order drives it.
func (s *service) AddStock(ctx context.Context, productID int64, qty int) (*models.Inventory, error) {
	if err := validateQty(qty); err != nil {
		return nil, err
	}
	return s.Adjust(ctx, AdjustInput{ProductID: productID, Delta: qty, Reason: "stock received"})
}

func (s *service) ReduceStock(ctx context.Context, productID int64, qty int) (*models.Inventory, error) {
	if err := validateQty(qty); err != nil {
		return nil, err
	}
	return s.Adjust(ctx, AdjustInput{ProductID: productID, Delta: -qty, Reason: "stock removed"})
}

func (s *service) ReserveStock(ctx context.Context, input StockOpInput) (*models.Inventory, error) {
	return s.stockOp(ctx, input, s.Reserve)
}

func (s *service) CancelReservation(ctx context.Context, input StockOpInput) (*models.Inventory, error) {
	return s.stockOp(ctx, input, s.Release)
}

func (s *service) FulfillReservation(ctx context.Context, input StockOpInput) (*models.Inventory, error) {
	return s.stockOp(ctx, input, s.Fulfill)
}

// stockOp wraps one tx-scoped mutation in its own transaction and returns
// the row as committed.
func (s *service) stockOp(
	ctx context.Context,
	input StockOpInput,
	op func(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error,
) (*models.Inventory, error) {
	if input.OrderID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var result *models.Inventory
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := op(ctx, tx, input.ProductID, input.Quantity, input.OrderID); err != nil {
			return err
		}
		inv, err := s.repo.WithTx(tx).FindByProductID(ctx, input.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload inventory")
		}
		result = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error {
	if err := validateQty(qty); err != nil {
		return err
	}
	_, err := s.mutate(ctx, tx, productID, enums.MovementOrderReserved, -qty, &orderID, nil, func(inv *models.Inventory) error {
		if qty > inv.Available() {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient available stock").
				WithDetails(map[string]any{"product_id": productID, "requested": qty, "available": inv.Available()})
		}
		inv.ReservedQuantity += qty
		return nil
	})
	return err
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error {
	if err := validateQty(qty); err != nil {
		return err
	}
	_, err := s.mutate(ctx, tx, productID, enums.MovementOrderReleased, qty, &orderID, nil, func(inv *models.Inventory) error {
		if qty > inv.ReservedQuantity {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "release exceeds reserved stock").
				WithDetails(map[string]any{"product_id": productID, "requested": qty, "reserved": inv.ReservedQuantity})
		}
		inv.ReservedQuantity -= qty
		return nil
	})
	return err
}

func (s *service) Fulfill(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error {
	if err := validateQty(qty); err != nil {
		return err
	}
	_, err := s.mutate(ctx, tx, productID, enums.MovementOrderFulfilled, -qty, &orderID, nil, func(inv *models.Inventory) error {
		if qty > inv.ReservedQuantity {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "fulfillment exceeds reserved stock").
				WithDetails(map[string]any{"product_id": productID, "requested": qty, "reserved": inv.ReservedQuantity})
		}
		inv.Quantity -= qty
		inv.ReservedQuantity -= qty
		return nil
	})
	return err
}

func (s *service) Return(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error {
	if err := validateQty(qty); err != nil {
		return err
	}
	_, err := s.mutate(ctx, tx, productID, enums.MovementOrderReturned, qty, &orderID, nil, func(inv *models.Inventory) error {
		inv.Quantity += qty
		return nil
	})
	return err
}

// mutate is the single write path: lock the row, apply the change, re-derive
// the low flag, persist, and append the audit movement.
func (s *service) mutate(
	ctx context.Context,
	tx *gorm.DB,
	productID int64,
	movementType enums.MovementType,
	delta int,
	orderID *int64,
	reason *string,
	apply func(*models.Inventory) error,
) (*models.Inventory, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for inventory mutation")
	}

	repo := s.repo.WithTx(tx)
	inv, err := repo.FindByProductIDForUpdate(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInventoryNotFound, "inventory not found").
				WithDetails(map[string]any{"product_id": productID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory for update")
	}

	if err := apply(inv); err != nil {
		return nil, err
	}
	if inv.ReservedQuantity > inv.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reserved stock exceeds quantity").
			WithDetails(map[string]any{"product_id": productID})
	}

	if err := s.applyHysteresis(ctx, tx, inv); err != nil {
		return nil, err
	}
	if err := repo.Save(ctx, inv); err != nil {
		return nil, mapSaveError(err)
	}

	if err := s.movements.Record(ctx, tx, models.StockMovement{
		InventoryID:  inv.ID,
		Delta:        delta,
		MovementType: movementType,
		OrderID:      orderID,
		Reason:       reason,
	}); err != nil {
		return nil, err
	}
	return inv, nil
}

// applyHysteresis flips the low flag on when available stock reaches the
// reorder level and off only once it climbs past the clear threshold. The
// off flip is deliberately higher so a count oscillating around the reorder
// level does not re-alert on every mutation.
func (s *service) applyHysteresis(ctx context.Context, tx *gorm.DB, inv *models.Inventory) error {
	available := inv.Available()
	switch {
	case !inv.LowQuantity && available <= inv.ReorderLevel:
		inv.LowQuantity = true
		if err := s.notifier.NotifyLowStock(ctx, tx, inv); err != nil {
			return err
		}
		s.logger.Warn(s.logger.WithProductID(ctx, inv.ProductID), "inventory entered low stock")
	case inv.LowQuantity && available > inv.ClearLowQuantity:
		inv.LowQuantity = false
		s.logger.Info(s.logger.WithProductID(ctx, inv.ProductID), "inventory recovered from low stock")
	}
	return nil
}

func validateQty(qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}

func mapSaveError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeConflict, "inventory modified concurrently")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save inventory")
}
