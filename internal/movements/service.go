package movements

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
)

// Service appends stock movement audit records. Movements are never updated
// or deleted after insert.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, movement models.StockMovement) error
	ListByInventory(ctx context.Context, inventoryID int64, limit int) ([]models.StockMovement, error)
	ListByOrder(ctx context.Context, orderID int64) ([]models.StockMovement, error)
}

type service struct {
	repo Repository
}

// NewService builds the movement recorder.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("movements repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, movement models.StockMovement) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for movement record")
	}
	if movement.InventoryID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "inventory id required")
	}
	if movement.Delta == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "movement delta must be non-zero")
	}
	if !movement.MovementType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid movement type")
	}
	if movement.MovementType.RequiresOrderID() && movement.OrderID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required for order movements")
	}
	if movement.MovementType == enums.MovementManualAdjustment {
		if movement.Reason == nil || *movement.Reason == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "reason required for manual adjustments")
		}
	}

	if err := s.repo.WithTx(tx).Create(ctx, &movement); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert stock movement")
	}
	return nil
}

func (s *service) ListByInventory(ctx context.Context, inventoryID int64, limit int) ([]models.StockMovement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	items, err := s.repo.FindByInventory(ctx, inventoryID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list movements by inventory")
	}
	return items, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID int64) ([]models.StockMovement, error) {
	items, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list movements by order")
	}
	return items, nil
}
