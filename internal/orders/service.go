package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
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

// StockKeeper is the slice of the inventory service orders drive. Every call
// happens inside the order's own transaction.
type StockKeeper interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error
	Release(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error
	Fulfill(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error
	Return(ctx context.Context, tx *gorm.DB, productID int64, qty int, orderID int64) error
}

// ProductResolver snapshots catalog data at order time.
type ProductResolver interface {
	ResolveActiveByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error)
}

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID int64
	Quantity  int
}

// CreateInput carries everything needed to open an order. Source and
// ExternalOrderID are set only by the external ingestion facade.
type CreateInput struct {
	Items           []ItemInput
	ShippingAddress *string
	Source          *enums.ExternalOrderSource
	ExternalOrderID *string
}

// ListParams are the supported order list filters.
type ListParams struct {
	Limit  int
	Cursor string
	Status *enums.OrderStatus
	Source *enums.ExternalOrderSource
}

// ListResult wraps one page of orders.
type ListResult struct {
	Orders     []models.CustomerOrder `json:"orders"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// Service owns the order lifecycle. Status transitions and their inventory
// side effects commit atomically; anything else is a state conflict.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.CustomerOrder, error)
	CreateInTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.CustomerOrder, error)
	Get(ctx context.Context, id int64) (*models.CustomerOrder, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	AddItem(ctx context.Context, orderID int64, item ItemInput) (*models.CustomerOrder, error)
	RemoveItem(ctx context.Context, orderID, itemID int64) (*models.CustomerOrder, error)
	UpdateStatus(ctx context.Context, orderID int64, target enums.OrderStatus) (*models.CustomerOrder, error)
	UpdateStatusInTx(ctx context.Context, tx *gorm.DB, orderID int64, target enums.OrderStatus) (*models.CustomerOrder, error)
	Return(ctx context.Context, orderID int64, productIDs []int64) (*models.CustomerOrder, error)
	MarkRejected(ctx context.Context, tx *gorm.DB, orderID int64, code enums.FailureCode, message string) (*models.CustomerOrder, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, orderID int64, message string) (*models.CustomerOrder, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	stock    StockKeeper
	products ProductResolver
	logger   *logger.Logger
}

// NewService builds the order service with its required collaborators.
func NewService(repo Repository, tx txRunner, stock StockKeeper, products ProductResolver, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock keeper required")
	}
	if products == nil {
		return nil, fmt.Errorf("product resolver required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, stock: stock, products: products, logger: logg}, nil
}

// transitions holds the only legal status edges. Terminal states have none.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusCreated:    {enums.OrderStatusProcessing, enums.OrderStatusCancelled, enums.OrderStatusRejected, enums.OrderStatusFailed},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled, enums.OrderStatusFailed},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusFailed},
	enums.OrderStatusDelivered:  {enums.OrderStatusReturned, enums.OrderStatusFailed},
}

func canTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.CustomerOrder, error) {
	var created *models.CustomerOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.CreateInTx(ctx, tx, input)
		if err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) CreateInTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.CustomerOrder, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidData, "order requires at least one item")
	}
	ids := make([]int64, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidData, "item product id required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidData, "item quantity must be positive")
		}
		ids = append(ids, item.ProductID)
	}

	catalog, err := s.products.ResolveActiveByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	order := &models.CustomerOrder{
		Status:          enums.OrderStatusCreated,
		Source:          input.Source,
		ExternalOrderID: input.ExternalOrderID,
		ShippingAddress: input.ShippingAddress,
		TotalAmount:     decimal.Zero,
	}
	for _, item := range input.Items {
		product, ok := catalog[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID:        product.ID,
			Quantity:         item.Quantity,
			PriceAtOrderTime: product.Price,
		})
		order.TotalAmount = order.TotalAmount.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, id int64) (*models.CustomerOrder, error) {
	return s.load(ctx, s.repo, id)
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listOrdersParams{Limit: params.Limit, Status: params.Status, Source: params.Source}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	items, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	result := &ListResult{Orders: items}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) AddItem(ctx context.Context, orderID int64, item ItemInput) (*models.CustomerOrder, error) {
	if item.ProductID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if item.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var updated *models.CustomerOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusCreated {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "items can only change before processing")
		}

		catalog, err := s.products.ResolveActiveByIDs(ctx, []int64{item.ProductID})
		if err != nil {
			return err
		}
		product, ok := catalog[item.ProductID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found")
		}

		line := &models.OrderItem{
			OrderID:          order.ID,
			ProductID:        product.ID,
			Quantity:         item.Quantity,
			PriceAtOrderTime: product.Price,
		}
		if err := repo.AddItem(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add order item")
		}

		order.Items = append(order.Items, *line)
		order.TotalAmount = totalOf(order.Items)
		if err := repo.Save(ctx, order); err != nil {
			return mapSaveError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) RemoveItem(ctx context.Context, orderID, itemID int64) (*models.CustomerOrder, error) {
	var updated *models.CustomerOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusCreated {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "items can only change before processing")
		}
		if len(order.Items) == 1 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order must keep at least one item")
		}

		removed, err := repo.DeleteItem(ctx, orderID, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove order item")
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}

		remaining := order.Items[:0]
		for _, line := range order.Items {
			if line.ID != itemID {
				remaining = append(remaining, line)
			}
		}
		order.Items = remaining
		order.TotalAmount = totalOf(order.Items)
		if err := repo.Save(ctx, order); err != nil {
			return mapSaveError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderID int64, target enums.OrderStatus) (*models.CustomerOrder, error) {
	var updated *models.CustomerOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.UpdateStatusInTx(ctx, tx, orderID, target)
		if err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) UpdateStatusInTx(ctx context.Context, tx *gorm.DB, orderID int64, target enums.OrderStatus) (*models.CustomerOrder, error) {
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	// REJECTED and FAILED carry failure metadata and are set through
	// MarkRejected/MarkFailed, not the public transition path.
	if target == enums.OrderStatusRejected || target == enums.OrderStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure statuses are set by order processing")
	}

	repo := s.repo.WithTx(tx)
	order, err := s.load(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == target {
		return order, nil
	}
	if !canTransition(order.Status, target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").
			WithDetails(map[string]any{"from": order.Status, "to": target})
	}

	if err := s.applyStockEffects(ctx, tx, order, target); err != nil {
		return nil, err
	}

	previous := order.Status
	order.Status = target
	if err := repo.Save(ctx, order); err != nil {
		return nil, mapSaveError(err)
	}

	ctx = s.logger.WithOrderID(ctx, order.ID)
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{"from": previous, "to": target}), "order status changed")
	return order, nil
}

// Return moves a delivered order to RETURNED, restocking either every item
// or just the requested product subset. An empty productIDs means all items.
func (s *service) Return(ctx context.Context, orderID int64, productIDs []int64) (*models.CustomerOrder, error) {
	var updated *models.CustomerOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusReturned {
			updated = order
			return nil
		}
		if !canTransition(order.Status, enums.OrderStatusReturned) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").
				WithDetails(map[string]any{"from": order.Status, "to": enums.OrderStatusReturned})
		}

		selected := order.Items
		if len(productIDs) > 0 {
			byProduct := make(map[int64]models.OrderItem, len(order.Items))
			for _, item := range order.Items {
				byProduct[item.ProductID] = item
			}
			selected = selected[:0:0]
			seen := make(map[int64]bool, len(productIDs))
			for _, id := range productIDs {
				if seen[id] {
					continue
				}
				seen[id] = true
				item, ok := byProduct[id]
				if !ok {
					return pkgerrors.New(pkgerrors.CodeNotFound, "product is not on this order").
						WithDetails(map[string]any{"product_id": id})
				}
				selected = append(selected, item)
			}
		}
		for _, item := range selected {
			if err := s.stock.Return(ctx, tx, item.ProductID, item.Quantity, order.ID); err != nil {
				return err
			}
		}

		previous := order.Status
		order.Status = enums.OrderStatusReturned
		if err := repo.Save(ctx, order); err != nil {
			return mapSaveError(err)
		}

		lctx := s.logger.WithOrderID(ctx, order.ID)
		s.logger.Info(s.logger.WithFields(lctx, map[string]any{
			"from":           previous,
			"to":             enums.OrderStatusReturned,
			"returned_items": len(selected),
		}), "order status changed")
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// applyStockEffects runs the inventory side of a transition inside tx.
func (s *service) applyStockEffects(ctx context.Context, tx *gorm.DB, order *models.CustomerOrder, target enums.OrderStatus) error {
	switch {
	case target == enums.OrderStatusProcessing:
		for _, item := range order.Items {
			if err := s.stock.Reserve(ctx, tx, item.ProductID, item.Quantity, order.ID); err != nil {
				return err
			}
		}
	case target == enums.OrderStatusShipped:
		for _, item := range order.Items {
			if err := s.stock.Fulfill(ctx, tx, item.ProductID, item.Quantity, order.ID); err != nil {
				return err
			}
		}
	case target == enums.OrderStatusCancelled && order.Status == enums.OrderStatusProcessing:
		for _, item := range order.Items {
			if err := s.stock.Release(ctx, tx, item.ProductID, item.Quantity, order.ID); err != nil {
				return err
			}
		}
	case target == enums.OrderStatusReturned:
		for _, item := range order.Items {
			if err := s.stock.Return(ctx, tx, item.ProductID, item.Quantity, order.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *service) MarkRejected(ctx context.Context, tx *gorm.DB, orderID int64, code enums.FailureCode, message string) (*models.CustomerOrder, error) {
	return s.markTerminalFailure(ctx, tx, orderID, enums.OrderStatusRejected, code, message)
}

func (s *service) MarkFailed(ctx context.Context, tx *gorm.DB, orderID int64, message string) (*models.CustomerOrder, error) {
	return s.markTerminalFailure(ctx, tx, orderID, enums.OrderStatusFailed, enums.FailureTechnicalError, message)
}

func (s *service) markTerminalFailure(ctx context.Context, tx *gorm.DB, orderID int64, target enums.OrderStatus, code enums.FailureCode, message string) (*models.CustomerOrder, error) {
	repo := s.repo.WithTx(tx)
	order, err := s.load(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == target {
		return order, nil
	}
	if !canTransition(order.Status, target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").
			WithDetails(map[string]any{"from": order.Status, "to": target})
	}

	if err := s.applyStockEffects(ctx, tx, order, target); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order.Status = target
	order.FailureCode = &code
	order.FailureMessage = &message
	order.FailedAt = &now
	if target == enums.OrderStatusFailed {
		order.RetryCount++
	}
	if err := repo.Save(ctx, order); err != nil {
		return nil, mapSaveError(err)
	}

	s.logger.Warn(s.logger.WithFields(s.logger.WithOrderID(ctx, order.ID), map[string]any{
		"status":       target,
		"failure_code": code,
	}), "order marked failed")
	return order, nil
}

func (s *service) load(ctx context.Context, repo Repository, id int64) (*models.CustomerOrder, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func totalOf(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.PriceAtOrderTime.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func mapSaveError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeConflict, "order modified concurrently")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
}
