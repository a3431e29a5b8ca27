package external

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/internal/orders"
	"github.com/janisliepins/stockflow-backend/pkg/db"
	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EventEmitter writes outbox events inside the facade's transaction.
type EventEmitter interface {
	Emit(tx *gorm.DB, eventType enums.OutboxEventType, aggregateID int64, payload any) error
}

// SKUResolver maps incoming SKUs onto active catalog rows.
type SKUResolver interface {
	ResolveActiveBySKUs(ctx context.Context, skus []string) (map[string]models.Product, error)
}

// OrderFinder is the slice of the orders repository the facade reads.
type OrderFinder interface {
	FindByNaturalKey(ctx context.Context, source enums.ExternalOrderSource, externalOrderID string) (*models.CustomerOrder, error)
}

// Service is the ingestion facade for external channels. Accepting an order
// only persists it plus a dispatch intent; stock work happens asynchronously
// in the outbox worker.
type Service interface {
	Ingest(ctx context.Context, input IngestInput) (*IngestResult, error)
	Cancel(ctx context.Context, input CancelInput) (*CancelOutcome, error)
	Status(ctx context.Context, source enums.ExternalOrderSource, externalOrderID string) (*StatusResult, error)
}

type service struct {
	orders   orders.Service
	finder   OrderFinder
	products SKUResolver
	emitter  EventEmitter
	tx       txRunner
	logger   *logger.Logger
}

// NewService builds the external order facade.
func NewService(ordersSvc orders.Service, finder OrderFinder, products SKUResolver, emitter EventEmitter, tx txRunner, logg *logger.Logger) (Service, error) {
	if ordersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if finder == nil {
		return nil, fmt.Errorf("order finder required")
	}
	if products == nil {
		return nil, fmt.Errorf("sku resolver required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{orders: ordersSvc, finder: finder, products: products, emitter: emitter, tx: tx, logger: logg}, nil
}

func (s *service) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid source")
	}
	externalID := strings.TrimSpace(input.ExternalOrderID)
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external order id required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidData, "order requires at least one item")
	}

	// Fast idempotency path before any resolution work.
	if existing, err := s.findExisting(ctx, input.Source, externalID); err != nil {
		return nil, err
	} else if existing != nil {
		return &IngestResult{OrderID: existing.ID, Status: existing.Status, Duplicate: true}, nil
	}

	skus := make([]string, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidData, "item quantity must be positive")
		}
		skus = append(skus, item.SKU)
	}
	catalog, err := s.products.ResolveActiveBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}

	// Repeated SKUs collapse into a single line; unknown SKUs are collected
	// so the caller sees the whole problem in one response.
	orderItems := make([]orders.ItemInput, 0, len(input.Items))
	lineByProduct := make(map[int64]int, len(input.Items))
	var missing []string
	missingSeen := make(map[string]bool)
	for _, item := range input.Items {
		sku := strings.TrimSpace(item.SKU)
		product, ok := catalog[sku]
		if !ok {
			if !missingSeen[sku] {
				missingSeen[sku] = true
				missing = append(missing, sku)
			}
			continue
		}
		if idx, ok := lineByProduct[product.ID]; ok {
			orderItems[idx].Quantity += item.Quantity
			continue
		}
		lineByProduct[product.ID] = len(orderItems)
		orderItems = append(orderItems, orders.ItemInput{ProductID: product.ID, Quantity: item.Quantity})
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "unknown skus").
			WithDetails(map[string]any{"skus": missing})
	}

	source := input.Source
	var created *models.CustomerOrder
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.CreateInTx(ctx, tx, orders.CreateInput{
			Items:           orderItems,
			ShippingAddress: input.ShippingAddress,
			Source:          &source,
			ExternalOrderID: &externalID,
		})
		if err != nil {
			return err
		}
		created = order
		return s.emitter.Emit(tx, enums.EventExternalOrderIngested, order.ID, ingestedPayload{
			OrderID:         order.ID,
			Source:          source,
			ExternalOrderID: externalID,
		})
	})
	if err != nil {
		// Two concurrent ingests of the same order race on the unique
		// natural key; the loser returns the winner's row.
		if db.IsUniqueViolation(err, "ux_orders_source_external_id") {
			existing, ferr := s.findExisting(ctx, input.Source, externalID)
			if ferr != nil {
				return nil, ferr
			}
			if existing != nil {
				return &IngestResult{OrderID: existing.ID, Status: existing.Status, Duplicate: true}, nil
			}
		}
		return nil, err
	}

	s.logger.Info(s.logger.WithFields(s.logger.WithOrderID(ctx, created.ID), map[string]any{
		"source":            source,
		"external_order_id": externalID,
	}), "external order ingested")
	return &IngestResult{OrderID: created.ID, Status: created.Status}, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*CancelOutcome, error) {
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid source")
	}
	externalID := strings.TrimSpace(input.ExternalOrderID)
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external order id required")
	}

	order, err := s.findExisting(ctx, input.Source, externalID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "external order not found")
	}

	// Every cancel request gets its own result event, repeats included,
	// so the channel always receives an answer it can correlate.
	result := enums.CancelResultNotCancelable
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		switch {
		case order.Status == enums.OrderStatusCancelled:
			result = enums.CancelResultCancelled
		case cancellable(order.Status):
			if _, err := s.orders.UpdateStatusInTx(ctx, tx, order.ID, enums.OrderStatusCancelled); err != nil {
				return err
			}
			result = enums.CancelResultCancelled
		}
		return s.emitter.Emit(tx, enums.EventExternalOrderCancelResult, order.ID, cancelResultPayload{
			OrderID:         order.ID,
			Source:          input.Source,
			ExternalOrderID: externalID,
			Result:          result,
		})
	})
	if err != nil {
		return nil, err
	}
	return &CancelOutcome{OrderID: order.ID, Result: result}, nil
}

func (s *service) Status(ctx context.Context, source enums.ExternalOrderSource, externalOrderID string) (*StatusResult, error) {
	if !source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid source")
	}
	order, err := s.findExisting(ctx, source, strings.TrimSpace(externalOrderID))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "external order not found")
	}
	return &StatusResult{
		OrderID:        order.ID,
		Status:         order.Status,
		FailureCode:    order.FailureCode,
		FailureMessage: order.FailureMessage,
	}, nil
}

func (s *service) findExisting(ctx context.Context, source enums.ExternalOrderSource, externalOrderID string) (*models.CustomerOrder, error) {
	order, err := s.finder.FindByNaturalKey(ctx, source, externalOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup external order")
	}
	return order, nil
}

func cancellable(status enums.OrderStatus) bool {
	return status == enums.OrderStatusCreated || status == enums.OrderStatusProcessing
}
