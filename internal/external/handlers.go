package external

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/internal/orders"
	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/outbox"
	"github.com/janisliepins/stockflow-backend/pkg/webhook"
)

// CallbackSender delivers order outcomes back to the source channel.
type CallbackSender interface {
	SendRejected(ctx context.Context, notice webhook.RejectedNotice) error
	SendCancellationResult(ctx context.Context, notice webhook.CancelResultNotice) error
}

// Handlers processes the external-order outbox events. Each handler runs its
// own business transaction; the dispatcher owns event bookkeeping.
type Handlers struct {
	orders  orders.Service
	emitter EventEmitter
	sender  CallbackSender
	tx      txRunner
	logger  *logger.Logger
}

// NewHandlers builds the outbox handlers for external order events.
func NewHandlers(ordersSvc orders.Service, emitter EventEmitter, sender CallbackSender, tx txRunner, logg *logger.Logger) (*Handlers, error) {
	if ordersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if sender == nil {
		return nil, fmt.Errorf("callback sender required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Handlers{orders: ordersSvc, emitter: emitter, sender: sender, tx: tx, logger: logg}, nil
}

// Register binds every handler to its event type.
func (h *Handlers) Register(registry *outbox.Registry) error {
	if err := registry.Register(enums.EventExternalOrderIngested, h.HandleIngested); err != nil {
		return err
	}
	if err := registry.Register(enums.EventExternalOrderRejected, h.HandleRejected); err != nil {
		return err
	}
	return registry.Register(enums.EventExternalOrderCancelResult, h.HandleCancelResult)
}

// HandleIngested moves a freshly ingested order into PROCESSING, reserving
// stock. A business refusal rejects the order and queues the channel
// callback; only delivery problems bubble up for retry.
func (h *Handlers) HandleIngested(ctx context.Context, event *models.OutboxEvent) error {
	var payload ingestedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode ingested payload")
	}
	ctx = h.logger.WithOrderID(ctx, payload.OrderID)

	order, err := h.orders.Get(ctx, payload.OrderID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			// Row vanished; nothing left to drive.
			h.logger.Warn(ctx, "ingested order missing, dropping event")
			return nil
		}
		return err
	}
	if order.Status != enums.OrderStatusCreated {
		// Cancelled or already dispatched while the event waited.
		h.logger.Info(h.logger.WithField(ctx, "status", order.Status), "order already progressed, skipping dispatch")
		return nil
	}

	err = h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := h.orders.UpdateStatusInTx(ctx, tx, payload.OrderID, enums.OrderStatusProcessing)
		return err
	})
	if err == nil {
		return nil
	}
	if !pkgerrors.IsBusiness(err) {
		return err
	}

	// Business refusal: the order outcome is final, the event is consumed.
	code := failureCodeFor(err)
	message := err.Error()
	if typed := pkgerrors.As(err); typed != nil {
		message = typed.Message()
	}
	return h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := h.orders.MarkRejected(ctx, tx, payload.OrderID, code, message); err != nil {
			return err
		}
		return h.emitter.Emit(tx, enums.EventExternalOrderRejected, payload.OrderID, rejectedPayload{
			OrderID:         payload.OrderID,
			Source:          payload.Source,
			ExternalOrderID: payload.ExternalOrderID,
			FailureCode:     code,
			Message:         message,
		})
	})
}

// HandleRejected notifies the source channel that its order was rejected.
func (h *Handlers) HandleRejected(ctx context.Context, event *models.OutboxEvent) error {
	var payload rejectedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode rejected payload")
	}
	return h.sender.SendRejected(ctx, webhook.RejectedNotice{
		Source:          payload.Source,
		ExternalOrderID: payload.ExternalOrderID,
		FailureCode:     payload.FailureCode,
		Message:         payload.Message,
	})
}

// HandleCancelResult reports a cancellation outcome to the source channel.
func (h *Handlers) HandleCancelResult(ctx context.Context, event *models.OutboxEvent) error {
	var payload cancelResultPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cancel result payload")
	}
	return h.sender.SendCancellationResult(ctx, webhook.CancelResultNotice{
		Source:          payload.Source,
		ExternalOrderID: payload.ExternalOrderID,
		Result:          payload.Result,
	})
}
