package notifications

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
)

const taskLowStockAlert = "LOW_STOCK_ALERT"

// Notifier reacts to inventory dropping below its reorder level. It queues a
// delivery task and writes the operator alert inside the caller's
// transaction, so a rolled-back stock change never leaves either behind.
type Notifier struct {
	repo   Repository
	logger *logger.Logger
	now    func() time.Time
}

// NewNotifier builds the low-stock notifier.
func NewNotifier(repo Repository, logg *logger.Logger) (*Notifier, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Notifier{repo: repo, logger: logg, now: time.Now}, nil
}

// NotifyLowStock records one task and one alert for the inventory row.
func (n *Notifier) NotifyLowStock(ctx context.Context, tx *gorm.DB, inv *models.Inventory) error {
	repo := n.repo.WithTx(tx)
	now := n.now().UTC()

	task := models.NotificationTask{
		TaskName:      taskLowStockAlert,
		InventoryID:   inv.ID,
		Status:        enums.NotificationTaskPending,
		NextAttemptAt: now,
	}
	if err := repo.CreateTask(ctx, &task); err != nil {
		return err
	}

	alert := models.Alert{
		AlertType:   enums.AlertLowStock,
		InventoryID: inv.ID,
		Message: fmt.Sprintf("inventory %d for product %d is low: %d available at reorder level %d",
			inv.ID, inv.ProductID, inv.Available(), inv.ReorderLevel),
	}
	if err := repo.CreateAlert(ctx, &alert); err != nil {
		return err
	}

	n.logger.Info(n.logger.WithFields(ctx, map[string]any{
		"inventory_id": inv.ID,
		"task_id":      task.ID,
	}), "low stock notification queued")
	return nil
}
