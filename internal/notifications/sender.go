package notifications

import (
	"context"
	"fmt"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
)

// Sender delivers a queued notification to wherever operators watch.
type Sender interface {
	SendLowStock(ctx context.Context, task *models.NotificationTask) error
}

// LogSender writes notifications to the structured log. It is the default
// delivery channel until a real one (email, chat) is wired in.
type LogSender struct {
	logger *logger.Logger
}

// NewLogSender builds the log-backed sender.
func NewLogSender(logg *logger.Logger) (*LogSender, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LogSender{logger: logg}, nil
}

// SendLowStock emits the notification as a warning log line.
func (s *LogSender) SendLowStock(ctx context.Context, task *models.NotificationTask) error {
	s.logger.Warn(s.logger.WithFields(ctx, map[string]any{
		"task_id":      task.ID,
		"task_name":    task.TaskName,
		"inventory_id": task.InventoryID,
		"attempts":     task.Attempts,
	}), "low stock notification")
	return nil
}
