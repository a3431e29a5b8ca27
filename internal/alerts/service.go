package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/pagination"
)

// ListParams are the supported list filters.
type ListParams struct {
	Limit          int
	Cursor         string
	Unacknowledged bool
}

// ListResult wraps one page of alerts.
type ListResult struct {
	Items      []models.Alert `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Service is the operator-facing view over low-stock alerts.
type Service interface {
	Get(ctx context.Context, id int64) (*models.Alert, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Acknowledge(ctx context.Context, id int64) (*models.Alert, error)
}

type service struct {
	repo   Repository
	logger *logger.Logger
	now    func() time.Time
}

// NewService builds the alerts service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("alerts repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logger: logg, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, id int64) (*models.Alert, error) {
	alert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find alert")
	}
	return alert, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	items, next, err := s.repo.List(ctx, listAlertsParams{
		Limit:          params.Limit,
		Cursor:         cursor,
		Unacknowledged: params.Unacknowledged,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list alerts")
	}

	result := &ListResult{Items: items}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// Acknowledge is idempotent: acknowledging an already-acknowledged alert
// returns the stored row unchanged.
func (s *service) Acknowledge(ctx context.Context, id int64) (*models.Alert, error) {
	updated, err := s.repo.Acknowledge(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	alert, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated {
		s.logger.Info(s.logger.WithField(ctx, "alert_id", id), "alert acknowledged")
	}
	return alert, nil
}
