package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/janisliepins/stockflow-backend/pkg/config"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
)

var errLoggerRequired = errors.New("webhook logger is required")

// RejectedNotice tells the originating channel its order was rejected.
type RejectedNotice struct {
	Source          enums.ExternalOrderSource `json:"source"`
	ExternalOrderID string                    `json:"externalOrderId"`
	FailureCode     enums.FailureCode         `json:"failureCode"`
	Message         string                    `json:"message,omitempty"`
}

// CancelResultNotice reports the outcome of a cancellation request.
type CancelResultNotice struct {
	Source          enums.ExternalOrderSource       `json:"source"`
	ExternalOrderID string                          `json:"externalOrderId"`
	Result          enums.ExternalOrderCancelResult `json:"result"`
}

// Client delivers order callbacks to the external channels. When no base URL
// is configured the client logs and drops, which keeps local environments
// working without a receiver.
type Client struct {
	http         *http.Client
	baseURL      string
	rejectedPath string
	cancelPath   string
	logger       *logger.Logger
}

// NewClient builds the webhook sender from configuration.
func NewClient(cfg config.WebhookConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	return &Client{
		http:         &http.Client{Timeout: cfg.Timeout},
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		rejectedPath: cfg.RejectedPath,
		cancelPath:   cfg.CancelPath,
		logger:       logg,
	}, nil
}

// SendRejected delivers a rejection callback for the given channel.
func (c *Client) SendRejected(ctx context.Context, notice RejectedNotice) error {
	path := fmt.Sprintf(c.rejectedPath, strings.ToLower(string(notice.Source)))
	return c.post(ctx, "order_rejected", path, notice)
}

// SendCancellationResult delivers the cancel outcome callback.
func (c *Client) SendCancellationResult(ctx context.Context, notice CancelResultNotice) error {
	path := fmt.Sprintf(c.cancelPath, strings.ToLower(string(notice.Source)))
	return c.post(ctx, "order_cancel_result", path, notice)
}

func (c *Client) post(ctx context.Context, op, path string, payload any) error {
	if c.baseURL == "" {
		c.logger.Warn(c.logger.WithField(ctx, "operation", op), "webhook base url not configured, dropping callback")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("marshal %s payload", op))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("build %s request", op))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("deliver %s webhook", op))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Info(c.logger.WithFields(ctx, map[string]any{
			"operation": op,
			"status":    resp.StatusCode,
		}), "webhook delivered")
		return nil
	}
	return pkgerrors.New(
		pkgerrors.CodeDependency,
		fmt.Sprintf("%s webhook returned status %d", op, resp.StatusCode),
	)
}
