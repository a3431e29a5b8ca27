package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/internal/alerts"
	"github.com/janisliepins/stockflow-backend/internal/external"
	"github.com/janisliepins/stockflow-backend/internal/inventory"
	"github.com/janisliepins/stockflow-backend/internal/movements"
	"github.com/janisliepins/stockflow-backend/internal/notifications"
	"github.com/janisliepins/stockflow-backend/internal/orders"
	"github.com/janisliepins/stockflow-backend/internal/products"
	"github.com/janisliepins/stockflow-backend/pkg/config"
	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/outbox"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type dbRunner struct{ db *gorm.DB }

func (t dbRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return t.db.WithContext(ctx).Transaction(fn)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	dsn := "file:routes_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Product{},
		&models.CustomerOrder{},
		&models.OrderItem{},
		&models.Inventory{},
		&models.StockMovement{},
		&models.OutboxEvent{},
		&models.NotificationTask{},
		&models.Alert{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	runner := dbRunner{db: db}

	notifier, err := notifications.NewNotifier(notifications.NewRepository(db), logg)
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	recorder, err := movements.NewService(movements.NewRepository(db))
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	stock, err := inventory.NewService(inventory.NewRepository(db), runner, recorder, notifier, logg)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	catalog, err := products.NewService(products.NewRepository(db))
	if err != nil {
		t.Fatalf("products: %v", err)
	}
	orderRepo := orders.NewRepository(db)
	ordersSvc, err := orders.NewService(orderRepo, runner, stock, catalog, logg)
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	emitter := outbox.NewEmitter(outbox.NewRepository(db))
	externalSvc, err := external.NewService(ordersSvc, orderRepo, catalog, emitter, runner, logg)
	if err != nil {
		t.Fatalf("external: %v", err)
	}
	alertsSvc, err := alerts.NewService(alerts.NewRepository(db), logg)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}

	return NewRouter(Deps{
		Config:    &config.Config{App: config.AppConfig{Env: "test"}},
		Logger:    logg,
		DB:        stubPinger{},
		Redis:     stubPinger{},
		Products:  catalog,
		Inventory: stock,
		Orders:    ordersSvc,
		External:  externalSvc,
		Movements: recorder,
		Alerts:    alertsSvc,
	})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return envelope.Data
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		w := doJSON(t, router, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s returned %d: %s", path, w.Code, w.Body.String())
		}
	}
}

func TestProductAndInventoryFlow(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/products", map[string]any{
		"sku":   "SKU-A",
		"name":  "Widget",
		"price": "9.99",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create product returned %d: %s", w.Code, w.Body.String())
	}
	productID := int64(decodeData(t, w)["ID"].(float64))

	w = doJSON(t, router, http.MethodPost, "/api/v1/inventory", map[string]any{
		"product_id":         productID,
		"quantity":           10,
		"reorder_level":      2,
		"clear_low_quantity": 4,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create inventory returned %d: %s", w.Code, w.Body.String())
	}

	path := fmt.Sprintf("/api/v1/products/%d/inventory", productID)
	w = doJSON(t, router, http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get inventory returned %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, path+"/adjust", map[string]any{
		"delta":  -3,
		"reason": "cycle count",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("adjust returned %d: %s", w.Code, w.Body.String())
	}

	// Duplicate SKU surfaces as a conflict.
	w = doJSON(t, router, http.MethodPost, "/api/v1/products", map[string]any{
		"sku":   "SKU-A",
		"name":  "Widget Again",
		"price": "1.00",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate sku returned %d: %s", w.Code, w.Body.String())
	}
}

func TestStandaloneStockRoutes(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/products", map[string]any{
		"sku": "SKU-A", "name": "Widget", "price": "5.00",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create product returned %d", w.Code)
	}
	productID := int64(decodeData(t, w)["ID"].(float64))

	w = doJSON(t, router, http.MethodPost, "/api/v1/inventory", map[string]any{
		"product_id": productID, "quantity": 5,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create inventory returned %d: %s", w.Code, w.Body.String())
	}

	base := fmt.Sprintf("/api/v1/products/%d/inventory", productID)

	w = doJSON(t, router, http.MethodPost, base+"/add", map[string]any{"quantity": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("add returned %d: %s", w.Code, w.Body.String())
	}
	if got := decodeData(t, w)["Quantity"].(float64); got != 10 {
		t.Fatalf("expected quantity 10 after add, got %v", got)
	}

	w = doJSON(t, router, http.MethodPost, base+"/reserve", map[string]any{"quantity": 4, "order_id": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("reserve returned %d: %s", w.Code, w.Body.String())
	}
	if got := decodeData(t, w)["ReservedQuantity"].(float64); got != 4 {
		t.Fatalf("expected 4 reserved, got %v", got)
	}

	w = doJSON(t, router, http.MethodPost, base+"/reserve/cancel", map[string]any{"quantity": 1, "order_id": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("cancel returned %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, base+"/reserve/fulfill", map[string]any{"quantity": 3, "order_id": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("fulfill returned %d: %s", w.Code, w.Body.String())
	}
	data := decodeData(t, w)
	if data["Quantity"].(float64) != 7 || data["ReservedQuantity"].(float64) != 0 {
		t.Fatalf("unexpected state after fulfill: %v", data)
	}

	w = doJSON(t, router, http.MethodPost, base+"/reduce", map[string]any{"quantity": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("reduce returned %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, base+"/available", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("available returned %d: %s", w.Code, w.Body.String())
	}
	if got := decodeData(t, w)["available"].(float64); got != 5 {
		t.Fatalf("expected 5 available, got %v", got)
	}

	w = doJSON(t, router, http.MethodPost, base+"/reserve", map[string]any{"quantity": 50, "order_id": 2})
	if w.Code != http.StatusConflict {
		t.Fatalf("oversell reservation returned %d: %s", w.Code, w.Body.String())
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/products", map[string]any{
		"sku": "SKU-A", "name": "Widget", "price": "5.00",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create product returned %d", w.Code)
	}
	productID := int64(decodeData(t, w)["ID"].(float64))

	w = doJSON(t, router, http.MethodPost, "/api/v1/inventory", map[string]any{
		"product_id": productID, "quantity": 10,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create inventory returned %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/orders", map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 2}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create order returned %d: %s", w.Code, w.Body.String())
	}
	orderID := int64(decodeData(t, w)["ID"].(float64))

	statusPath := fmt.Sprintf("/api/v1/orders/%d/status", orderID)
	w = doJSON(t, router, http.MethodPut, statusPath, map[string]any{"status": "PROCESSING"})
	if w.Code != http.StatusOK {
		t.Fatalf("to PROCESSING returned %d: %s", w.Code, w.Body.String())
	}

	// PROCESSING -> CREATED is not a legal move.
	w = doJSON(t, router, http.MethodPut, statusPath, map[string]any{"status": "CREATED"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("illegal transition returned %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d/movements", orderID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("order movements returned %d", w.Code)
	}
}

func TestExternalIngestOverHTTP(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/products", map[string]any{
		"sku": "SKU-A", "name": "Widget", "price": "5.00",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create product returned %d", w.Code)
	}
	productID := int64(decodeData(t, w)["ID"].(float64))
	w = doJSON(t, router, http.MethodPost, "/api/v1/inventory", map[string]any{
		"product_id": productID, "quantity": 10,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create inventory returned %d", w.Code)
	}

	payload := map[string]any{
		"external_order_id": "shop-100",
		"items":             []map[string]any{{"sku": "SKU-A", "quantity": 1}},
	}
	w = doJSON(t, router, http.MethodPost, "/api/v1/external/shopify/orders", payload)
	if w.Code != http.StatusAccepted {
		t.Fatalf("ingest returned %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/external/shopify/orders/shop-100" {
		t.Fatalf("unexpected polling location %q", loc)
	}

	// Replays answer 200 with the stored order.
	w = doJSON(t, router, http.MethodPost, "/api/v1/external/shopify/orders", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("replay returned %d: %s", w.Code, w.Body.String())
	}
	if duplicate := decodeData(t, w)["duplicate"]; duplicate != true {
		t.Fatalf("replay not flagged duplicate: %v", duplicate)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/external/shopify/orders/shop-100", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status returned %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/external/shopify/orders/shop-100/cancel", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("cancel returned %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/external/ebay/orders/shop-100", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown source returned %d: %s", w.Code, w.Body.String())
	}
}
