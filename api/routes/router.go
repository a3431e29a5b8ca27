package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/janisliepins/stockflow-backend/api/controllers"
	"github.com/janisliepins/stockflow-backend/api/middleware"
	alertsvc "github.com/janisliepins/stockflow-backend/internal/alerts"
	"github.com/janisliepins/stockflow-backend/internal/external"
	inventorysvc "github.com/janisliepins/stockflow-backend/internal/inventory"
	movementsvc "github.com/janisliepins/stockflow-backend/internal/movements"
	ordersvc "github.com/janisliepins/stockflow-backend/internal/orders"
	productsvc "github.com/janisliepins/stockflow-backend/internal/products"
	"github.com/janisliepins/stockflow-backend/pkg/config"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        controllers.Pinger
	Redis     controllers.Pinger
	Products  productsvc.Service
	Inventory inventorysvc.Service
	Orders    ordersvc.Service
	External  external.Service
	Movements movementsvc.Service
	Alerts    alertsvc.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"postgres": deps.DB,
			"redis":    deps.Redis,
		}))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.CreateProduct(deps.Products, logg))
			r.Get("/", controllers.ListProducts(deps.Products, logg))
			r.Route("/{productID}", func(r chi.Router) {
				r.Get("/", controllers.GetProduct(deps.Products, logg))
				r.Put("/", controllers.UpdateProduct(deps.Products, logg))
				r.Delete("/", controllers.DeleteProduct(deps.Products, logg))
				r.Route("/inventory", func(r chi.Router) {
					r.Get("/", controllers.GetInventoryByProduct(deps.Inventory, logg))
					r.Get("/available", controllers.GetAvailableStock(deps.Inventory, logg))
					r.Post("/add", controllers.AddStock(deps.Inventory, logg))
					r.Post("/reduce", controllers.ReduceStock(deps.Inventory, logg))
					r.Post("/reserve", controllers.ReserveStock(deps.Inventory, logg))
					r.Post("/reserve/cancel", controllers.CancelReservation(deps.Inventory, logg))
					r.Post("/reserve/fulfill", controllers.FulfillReservation(deps.Inventory, logg))
					r.Post("/adjust", controllers.AdjustInventory(deps.Inventory, logg))
					r.Put("/levels", controllers.UpdateInventoryLevels(deps.Inventory, logg))
				})
			})
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/", controllers.CreateInventory(deps.Inventory, logg))
			r.Get("/", controllers.ListInventory(deps.Inventory, logg))
			r.Route("/{inventoryID}", func(r chi.Router) {
				r.Get("/", controllers.GetInventory(deps.Inventory, logg))
				r.Get("/movements", controllers.ListInventoryMovements(deps.Movements, logg))
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(deps.Orders, logg))
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", controllers.GetOrder(deps.Orders, logg))
				r.Put("/status", controllers.UpdateOrderStatus(deps.Orders, logg))
				r.Post("/return", controllers.ReturnOrder(deps.Orders, logg))
				r.Post("/items", controllers.AddOrderItem(deps.Orders, logg))
				r.Delete("/items/{itemID}", controllers.RemoveOrderItem(deps.Orders, logg))
				r.Get("/movements", controllers.ListOrderMovements(deps.Movements, logg))
			})
		})

		r.Route("/external/{source}/orders", func(r chi.Router) {
			r.Post("/", controllers.IngestExternalOrder(deps.External, logg))
			r.Route("/{externalOrderID}", func(r chi.Router) {
				r.Get("/", controllers.ExternalOrderStatus(deps.External, logg))
				r.Post("/cancel", controllers.CancelExternalOrder(deps.External, logg))
			})
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", controllers.ListAlerts(deps.Alerts, logg))
			r.Post("/{alertID}/acknowledge", controllers.AcknowledgeAlert(deps.Alerts, logg))
		})
	})

	return r
}
