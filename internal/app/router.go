package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/garage-inventory/internal/alerts"
	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/counting"
	"github.com/odyssey-erp/garage-inventory/internal/inventory"
	"github.com/odyssey-erp/garage-inventory/internal/locations"
	"github.com/odyssey-erp/garage-inventory/internal/observability"
	"github.com/odyssey-erp/garage-inventory/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	CatalogHandler   *catalog.Handler
	LocationHandler  *locations.Handler
	InventoryHandler *inventory.Handler
	CountingHandler  *counting.Handler
	AlertHandler     *alerts.Handler
	QueueHandler     *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router serving the inventory API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/parts", func(r chi.Router) {
			if params.CatalogHandler != nil {
				params.CatalogHandler.MountRoutes(r)
			}
			if params.InventoryHandler != nil {
				params.InventoryHandler.MountPartRoutes(r)
			}
		})
		if params.InventoryHandler != nil {
			r.Route("/jobs", params.InventoryHandler.MountJobRoutes)
		}
		if params.LocationHandler != nil {
			r.Route("/locations", params.LocationHandler.MountRoutes)
		}
		if params.CountingHandler != nil {
			r.Route("/checks", params.CountingHandler.MountCheckRoutes)
			r.Route("/adjustments", params.CountingHandler.MountAdjustmentRoutes)
		}
		if params.AlertHandler != nil {
			r.Route("/alerts", params.AlertHandler.MountRoutes)
		}
		if params.QueueHandler != nil {
			r.Route("/queue", params.QueueHandler.MountRoutes)
		}
	})

	return r
}
