package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/repressales/salescart/internal/service"
	"github.com/repressales/salescart/pkg/health"
	"github.com/repressales/salescart/pkg/middleware"
)

// NewRouter creates a chi router with all session and cart routes registered.
func NewRouter(
	cartService *service.CartService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("cart"))
	r.Use(middleware.Tracing("cart"))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	sessionHandler := NewSessionHandler(cartService, logger)
	cartHandler := NewCartHandler(cartService, logger)

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", sessionHandler.Open)
		r.Post("/{sessionId}/resume", sessionHandler.Resume)
		r.Delete("/{sessionId}", sessionHandler.Close)
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(RequireSession)

		r.Get("/", cartHandler.GetCart)
		r.Get("/products", cartHandler.ListProducts)
		r.Get("/products/{productId}", cartHandler.GetProduct)

		r.Post("/items", cartHandler.AddItem)
		r.Post("/items/{productId}/increase", cartHandler.IncreaseItem)
		r.Post("/items/{productId}/decrease", cartHandler.DecreaseItem)
		r.Delete("/items/{productId}", cartHandler.RemoveItem)

		r.Post("/reconcile", cartHandler.Reconcile)
	})

	return r
}
