package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/mlquarizm/payment-gateway/internal/payment"
	"github.com/mlquarizm/payment-gateway/internal/transport/middleware"
	"github.com/mlquarizm/payment-gateway/internal/transport/swagger"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Provider-facing surfaces live outside the API prefix; the providers
	// call these URLs directly.
	if webhookHandler != nil {
		router.Post("/webhooks/payment/{gateway}", webhookHandler.HandleWebhook)
		router.Get("/payment/callback/{gateway}", webhookHandler.HandleCallback)
		router.Post("/payment/callback/{gateway}", webhookHandler.HandleCallback)
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/", paymentHandler.CreateCheckout)
				pr.Get("/gateways", paymentHandler.ListGateways)
				pr.Get("/{trackID}", paymentHandler.GetTransaction)
				pr.Post("/{trackID}/refund", paymentHandler.RefundTransaction)
			})
		}
	})
}
