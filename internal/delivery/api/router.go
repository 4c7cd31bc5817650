package api

import (
	"context"
	"net/http"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	"go.uber.org/zap"
)

// PriceHistory reads a pair's observations, newest first.
type PriceHistory interface {
	RecentObservations(ctx context.Context, productID, competitorID uint, limit int) ([]domain.PriceObservation, error)
}

type Deps struct {
	Alerts   domain.AlertFeed
	Products domain.ProductRepository
	History  PriceHistory
	Live     http.Handler
	// Ping reports storage health; nil skips the check.
	Ping   func(ctx context.Context) error
	Logger *zap.Logger
}

func NewRouter(deps Deps, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	c := corslib.New(corslib.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	h := &handler{deps: deps}

	r.Get("/health", h.health)
	if deps.Live != nil {
		r.Handle("/ws/alerts", deps.Live)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/alerts", h.listAlerts)
		r.Post("/alerts/{id}/read", h.markAlertRead)

		r.Get("/products/lookup", h.lookupProduct)
		r.Put("/products/{id}/price", h.updatePrice)
		r.Get("/products/{id}/price-history", h.priceHistory)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug(
				"http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
