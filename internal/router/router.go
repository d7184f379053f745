package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talx-hub/sky-loyalty/internal/api/middlewares"
	"github.com/talx-hub/sky-loyalty/internal/config"
)

type CustomRouter struct {
	router *chi.Mux
	logger *slog.Logger
	cfg    *config.Config
}

func New(cfg *config.Config, log *slog.Logger) *CustomRouter {
	router := &CustomRouter{
		router: chi.NewRouter(),
		logger: log,
		cfg:    cfg,
	}

	return router
}

type IngestHandler interface {
	Ingest(w http.ResponseWriter, r *http.Request)
	Revoke(w http.ResponseWriter, r *http.Request)
	GetTransactions(w http.ResponseWriter, r *http.Request)
}

type LoyaltyHandler interface {
	GetLoyalty(w http.ResponseWriter, r *http.Request)
}

type HealthHandler interface {
	Ping(w http.ResponseWriter, r *http.Request)
}

type Handler interface {
	IngestHandler
	LoyaltyHandler
	HealthHandler
}

func (cr *CustomRouter) SetRouter(h Handler) {
	cr.router.Route("/api/loyalty", func(r chi.Router) {
		if cr.cfg.SecretKey != "" {
			r.Use(middlewares.Authentication([]byte(cr.cfg.SecretKey), cr.logger))
		}

		r.With(middleware.AllowContentType("application/json")).
			Post("/", h.Ingest)

		r.Route("/{customerID}", func(r chi.Router) {
			r.Get("/", h.GetLoyalty)
			r.Get("/transactions", h.GetTransactions)
			r.Delete("/booking/{bookingID}", h.Revoke)
		})
	})
	cr.router.Get("/ping", h.Ping)

	cr.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w,
			http.StatusText(http.StatusMethodNotAllowed),
			http.StatusMethodNotAllowed)
	})
}

func (cr *CustomRouter) GetRouter() *chi.Mux {
	return cr.router
}
