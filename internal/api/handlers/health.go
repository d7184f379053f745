package handlers

import (
	"context"
	"net/http"
)

type pinger interface {
	Healthy(ctx context.Context) bool
}

type HealthHandler struct {
	db pinger
}

func NewHealthHandler(db pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if h.db != nil && !h.db.Healthy(r.Context()) {
		http.Error(w,
			http.StatusText(http.StatusServiceUnavailable),
			http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
