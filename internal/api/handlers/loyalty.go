package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talx-hub/sky-loyalty/internal/api/dto"
	"github.com/talx-hub/sky-loyalty/internal/model"
	"github.com/talx-hub/sky-loyalty/internal/model/tier"
)

type aggregateReader interface {
	CustomerTierPoints(ctx context.Context, customerID string) (tier.Tier, int64, error)
}

// LoyaltyHandler serves the read side: current points, tier and the distance
// to the next band. A customer with no history is a fresh BRONZE, not a 404.
type LoyaltyHandler struct {
	store aggregateReader
	tiers tier.Calculator
	log   *slog.Logger
}

func NewLoyaltyHandler(store aggregateReader, tiers tier.Calculator,
	log *slog.Logger,
) *LoyaltyHandler {
	return &LoyaltyHandler{
		store: store,
		tiers: tiers,
		log:   log,
	}
}

func (h *LoyaltyHandler) GetLoyalty(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if customerID == "" {
		http.Error(w, "customer id is required", http.StatusBadRequest)
		return
	}

	currentTier, points, err := h.store.CustomerTierPoints(r.Context(), customerID)
	if err != nil {
		h.log.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to get customer tier and points",
			slog.String("customer_id", customerID),
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := dto.LoyaltyResponse{
		Level:           string(currentTier),
		Points:          points,
		RemainingPoints: h.tiers.NextTierPoints(currentTier, points),
	}

	w.Header().Set(model.HeaderContentType, "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to write response",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}
