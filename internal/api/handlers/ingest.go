package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/talx-hub/sky-loyalty/internal/api/dto"
	"github.com/talx-hub/sky-loyalty/internal/model"
	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
	"github.com/talx-hub/sky-loyalty/internal/serviceerrs"
	"github.com/talx-hub/sky-loyalty/internal/stream"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type transactionStore interface {
	Add(ctx context.Context, t *loyalty.Transaction) error
	Revoke(ctx context.Context, customerID, bookingID string) (*loyalty.Transaction, error)
	ListByCustomer(ctx context.Context, customerID string) ([]loyalty.Transaction, error)
}

type changeLog interface {
	Publish(ctx context.Context, rec stream.ChangeRecord) error
}

// IngestHandler is the write boundary of the transaction log: it records
// immutable transactions and publishes the matching change events that the
// aggregation pipeline consumes.
type IngestHandler struct {
	store        transactionStore
	feed         changeLog
	log          *slog.Logger
	pointsExpiry time.Duration
}

func NewIngestHandler(store transactionStore, feed changeLog,
	log *slog.Logger, pointsExpiry time.Duration,
) *IngestHandler {
	return &IngestHandler{
		store:        store,
		feed:         feed,
		log:          log,
		pointsExpiry: pointsExpiry,
	}
}

func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req dto.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	transaction := loyalty.Transaction{
		ID:         uuid.NewString(),
		CustomerID: req.CustomerID,
		Booking: loyalty.Booking{
			ID:               req.Booking.ID,
			Reference:        req.Booking.Reference,
			OutboundFlightID: req.Booking.OutboundFlightID,
		},
		Payment: loyalty.Payment{
			Receipt: req.Payment.Receipt,
			Amount:  req.Payment.Amount,
		},
		Points:    req.Payment.Amount,
		Status:    loyalty.StatusActive,
		CreatedAt: now,
		ExpireAt:  now.Add(h.pointsExpiry),
	}

	if err := h.store.Add(r.Context(), &transaction); err != nil {
		if errors.Is(err, serviceerrs.ErrDuplicateBooking) {
			http.Error(w, "booking already ingested", http.StatusConflict)
			return
		}
		h.log.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to add transaction",
			slog.String("customer_id", transaction.CustomerID),
			slog.String("booking_id", transaction.Booking.ID),
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.publish(r.Context(), &transaction, stream.InsertRecord)

	w.Header().Set(model.HeaderContentType, "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(dto.IngestResponse{
		TransactionID: transaction.ID,
		CreatedAt:     transaction.CreatedAt,
	}); err != nil {
		h.log.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to write response",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}

func (h *IngestHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	bookingID := chi.URLParam(r, "bookingID")
	if customerID == "" || bookingID == "" {
		http.Error(w, "customer and booking ids are required", http.StatusBadRequest)
		return
	}

	revoked, err := h.store.Revoke(r.Context(), customerID, bookingID)
	if err != nil {
		if errors.Is(err, serviceerrs.ErrNotFound) {
			http.Error(w, "active transaction not found", http.StatusNotFound)
			return
		}
		h.log.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to revoke transaction",
			slog.String("customer_id", customerID),
			slog.String("booking_id", bookingID),
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.publish(r.Context(), revoked, stream.RemoveRecord)
	w.WriteHeader(http.StatusAccepted)
}

func (h *IngestHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if customerID == "" {
		http.Error(w, "customer id is required", http.StatusBadRequest)
		return
	}

	transactions, err := h.store.ListByCustomer(r.Context(), customerID)
	if err != nil {
		h.log.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to list transactions",
			slog.String("customer_id", customerID),
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]dto.TransactionResponse, len(transactions))
	for i, t := range transactions {
		resp[i] = dto.TransactionResponse{
			TransactionID: t.ID,
			BookingID:     t.Booking.ID,
			Points:        t.Points,
			Status:        string(t.Status),
			CreatedAt:     t.CreatedAt,
			ExpireAt:      t.ExpireAt,
		}
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

type recordBuilder func(*loyalty.Transaction) (stream.ChangeRecord, error)

// publish emits the change event. The transaction row is already durable;
// if the in-process feed rejects the record the log replay has to cover it,
// so the failure is loud but not user-visible.
func (h *IngestHandler) publish(ctx context.Context,
	t *loyalty.Transaction, build recordBuilder,
) {
	rec, err := build(t)
	if err == nil {
		err = h.feed.Publish(ctx, rec)
	}
	if err != nil {
		h.log.LogAttrs(ctx,
			slog.LevelError,
			"failed to publish change record",
			slog.String("customer_id", t.CustomerID),
			slog.String("booking_id", t.Booking.ID),
			slog.Any(model.KeyLoggerError, err),
		)
	}
}
