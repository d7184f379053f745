// Package memrepo is the in-memory rendition of the loyalty store. It backs
// dev mode (no DATABASE_URI configured) and the pipeline unit tests; the
// conditional-apply semantics mirror the postgres repository exactly.
package memrepo

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
	"github.com/talx-hub/sky-loyalty/internal/model/tier"
	"github.com/talx-hub/sky-loyalty/internal/serviceerrs"
)

type Store struct {
	mu           sync.RWMutex
	transactions map[string][]loyalty.Transaction
	aggregates   map[string]*loyalty.AggregateRecord
	log          *slog.Logger
}

func New(log *slog.Logger) *Store {
	return &Store{
		transactions: make(map[string][]loyalty.Transaction),
		aggregates:   make(map[string]*loyalty.AggregateRecord),
		log:          log,
	}
}

func (s *Store) Add(_ context.Context, t *loyalty.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.transactions[t.CustomerID] {
		if existing.Booking.ID == t.Booking.ID {
			return serviceerrs.ErrDuplicateBooking
		}
	}
	s.transactions[t.CustomerID] = append(s.transactions[t.CustomerID], *t)
	return nil
}

func (s *Store) Revoke(_ context.Context,
	customerID, bookingID string,
) (*loyalty.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group := s.transactions[customerID]
	for i := range group {
		if group[i].Booking.ID != bookingID ||
			group[i].Status != loyalty.StatusActive {
			continue
		}
		group[i].Status = loyalty.StatusRevoked
		revoked := group[i]
		return &revoked, nil
	}
	return nil, serviceerrs.ErrNotFound
}

func (s *Store) ListByCustomer(_ context.Context,
	customerID string,
) ([]loyalty.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.transactions[customerID]), nil
}

// ApplyDelta performs the same add-and-set-membership compare-and-swap as
// the conditional upsert in postgres, under the store mutex.
func (s *Store) ApplyDelta(ctx context.Context,
	d *loyalty.AggregateDelta,
) (loyalty.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.aggregates[d.CustomerID]
	if !ok {
		rec = &loyalty.AggregateRecord{CustomerID: d.CustomerID}
		s.aggregates[d.CustomerID] = rec
	}

	if slices.Contains(rec.ProcessedBookings, d.BookingID) {
		s.log.LogAttrs(ctx,
			slog.LevelDebug,
			"duplicate delivery detected, delta skipped",
			slog.String("customer_id", d.CustomerID),
			slog.String("booking_id", d.BookingID),
		)
		return loyalty.OutcomeAlreadyApplied, nil
	}

	rec.TotalPoints += d.TotalPointsDelta
	rec.Tier = d.Tier
	rec.ProcessedBookings = append(rec.ProcessedBookings, d.BookingID)
	rec.UpdatedAt = d.UpdatedAt
	return loyalty.OutcomeApplied, nil
}

func (s *Store) CustomerTierPoints(_ context.Context,
	customerID string,
) (tier.Tier, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.aggregates[customerID]
	if !ok {
		return tier.Bronze, 0, nil
	}
	return rec.Tier, rec.TotalPoints, nil
}

func (s *Store) GetAggregate(_ context.Context,
	customerID string,
) (*loyalty.AggregateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.aggregates[customerID]
	if !ok {
		return nil, serviceerrs.ErrNotFound
	}
	clone := *rec
	clone.ProcessedBookings = slices.Clone(rec.ProcessedBookings)
	return &clone, nil
}
