package aggregator

import (
	"time"

	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
	"github.com/talx-hub/sky-loyalty/internal/model/tier"
)

// Aggregator nets transaction events per customer. It is pure: no storage,
// no side effects, same input always yields the same deltas.
type Aggregator struct {
	tiers tier.Calculator
	now   func() time.Time
}

func New(tiers tier.Calculator) *Aggregator {
	return NewWithClock(tiers, time.Now)
}

// NewWithClock pins the timestamp source, making the output fully
// reproducible for the same batch.
func NewWithClock(tiers tier.Calculator, now func() time.Time) *Aggregator {
	return &Aggregator{
		tiers: tiers,
		now:   now,
	}
}

// Aggregate produces at most one delta per customer present in the batch.
// Within a batch the same booking id may appear more than once (an insert
// immediately followed by its own remove); only the last occurrence counts.
// A customer whose events net to zero yields no delta at all, so a
// self-cancelling booking never creates a spurious aggregate record.
func (a *Aggregator) Aggregate(events []loyalty.TransactionEvent,
) map[string]loyalty.AggregateDelta {
	perCustomer := make(map[string][]loyalty.TransactionEvent)
	order := make([]string, 0)
	for _, e := range events {
		if _, seen := perCustomer[e.CustomerID]; !seen {
			order = append(order, e.CustomerID)
		}
		perCustomer[e.CustomerID] = append(perCustomer[e.CustomerID], e)
	}

	deltas := make(map[string]loyalty.AggregateDelta, len(order))
	updatedAt := a.now().UTC()
	for _, customerID := range order {
		group := dedupLastWins(perCustomer[customerID])

		var total int64
		for _, e := range group {
			if e.Increment {
				total += e.Points
			} else {
				total -= e.Points
			}
		}
		if total == 0 {
			continue
		}

		last := group[len(group)-1]
		bookings := make([]string, len(group))
		for i, e := range group {
			bookings[i] = e.BookingID
		}
		deltas[customerID] = loyalty.AggregateDelta{
			CustomerID:       customerID,
			TotalPointsDelta: total,
			Tier:             a.tiers.Calc(total),
			BookingID:        last.BookingID,
			Bookings:         bookings,
			UpdatedAt:        updatedAt,
		}
	}

	return deltas
}

// dedupLastWins keeps, for every booking id, only its last event in batch
// order. A remove that follows an insert of the same booking within the
// batch cancels it outright: the pair contributes nothing instead of a
// negative reversal of points that were never aggregated. Relative order of
// the surviving events is preserved.
func dedupLastWins(events []loyalty.TransactionEvent) []loyalty.TransactionEvent {
	lastIdx := make(map[string]int, len(events))
	for i, e := range events {
		lastIdx[e.BookingID] = i
	}

	insertedEarlier := make(map[string]bool, len(lastIdx))
	for i, e := range events {
		if e.Increment && i != lastIdx[e.BookingID] {
			insertedEarlier[e.BookingID] = true
		}
	}

	deduped := make([]loyalty.TransactionEvent, 0, len(lastIdx))
	for i, e := range events {
		if lastIdx[e.BookingID] != i {
			continue
		}
		if !e.Increment && insertedEarlier[e.BookingID] {
			continue
		}
		deduped = append(deduped, e)
	}
	return deduped
}
