package loyalty

import (
	"time"

	"github.com/talx-hub/sky-loyalty/internal/model/tier"
)

// TransactionEvent is the transient, normalized form of one change-log
// record. Increment is false for a removal/reversal.
type TransactionEvent struct {
	CustomerID string `json:"customerId"`
	BookingID  string `json:"bookingId"`
	Points     int64  `json:"points"`
	Increment  bool   `json:"increment"`
}

// AggregateDelta is the net effect of one batch on one customer. BookingID is
// the last booking seen for the customer in the batch and doubles as the
// dedup token for the conditional write. Bookings lists every booking that
// contributed to the delta, so a failed write can redeliver all of them.
type AggregateDelta struct {
	CustomerID       string    `json:"customerId"`
	TotalPointsDelta int64     `json:"totalPointsDelta"`
	Tier             tier.Tier `json:"tier"`
	BookingID        string    `json:"bookingId"`
	Bookings         []string  `json:"bookings"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// AggregateRecord is the durable per-customer running total.
// ProcessedBookings is the idempotency ledger: a booking listed there has
// already contributed to TotalPoints and must never be applied again.
type AggregateRecord struct {
	CustomerID        string    `json:"customerId"`
	TotalPoints       int64     `json:"totalPoints"`
	Tier              tier.Tier `json:"tier"`
	ProcessedBookings []string  `json:"processedBookings"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Outcome reports what a conditional delta application did. AlreadyApplied
// means the dedup token was found in the ledger: a duplicate delivery, which
// is success, not an error.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeAlreadyApplied
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyApplied:
		return "already applied"
	default:
		return "failed"
	}
}

// BatchResult is reported back to the delivery substrate after one batch.
// Failed lists every booking id that contributed to a delta which hit a
// backend error; all of them are eligible for redelivery. Duplicates and
// malformed records are counted, not retried.
type BatchResult struct {
	Applied    int
	Duplicates int
	Malformed  int
	Failed     []string
}

func (r BatchResult) Ok() bool {
	return len(r.Failed) == 0
}
