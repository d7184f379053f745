package loyalty

import (
	"time"
)

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
	StatusExpired Status = "EXPIRED"
)

type Booking struct {
	ID               string `json:"id"`
	Reference        string `json:"reference"`
	OutboundFlightID string `json:"outboundFlightId"`
}

type Payment struct {
	Receipt string `json:"receipt"`
	Amount  int64  `json:"amount"`
}

// Transaction is one immutable fact: points earned for one booking's payment.
// It is never edited in place; a reversal is a REVOKED marker plus a remove
// change event.
type Transaction struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	Booking    Booking   `json:"bookingDetails"`
	Payment    Payment   `json:"paymentDetails"`
	Points     int64     `json:"points"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpireAt   time.Time `json:"expireAt"`
}
