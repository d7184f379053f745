package dto

import (
	"errors"
	"time"
)

type BookingRequest struct {
	ID               string `json:"id"`
	Reference        string `json:"reference"`
	OutboundFlightID string `json:"outboundFlightId"`
}

type PaymentRequest struct {
	Receipt string `json:"receipt"`
	Amount  int64  `json:"amount"`
}

type IngestRequest struct {
	CustomerID string         `json:"customerId"`
	Booking    BookingRequest `json:"booking"`
	Payment    PaymentRequest `json:"payment"`
}

func (r *IngestRequest) IsValid() error {
	var errs []error
	if r.CustomerID == "" {
		errs = append(errs, errors.New("customerId is empty"))
	}
	if r.Booking.ID == "" {
		errs = append(errs, errors.New("booking.id is empty"))
	}
	if r.Payment.Amount < 0 {
		errs = append(errs, errors.New("payment.amount is negative"))
	}
	return errors.Join(errs...)
}

type IngestResponse struct {
	TransactionID string    `json:"transactionId"`
	CreatedAt     time.Time `json:"createdAt"`
}

type LoyaltyResponse struct {
	Level           string `json:"level"`
	Points          int64  `json:"points"`
	RemainingPoints int64  `json:"remainingPoints"`
}

type TransactionResponse struct {
	TransactionID string    `json:"transactionId"`
	BookingID     string    `json:"bookingId"`
	Points        int64     `json:"points"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpireAt      time.Time `json:"expireAt"`
}
