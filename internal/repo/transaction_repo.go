package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
	"github.com/talx-hub/sky-loyalty/internal/serviceerrs"
)

type TransactionRepository struct {
	DB
}

func NewTransactionRepository(pool connectionPool, log *slog.Logger) *TransactionRepository {
	return &TransactionRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

const queryInsertTransaction = `
INSERT INTO loyalty_transactions
    (id, customer_id, booking_id, booking_reference, outbound_flight_id,
     payment_receipt, payment_amount, points, status, created_at, expire_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// Add persists one immutable transaction row. The backend's uniqueness
// constraint on (customer_id, booking_id) rejects a second ingest of the
// same booking; duplicates of the change event itself are handled downstream
// by the aggregate's conditional update.
func (r *TransactionRepository) Add(ctx context.Context, t *loyalty.Transaction) error {
	addLogic := func() (struct{}, error) {
		_, err := r.pool.Exec(ctx, queryInsertTransaction,
			t.ID,
			t.CustomerID,
			t.Booking.ID,
			t.Booking.Reference,
			t.Booking.OutboundFlightID,
			t.Payment.Receipt,
			t.Payment.Amount,
			t.Points,
			string(t.Status),
			t.CreatedAt,
			t.ExpireAt,
		)
		if isUniqueViolation(err) {
			return struct{}{}, serviceerrs.ErrDuplicateBooking
		}
		if err != nil {
			return struct{}{}, serviceerrs.NewStorageError("add transaction", err)
		}
		return struct{}{}, nil
	}

	_, err := WithRetry[struct{}](ctx, addLogic, 0)
	if errors.Is(err, serviceerrs.ErrDuplicateBooking) {
		return serviceerrs.ErrDuplicateBooking
	}
	return err //nolint: wrapcheck // error from wrapped function
}

const queryRevokeTransaction = `
UPDATE loyalty_transactions
SET status = $1
WHERE customer_id = $2 AND booking_id = $3 AND status = $4
RETURNING id, customer_id, booking_id, booking_reference, outbound_flight_id,
          payment_receipt, payment_amount, points, created_at, expire_at`

// Revoke marks an active transaction REVOKED and returns its old snapshot so
// the caller can emit the remove change event. The row itself is never
// deleted.
func (r *TransactionRepository) Revoke(ctx context.Context,
	customerID, bookingID string,
) (*loyalty.Transaction, error) {
	revokeLogic := func() (*loyalty.Transaction, error) {
		t := loyalty.Transaction{Status: loyalty.StatusRevoked}
		err := r.pool.QueryRow(ctx, queryRevokeTransaction,
			string(loyalty.StatusRevoked),
			customerID,
			bookingID,
			string(loyalty.StatusActive),
		).Scan(
			&t.ID,
			&t.CustomerID,
			&t.Booking.ID,
			&t.Booking.Reference,
			&t.Booking.OutboundFlightID,
			&t.Payment.Receipt,
			&t.Payment.Amount,
			&t.Points,
			&t.CreatedAt,
			&t.ExpireAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serviceerrs.ErrNotFound
		}
		if err != nil {
			return nil, serviceerrs.NewStorageError("revoke transaction", err)
		}
		return &t, nil
	}

	t, err := WithRetry[*loyalty.Transaction](ctx, revokeLogic, 0)
	if err != nil {
		if errors.Is(err, serviceerrs.ErrNotFound) {
			return nil, serviceerrs.ErrNotFound
		}
		return nil, fmt.Errorf(
			"failed to revoke booking %s for customer %s: %w", bookingID, customerID, err)
	}
	return t, nil
}

const queryListTransactions = `
SELECT id, customer_id, booking_id, booking_reference, outbound_flight_id,
       payment_receipt, payment_amount, points, status, created_at, expire_at
FROM loyalty_transactions
WHERE customer_id = $1
ORDER BY created_at`

// ListByCustomer returns every transaction recorded for the customer, oldest
// first. Used by the audit surface, not by aggregation.
func (r *TransactionRepository) ListByCustomer(ctx context.Context,
	customerID string,
) ([]loyalty.Transaction, error) {
	if customerID == "" {
		return nil, errors.New("failed to list transactions: customerID must be not empty")
	}

	listLogic := func() ([]loyalty.Transaction, error) {
		rows, err := r.pool.Query(ctx, queryListTransactions, customerID)
		if err != nil {
			return nil, serviceerrs.NewStorageError("list transactions", err)
		}
		defer rows.Close()

		transactions := make([]loyalty.Transaction, 0)
		for rows.Next() {
			var t loyalty.Transaction
			var status string
			if err := rows.Scan(
				&t.ID,
				&t.CustomerID,
				&t.Booking.ID,
				&t.Booking.Reference,
				&t.Booking.OutboundFlightID,
				&t.Payment.Receipt,
				&t.Payment.Amount,
				&t.Points,
				&status,
				&t.CreatedAt,
				&t.ExpireAt,
			); err != nil {
				return nil, serviceerrs.NewStorageError("scan transaction", err)
			}
			t.Status = loyalty.Status(status)
			transactions = append(transactions, t)
		}
		if err := rows.Err(); err != nil {
			return nil, serviceerrs.NewStorageError("list transactions", err)
		}
		return transactions, nil
	}

	return WithRetry[[]loyalty.Transaction](ctx, listLogic, 0) //nolint: wrapcheck // error from wrapped function
}
