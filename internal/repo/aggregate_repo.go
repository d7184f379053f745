package repo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/talx-hub/sky-loyalty/internal/model"
	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
	"github.com/talx-hub/sky-loyalty/internal/model/tier"
	"github.com/talx-hub/sky-loyalty/internal/serviceerrs"
)

type AggregateRepository struct {
	DB
	writeTimeout time.Duration
}

func NewAggregateRepository(pool connectionPool, log *slog.Logger,
	writeTimeout time.Duration,
) *AggregateRepository {
	if writeTimeout <= 0 {
		writeTimeout = model.DefaultStoreTimeout
	}
	return &AggregateRepository{
		DB: DB{
			pool: pool,
			log:  log,
		},
		writeTimeout: writeTimeout,
	}
}

// The upsert is the engine's single synchronization point: the WHERE guard
// makes it a compare-and-swap on processed_bookings membership, so the same
// booking's delta applies at most once no matter how many concurrent batches
// carry it. Zero rows affected means the guard fired.
const queryApplyDelta = `
INSERT INTO loyalty_aggregates
    (customer_id, total_points, tier, processed_bookings, updated_at)
VALUES ($1, $2, $3, ARRAY[$4::text], $5)
ON CONFLICT (customer_id) DO UPDATE
SET total_points       = loyalty_aggregates.total_points + EXCLUDED.total_points,
    tier               = EXCLUDED.tier,
    processed_bookings = array_append(loyalty_aggregates.processed_bookings, $4),
    updated_at         = EXCLUDED.updated_at
WHERE NOT (loyalty_aggregates.processed_bookings @> ARRAY[$4::text])`

// ApplyDelta applies one customer's net batch effect to the aggregate record
// with upsert semantics. Duplicate deliveries resolve to OutcomeAlreadyApplied
// and are logged at debug only. The write must finish within the configured
// timeout; an expired deadline surfaces as OutcomeFailed and the delta stays
// retry-eligible.
func (r *AggregateRepository) ApplyDelta(ctx context.Context,
	d *loyalty.AggregateDelta,
) (loyalty.Outcome, error) {
	applyLogic := func() (loyalty.Outcome, error) {
		writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
		defer cancel()

		res, err := r.pool.Exec(writeCtx, queryApplyDelta,
			d.CustomerID,
			d.TotalPointsDelta,
			string(d.Tier),
			d.BookingID,
			d.UpdatedAt,
		)
		if err != nil {
			return loyalty.OutcomeFailed,
				serviceerrs.NewStorageError("apply aggregate delta", err)
		}
		if res.RowsAffected() == 0 {
			return loyalty.OutcomeAlreadyApplied, nil
		}
		return loyalty.OutcomeApplied, nil
	}

	outcome, err := WithRetry[loyalty.Outcome](ctx, applyLogic, 0)
	if err != nil {
		return loyalty.OutcomeFailed,
			serviceerrs.NewStorageError("apply aggregate delta", err)
	}

	if outcome == loyalty.OutcomeAlreadyApplied {
		r.log.LogAttrs(ctx,
			slog.LevelDebug,
			"duplicate delivery detected, delta skipped",
			slog.String("customer_id", d.CustomerID),
			slog.String("booking_id", d.BookingID),
		)
	}
	return outcome, nil
}

const queryCustomerTierPoints = `
SELECT tier, total_points
FROM loyalty_aggregates
WHERE customer_id = $1`

// CustomerTierPoints reads the current band and total. A customer with no
// aggregate record is a fresh BRONZE with zero points, not an error.
func (r *AggregateRepository) CustomerTierPoints(ctx context.Context,
	customerID string,
) (tier.Tier, int64, error) {
	type tierPoints struct {
		tier   string
		points int64
	}
	readLogic := func() (tierPoints, error) {
		var tp tierPoints
		err := r.pool.QueryRow(ctx, queryCustomerTierPoints, customerID).
			Scan(&tp.tier, &tp.points)
		if errors.Is(err, pgx.ErrNoRows) {
			return tierPoints{tier: string(tier.Bronze), points: 0}, nil
		}
		if err != nil {
			return tierPoints{}, serviceerrs.NewStorageError("get tier points", err)
		}
		return tp, nil
	}

	tp, err := WithRetry[tierPoints](ctx, readLogic, 0)
	if err != nil {
		return tier.Bronze, 0, err //nolint: wrapcheck // error from wrapped function
	}
	return tier.Tier(tp.tier), tp.points, nil
}

const queryGetAggregate = `
SELECT customer_id, total_points, tier, processed_bookings, updated_at
FROM loyalty_aggregates
WHERE customer_id = $1`

// GetAggregate returns the full aggregate record including the idempotency
// ledger. Audit surface; the hot read path is CustomerTierPoints.
func (r *AggregateRepository) GetAggregate(ctx context.Context,
	customerID string,
) (*loyalty.AggregateRecord, error) {
	getLogic := func() (*loyalty.AggregateRecord, error) {
		var rec loyalty.AggregateRecord
		var tierName string
		err := r.pool.QueryRow(ctx, queryGetAggregate, customerID).Scan(
			&rec.CustomerID,
			&rec.TotalPoints,
			&tierName,
			&rec.ProcessedBookings,
			&rec.UpdatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serviceerrs.ErrNotFound
		}
		if err != nil {
			return nil, serviceerrs.NewStorageError("get aggregate", err)
		}
		rec.Tier = tier.Tier(tierName)
		return &rec, nil
	}

	rec, err := WithRetry[*loyalty.AggregateRecord](ctx, getLogic, 0)
	if err != nil {
		if errors.Is(err, serviceerrs.ErrNotFound) {
			return nil, serviceerrs.ErrNotFound
		}
		return nil, err //nolint: wrapcheck // error from wrapped function
	}
	return rec, nil
}
