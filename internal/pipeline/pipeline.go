package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/talx-hub/sky-loyalty/internal/aggregator"
	"github.com/talx-hub/sky-loyalty/internal/model"
	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
	"github.com/talx-hub/sky-loyalty/internal/stream"
	"github.com/talx-hub/sky-loyalty/internal/utils/semaphore"
)

type AggregateStore interface {
	ApplyDelta(ctx context.Context, d *loyalty.AggregateDelta) (loyalty.Outcome, error)
}

// Pipeline runs one delivered batch through normalization, aggregation and
// the conditional store writes. One instance is safe for concurrent batches:
// the store's compare-and-swap is the only synchronization point between
// invocations that touch the same customer.
type Pipeline struct {
	normalizer *stream.Normalizer
	aggregator *aggregator.Aggregator
	store      AggregateStore
	sema       *semaphore.Semaphore
	log        *slog.Logger
}

func New(normalizer *stream.Normalizer, agg *aggregator.Aggregator,
	store AggregateStore, log *slog.Logger,
) *Pipeline {
	return &Pipeline{
		normalizer: normalizer,
		aggregator: agg,
		store:      store,
		sema:       semaphore.New(model.DefaultApplyConcurrency),
		log:        log,
	}
}

// ProcessBatch applies every customer's delta independently: one customer's
// storage failure marks only that delta retry-eligible and never aborts the
// siblings.
func (p *Pipeline) ProcessBatch(ctx context.Context,
	batch []stream.ChangeRecord,
) loyalty.BatchResult {
	events, malformed := p.normalizer.Normalize(ctx, batch)
	deltas := p.aggregator.Aggregate(events)

	result := loyalty.BatchResult{Malformed: malformed}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for customerID := range deltas {
		delta := deltas[customerID]
		if err := p.sema.Acquire(ctx); err != nil {
			mu.Lock()
			result.Failed = append(result.Failed, delta.Bookings...)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.sema.Release()

			outcome, err := p.store.ApplyDelta(ctx, &delta)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed = append(result.Failed, delta.Bookings...)
				p.log.LogAttrs(ctx,
					slog.LevelError,
					"failed to apply aggregate delta",
					slog.String("customer_id", delta.CustomerID),
					slog.Any("booking_ids", delta.Bookings),
					slog.Any(model.KeyLoggerError, err),
				)
			case outcome == loyalty.OutcomeAlreadyApplied:
				result.Duplicates++
			default:
				result.Applied++
			}
		}()
	}
	wg.Wait()

	p.log.LogAttrs(ctx,
		slog.LevelInfo,
		"batch processed",
		slog.Int("records", len(batch)),
		slog.Int("events", len(events)),
		slog.Int("applied", result.Applied),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("malformed", result.Malformed),
		slog.Int("failed", len(result.Failed)),
	)
	return result
}
