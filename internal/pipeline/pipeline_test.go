package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/sky-loyalty/internal/aggregator"
	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
	"github.com/talx-hub/sky-loyalty/internal/model/tier"
	"github.com/talx-hub/sky-loyalty/internal/repo/memrepo"
	"github.com/talx-hub/sky-loyalty/internal/serviceerrs"
	"github.com/talx-hub/sky-loyalty/internal/stream"
)

// brokenFor fails deltas of chosen customers, passing everything else to the
// wrapped store.
type brokenFor struct {
	store  AggregateStore
	broken map[string]bool
}

func (b *brokenFor) ApplyDelta(ctx context.Context,
	d *loyalty.AggregateDelta,
) (loyalty.Outcome, error) {
	if b.broken[d.CustomerID] {
		return loyalty.OutcomeFailed,
			serviceerrs.NewStorageError("apply aggregate delta",
				context.DeadlineExceeded)
	}
	return b.store.ApplyDelta(ctx, d)
}

func newTestPipeline(t *testing.T, store AggregateStore) *Pipeline {
	t.Helper()
	log := slog.Default()
	return New(
		stream.NewNormalizer(log),
		aggregator.New(tier.NewCalculator(tier.DefaultSilverMin, tier.DefaultGoldMin)),
		store,
		log,
	)
}

func insertRecord(t *testing.T, customerID, bookingID string, points int64,
) stream.ChangeRecord {
	t.Helper()
	rec, err := stream.InsertRecord(&loyalty.Transaction{
		ID:         "tx-" + bookingID,
		CustomerID: customerID,
		Booking:    loyalty.Booking{ID: bookingID},
		Payment:    loyalty.Payment{Amount: points},
		Points:     points,
		Status:     loyalty.StatusActive,
	})
	require.NoError(t, err)
	return rec
}

func removeRecord(t *testing.T, customerID, bookingID string, points int64,
) stream.ChangeRecord {
	t.Helper()
	rec, err := stream.RemoveRecord(&loyalty.Transaction{
		ID:         "tx-" + bookingID,
		CustomerID: customerID,
		Booking:    loyalty.Booking{ID: bookingID},
		Payment:    loyalty.Payment{Amount: points},
		Points:     points,
		Status:     loyalty.StatusRevoked,
	})
	require.NoError(t, err)
	return rec
}

func TestPipeline_applies_batch(t *testing.T) {
	store := memrepo.New(slog.Default())
	p := newTestPipeline(t, store)
	ctx := context.Background()

	result := p.ProcessBatch(ctx, []stream.ChangeRecord{
		insertRecord(t, "c1", "b1", 100),
		insertRecord(t, "c1", "b2", 50),
		insertRecord(t, "c2", "b3", 200),
	})

	assert.Equal(t, 2, result.Applied)
	assert.True(t, result.Ok())

	_, points, err := store.CustomerTierPoints(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), points)

	_, points, err = store.CustomerTierPoints(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, int64(200), points)
}

func TestPipeline_redelivered_batch_is_noop(t *testing.T) {
	store := memrepo.New(slog.Default())
	p := newTestPipeline(t, store)
	ctx := context.Background()

	batch := []stream.ChangeRecord{insertRecord(t, "c1", "b1", 100)}

	first := p.ProcessBatch(ctx, batch)
	assert.Equal(t, 1, first.Applied)

	second := p.ProcessBatch(ctx, batch)
	assert.Zero(t, second.Applied)
	assert.Equal(t, 1, second.Duplicates)
	assert.True(t, second.Ok())

	_, points, err := store.CustomerTierPoints(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), points)
}

func TestPipeline_partial_failure_keeps_siblings(t *testing.T) {
	store := memrepo.New(slog.Default())
	p := newTestPipeline(t, &brokenFor{
		store:  store,
		broken: map[string]bool{"c2": true},
	})
	ctx := context.Background()

	result := p.ProcessBatch(ctx, []stream.ChangeRecord{
		insertRecord(t, "c1", "b1", 100),
		insertRecord(t, "c2", "b2", 50),
		insertRecord(t, "c2", "b3", 25),
	})

	assert.Equal(t, 1, result.Applied)
	// every booking behind the failed delta is retry-eligible, not just the
	// dedup token
	assert.ElementsMatch(t, []string{"b2", "b3"}, result.Failed)

	_, points, err := store.CustomerTierPoints(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), points)

	_, points, err = store.CustomerTierPoints(ctx, "c2")
	require.NoError(t, err)
	assert.Zero(t, points)
}

// failFirst fails the very first delta it sees, then delegates.
type failFirst struct {
	store   AggregateStore
	mu      sync.Mutex
	tripped bool
}

func (f *failFirst) ApplyDelta(ctx context.Context,
	d *loyalty.AggregateDelta,
) (loyalty.Outcome, error) {
	f.mu.Lock()
	first := !f.tripped
	f.tripped = true
	f.mu.Unlock()

	if first {
		return loyalty.OutcomeFailed,
			serviceerrs.NewStorageError("apply aggregate delta",
				context.DeadlineExceeded)
	}
	return f.store.ApplyDelta(ctx, d)
}

func TestPipeline_failed_multi_booking_delta_redelivers_all(t *testing.T) {
	store := memrepo.New(slog.Default())
	p := newTestPipeline(t, &failFirst{store: store})
	feed := stream.NewFeed(p, 2, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	require.NoError(t, feed.Publish(ctx, insertRecord(t, "c1", "b1", 100)))
	require.NoError(t, feed.Publish(ctx, insertRecord(t, "c1", "b2", 50)))

	// the first delivery fails; both bookings must survive redelivery
	assert.Eventually(t, func() bool {
		_, points, err := store.CustomerTierPoints(ctx, "c1")
		return err == nil && points == 150
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestPipeline_self_cancelling_booking(t *testing.T) {
	store := memrepo.New(slog.Default())
	p := newTestPipeline(t, store)
	ctx := context.Background()

	result := p.ProcessBatch(ctx, []stream.ChangeRecord{
		insertRecord(t, "c1", "b1", 100),
		removeRecord(t, "c1", "b1", 100),
	})

	assert.Zero(t, result.Applied)
	assert.True(t, result.Ok())

	_, err := store.GetAggregate(ctx, "c1")
	assert.ErrorIs(t, err, serviceerrs.ErrNotFound)
}

func TestPipeline_malformed_records_counted_not_fatal(t *testing.T) {
	store := memrepo.New(slog.Default())
	p := newTestPipeline(t, store)

	result := p.ProcessBatch(context.Background(), []stream.ChangeRecord{
		{Kind: stream.KindInsert, Keys: stream.Keys{PK: "CUSTOMER#cx", SK: "TRANSACTION#t"}},
		insertRecord(t, "c1", "b1", 10),
	})

	assert.Equal(t, 1, result.Malformed)
	assert.Equal(t, 1, result.Applied)
	assert.True(t, result.Ok())
}
