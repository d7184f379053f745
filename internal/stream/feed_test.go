package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
)

type recordingProcessor struct {
	mu       sync.Mutex
	batches  [][]ChangeRecord
	failOnce map[string]bool
}

func (p *recordingProcessor) ProcessBatch(_ context.Context,
	batch []ChangeRecord,
) loyalty.BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.batches = append(p.batches, batch)

	result := loyalty.BatchResult{}
	for _, rec := range batch {
		bookingID := rec.BookingID()
		if p.failOnce[bookingID] {
			p.failOnce[bookingID] = false
			result.Failed = append(result.Failed, bookingID)
			continue
		}
		result.Applied++
	}
	return result
}

func (p *recordingProcessor) seenRecords() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestFeed_flushes_on_batch_size(t *testing.T) {
	proc := &recordingProcessor{}
	feed := NewFeed(proc, 2, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	for _, bookingID := range []string{"b1", "b2"} {
		rec, err := InsertRecord(testTransaction("c1", bookingID, 10))
		require.NoError(t, err)
		require.NoError(t, feed.Publish(ctx, rec))
	}

	assert.Eventually(t, func() bool {
		return proc.seenRecords() == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestFeed_flushes_partial_batch_on_ticker(t *testing.T) {
	proc := &recordingProcessor{}
	feed := NewFeed(proc, 100, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	rec, err := InsertRecord(testTransaction("c1", "b1", 10))
	require.NoError(t, err)
	require.NoError(t, feed.Publish(ctx, rec))

	assert.Eventually(t, func() bool {
		return proc.seenRecords() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestFeed_redelivers_failed_records(t *testing.T) {
	proc := &recordingProcessor{failOnce: map[string]bool{"b1": true}}
	feed := NewFeed(proc, 1, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	rec, err := InsertRecord(testTransaction("c1", "b1", 10))
	require.NoError(t, err)
	require.NoError(t, feed.Publish(ctx, rec))

	// first delivery fails, the second applies
	assert.Eventually(t, func() bool {
		return proc.seenRecords() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestFeed_flushes_buffer_on_shutdown(t *testing.T) {
	proc := &recordingProcessor{}
	feed := NewFeed(proc, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	rec, err := InsertRecord(testTransaction("c1", "b1", 10))
	require.NoError(t, err)
	require.NoError(t, feed.Publish(ctx, rec))

	// give the run loop a moment to buffer the record
	assert.Eventually(t, func() bool {
		return len(feed.recordsCh) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 1, proc.seenRecords())
}
