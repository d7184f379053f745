package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/talx-hub/sky-loyalty/internal/model"
	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
	"github.com/talx-hub/sky-loyalty/internal/utils/logger"
	"github.com/talx-hub/sky-loyalty/internal/utils/semaphore"
)

type Processor interface {
	ProcessBatch(ctx context.Context, batch []ChangeRecord) loyalty.BatchResult
}

// Feed is the in-process delivery substrate for the change log. It buffers
// published records and hands them to the processor in batches, flushed on
// size or on a timer. Delivery is at-least-once: records whose deltas failed
// with a backend error are re-enqueued for a later batch.
type Feed struct {
	proc       Processor
	recordsCh  chan ChangeRecord
	sema       *semaphore.Semaphore
	wg         sync.WaitGroup
	batchSize  int
	flushEvery time.Duration
}

func NewFeed(proc Processor, batchSize int, flushEvery time.Duration) *Feed {
	if batchSize <= 0 {
		batchSize = model.DefaultBatchSize
	}
	if flushEvery <= 0 {
		flushEvery = model.DefaultFlushInterval
	}
	return &Feed{
		proc:       proc,
		recordsCh:  make(chan ChangeRecord, batchSize*2),
		sema:       semaphore.New(model.DefaultApplyConcurrency),
		batchSize:  batchSize,
		flushEvery: flushEvery,
	}
}

// Publish enqueues one change record for eventual processing.
func (f *Feed) Publish(ctx context.Context, rec ChangeRecord) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case f.recordsCh <- rec:
		return nil
	}
}

// Run drains the feed until the context is cancelled. The final partial
// batch is flushed synchronously before returning.
func (f *Feed) Run(ctx context.Context) {
	log := logger.FromContext(ctx).With("service", "change-feed")
	log.LogAttrs(ctx, slog.LevelInfo, "running")

	buffer := make([]ChangeRecord, 0, f.batchSize)
	flushTicker := time.NewTicker(f.flushEvery)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(buffer) > 0 {
				f.process(context.WithoutCancel(ctx), log, buffer)
			}
			f.wg.Wait()
			log.LogAttrs(ctx, slog.LevelInfo, "stopped")
			return

		case rec := <-f.recordsCh:
			buffer = append(buffer, rec)
			if len(buffer) >= f.batchSize {
				f.dispatch(ctx, log, buffer)
				buffer = make([]ChangeRecord, 0, f.batchSize)
			}

		case <-flushTicker.C:
			if len(buffer) == 0 {
				continue
			}
			f.dispatch(ctx, log, buffer)
			buffer = make([]ChangeRecord, 0, f.batchSize)
		}
	}
}

func (f *Feed) dispatch(ctx context.Context, log *slog.Logger, batch []ChangeRecord) {
	if err := f.sema.Acquire(ctx); err != nil {
		f.process(context.WithoutCancel(ctx), log, batch)
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.sema.Release()
		f.process(ctx, log, batch)
	}()
}

// republish must not block forever: the flush loop may be busy with this very
// goroutine's slot, so a full buffer bounds the wait instead of deadlocking.
func (f *Feed) republish(ctx context.Context, rec ChangeRecord) error {
	timer := time.NewTimer(f.flushEvery)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("redelivery buffer full")
	case f.recordsCh <- rec:
		return nil
	}
}

func (f *Feed) process(ctx context.Context, log *slog.Logger, batch []ChangeRecord) {
	result := f.proc.ProcessBatch(ctx, batch)
	if result.Ok() {
		return
	}

	retryEligible := make(map[string]struct{}, len(result.Failed))
	for _, bookingID := range result.Failed {
		retryEligible[bookingID] = struct{}{}
	}

	for _, rec := range batch {
		if _, failed := retryEligible[rec.BookingID()]; !failed {
			continue
		}
		if err := f.republish(ctx, rec); err != nil {
			log.LogAttrs(ctx,
				slog.LevelError,
				"failed to redeliver change record",
				slog.String("booking_id", rec.BookingID()),
				slog.Any(model.KeyLoggerError, err),
			)
		}
	}
	log.LogAttrs(ctx,
		slog.LevelWarn,
		"partial batch failure, records re-enqueued",
		slog.Int("failed", len(result.Failed)),
		slog.Int("applied", result.Applied),
	)
}
