package stream

import (
	"context"
	"log/slog"
	"strings"

	"github.com/talx-hub/sky-loyalty/internal/model"
	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
	"github.com/talx-hub/sky-loyalty/internal/serviceerrs"
)

type Normalizer struct {
	log *slog.Logger
}

func NewNormalizer(log *slog.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// Normalize converts a batch of raw change records into transaction events.
// MODIFY records and aggregate-row records are noise and dropped silently;
// malformed snapshots are skipped and counted, never fatal. Source batch
// order is preserved.
func (n *Normalizer) Normalize(ctx context.Context, records []ChangeRecord,
) ([]loyalty.TransactionEvent, int) {
	events := make([]loyalty.TransactionEvent, 0, len(records))
	malformed := 0

	for _, rec := range records {
		if rec.Kind == KindModify {
			n.log.LogAttrs(ctx,
				slog.LevelDebug,
				"skipping modify record, transactions are immutable",
				slog.String("pk", rec.Keys.PK),
				slog.String("sk", rec.Keys.SK),
			)
			continue
		}
		if rec.IsAggregate() {
			n.log.LogAttrs(ctx,
				slog.LevelDebug,
				"skipping own aggregate write",
				slog.String("pk", rec.Keys.PK),
			)
			continue
		}

		event, err := toEvent(&rec)
		if err != nil {
			malformed++
			n.log.LogAttrs(ctx,
				slog.LevelWarn,
				"skipping malformed change record",
				slog.String("pk", rec.Keys.PK),
				slog.String("sk", rec.Keys.SK),
				slog.Any(model.KeyLoggerError, err),
			)
			continue
		}
		events = append(events, event)
	}

	return events, malformed
}

func toEvent(rec *ChangeRecord) (loyalty.TransactionEvent, error) {
	img := rec.image()
	if len(img) == 0 {
		return loyalty.TransactionEvent{},
			&serviceerrs.MalformedRecordError{Field: "image"}
	}

	var row rowImage
	if err := json.Unmarshal(img, &row); err != nil {
		return loyalty.TransactionEvent{},
			&serviceerrs.MalformedRecordError{Field: "image"}
	}

	customerID := strings.TrimPrefix(row.PK, model.CustomerPartitionPrefix)
	if customerID == "" {
		return loyalty.TransactionEvent{},
			&serviceerrs.MalformedRecordError{Field: "pk"}
	}
	if row.Booking.ID == "" {
		return loyalty.TransactionEvent{},
			&serviceerrs.MalformedRecordError{Field: "bookingDetails.id"}
	}
	if row.Points < 0 {
		return loyalty.TransactionEvent{},
			&serviceerrs.MalformedRecordError{Field: "points"}
	}

	return loyalty.TransactionEvent{
		CustomerID: customerID,
		BookingID:  row.Booking.ID,
		Points:     row.Points,
		Increment:  rec.Kind != KindRemove,
	}, nil
}
