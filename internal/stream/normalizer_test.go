package stream

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
)

func testTransaction(customerID, bookingID string, points int64) *loyalty.Transaction {
	return &loyalty.Transaction{
		ID:         "tx-" + bookingID,
		CustomerID: customerID,
		Booking: loyalty.Booking{
			ID:               bookingID,
			Reference:        "REF-" + bookingID,
			OutboundFlightID: "flight-1",
		},
		Payment: loyalty.Payment{
			Receipt: "receipt-" + bookingID,
			Amount:  points,
		},
		Points: points,
		Status: loyalty.StatusActive,
	}
}

func TestNormalizer_insert_and_remove(t *testing.T) {
	ins, err := InsertRecord(testTransaction("c1", "b1", 100))
	require.NoError(t, err)
	rem, err := RemoveRecord(testTransaction("c1", "b2", 50))
	require.NoError(t, err)

	n := NewNormalizer(slog.Default())
	events, malformed := n.Normalize(context.Background(), []ChangeRecord{ins, rem})

	require.Len(t, events, 2)
	assert.Zero(t, malformed)
	assert.Equal(t,
		loyalty.TransactionEvent{
			CustomerID: "c1", BookingID: "b1", Points: 100, Increment: true,
		},
		events[0])
	assert.Equal(t,
		loyalty.TransactionEvent{
			CustomerID: "c1", BookingID: "b2", Points: 50, Increment: false,
		},
		events[1])
}

func TestNormalizer_drops_noise(t *testing.T) {
	ins, err := InsertRecord(testTransaction("c1", "b1", 100))
	require.NoError(t, err)

	modify := ins
	modify.Kind = KindModify

	aggregate := ChangeRecord{
		Kind: KindInsert,
		Keys: Keys{PK: "CUSTOMER#c1", SK: "AGGREGATE"},
		NewImage: []byte(
			`{"pk":"CUSTOMER#c1","sk":"AGGREGATE","totalPoints":100}`),
	}

	tests := []struct {
		name   string
		record ChangeRecord
	}{
		{"modify record", modify},
		{"aggregate row record", aggregate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer(slog.Default())
			events, malformed := n.Normalize(
				context.Background(), []ChangeRecord{tt.record})
			assert.Empty(t, events)
			assert.Zero(t, malformed)
		})
	}
}

func TestNormalizer_malformed_records_do_not_abort_batch(t *testing.T) {
	good, err := InsertRecord(testTransaction("c2", "b7", 25))
	require.NoError(t, err)

	tests := []struct {
		name string
		bad  ChangeRecord
	}{
		{
			"missing image",
			ChangeRecord{
				Kind: KindInsert,
				Keys: Keys{PK: "CUSTOMER#c9", SK: "TRANSACTION#t9"},
			},
		},
		{
			"unparseable image",
			ChangeRecord{
				Kind:     KindInsert,
				Keys:     Keys{PK: "CUSTOMER#c9", SK: "TRANSACTION#t9"},
				NewImage: []byte(`{not-json`),
			},
		},
		{
			"missing booking id",
			ChangeRecord{
				Kind:     KindInsert,
				Keys:     Keys{PK: "CUSTOMER#c9", SK: "TRANSACTION#t9"},
				NewImage: []byte(`{"pk":"CUSTOMER#c9","points":10}`),
			},
		},
		{
			"missing customer id",
			ChangeRecord{
				Kind: KindInsert,
				Keys: Keys{PK: "CUSTOMER#c9", SK: "TRANSACTION#t9"},
				NewImage: []byte(
					`{"points":10,"bookingDetails":{"id":"b9"}}`),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer(slog.Default())
			events, malformed := n.Normalize(
				context.Background(), []ChangeRecord{tt.bad, good})

			require.Len(t, events, 1)
			assert.Equal(t, 1, malformed)
			assert.Equal(t, "b7", events[0].BookingID)
		})
	}
}

func TestChangeRecord_BookingID(t *testing.T) {
	ins, err := InsertRecord(testTransaction("c1", "b42", 10))
	require.NoError(t, err)
	assert.Equal(t, "b42", ins.BookingID())

	rem, err := RemoveRecord(testTransaction("c1", "b43", 10))
	require.NoError(t, err)
	assert.Equal(t, "b43", rem.BookingID())

	empty := ChangeRecord{Kind: KindInsert}
	assert.Empty(t, empty.BookingID())
}
