package stream

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/talx-hub/sky-loyalty/internal/model"
	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Kind string

const (
	KindInsert Kind = "INSERT"
	KindModify Kind = "MODIFY"
	KindRemove Kind = "REMOVE"
)

type Keys struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

// ChangeRecord is one entry of the transaction change log. Images hold the
// row snapshot before and after the change; which one is present depends on
// the kind.
type ChangeRecord struct {
	Kind     Kind                `json:"kind"`
	Keys     Keys                `json:"keys"`
	OldImage jsoniter.RawMessage `json:"oldImage,omitempty"`
	NewImage jsoniter.RawMessage `json:"newImage,omitempty"`
}

// rowImage is the persisted shape of a transaction row as it appears in the
// change log.
type rowImage struct {
	PK      string          `json:"pk"`
	SK      string          `json:"sk"`
	Points  int64           `json:"points"`
	Status  loyalty.Status  `json:"status"`
	Booking loyalty.Booking `json:"bookingDetails"`
	Payment loyalty.Payment `json:"paymentDetails"`
}

func (r *ChangeRecord) image() jsoniter.RawMessage {
	if r.Kind == KindRemove {
		return r.OldImage
	}
	return r.NewImage
}

// BookingID extracts the booking id from the relevant image. Returns an
// empty string for records that do not carry one.
func (r *ChangeRecord) BookingID() string {
	img := r.image()
	if len(img) == 0 {
		return ""
	}
	var row rowImage
	if err := json.Unmarshal(img, &row); err != nil {
		return ""
	}
	return row.Booking.ID
}

// IsAggregate reports whether the record describes the aggregate row itself
// rather than a transaction.
func (r *ChangeRecord) IsAggregate() bool {
	return strings.Contains(r.Keys.SK, model.AggregateSortKey)
}

func imageFor(t *loyalty.Transaction) (jsoniter.RawMessage, error) {
	row := rowImage{
		PK:      model.CustomerPartitionPrefix + t.CustomerID,
		SK:      model.TransactionSortKeyPrefix + t.ID,
		Points:  t.Points,
		Status:  t.Status,
		Booking: t.Booking,
		Payment: t.Payment,
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal row image: %w", err)
	}
	return raw, nil
}

// InsertRecord builds the change record the log emits when a transaction row
// is created.
func InsertRecord(t *loyalty.Transaction) (ChangeRecord, error) {
	img, err := imageFor(t)
	if err != nil {
		return ChangeRecord{}, err
	}
	return ChangeRecord{
		Kind: KindInsert,
		Keys: Keys{
			PK: model.CustomerPartitionPrefix + t.CustomerID,
			SK: model.TransactionSortKeyPrefix + t.ID,
		},
		NewImage: img,
	}, nil
}

// RemoveRecord builds the change record the log emits when a transaction row
// is removed or its points are reversed.
func RemoveRecord(t *loyalty.Transaction) (ChangeRecord, error) {
	img, err := imageFor(t)
	if err != nil {
		return ChangeRecord{}, err
	}
	return ChangeRecord{
		Kind: KindRemove,
		Keys: Keys{
			PK: model.CustomerPartitionPrefix + t.CustomerID,
			SK: model.TransactionSortKeyPrefix + t.ID,
		},
		OldImage: img,
	}, nil
}
