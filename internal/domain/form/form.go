// Package form models the booking form submission: an entry record with
// field-id keyed values, mirrored from the external form engine.
package form

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an entry id does not resolve to an entry.
var ErrNotFound = errors.New("entry not found")

// Entry is one form submission with a stable numeric id.
type Entry struct {
	ID     int64
	FormID int64
	// Values is keyed by form field id.
	Values map[string]string
	// CartAdded marks that this entry's cart lines were already created.
	CartAdded bool
}

// Value returns a field value or "" when absent.
func (e *Entry) Value(fieldID string) string {
	if e.Values == nil {
		return ""
	}
	return e.Values[fieldID]
}

// Repository persists entries and the idempotency flag.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Entry, error)
	Save(ctx context.Context, e *Entry) error
	MarkCartAdded(ctx context.Context, entryID int64) error
	WasCartAdded(ctx context.Context, entryID int64) (bool, error)
}

// FieldMap binds the handlers to the target form's field ids. The ids are
// form-specific and therefore configuration, resolved once at startup.
type FieldMap struct {
	EventID       string
	EventTitle    string
	Total         string
	Subtotal      string
	CouponCode    string
	AdminOverride string
	RentalType    string
	// BikeChoices are checked in order; the first non-empty value wins.
	BikeChoices []string
	FirstName   string
	LastName    string
	EBPct       string
}

// DefaultFieldMap matches the production booking form layout.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		EventID:       "20",
		EventTitle:    "1",
		Total:         "76",
		Subtotal:      "175",
		CouponCode:    "154",
		AdminOverride: "63",
		RentalType:    "106",
		BikeChoices:   []string{"130", "142", "143", "169"},
		FirstName:     "9",
		LastName:      "10",
		EBPct:         "172",
	}
}
