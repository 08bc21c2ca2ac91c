package event

import (
	"context"
	"errors"
)

// Meta keys persisted per event. These are stable storage contracts and must
// not be renamed.
const (
	MetaEBEnabled              = "tc_ebd_enabled"
	MetaEBParticipationEnabled = "tc_ebd_participation_enabled"
	MetaEBRentalEnabled        = "tc_ebd_rental_enabled"
	MetaEBRulesJSON            = "tc_ebd_rules_json"

	// MetaEBCap is the deprecated single global cap amount. A global_cap
	// object inside the rules JSON takes precedence when both exist.
	MetaEBCap = "tc_ebd_cap"

	MetaParticipationPrice = "event_price"
	MetaRentalPriceRoad    = "rental_price_road"
	MetaRentalPriceMTB     = "rental_price_mtb"
	MetaRentalPriceEBike   = "rental_price_ebike"
	MetaRentalPriceGravel  = "rental_price_gravel"

	MetaParticipationProductID = "tc_participation_product_id"
	MetaLegacyProductID        = "tc_product_id"
)

// ErrNotFound is returned when an event id does not resolve to an event.
var ErrNotFound = errors.New("event not found")

// Event is a bookable cycling event.
type Event struct {
	ID            int64
	Title         string
	StartTS       int64
	EndTS         int64
	CategorySlugs []string
}

// DurationDays returns the whole-day duration of the event, end exclusive,
// never less than one day.
func (e *Event) DurationDays() int {
	secs := e.EndTS - e.StartTS
	if secs < 86400 {
		return 1
	}
	days := int(secs / 86400)
	if secs%86400 != 0 {
		days++
	}
	return days
}

// Repository reads events and their string-valued metadata.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Event, error)
	// Meta returns the raw meta value for key, or "" when absent.
	Meta(ctx context.Context, eventID int64, key string) (string, error)
	SetMeta(ctx context.Context, eventID int64, key, value string) error
}

// Product is a purchasable (bookable) product referenced by cart lines.
type Product struct {
	ID           int64
	Name         string
	Bookable     bool
	CategoryKey  string
	HasResources bool
}

// ProductRepository resolves products for participation and rental lines.
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (*Product, error)
	// FindByCategoryKeys returns the first bookable product whose category
	// key matches any of the given event category slugs.
	FindByCategoryKeys(ctx context.Context, slugs []string) (*Product, error)
}
