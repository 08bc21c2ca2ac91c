package application

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/veloevents/service-booking-flow/internal/domain/earlybooking"
	"github.com/veloevents/service-booking-flow/internal/domain/event"
	"github.com/veloevents/service-booking-flow/internal/money"
)

// Quote is the pre-submission early-booking preview shown on the booking
// form. DisplayPct is a whole number; fixed-amount steps surface no
// percentage and are applied server-side only. RentalPrices carries the
// per-category prices the form pre-populates its rental fields with.
type Quote struct {
	EventID      int64             `json:"event_id"`
	Enabled      bool              `json:"enabled"`
	DisplayPct   int               `json:"display_pct"`
	DaysBefore   int               `json:"days_before"`
	StartTS      int64             `json:"event_start_ts"`
	RentalPrices map[string]string `json:"rental_prices,omitempty"`
}

// rentalPriceKeys maps the rental category names of the quote payload to
// the event meta keys that hold their authoritative prices.
var rentalPriceKeys = map[string]string{
	"road":   event.MetaRentalPriceRoad,
	"mtb":    event.MetaRentalPriceMTB,
	"ebike":  event.MetaRentalPriceEBike,
	"gravel": event.MetaRentalPriceGravel,
}

// QuoteService answers early-booking preview queries.
type QuoteService struct {
	events event.Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewQuoteService creates a QuoteService.
func NewQuoteService(events event.Repository, now func() time.Time, logger *zap.Logger) *QuoteService {
	if now == nil {
		now = time.Now
	}
	return &QuoteService{events: events, now: now, logger: logger}
}

// EarlyBooking computes the applicable discount preview for an event.
// Unknown events and disabled configs both yield a zeroed quote, never an
// error, so the form renders without a badge instead of failing.
func (s *QuoteService) EarlyBooking(ctx context.Context, eventID int64) (Quote, error) {
	calc := earlybooking.NewCalculator(s.events, s.now, s.logger)
	c, err := calc.ForEvent(ctx, eventID)
	if err != nil {
		if err == event.ErrNotFound {
			return Quote{EventID: eventID}, nil
		}
		return Quote{}, err
	}
	prices, err := s.rentalPrices(ctx, eventID)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		EventID:      eventID,
		Enabled:      c.Enabled && c.Pct > 0,
		DisplayPct:   int(math.Round(c.Pct)),
		DaysBefore:   c.DaysBefore,
		StartTS:      c.EventStartTS,
		RentalPrices: prices,
	}, nil
}

// rentalPrices reads the per-category rental prices from event meta.
// Categories without a positive price are omitted.
func (s *QuoteService) rentalPrices(ctx context.Context, eventID int64) (map[string]string, error) {
	prices := map[string]string{}
	for name, key := range rentalPriceKeys {
		raw, err := s.events.Meta(ctx, eventID, key)
		if err != nil {
			return nil, err
		}
		if v := money.ToFloat(raw); v > 0 {
			prices[name] = money.ToCanonicalString(v)
		}
	}
	return prices, nil
}
