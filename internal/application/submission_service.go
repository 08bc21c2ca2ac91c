package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veloevents/service-booking-flow/internal/domain/cart"
	"github.com/veloevents/service-booking-flow/internal/domain/earlybooking"
	"github.com/veloevents/service-booking-flow/internal/domain/event"
	"github.com/veloevents/service-booking-flow/internal/domain/form"
	"github.com/veloevents/service-booking-flow/internal/domain/partner"
	"github.com/veloevents/service-booking-flow/internal/money"
)

// priceTolerance absorbs client-side float rounding; anything beyond it is
// treated as tampering or drift.
const priceTolerance = 0.02

// TopicCartEvents carries cart lifecycle events.
const TopicCartEvents = "booking.cart.events"

// EventCartLinesAdded is emitted after a submission created cart lines.
const EventCartLinesAdded = "cart.lines_added"

// FieldError is a user-visible validation failure bound to a form field.
type FieldError struct {
	FieldID string `json:"field_id"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.FieldID, e.Message)
}

// EventPublisher publishes domain events. Satisfied by the Kafka producer.
type EventPublisher interface {
	Publish(ctx context.Context, topic, eventType, key string, payload any) error
}

// ProductFallback maps a coarse event classification to a participation
// product id, used when no explicit or category-mapped product resolves.
type ProductFallback struct {
	// TDGSlugs classify an event as the named multi-day program.
	TDGSlugs []string
	// GuidedSlugs classify an event as a generic guided tour.
	GuidedSlugs []string
	TDGProduct    int64
	GuidedProduct int64
}

// SubmissionResult reports what a submission produced.
type SubmissionResult struct {
	Added        bool     `json:"added"`
	AlreadyAdded bool     `json:"already_added"`
	LineKeys     []string `json:"line_keys"`
	CouponCodes  []string `json:"coupon_codes,omitempty"`
}

// SubmitParams carries one submission into the cart.
type SubmitParams struct {
	SessionID string
	EntryID   int64
	Partner   partner.Context
}

// SubmissionService validates booking submissions against authoritative
// event pricing and turns them into snapshot-bearing cart lines.
type SubmissionService struct {
	events    event.Repository
	products  event.ProductRepository
	entries   form.Repository
	carts     cart.Store
	publisher EventPublisher
	fields    form.FieldMap
	fallback  ProductFallback
	now       func() time.Time
	logger    *zap.Logger
}

// NewSubmissionService creates a SubmissionService.
func NewSubmissionService(
	events event.Repository,
	products event.ProductRepository,
	entries form.Repository,
	carts cart.Store,
	publisher EventPublisher,
	fields form.FieldMap,
	fallback ProductFallback,
	now func() time.Time,
	logger *zap.Logger,
) *SubmissionService {
	if now == nil {
		now = time.Now
	}
	return &SubmissionService{
		events:    events,
		products:  products,
		entries:   entries,
		carts:     carts,
		publisher: publisher,
		fields:    fields,
		fallback:  fallback,
		now:       now,
		logger:    logger,
	}
}

// Validate cross-checks the submitted totals against event meta before any
// cart mutation. It may self-heal the entry's total when the client sent
// none; a wrong total is always rejected, never corrected.
func (s *SubmissionService) Validate(ctx context.Context, e *form.Entry) (*FieldError, error) {
	eventID, _ := strconv.ParseInt(strings.TrimSpace(e.Value(s.fields.EventID)), 10, 64)
	ev, err := s.events.FindByID(ctx, eventID)
	if err != nil || ev == nil {
		if err != nil && err != event.ErrNotFound {
			return nil, err
		}
		return &FieldError{
			FieldID: s.fields.EventID,
			Message: "Invalid event. Please reload the event page and try again.",
		}, nil
	}

	partRaw, err := s.events.Meta(ctx, eventID, event.MetaParticipationPrice)
	if err != nil {
		return nil, err
	}
	partPrice := money.ToFloat(partRaw)

	if partPrice > 0 {
		rentalKey := s.rentalPriceKey(e)
		var rentalPrice float64
		if rentalKey != "" {
			raw, err := s.events.Meta(ctx, eventID, rentalKey)
			if err != nil {
				return nil, err
			}
			rentalPrice = money.ToFloat(raw)
		}
		expected := partPrice + rentalPrice

		clientTotal, totalField := s.submittedTotal(e)
		if clientTotal > 0 {
			diff := clientTotal - expected
			if diff < 0 {
				diff = -diff
			}
			if diff > priceTolerance {
				return &FieldError{
					FieldID: totalField,
					Message: "Total: Price mismatch. Please refresh the page and submit again.",
				}, nil
			}
		} else {
			// Recovery path: the client supplied nothing, not a wrong value.
			e.Values[s.fields.Total] = money.ToCanonicalString(expected)
		}
	}

	// Rental consistency: a selected bike must carry product and resource.
	if raw := s.firstBikeChoice(e); raw != "" {
		pid, rid := splitBikeChoice(raw)
		if pid <= 0 || rid <= 0 {
			return &FieldError{
				FieldID: s.fields.RentalType,
				Message: "Invalid bicycle selection. Please reselect your bicycle and try again.",
			}, nil
		}
	}

	return nil, nil
}

// submittedTotal prefers the dedicated undiscounted-subtotal field over the
// legacy combined-total field when both are present.
func (s *SubmissionService) submittedTotal(e *form.Entry) (float64, string) {
	if s.fields.Subtotal != "" {
		if raw := strings.TrimSpace(e.Value(s.fields.Subtotal)); raw != "" {
			return money.ToFloat(raw), s.fields.Subtotal
		}
	}
	return money.ToFloat(e.Value(s.fields.Total)), s.fields.Total
}

// rentalPriceKey maps the rental-type selector to an event price meta key,
// falling back to whichever bike-choice field is populated.
func (s *SubmissionService) rentalPriceKey(e *form.Entry) string {
	if raw := strings.TrimSpace(e.Value(s.fields.RentalType)); raw != "" {
		if key := rentalKeyFromType(raw); key != "" {
			return key
		}
	}
	for i, fieldID := range s.fields.BikeChoices {
		if strings.TrimSpace(e.Value(fieldID)) != "" {
			switch i {
			case 0:
				return event.MetaRentalPriceRoad
			case 1:
				return event.MetaRentalPriceMTB
			case 2:
				return event.MetaRentalPriceEBike
			case 3:
				return event.MetaRentalPriceGravel
			}
		}
	}
	return ""
}

func rentalKeyFromType(raw string) string {
	rt := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(rt, "ROAD"):
		return event.MetaRentalPriceRoad
	case strings.HasPrefix(rt, "MTB"):
		return event.MetaRentalPriceMTB
	case strings.HasPrefix(rt, "EMTB"),
		strings.HasPrefix(rt, "E-MTB"),
		strings.HasPrefix(rt, "E MTB"):
		return event.MetaRentalPriceEBike
	case strings.HasPrefix(rt, "GRAVEL"):
		return event.MetaRentalPriceGravel
	}
	return ""
}

func (s *SubmissionService) firstBikeChoice(e *form.Entry) string {
	for _, fieldID := range s.fields.BikeChoices {
		if v := strings.TrimSpace(e.Value(fieldID)); v != "" {
			return v
		}
	}
	return ""
}

// splitBikeChoice parses "<productId>_<resourceId>".
func splitBikeChoice(raw string) (int64, int64) {
	parts := strings.SplitN(raw, "_", 3)
	var pid, rid int64
	if len(parts) > 0 {
		pid, _ = strconv.ParseInt(parts[0], 10, 64)
	}
	if len(parts) > 1 {
		rid, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	return pid, rid
}

// Submit turns a validated entry into cart lines. Idempotent: the entry's
// cart-added flag and a cart scan on the entry id each independently guard
// against duplicate adds, so retries and back-navigation are no-ops.
func (s *SubmissionService) Submit(ctx context.Context, p SubmitParams) (*SubmissionResult, error) {
	e, err := s.entries.FindByID(ctx, p.EntryID)
	if err != nil {
		return nil, err
	}

	added, err := s.entries.WasCartAdded(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if added {
		return &SubmissionResult{AlreadyAdded: true}, nil
	}

	lines, err := s.carts.Lines(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	if cart.ContainsEntry(lines, e.ID) {
		s.logger.Info("cart already contains entry, skipping add",
			zap.Int64("entry_id", e.ID),
		)
		if err := s.entries.MarkCartAdded(ctx, e.ID); err != nil {
			return nil, err
		}
		return &SubmissionResult{AlreadyAdded: true}, nil
	}

	eventID, _ := strconv.ParseInt(strings.TrimSpace(e.Value(s.fields.EventID)), 10, 64)
	ev, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	eventTitle := ev.Title
	if eventTitle == "" {
		eventTitle = e.Value(s.fields.EventTitle)
	}

	calc := earlybooking.NewCalculator(s.events, s.now, s.logger)
	ebCalc, err := calc.ForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	cfg := ebCalc.Config

	bikePID, bikeRID := splitBikeChoice(s.firstBikeChoice(e))
	hasRental := bikePID > 0 && bikeRID > 0

	partProduct, err := s.resolveParticipationProduct(ctx, ev)
	if err != nil {
		return nil, err
	}
	if partProduct == nil {
		// Configuration error: fail closed rather than create an
		// unbillable booking. Logged for operator diagnosis.
		s.logger.Error("no participation product resolved",
			zap.Int64("event_id", eventID),
			zap.Strings("slugs", ev.CategorySlugs),
		)
		return &SubmissionResult{}, nil
	}

	partRaw, err := s.events.Meta(ctx, eventID, event.MetaParticipationPrice)
	if err != nil {
		return nil, err
	}
	partPrice := money.ToFloat(partRaw)
	if partPrice <= 0 {
		// Last-resort safety net: snapshot the submitted total instead.
		partPrice = money.ToFloat(e.Value(s.fields.Total))
	}

	participant := strings.TrimSpace(
		e.Value(s.fields.FirstName) + " " + e.Value(s.fields.LastName),
	)

	partLine := cart.Line{
		ProductID:    partProduct.ID,
		Quantity:     1,
		EventID:      eventID,
		EventTitle:   eventTitle,
		EntryID:      e.ID,
		Scope:        cart.ScopeParticipation,
		Participant:  participant,
		EBEligible:   cfg.Enabled && cfg.ParticipationEnabled,
		EBDaysBefore: ebCalc.DaysBefore,
		EBEventStart: ebCalc.EventStartTS,
		StartTS:      ev.StartTS,
		DurationDays: ev.DurationDays(),
	}
	if partPrice > 0 {
		partLine.CustomCost = cart.NewSnapshot(partPrice)
	}
	// Legacy scheme: a resource-requiring participation product borrows the
	// rental resource.
	if partProduct.HasResources && hasRental {
		partLine.ResourceID = bikeRID
	}

	// Eligible bases across scopes, discount computed once on the combined
	// base and distributed proportionally.
	var rentalPrice float64
	rentalEligible := false
	var rentalProduct *event.Product
	if hasRental {
		rentalProduct, err = s.products.FindByID(ctx, bikePID)
		if err != nil {
			return nil, err
		}
		if rentalProduct != nil && !rentalProduct.Bookable {
			rentalProduct = nil
		}
		if rentalProduct != nil {
			rentalEligible = cfg.Enabled && cfg.RentalEnabled
			rentalPrice, err = s.eventRentalPrice(ctx, eventID, e, rentalProduct)
			if err != nil {
				return nil, err
			}
		}
	}

	bases := map[string]float64{}
	if partLine.EBEligible && partLine.CustomCost.IsSet() && partLine.CustomCost.Amount() > 0 {
		bases[string(cart.ScopeParticipation)] = partLine.CustomCost.Amount()
	}
	if rentalEligible && rentalPrice > 0 {
		bases[string(cart.ScopeRental)] = rentalPrice
	}

	var effPct float64
	amounts := map[string]float64{}
	if cfg.Enabled && len(bases) > 0 && ebCalc.Step != nil {
		var combined float64
		for _, b := range bases {
			combined += b
		}
		comp := earlybooking.ComputeAmount(combined, *ebCalc.Step, cfg.GlobalCap)
		effPct = comp.EffectivePct
		if comp.Amount > 0 {
			amounts = earlybooking.Distribute(comp.Amount, bases, string(cart.ScopeRental))
		}
	}

	if partLine.EBEligible {
		partLine.EBPct = money.Round(effPct)
		partLine.EBAmount = amounts[string(cart.ScopeParticipation)]
		if partLine.CustomCost.IsSet() {
			partLine.EBBasePrice = partLine.CustomCost
		}
	}

	var (
		keys  []string
		metas []map[string]string
	)
	partKey, err := s.carts.Add(ctx, p.SessionID, partLine)
	if err != nil {
		return nil, fmt.Errorf("add participation line: %w", err)
	}
	keys = append(keys, partKey)
	metas = append(metas, partLine.Meta())
	s.logger.Info("participation line added",
		zap.Int64("event_id", eventID),
		zap.Int64("product_id", partProduct.ID),
		zap.String("custom_cost", partLine.CustomCost.String()),
	)

	if rentalProduct != nil {
		rentalLine := cart.Line{
			ProductID:    bikePID,
			ResourceID:   bikeRID,
			Quantity:     1,
			EventID:      eventID,
			EventTitle:   eventTitle,
			EntryID:      e.ID,
			Scope:        cart.ScopeRental,
			Participant:  participant,
			BicycleLabel: rentalProduct.Name,
			EBEligible:   rentalEligible,
			EBDaysBefore: ebCalc.DaysBefore,
			EBEventStart: ebCalc.EventStartTS,
			StartTS:      ev.StartTS,
			DurationDays: ev.DurationDays(),
		}
		if rentalPrice > 0 {
			rentalLine.CustomCost = cart.NewSnapshot(rentalPrice)
		}
		if rentalEligible {
			rentalLine.EBPct = money.Round(effPct)
			rentalLine.EBAmount = amounts[string(cart.ScopeRental)]
			if rentalLine.CustomCost.IsSet() {
				rentalLine.EBBasePrice = rentalLine.CustomCost
			}
		}

		rentalKey, err := s.carts.Add(ctx, p.SessionID, rentalLine)
		if err != nil {
			s.logger.Error("rental line add failed", zap.Error(err),
				zap.Int64("product_id", bikePID))
		} else {
			keys = append(keys, rentalKey)
			metas = append(metas, rentalLine.Meta())
		}
	}

	// Partner coupon is applied only after at least one line exists.
	if p.Partner.Active && p.Partner.Code != "" && len(keys) > 0 {
		ok, err := s.carts.ApplyCoupon(ctx, p.SessionID, p.Partner.Code)
		if err != nil {
			return nil, err
		}
		s.logger.Info("partner coupon applied",
			zap.String("code", p.Partner.Code), zap.Bool("ok", ok))
	}
	couponCodes, err := s.carts.Coupons(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}

	if err := s.entries.MarkCartAdded(ctx, e.ID); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		payload := map[string]any{
			"entry_id":  e.ID,
			"event_id":  eventID,
			"line_keys": keys,
			"lines":     metas,
		}
		if err := s.publisher.Publish(ctx, TopicCartEvents, EventCartLinesAdded,
			strconv.FormatInt(e.ID, 10), payload); err != nil {
			s.logger.Error("publish cart event failed", zap.Error(err))
		}
	}

	return &SubmissionResult{Added: true, LineKeys: keys, CouponCodes: couponCodes}, nil
}

// resolveParticipationProduct walks the resolution chain: explicit event
// override, legacy product meta, category mapping, then the configured
// fallback map. Each candidate must exist and be bookable.
func (s *SubmissionService) resolveParticipationProduct(ctx context.Context, ev *event.Event) (*event.Product, error) {
	for _, key := range []string{event.MetaParticipationProductID, event.MetaLegacyProductID} {
		raw, err := s.events.Meta(ctx, ev.ID, key)
		if err != nil {
			return nil, err
		}
		pid, _ := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if pid <= 0 {
			continue
		}
		product, err := s.products.FindByID(ctx, pid)
		if err != nil {
			return nil, err
		}
		if product != nil && product.Bookable {
			return product, nil
		}
	}

	if len(ev.CategorySlugs) > 0 {
		product, err := s.products.FindByCategoryKeys(ctx, ev.CategorySlugs)
		if err != nil {
			return nil, err
		}
		if product != nil && product.Bookable {
			return product, nil
		}
	}

	pid := s.fallback.GuidedProduct
	if slugsIntersect(s.fallback.TDGSlugs, ev.CategorySlugs) {
		pid = s.fallback.TDGProduct
	}
	if pid > 0 {
		product, err := s.products.FindByID(ctx, pid)
		if err != nil {
			return nil, err
		}
		if product != nil && product.Bookable {
			return product, nil
		}
	}
	return nil, nil
}

func slugsIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// eventRentalPrice resolves the fixed per-event rental price from the
// rental-type selector, falling back to the rental product's category key.
func (s *SubmissionService) eventRentalPrice(ctx context.Context, eventID int64, e *form.Entry, product *event.Product) (float64, error) {
	key := ""
	if raw := strings.TrimSpace(e.Value(s.fields.RentalType)); raw != "" {
		key = rentalKeyFromType(raw)
	}
	if key == "" && product != nil {
		switch product.CategoryKey {
		case "rental_road":
			key = event.MetaRentalPriceRoad
		case "rental_mtb":
			key = event.MetaRentalPriceMTB
		case "rental_emtb":
			key = event.MetaRentalPriceEBike
		case "rental_gravel":
			key = event.MetaRentalPriceGravel
		}
	}
	if key == "" {
		return 0, nil
	}
	raw, err := s.events.Meta(ctx, eventID, key)
	if err != nil {
		return 0, err
	}
	return money.ToFloat(raw), nil
}
