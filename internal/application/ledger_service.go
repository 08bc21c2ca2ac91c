package application

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/veloevents/service-booking-flow/internal/domain/cart"
	"github.com/veloevents/service-booking-flow/internal/domain/order"
	"github.com/veloevents/service-booking-flow/internal/domain/partner"
	"github.com/veloevents/service-booking-flow/internal/money"
)

// TopicOrderEvents carries order lifecycle events.
const TopicOrderEvents = "booking.order.events"

// EventOrderPaid is emitted once per order when payment completes.
const EventOrderPaid = "order.paid"

// Ledger is the accounting snapshot persisted to order meta.
type Ledger struct {
	SubtotalOriginal float64 `json:"subtotal_original"`
	EBDiscountPct    float64 `json:"early_booking_discount_pct"`
	EBDiscountAmount float64 `json:"early_booking_discount_amount"`
	EBDaysBefore     int     `json:"eb_days_before"`
	EBEventID        int64   `json:"eb_event_id"`
	EBEventStartTS   int64   `json:"eb_event_start_ts"`
	PartnerBaseTotal float64 `json:"partner_base_total"`
	ClientDiscount   float64 `json:"client_discount"`
	ClientTotal      float64 `json:"client_total"`
	Commission       float64 `json:"partner_commission"`
	PartnerID        int64   `json:"partner_id,omitempty"`
	PartnerCode      string  `json:"partner_code,omitempty"`
	Version          string  `json:"ledger_version"`
}

// LedgerService derives the per-order accounting ledger from line snapshots
// and persists it to order meta exactly once.
type LedgerService struct {
	orders    order.Repository
	users     partner.UserStore
	coupons   partner.CouponStore
	publisher EventPublisher
	logger    *zap.Logger
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(
	orders order.Repository,
	users partner.UserStore,
	coupons partner.CouponStore,
	publisher EventPublisher,
	logger *zap.Logger,
) *LedgerService {
	return &LedgerService{
		orders:    orders,
		users:     users,
		coupons:   coupons,
		publisher: publisher,
		logger:    logger,
	}
}

// PersistPartnerMeta resolves the order's coupon codes back to a partner
// account and stamps the partner attribution meta. Idempotent: once a
// partner code is recorded the order is never restamped.
func (s *LedgerService) PersistPartnerMeta(ctx context.Context, orderID int64) error {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.MetaValue(order.MetaPartnerCode) != "" {
		return nil
	}

	for _, raw := range o.CouponCodes {
		code := partner.NormalizeCode(raw)
		if code == "" {
			continue
		}
		coupon, err := s.coupons.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		if coupon == nil {
			continue
		}

		var pct float64
		if coupon.DiscountType == partner.CouponTypePercent && coupon.Amount > 0 {
			pct = coupon.Amount
		}
		meta := map[string]string{
			order.MetaPartnerCode:        code,
			order.MetaPartnerCouponType:  coupon.DiscountType,
			order.MetaPartnerDiscountPct: money.ToCanonicalString(pct),
		}
		owner, err := s.users.FindByDiscountCode(ctx, code)
		if err != nil {
			return err
		}
		if owner != nil {
			meta[order.MetaPartnerID] = strconv.FormatInt(owner.ID, 10)
			meta[order.MetaPartnerCommissionRate] = money.ToCanonicalString(owner.CommissionRate)
		}
		s.logger.Info("partner attribution stamped",
			zap.Int64("order_id", orderID), zap.String("code", code))
		return s.orders.UpdateMeta(ctx, orderID, meta)
	}
	return nil
}

// Write computes and persists the ledger for an order. Idempotent: a
// second call on an already-stamped order is a no-op, so retried payment
// webhooks cannot double-write.
//
// Rounding contract: the client discount is rounded first and the client
// total derived by subtraction, so discount plus total always reconstructs
// the partner base exactly.
func (s *LedgerService) Write(ctx context.Context, orderID int64) (*Ledger, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.MetaValue(order.MetaLedgerVersion) != "" {
		s.logger.Debug("ledger already written", zap.Int64("order_id", orderID))
		return s.Read(ctx, orderID)
	}

	items, err := s.orders.Items(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var (
		subtotal float64
		ebTotal  float64
		pctSeen  float64
		days     int
		eventID  int64
		startTS  int64
	)
	for _, it := range items {
		evRaw := it.MetaValue(cart.MetaEventID)
		if evRaw == "" {
			continue
		}
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}

		lineBase := it.Subtotal
		if base := money.ToFloat(it.MetaValue(cart.MetaEBBasePrice)); base > 0 {
			lineBase = base * float64(qty)
		}
		if lineBase <= 0 {
			continue
		}
		subtotal += lineBase

		amt := money.ToFloat(it.MetaValue(cart.MetaEBAmount))
		if amt <= 0 {
			if pct := money.ToFloat(it.MetaValue(cart.MetaEBPct)); pct > 0 {
				amt = lineBase * pct / 100
			}
		}
		if amt > lineBase {
			amt = lineBase
		}
		if amt > 0 {
			ebTotal += amt
		}

		if pct := money.ToFloat(it.MetaValue(cart.MetaEBPct)); pct > pctSeen {
			pctSeen = pct
		}
		if days == 0 {
			if d, err := strconv.Atoi(strings.TrimSpace(it.MetaValue(cart.MetaEBDaysBefore))); err == nil {
				days = d
			}
		}
		if eventID == 0 {
			eventID, _ = strconv.ParseInt(strings.TrimSpace(evRaw), 10, 64)
		}
		if startTS == 0 {
			startTS, _ = strconv.ParseInt(strings.TrimSpace(it.MetaValue(cart.MetaEBEventTS)), 10, 64)
		}
	}

	if subtotal <= 0 {
		s.logger.Debug("no priceable booking lines, ledger skipped",
			zap.Int64("order_id", orderID))
		return nil, nil
	}

	subtotal = money.Round(subtotal)
	ebTotal = money.Round(ebTotal)
	partnerBase := money.Round(subtotal - ebTotal)
	if partnerBase < 0 {
		partnerBase = 0
	}

	partnerPct := money.ToFloat(o.MetaValue(order.MetaPartnerDiscountPct))
	commissionRate := money.ToFloat(o.MetaValue(order.MetaPartnerCommissionRate))

	// Discount first, total by subtraction. A discount above the base
	// (percent coupons over 100 are admin-enterable) floors the total at zero.
	clientDiscount := money.Round(partnerBase * partnerPct / 100)
	clientTotal := money.Round(partnerBase - clientDiscount)
	if clientTotal < 0 {
		clientTotal = 0
	}
	commission := money.Round(partnerBase * commissionRate / 100)

	meta := map[string]string{
		order.MetaSubtotalOriginal:  money.ToCanonicalString(subtotal),
		order.MetaEBDiscountPct:     money.ToCanonicalString(pctSeen),
		order.MetaEBDiscountAmount:  money.ToCanonicalString(ebTotal),
		order.MetaEBDaysBefore:      strconv.Itoa(days),
		order.MetaPartnerBaseTotal:  money.ToCanonicalString(partnerBase),
		order.MetaClientDiscount:    money.ToCanonicalString(clientDiscount),
		order.MetaClientTotal:       money.ToCanonicalString(clientTotal),
		order.MetaPartnerCommission: money.ToCanonicalString(commission),
		order.MetaLedgerVersion:     order.LedgerVersion,
	}
	if eventID > 0 {
		meta[order.MetaEBEventID] = strconv.FormatInt(eventID, 10)
	}
	if startTS > 0 {
		meta[order.MetaEBEventStartTS] = strconv.FormatInt(startTS, 10)
	}

	if err := s.orders.UpdateMeta(ctx, orderID, meta); err != nil {
		return nil, err
	}
	s.logger.Info("order ledger written",
		zap.Int64("order_id", orderID),
		zap.Float64("subtotal_original", subtotal),
		zap.Float64("partner_base_total", partnerBase),
		zap.Float64("client_total", clientTotal),
	)

	return &Ledger{
		SubtotalOriginal: subtotal,
		EBDiscountPct:    pctSeen,
		EBDiscountAmount: ebTotal,
		EBDaysBefore:     days,
		EBEventID:        eventID,
		EBEventStartTS:   startTS,
		PartnerBaseTotal: partnerBase,
		ClientDiscount:   clientDiscount,
		ClientTotal:      clientTotal,
		Commission:       commission,
		PartnerID:        parseID(o.MetaValue(order.MetaPartnerID)),
		PartnerCode:      o.MetaValue(order.MetaPartnerCode),
		Version:          order.LedgerVersion,
	}, nil
}

// Read reconstructs the ledger from persisted order meta. Returns nil when
// no ledger was ever written.
func (s *LedgerService) Read(ctx context.Context, orderID int64) (*Ledger, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.MetaValue(order.MetaLedgerVersion) == "" {
		return nil, nil
	}
	days, _ := strconv.Atoi(o.MetaValue(order.MetaEBDaysBefore))
	return &Ledger{
		SubtotalOriginal: money.ToFloat(o.MetaValue(order.MetaSubtotalOriginal)),
		EBDiscountPct:    money.ToFloat(o.MetaValue(order.MetaEBDiscountPct)),
		EBDiscountAmount: money.ToFloat(o.MetaValue(order.MetaEBDiscountAmount)),
		EBDaysBefore:     days,
		EBEventID:        parseID(o.MetaValue(order.MetaEBEventID)),
		EBEventStartTS:   parseID(o.MetaValue(order.MetaEBEventStartTS)),
		PartnerBaseTotal: money.ToFloat(o.MetaValue(order.MetaPartnerBaseTotal)),
		ClientDiscount:   money.ToFloat(o.MetaValue(order.MetaClientDiscount)),
		ClientTotal:      money.ToFloat(o.MetaValue(order.MetaClientTotal)),
		Commission:       money.ToFloat(o.MetaValue(order.MetaPartnerCommission)),
		PartnerID:        parseID(o.MetaValue(order.MetaPartnerID)),
		PartnerCode:      o.MetaValue(order.MetaPartnerCode),
		Version:          o.MetaValue(order.MetaLedgerVersion),
	}, nil
}

// NotifyPaid publishes the paid event for an order exactly once, keyed on
// a persisted dedupe flag so replayed payment events stay silent.
func (s *LedgerService) NotifyPaid(ctx context.Context, orderID int64) error {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.MetaValue(order.MetaPaidNotified) == "1" {
		return nil
	}

	items, err := s.orders.Items(ctx, orderID)
	if err != nil {
		return err
	}
	var entryIDs []int64
	for _, it := range items {
		if id := parseID(it.MetaValue(cart.MetaEntryID)); id > 0 {
			entryIDs = append(entryIDs, id)
		}
	}

	if s.publisher != nil {
		payload := map[string]any{
			"order_id":  orderID,
			"entry_ids": entryIDs,
		}
		if err := s.publisher.Publish(ctx, TopicOrderEvents, EventOrderPaid,
			strconv.FormatInt(orderID, 10), payload); err != nil {
			return err
		}
	}
	return s.orders.UpdateMeta(ctx, orderID, map[string]string{
		order.MetaPaidNotified: "1",
	})
}

func parseID(raw string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return v
}
