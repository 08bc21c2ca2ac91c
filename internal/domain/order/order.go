// Package order exposes the slice of the commerce order the ledger writer
// reads and annotates.
package order

import (
	"context"
	"errors"
)

// Order meta keys for the accounting ledger. Storage contract.
const (
	MetaSubtotalOriginal  = "subtotal_original"
	MetaEBDiscountPct     = "early_booking_discount_pct"
	MetaEBDiscountAmount  = "early_booking_discount_amount"
	MetaEBDaysBefore      = "eb_days_before"
	MetaEBEventID         = "eb_event_id"
	MetaEBEventStartTS    = "eb_event_start_ts"
	MetaPartnerBaseTotal  = "partner_base_total"
	MetaClientTotal       = "client_total"
	MetaClientDiscount    = "client_discount"
	MetaPartnerCommission = "partner_commission"
	MetaLedgerVersion     = "tc_ledger_version"

	MetaPartnerID             = "partner_id"
	MetaPartnerCode           = "partner_code"
	MetaPartnerCouponType     = "partner_coupon_type"
	MetaPartnerDiscountPct    = "partner_discount_pct"
	MetaPartnerCommissionRate = "partner_commission_rate"

	// MetaPaidNotified dedupes the paid-notification event per order.
	MetaPaidNotified = "_tc_paid_notified"

	LedgerVersion = "2"
)

// ErrNotFound is returned when an order id does not resolve to an order.
var ErrNotFound = errors.New("order not found")

// Item is one order line with its persisted meta map.
type Item struct {
	ID       int64
	OrderID  int64
	Quantity int
	Subtotal float64
	Meta     map[string]string
}

// MetaValue returns the item's meta value or "" when absent.
func (i Item) MetaValue(key string) string {
	if i.Meta == nil {
		return ""
	}
	return i.Meta[key]
}

// Order is the order-level view: meta map plus applied coupon codes.
type Order struct {
	ID          int64
	Meta        map[string]string
	CouponCodes []string
}

// MetaValue returns the order meta value or "" when absent.
func (o *Order) MetaValue(key string) string {
	if o.Meta == nil {
		return ""
	}
	return o.Meta[key]
}

// Repository reads orders and writes order meta.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Order, error)
	Items(ctx context.Context, orderID int64) ([]Item, error)
	// UpdateMeta merges the given keys into the order's meta map.
	UpdateMeta(ctx context.Context, orderID int64, meta map[string]string) error
}
