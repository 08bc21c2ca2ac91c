// Package cart models booking cart lines with immutable cost snapshots.
// A snapshot is computed once at submission time; downstream recalculation
// applies the stored value instead of recomputing, which is what keeps the
// booking engine's own re-pricing from drifting line costs.
package cart

import (
	"context"
	"strconv"

	"github.com/veloevents/service-booking-flow/internal/money"
)

// Scope distinguishes the two priceable lines of a booking.
type Scope string

const (
	ScopeParticipation Scope = "participation"
	ScopeRental        Scope = "rental"
)

// Line item meta keys, persisted on cart and order lines. Storage contract.
const (
	MetaEventID      = "_event_id"
	MetaEventTitle   = "_event_title"
	MetaEntryID      = "_entry_id"
	MetaCustomCost   = "_custom_cost"
	MetaScope        = "_tc_scope"
	MetaEBPct        = "_eb_pct"
	MetaEBAmount     = "_eb_amount"
	MetaEBEligible   = "_eb_eligible"
	MetaEBDaysBefore = "_eb_days_before"
	MetaEBBasePrice  = "_eb_base_price"
	MetaEBEventTS    = "_eb_event_start_ts"
	MetaParticipant  = "_participant"
	MetaBicycle      = "_bicycle"
)

// Snapshot is a write-once monetary value. The zero value is unset; once
// constructed the amount cannot change, there is no mutator.
type Snapshot struct {
	set    bool
	amount float64
}

// NewSnapshot captures an amount, rounded to cents.
func NewSnapshot(amount float64) Snapshot {
	return Snapshot{set: true, amount: money.Round(amount)}
}

// IsSet reports whether the snapshot was ever taken.
func (s Snapshot) IsSet() bool { return s.set }

// Amount returns the captured value, 0 when unset.
func (s Snapshot) Amount() float64 { return s.amount }

// String renders the canonical two-decimal form, "" when unset.
func (s Snapshot) String() string {
	if !s.set {
		return ""
	}
	return money.ToCanonicalString(s.amount)
}

// Line is one cart line with its booking payload and audit snapshot.
type Line struct {
	Key        string
	ProductID  int64
	ResourceID int64
	Quantity   int

	EventID    int64
	EventTitle string
	EntryID    int64
	Scope      Scope

	Participant  string
	BicycleLabel string

	// CustomCost is the authoritative unit price; the booking engine's own
	// cost calculation is overridden with it.
	CustomCost Snapshot

	EBEligible   bool
	EBPct        float64
	EBAmount     float64
	EBDaysBefore int
	// EBBasePrice is the pre-discount base, set once when the discount is
	// first applied and read thereafter.
	EBBasePrice  Snapshot
	EBEventStart int64

	StartTS      int64
	DurationDays int
}

// EffectivePrice is the line price after applying the early-booking
// snapshot. Without an eligible discount it is the custom cost itself.
func (l *Line) EffectivePrice() float64 {
	if !l.CustomCost.IsSet() {
		return 0
	}
	base := l.CustomCost.Amount()
	if l.EBBasePrice.IsSet() {
		base = l.EBBasePrice.Amount()
	}
	if !l.EBEligible {
		return base
	}
	var disc float64
	switch {
	case l.EBAmount > 0:
		disc = money.Round(l.EBAmount)
	case l.EBPct > 0:
		disc = money.Round(base * (l.EBPct / 100))
	default:
		return base
	}
	out := money.Round(base - disc)
	if out < 0 {
		out = 0
	}
	return out
}

// Meta renders the line under the item meta contract. The order system
// copies these keys onto order items at checkout; the ledger writer reads
// them back.
func (l *Line) Meta() map[string]string {
	m := map[string]string{
		MetaEventID: strconv.FormatInt(l.EventID, 10),
		MetaEntryID: strconv.FormatInt(l.EntryID, 10),
		MetaScope:   string(l.Scope),
	}
	if l.EventTitle != "" {
		m[MetaEventTitle] = l.EventTitle
	}
	if l.Participant != "" {
		m[MetaParticipant] = l.Participant
	}
	if l.BicycleLabel != "" {
		m[MetaBicycle] = l.BicycleLabel
	}
	if l.CustomCost.IsSet() {
		m[MetaCustomCost] = l.CustomCost.String()
	}
	if l.EBEligible {
		m[MetaEBEligible] = "1"
		m[MetaEBPct] = money.ToCanonicalString(l.EBPct)
		m[MetaEBAmount] = money.ToCanonicalString(l.EBAmount)
		m[MetaEBDaysBefore] = strconv.Itoa(l.EBDaysBefore)
		if l.EBBasePrice.IsSet() {
			m[MetaEBBasePrice] = l.EBBasePrice.String()
		}
		if l.EBEventStart > 0 {
			m[MetaEBEventTS] = strconv.FormatInt(l.EBEventStart, 10)
		}
	}
	return m
}

// Store is the cart engine contract. Lines live in session-scoped storage.
type Store interface {
	// Add appends a line and returns its generated cart key.
	Add(ctx context.Context, sessionID string, line Line) (string, error)
	Lines(ctx context.Context, sessionID string) ([]Line, error)
	// ApplyCoupon attaches a coupon code to the session's cart, reporting
	// whether the coupon was accepted.
	ApplyCoupon(ctx context.Context, sessionID, code string) (bool, error)
	// Coupons returns the codes attached to the session's cart.
	Coupons(ctx context.Context, sessionID string) ([]string, error)
}

// ContainsEntry reports whether any line originates from the given form
// entry. Used as the second, independent duplicate-submission guard.
func ContainsEntry(lines []Line, entryID int64) bool {
	for _, l := range lines {
		if l.EntryID == entryID {
			return true
		}
	}
	return false
}
