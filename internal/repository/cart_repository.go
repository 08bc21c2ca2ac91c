package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	cartDomain "github.com/veloevents/service-booking-flow/internal/domain/cart"
	partnerDomain "github.com/veloevents/service-booking-flow/internal/domain/partner"
)

// CartItemModel is the GORM model for the cart_items table. The booking
// payload is stored as one JSONB document per line.
type CartItemModel struct {
	Key       string    `gorm:"type:varchar(64);primaryKey"`
	SessionID string    `gorm:"type:varchar(128);not null;index"`
	Payload   []byte    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (CartItemModel) TableName() string { return "cart_items" }

// CartCouponModel is the GORM model for the cart_coupons table.
type CartCouponModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_cart_coupon,priority:1"`
	Code      string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_cart_coupon,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (CartCouponModel) TableName() string { return "cart_coupons" }

// linePayload is the persisted shape of a cart line. Snapshots are split
// into a set flag and an amount so the write-once semantics survive the
// round-trip.
type linePayload struct {
	ProductID  int64 `json:"product_id"`
	ResourceID int64 `json:"resource_id,omitempty"`
	Quantity   int   `json:"quantity"`

	EventID    int64  `json:"event_id"`
	EventTitle string `json:"event_title"`
	EntryID    int64  `json:"entry_id"`
	Scope      string `json:"scope"`

	Participant  string `json:"participant,omitempty"`
	BicycleLabel string `json:"bicycle,omitempty"`

	CustomCostSet bool    `json:"custom_cost_set"`
	CustomCost    float64 `json:"custom_cost"`

	EBEligible   bool    `json:"eb_eligible"`
	EBPct        float64 `json:"eb_pct"`
	EBAmount     float64 `json:"eb_amount"`
	EBDaysBefore int     `json:"eb_days_before"`
	EBBaseSet    bool    `json:"eb_base_set"`
	EBBasePrice  float64 `json:"eb_base_price"`
	EBEventStart int64   `json:"eb_event_start_ts"`

	StartTS      int64 `json:"start_ts"`
	DurationDays int   `json:"duration_days"`
}

// GormCartStore implements cart.Store using GORM. Coupon codes are
// validated against the coupons table before they attach to a session.
type GormCartStore struct {
	db *gorm.DB
}

// NewGormCartStore creates a new GormCartStore.
func NewGormCartStore(db *gorm.DB) *GormCartStore {
	return &GormCartStore{db: db}
}

// Add appends a line and returns its generated cart key.
func (s *GormCartStore) Add(ctx context.Context, sessionID string, line cartDomain.Line) (string, error) {
	payload, err := json.Marshal(toLinePayload(line))
	if err != nil {
		return "", err
	}
	model := CartItemModel{
		Key:       uuid.NewString(),
		SessionID: sessionID,
		Payload:   payload,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return "", err
	}
	return model.Key, nil
}

// Lines returns all lines in the session's cart.
func (s *GormCartStore) Lines(ctx context.Context, sessionID string) ([]cartDomain.Line, error) {
	var models []CartItemModel
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	lines := make([]cartDomain.Line, 0, len(models))
	for _, m := range models {
		var p linePayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, err
		}
		lines = append(lines, fromLinePayload(m.Key, p))
	}
	return lines, nil
}

// ApplyCoupon attaches a known coupon code to the session's cart. Unknown
// codes report false without error; duplicate applications are no-ops.
func (s *GormCartStore) ApplyCoupon(ctx context.Context, sessionID, code string) (bool, error) {
	code = partnerDomain.NormalizeCode(code)
	if code == "" {
		return false, nil
	}

	var coupon CouponModel
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	model := CartCouponModel{SessionID: sessionID, Code: code}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// Coupons returns the codes attached to a session's cart.
func (s *GormCartStore) Coupons(ctx context.Context, sessionID string) ([]string, error) {
	var models []CartCouponModel
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	codes := make([]string, len(models))
	for i, m := range models {
		codes[i] = m.Code
	}
	return codes, nil
}

func toLinePayload(l cartDomain.Line) linePayload {
	return linePayload{
		ProductID:     l.ProductID,
		ResourceID:    l.ResourceID,
		Quantity:      l.Quantity,
		EventID:       l.EventID,
		EventTitle:    l.EventTitle,
		EntryID:       l.EntryID,
		Scope:         string(l.Scope),
		Participant:   l.Participant,
		BicycleLabel:  l.BicycleLabel,
		CustomCostSet: l.CustomCost.IsSet(),
		CustomCost:    l.CustomCost.Amount(),
		EBEligible:    l.EBEligible,
		EBPct:         l.EBPct,
		EBAmount:      l.EBAmount,
		EBDaysBefore:  l.EBDaysBefore,
		EBBaseSet:     l.EBBasePrice.IsSet(),
		EBBasePrice:   l.EBBasePrice.Amount(),
		EBEventStart:  l.EBEventStart,
		StartTS:       l.StartTS,
		DurationDays:  l.DurationDays,
	}
}

func fromLinePayload(key string, p linePayload) cartDomain.Line {
	line := cartDomain.Line{
		Key:          key,
		ProductID:    p.ProductID,
		ResourceID:   p.ResourceID,
		Quantity:     p.Quantity,
		EventID:      p.EventID,
		EventTitle:   p.EventTitle,
		EntryID:      p.EntryID,
		Scope:        cartDomain.Scope(p.Scope),
		Participant:  p.Participant,
		BicycleLabel: p.BicycleLabel,
		EBEligible:   p.EBEligible,
		EBPct:        p.EBPct,
		EBAmount:     p.EBAmount,
		EBDaysBefore: p.EBDaysBefore,
		EBEventStart: p.EBEventStart,
		StartTS:      p.StartTS,
		DurationDays: p.DurationDays,
	}
	if p.CustomCostSet {
		line.CustomCost = cartDomain.NewSnapshot(p.CustomCost)
	}
	if p.EBBaseSet {
		line.EBBasePrice = cartDomain.NewSnapshot(p.EBBasePrice)
	}
	return line
}
