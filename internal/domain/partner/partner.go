// Package partner resolves referral partners: an affiliated business with a
// customer-facing discount coupon and a commission rate paid on bookings.
package partner

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Coupon discount types as stored by the coupon system. Only percent
// coupons surface a discount percentage to the partner context.
const (
	CouponTypePercent = "percent"
	CouponTypeFixed   = "fixed_cart"
)

// Context is the partner identity resolved for one request. The zero value
// means no partner applies.
type Context struct {
	Active        bool    `json:"active"`
	Code          string  `json:"code"`
	DiscountPct   float64 `json:"discount_pct"`
	CommissionPct float64 `json:"commission_pct"`
	PartnerUserID int64   `json:"partner_user_id"`
	PartnerEmail  string  `json:"partner_email"`
}

// User is a partner account from the user store.
type User struct {
	ID             int64
	Email          string
	DiscountCode   string
	CommissionRate float64
}

// Coupon is the slice of the coupon entity this package reads.
type Coupon struct {
	Code         string
	DiscountType string
	Amount       float64
}

// UserStore reads partner accounts and their metadata.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	// FindByDiscountCode reverse-looks-up the owner of a discount code,
	// returning nil when none exists.
	FindByDiscountCode(ctx context.Context, code string) (*User, error)
	// ListWithDiscountCode returns all accounts carrying a discount code.
	ListWithDiscountCode(ctx context.Context) ([]User, error)
}

// CouponStore queries coupon entities by their normalized code.
type CouponStore interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// Input is the request context the resolver works from.
type Input struct {
	// AdminOverride is a raw user id or a coupon code. Only honored when
	// IsAdmin is true.
	AdminOverride string
	IsAdmin       bool
	// UserID is the authenticated user, 0 when anonymous.
	UserID int64
	// PostedCode is a coupon code already present in the submitted data.
	PostedCode string
}

// NormalizeCode canonicalizes a coupon code: trim plus the commerce
// system's lowercase code format.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Resolver resolves a partner context with a strict priority order:
// admin override, then the logged-in user's own code, then a manually
// posted code. The first non-empty match wins; tiers never merge.
type Resolver struct {
	users   UserStore
	coupons CouponStore
	logger  *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(users UserStore, coupons CouponStore, logger *zap.Logger) *Resolver {
	return &Resolver{users: users, coupons: coupons, logger: logger}
}

// Resolve applies the priority order and returns an inactive context when
// no tier matches.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Context, error) {
	// 1) Admin override, admins only.
	if in.IsAdmin {
		if override := strings.TrimSpace(in.AdminOverride); override != "" {
			if id, err := strconv.ParseInt(override, 10, 64); err == nil && id > 0 {
				return r.fromUserID(ctx, id)
			}
			return r.FromCode(ctx, NormalizeCode(override), 0)
		}
	}

	// 2) Logged-in partner with a stored discount code.
	if in.UserID > 0 {
		user, err := r.users.FindByID(ctx, in.UserID)
		if err != nil {
			return Context{}, err
		}
		if user != nil {
			if code := NormalizeCode(user.DiscountCode); code != "" {
				return r.FromCode(ctx, code, user.ID)
			}
		}
	}

	// 3) Manually posted coupon code.
	if code := NormalizeCode(in.PostedCode); code != "" {
		return r.FromCode(ctx, code, 0)
	}

	return Context{}, nil
}

// FromCode builds a partner context from a coupon code. When no owning
// user is found the context still carries the coupon's percent discount,
// with zero user id and commission.
func (r *Resolver) FromCode(ctx context.Context, code string, knownUserID int64) (Context, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Context{}, nil
	}

	var user *User
	var err error
	if knownUserID > 0 {
		user, err = r.users.FindByID(ctx, knownUserID)
	} else {
		user, err = r.users.FindByDiscountCode(ctx, code)
	}
	if err != nil {
		return Context{}, err
	}

	out := Context{Code: code}
	if user != nil {
		out.PartnerUserID = user.ID
		out.PartnerEmail = user.Email
		if user.CommissionRate > 0 {
			out.CommissionPct = user.CommissionRate
		}
	}

	out.DiscountPct = r.CouponPercentAmount(ctx, code)
	out.Active = out.DiscountPct > 0 || out.CommissionPct > 0 || out.PartnerUserID > 0

	if out.Active {
		r.logger.Debug("partner context resolved",
			zap.String("code", code),
			zap.Int64("partner_user_id", out.PartnerUserID),
			zap.Float64("discount_pct", out.DiscountPct),
		)
	}
	return out, nil
}

func (r *Resolver) fromUserID(ctx context.Context, id int64) (Context, error) {
	user, err := r.users.FindByID(ctx, id)
	if err != nil {
		return Context{}, err
	}
	if user == nil || NormalizeCode(user.DiscountCode) == "" {
		return Context{}, nil
	}
	return r.FromCode(ctx, user.DiscountCode, user.ID)
}

// CouponPercentAmount returns the coupon's percentage for percent-type
// coupons and 0 for missing or fixed-amount coupons. Fixed coupons never
// surface a displayed discount rate.
func (r *Resolver) CouponPercentAmount(ctx context.Context, code string) float64 {
	code = NormalizeCode(code)
	if code == "" {
		return 0
	}
	coupon, err := r.coupons.FindByCode(ctx, code)
	if err != nil || coupon == nil {
		return 0
	}
	if coupon.DiscountType != CouponTypePercent {
		return 0
	}
	if coupon.Amount < 0 {
		return 0
	}
	return coupon.Amount
}
