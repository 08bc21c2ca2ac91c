package application

import (
	"context"

	"go.uber.org/zap"

	"github.com/veloevents/service-booking-flow/internal/domain/partner"
)

// PartnerSummary is the admin listing row for one partner account.
type PartnerSummary struct {
	UserID        int64   `json:"user_id"`
	Email         string  `json:"email"`
	Code          string  `json:"code"`
	DiscountPct   float64 `json:"discount_pct"`
	CommissionPct float64 `json:"commission_pct"`
}

// PartnerService wraps partner resolution for the HTTP surface.
type PartnerService struct {
	resolver *partner.Resolver
	users    partner.UserStore
	logger   *zap.Logger
}

// NewPartnerService creates a PartnerService.
func NewPartnerService(resolver *partner.Resolver, users partner.UserStore, logger *zap.Logger) *PartnerService {
	return &PartnerService{resolver: resolver, users: users, logger: logger}
}

// Resolve returns the partner context for a request.
func (s *PartnerService) Resolve(ctx context.Context, in partner.Input) (partner.Context, error) {
	return s.resolver.Resolve(ctx, in)
}

// List returns every partner account that carries a discount code, with
// the live coupon percentage attached. Feeds the admin override picker.
func (s *PartnerService) List(ctx context.Context) ([]PartnerSummary, error) {
	users, err := s.users.ListWithDiscountCode(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PartnerSummary, 0, len(users))
	for _, u := range users {
		code := partner.NormalizeCode(u.DiscountCode)
		if code == "" {
			continue
		}
		out = append(out, PartnerSummary{
			UserID:        u.ID,
			Email:         u.Email,
			Code:          code,
			DiscountPct:   s.resolver.CouponPercentAmount(ctx, code),
			CommissionPct: u.CommissionRate,
		})
	}
	return out, nil
}
