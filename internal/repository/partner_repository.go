package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	partnerDomain "github.com/veloevents/service-booking-flow/internal/domain/partner"
)

// PartnerUserModel is the GORM model for the partner_users table.
type PartnerUserModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	Email          string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	DiscountCode   string    `gorm:"type:varchar(100);index"`
	CommissionRate float64   `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (PartnerUserModel) TableName() string { return "partner_users" }

// GormUserStore implements partner.UserStore using GORM.
type GormUserStore struct {
	db *gorm.DB
}

// NewGormUserStore creates a new GormUserStore.
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

// FindByID returns a partner user by id, nil when absent.
func (s *GormUserStore) FindByID(ctx context.Context, id int64) (*partnerDomain.User, error) {
	var model PartnerUserModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toPartnerUserDomain(&model), nil
}

// FindByDiscountCode reverse-looks-up the owner of a discount code.
// Codes are stored normalized, so the lookup is a plain equality.
func (s *GormUserStore) FindByDiscountCode(ctx context.Context, code string) (*partnerDomain.User, error) {
	var model PartnerUserModel
	err := s.db.WithContext(ctx).
		Where("discount_code = ?", partnerDomain.NormalizeCode(code)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toPartnerUserDomain(&model), nil
}

// ListWithDiscountCode returns all partner accounts carrying a code.
func (s *GormUserStore) ListWithDiscountCode(ctx context.Context) ([]partnerDomain.User, error) {
	var models []PartnerUserModel
	err := s.db.WithContext(ctx).
		Where("discount_code <> ''").
		Order("email").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	users := make([]partnerDomain.User, len(models))
	for i, m := range models {
		users[i] = *toPartnerUserDomain(&m)
	}
	return users, nil
}

func toPartnerUserDomain(m *PartnerUserModel) *partnerDomain.User {
	return &partnerDomain.User{
		ID:             m.ID,
		Email:          m.Email,
		DiscountCode:   partnerDomain.NormalizeCode(m.DiscountCode),
		CommissionRate: m.CommissionRate,
	}
}

// CouponModel is the GORM model for the coupons table.
type CouponModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Code         string    `gorm:"type:varchar(100);uniqueIndex;not null"`
	DiscountType string    `gorm:"type:varchar(20);not null"`
	Amount       float64   `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (CouponModel) TableName() string { return "coupons" }

// GormCouponStore implements partner.CouponStore using GORM.
type GormCouponStore struct {
	db *gorm.DB
}

// NewGormCouponStore creates a new GormCouponStore.
func NewGormCouponStore(db *gorm.DB) *GormCouponStore {
	return &GormCouponStore{db: db}
}

// FindByCode returns a coupon by its normalized code, nil when absent.
func (s *GormCouponStore) FindByCode(ctx context.Context, code string) (*partnerDomain.Coupon, error) {
	var model CouponModel
	err := s.db.WithContext(ctx).
		Where("code = ?", partnerDomain.NormalizeCode(code)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &partnerDomain.Coupon{
		Code:         model.Code,
		DiscountType: model.DiscountType,
		Amount:       model.Amount,
	}, nil
}
