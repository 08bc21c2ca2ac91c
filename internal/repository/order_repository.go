package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	orderDomain "github.com/veloevents/service-booking-flow/internal/domain/order"
)

// OrderModel is the GORM model for the orders table.
type OrderModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	CouponCodes string    `gorm:"type:varchar(500)"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (OrderModel) TableName() string { return "orders" }

// OrderMetaModel is the GORM model for the order_meta table.
type OrderMetaModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	OrderID   int64  `gorm:"not null;uniqueIndex:idx_order_meta_key,priority:1"`
	MetaKey   string `gorm:"type:varchar(255);not null;uniqueIndex:idx_order_meta_key,priority:2"`
	MetaValue string `gorm:"type:text"`
}

// TableName sets the table name.
func (OrderMetaModel) TableName() string { return "order_meta" }

// OrderItemModel is the GORM model for the order_items table.
type OrderItemModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	OrderID   int64     `gorm:"not null;index"`
	Quantity  int       `gorm:"not null;default:1"`
	Subtotal  float64   `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (OrderItemModel) TableName() string { return "order_items" }

// OrderItemMetaModel is the GORM model for the order_item_meta table.
type OrderItemMetaModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	ItemID    int64  `gorm:"not null;index"`
	MetaKey   string `gorm:"type:varchar(255);not null"`
	MetaValue string `gorm:"type:text"`
}

// TableName sets the table name.
func (OrderItemMetaModel) TableName() string { return "order_item_meta" }

// GormOrderRepository implements order.Repository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository.
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID returns an order with its meta map and coupon codes.
func (r *GormOrderRepository) FindByID(ctx context.Context, id int64) (*orderDomain.Order, error) {
	var model OrderModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderDomain.ErrNotFound
		}
		return nil, err
	}

	var metaRows []OrderMetaModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Find(&metaRows).Error; err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(metaRows))
	for _, row := range metaRows {
		meta[row.MetaKey] = row.MetaValue
	}

	var codes []string
	for _, c := range strings.Split(model.CouponCodes, ",") {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			codes = append(codes, trimmed)
		}
	}

	return &orderDomain.Order{ID: model.ID, Meta: meta, CouponCodes: codes}, nil
}

// Items returns the order's line items with their meta maps.
func (r *GormOrderRepository) Items(ctx context.Context, orderID int64) ([]orderDomain.Item, error) {
	var models []OrderItemModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}

	itemIDs := make([]int64, len(models))
	for i, m := range models {
		itemIDs[i] = m.ID
	}
	var metaRows []OrderItemMetaModel
	if err := r.db.WithContext(ctx).Where("item_id IN ?", itemIDs).Find(&metaRows).Error; err != nil {
		return nil, err
	}
	metaByItem := map[int64]map[string]string{}
	for _, row := range metaRows {
		if metaByItem[row.ItemID] == nil {
			metaByItem[row.ItemID] = map[string]string{}
		}
		metaByItem[row.ItemID][row.MetaKey] = row.MetaValue
	}

	items := make([]orderDomain.Item, len(models))
	for i, m := range models {
		items[i] = orderDomain.Item{
			ID:       m.ID,
			OrderID:  m.OrderID,
			Quantity: m.Quantity,
			Subtotal: m.Subtotal,
			Meta:     metaByItem[m.ID],
		}
	}
	return items, nil
}

// UpdateMeta upserts the given keys into the order's meta rows.
func (r *GormOrderRepository) UpdateMeta(ctx context.Context, orderID int64, meta map[string]string) error {
	if len(meta) == 0 {
		return nil
	}
	rows := make([]OrderMetaModel, 0, len(meta))
	for key, value := range meta {
		rows = append(rows, OrderMetaModel{OrderID: orderID, MetaKey: key, MetaValue: value})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "meta_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"meta_value"}),
		}).
		Create(&rows).Error
}
