package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	eventDomain "github.com/veloevents/service-booking-flow/internal/domain/event"
)

// EventModel is the GORM model for the events table.
type EventModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	Title         string    `gorm:"type:varchar(255);not null"`
	StartTS       int64     `gorm:"not null;index"`
	EndTS         int64     `gorm:"not null"`
	CategorySlugs string    `gorm:"type:varchar(500)"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (EventModel) TableName() string { return "events" }

// EventMetaModel is the GORM model for the event_meta table. One row per
// meta key, mirroring the upstream CMS key-value layout.
type EventMetaModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	EventID   int64  `gorm:"not null;uniqueIndex:idx_event_meta_key,priority:1"`
	MetaKey   string `gorm:"type:varchar(255);not null;uniqueIndex:idx_event_meta_key,priority:2"`
	MetaValue string `gorm:"type:text"`
}

// TableName sets the table name.
func (EventMetaModel) TableName() string { return "event_meta" }

// GormEventRepository implements event.Repository using GORM.
type GormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository creates a new GormEventRepository.
func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

// FindByID returns an event by id.
func (r *GormEventRepository) FindByID(ctx context.Context, id int64) (*eventDomain.Event, error) {
	var model EventModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, eventDomain.ErrNotFound
		}
		return nil, err
	}
	return toEventDomain(&model), nil
}

// Meta returns one meta value, "" when the key is absent.
func (r *GormEventRepository) Meta(ctx context.Context, eventID int64, key string) (string, error) {
	var model EventMetaModel
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND meta_key = ?", eventID, key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return model.MetaValue, nil
}

// SetMeta upserts one meta key.
func (r *GormEventRepository) SetMeta(ctx context.Context, eventID int64, key, value string) error {
	model := EventMetaModel{EventID: eventID, MetaKey: key, MetaValue: value}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "meta_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"meta_value"}),
		}).
		Create(&model).Error
}

func toEventDomain(m *EventModel) *eventDomain.Event {
	var slugs []string
	for _, s := range strings.Split(m.CategorySlugs, ",") {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			slugs = append(slugs, trimmed)
		}
	}
	return &eventDomain.Event{
		ID:            m.ID,
		Title:         m.Title,
		StartTS:       m.StartTS,
		EndTS:         m.EndTS,
		CategorySlugs: slugs,
	}
}

// ProductModel is the GORM model for the products table.
type ProductModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Name         string    `gorm:"type:varchar(255);not null"`
	Bookable     bool      `gorm:"not null;default:false"`
	CategoryKey  string    `gorm:"type:varchar(100);index"`
	HasResources bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (ProductModel) TableName() string { return "products" }

// GormProductRepository implements event.ProductRepository using GORM.
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository.
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByID returns a product by id, nil when absent.
func (r *GormProductRepository) FindByID(ctx context.Context, id int64) (*eventDomain.Product, error) {
	var model ProductModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toProductDomain(&model), nil
}

// FindByCategoryKeys returns the first bookable product matching any of the
// given category keys, nil when none match.
func (r *GormProductRepository) FindByCategoryKeys(ctx context.Context, keys []string) (*eventDomain.Product, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var model ProductModel
	err := r.db.WithContext(ctx).
		Where("category_key IN ? AND bookable = true", keys).
		Order("id").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toProductDomain(&model), nil
}

func toProductDomain(m *ProductModel) *eventDomain.Product {
	return &eventDomain.Product{
		ID:           m.ID,
		Name:         m.Name,
		Bookable:     m.Bookable,
		CategoryKey:  m.CategoryKey,
		HasResources: m.HasResources,
	}
}
