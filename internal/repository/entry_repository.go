package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	formDomain "github.com/veloevents/service-booking-flow/internal/domain/form"
)

// EntryModel is the GORM model for the form_entries table. Field values
// are stored as a JSONB document keyed by field id.
type EntryModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	FormID    int64     `gorm:"not null;index"`
	Values    []byte    `gorm:"type:jsonb;not null"`
	CartAdded bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (EntryModel) TableName() string { return "form_entries" }

// GormEntryRepository implements form.Repository using GORM.
type GormEntryRepository struct {
	db *gorm.DB
}

// NewGormEntryRepository creates a new GormEntryRepository.
func NewGormEntryRepository(db *gorm.DB) *GormEntryRepository {
	return &GormEntryRepository{db: db}
}

// FindByID returns an entry by id.
func (r *GormEntryRepository) FindByID(ctx context.Context, id int64) (*formDomain.Entry, error) {
	var model EntryModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, formDomain.ErrNotFound
		}
		return nil, err
	}
	return toEntryDomain(&model)
}

// Save persists an entry, creating or updating by id.
func (r *GormEntryRepository) Save(ctx context.Context, e *formDomain.Entry) error {
	values, err := json.Marshal(e.Values)
	if err != nil {
		return err
	}
	model := EntryModel{
		ID:        e.ID,
		FormID:    e.FormID,
		Values:    values,
		CartAdded: e.CartAdded,
	}
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return err
	}
	e.ID = model.ID
	return nil
}

// MarkCartAdded flips the idempotency flag.
func (r *GormEntryRepository) MarkCartAdded(ctx context.Context, entryID int64) error {
	return r.db.WithContext(ctx).
		Model(&EntryModel{}).
		Where("id = ?", entryID).
		Update("cart_added", true).Error
}

// WasCartAdded reads the idempotency flag.
func (r *GormEntryRepository) WasCartAdded(ctx context.Context, entryID int64) (bool, error) {
	var model EntryModel
	err := r.db.WithContext(ctx).
		Select("cart_added").
		Where("id = ?", entryID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, formDomain.ErrNotFound
		}
		return false, err
	}
	return model.CartAdded, nil
}

func toEntryDomain(m *EntryModel) (*formDomain.Entry, error) {
	values := map[string]string{}
	if len(m.Values) > 0 {
		if err := json.Unmarshal(m.Values, &values); err != nil {
			return nil, err
		}
	}
	return &formDomain.Entry{
		ID:        m.ID,
		FormID:    m.FormID,
		Values:    values,
		CartAdded: m.CartAdded,
	}, nil
}
