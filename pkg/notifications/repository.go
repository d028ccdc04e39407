package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("recipient not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Recipient{})
}

func (r *Repository) List(ctx context.Context) ([]Recipient, error) {
	var rows []Recipient
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

func (r *Repository) Active(ctx context.Context) ([]Recipient, error) {
	var rows []Recipient
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Create(ctx context.Context, rec *Recipient) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Channel == "" {
		rec.Channel = ChannelSMS
	}
	rec.IsActive = true
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) Update(ctx context.Context, id string, patch RecipientPatch) error {
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if patch.Label != nil {
		updates["label"] = *patch.Label
	}
	if patch.IsActive != nil {
		updates["is_active"] = *patch.IsActive
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}

	res := r.db.WithContext(ctx).Model(&Recipient{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete deactivates the recipient; rows are kept for their send stats.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	active := false
	return r.Update(ctx, id, RecipientPatch{IsActive: &active})
}

func (r *Repository) RecordResult(ctx context.Context, id string, success bool) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{"updated_at": now}
	if success {
		updates["sent_count"] = gorm.Expr("sent_count + 1")
		updates["last_sent_at"] = now
	} else {
		updates["failed_count"] = gorm.Expr("failed_count + 1")
	}
	return r.db.WithContext(ctx).Model(&Recipient{}).Where("id = ?", id).Updates(updates).Error
}
