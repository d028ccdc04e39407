package audit

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Record{})
}

func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) List(ctx context.Context, f Filter) ([]Record, int64, error) {
	q := r.db.WithContext(ctx).Model(&Record{})
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.AdminEmail != "" {
		q = q.Where("admin_email ILIKE ?", "%"+escapeLike(f.AdminEmail)+"%")
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Record
	err := q.Select("id", "action", "inquiry_ids", "admin_email", "metadata", "created_at").
		Order("created_at DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
