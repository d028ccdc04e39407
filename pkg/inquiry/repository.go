package inquiry

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("inquiry not found")

// listColumns keeps bulk reads away from message and attachment paths.
var listColumns = []string{
	"id", "created_at", "first_name", "last_name", "email", "treatment_type",
	"contact_method", "nationality", "status", "lead_quality", "priority_score",
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Inquiry{}, &NormalizedInquiry{})
}

func (r *Repository) Create(ctx context.Context, inq *Inquiry) error {
	return r.db.WithContext(ctx).Create(inq).Error
}

func (r *Repository) Get(ctx context.Context, id int64) (*Inquiry, error) {
	var inq Inquiry
	if err := r.db.WithContext(ctx).First(&inq, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inq, nil
}

// UpdateIntake replaces the intake column. A nil attachments value leaves
// the attachments column untouched.
func (r *Repository) UpdateIntake(ctx context.Context, id int64, intake map[string]interface{}, attachments datatypes.JSON) error {
	updates := map[string]interface{}{
		"intake":     datatypes.JSONMap(intake),
		"updated_at": time.Now().UTC(),
	}
	if attachments != nil {
		updates["attachments"] = attachments
	}
	return r.updates(ctx, id, updates)
}

func (r *Repository) RotateToken(ctx context.Context, id int64, token string, at time.Time) error {
	return r.updates(ctx, id, map[string]interface{}{
		"public_token":            token,
		"public_token_rotated_at": at,
		"updated_at":              at,
	})
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	return r.updates(ctx, id, map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	})
}

func (r *Repository) UpdateLeadQuality(ctx context.Context, id int64, u LeadQualityUpdate) error {
	return r.updates(ctx, id, map[string]interface{}{
		"lead_quality":         u.Quality,
		"priority_score":       u.Score,
		"lead_tags":            pq.StringArray(u.Tags),
		"quality_signals":      pq.StringArray(u.Signals),
		"quality_evaluated_at": u.EvaluatedAt,
	})
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&Inquiry{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Batch(ctx context.Context, afterID int64, limit int) ([]Inquiry, error) {
	var rows []Inquiry
	err := r.db.WithContext(ctx).
		Select("id, first_name, last_name, email, contact_id, message, intake").
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) UpdateColumns(ctx context.Context, id int64, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	return r.updates(ctx, id, updates)
}

func (r *Repository) updates(ctx context.Context, id int64, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&Inquiry{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page ordered by id desc plus the exact filtered count.
// full selects every column (export); otherwise only listColumns.
func (r *Repository) List(ctx context.Context, f ListFilter, full bool) ([]Inquiry, int64, error) {
	q := r.db.WithContext(ctx).Model(&Inquiry{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.TreatmentType != "" {
		q = q.Where("treatment_type = ?", f.TreatmentType)
	}
	if f.Nationality != "" {
		q = q.Where("nationality = ?", f.Nationality)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if !full {
		q = q.Select(listColumns)
	}
	var rows []Inquiry
	err := q.Order("id DESC").Limit(f.Limit).Offset(f.Offset).Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]Inquiry, error) {
	var rows []Inquiry
	err := r.db.WithContext(ctx).
		Select("id", "treatment_type", "email", "created_at").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) InsertNormalized(ctx context.Context, n *NormalizedInquiry) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *Repository) GetNormalized(ctx context.Context, id int64) (*NormalizedInquiry, error) {
	var n NormalizedInquiry
	if err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// LatestNormalized returns nil without error when the inquiry was never
// normalized.
func (r *Repository) LatestNormalized(ctx context.Context, inquiryID int64) (*NormalizedInquiry, error) {
	var rows []NormalizedInquiry
	err := r.db.WithContext(ctx).
		Where("source_inquiry_id = ?", inquiryID).
		Order("created_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}
