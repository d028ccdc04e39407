package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const normalizedInquiryColumns = "id, language, country, treatment_id, treatment_slug, objective, " +
	"constraints, extraction_confidence, missing_fields"

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&DocumentRecord{}, &ChunkRecord{})
}

// SourceRows reads the rows behind one source type. Policy and FAQ
// documents have no table and are loaded from files instead.
func (r *Repository) SourceRows(ctx context.Context, sourceType SourceType, sourceID string) ([]Row, error) {
	var q *gorm.DB
	db := r.db.WithContext(ctx)
	switch sourceType {
	case SourceTreatment:
		q = db.Table("treatments AS t").
			Select("t.id, t.slug, t.name, t.description, t.full_description, t.tags, t.benefits, t.price_min, t.price_max, " +
				"h.name AS hospital_name, h.location_en AS hospital_location_en, h.location_kr AS hospital_location_kr").
			Joins("LEFT JOIN hospitals AS h ON h.id = t.hospital_id")
		if sourceID != "" {
			q = q.Where("t.id = ?", sourceID)
		}
	case SourceHospital:
		q = db.Table("hospitals").
			Select("id, slug, name, description, location_en, location_kr, address_detail, tags, operating_hours, doctor_profile")
	case SourceReview:
		q = db.Table("reviews").
			Select("id, treatment_id, user_name, country, rating, content, created_at")
	case SourceNormalizedInquiry:
		q = db.Table("normalized_inquiries").Select(normalizedInquiryColumns)
	default:
		return nil, nil
	}
	if sourceID != "" && sourceType != SourceTreatment {
		q = q.Where("id = ?", sourceID)
	}

	var rows []map[string]interface{}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read %s rows: %w", sourceType, err)
	}
	out := make([]Row, len(rows))
	for i, row := range rows {
		out[i] = Row(row)
	}
	return out, nil
}

// FindDocument returns nil, nil when no document exists for the key.
func (r *Repository) FindDocument(ctx context.Context, sourceType SourceType, sourceID, lang string) (*DocumentRecord, error) {
	var doc DocumentRecord
	err := r.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ? AND lang = ?", string(sourceType), sourceID, lang).
		Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Repository) InsertDocument(ctx context.Context, doc *DocumentRecord) error {
	now := time.Now().UTC()
	doc.CreatedAt, doc.UpdatedAt = now, now
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *Repository) UpdateDocument(ctx context.Context, doc *DocumentRecord) error {
	doc.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&DocumentRecord{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
		"title":      doc.Title,
		"content":    doc.Content,
		"version":    doc.Version,
		"updated_at": doc.UpdatedAt,
	}).Error
}

func (r *Repository) Atomic(ctx context.Context, fn func(DocumentStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// ReplaceChunks swaps a document's chunks in one transaction.
func (r *Repository) ReplaceChunks(ctx context.Context, documentID int64, chunks []ChunkRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&ChunkRecord{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		now := time.Now().UTC()
		for i := range chunks {
			chunks[i].DocumentID = documentID
			chunks[i].CreatedAt = now
		}
		return tx.Create(&chunks).Error
	})
}

type hitRow struct {
	ID         int64
	DocumentID int64
	ChunkIndex int
	Content    string
	Metadata   []byte
	SourceType string
	SourceID   string
	Lang       string
	Title      *string
}

// Candidates returns up to limit chunks containing any of the terms.
func (r *Repository) Candidates(ctx context.Context, terms []string, lang string, sourceTypes []string, limit int) ([]Hit, error) {
	conds := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms))
	for _, t := range terms {
		conds = append(conds, "c.content ILIKE ?")
		args = append(args, "%"+escapeLike(t)+"%")
	}

	q := r.db.WithContext(ctx).
		Table("rag_chunks AS c").
		Select("c.id, c.document_id, c.chunk_index, c.content, c.metadata, d.source_type, d.source_id, d.lang, d.title").
		Joins("JOIN rag_documents AS d ON d.id = c.document_id").
		Where(strings.Join(conds, " OR "), args...)
	if lang != "" {
		q = q.Where("d.lang = ?", lang)
	}
	if len(sourceTypes) > 0 {
		q = q.Where("d.source_type IN ?", sourceTypes)
	}

	var rows []hitRow
	if err := q.Limit(limit).Scan(&rows).Error; err != nil {
		return nil, err
	}

	hits := make([]Hit, len(rows))
	for i, row := range rows {
		hits[i] = Hit{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			ChunkIndex: row.ChunkIndex,
			Content:    row.Content,
			Metadata:   decodeMetadata(row.Metadata),
			Document: DocumentRef{
				ID:         row.DocumentID,
				SourceType: row.SourceType,
				SourceID:   row.SourceID,
				Lang:       row.Lang,
				Title:      row.Title,
			},
		}
	}
	return hits, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
