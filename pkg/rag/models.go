package rag

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentRecord is one logical source document, unique per
// (source_type, source_id, lang). Version increases each time the content
// changes.
type DocumentRecord struct {
	ID         int64     `json:"id" gorm:"primaryKey;column:id"`
	SourceType string    `json:"source_type" gorm:"column:source_type;uniqueIndex:idx_rag_documents_source"`
	SourceID   string    `json:"source_id" gorm:"column:source_id;uniqueIndex:idx_rag_documents_source"`
	Lang       string    `json:"lang" gorm:"column:lang;uniqueIndex:idx_rag_documents_source"`
	Title      *string   `json:"title" gorm:"column:title"`
	Content    string    `json:"content" gorm:"column:content"`
	Version    int       `json:"version" gorm:"column:version;default:1"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (DocumentRecord) TableName() string {
	return "rag_documents"
}

type ChunkRecord struct {
	ID         int64             `json:"id" gorm:"primaryKey;column:id"`
	DocumentID int64             `json:"document_id" gorm:"column:document_id;index"`
	ChunkIndex int               `json:"chunk_index" gorm:"column:chunk_index"`
	Content    string            `json:"content" gorm:"column:content"`
	Metadata   datatypes.JSONMap `json:"metadata" gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"column:created_at"`
}

func (ChunkRecord) TableName() string {
	return "rag_chunks"
}

// DocumentRef is the joined rag_documents row on a search hit.
type DocumentRef struct {
	ID         int64   `json:"id"`
	SourceType string  `json:"source_type"`
	SourceID   string  `json:"source_id"`
	Lang       string  `json:"lang"`
	Title      *string `json:"title"`
}

type Hit struct {
	ID         int64             `json:"id"`
	DocumentID int64             `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	Content    string            `json:"content"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	Document   DocumentRef       `json:"rag_documents"`
	Score      int               `json:"_score"`
}
