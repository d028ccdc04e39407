package rag

import (
	"context"
	"fmt"

	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/observability/metrics"
	"gorm.io/datatypes"
)

type SourceReader interface {
	SourceRows(ctx context.Context, sourceType SourceType, sourceID string) ([]Row, error)
}

type DocumentStore interface {
	FindDocument(ctx context.Context, sourceType SourceType, sourceID, lang string) (*DocumentRecord, error)
	InsertDocument(ctx context.Context, doc *DocumentRecord) error
	UpdateDocument(ctx context.Context, doc *DocumentRecord) error
	ReplaceChunks(ctx context.Context, documentID int64, chunks []ChunkRecord) error
	// Atomic runs fn against a store whose writes commit or roll back
	// together.
	Atomic(ctx context.Context, fn func(DocumentStore) error) error
}

type Ingestor struct {
	sources   SourceReader
	docs      DocumentStore
	maxLength int
}

func NewIngestor(sources SourceReader, docs DocumentStore, maxLength int) *Ingestor {
	if maxLength <= 0 {
		maxLength = DefaultChunkLength
	}
	return &Ingestor{sources: sources, docs: docs, maxLength: maxLength}
}

// Ingest rebuilds documents for the given source types (DefaultSources when
// empty) and reports how many documents changed per type. Re-running over
// unchanged rows writes nothing.
func (i *Ingestor) Ingest(ctx context.Context, sourceTypes []SourceType, sourceID string) (map[string]int, error) {
	if len(sourceTypes) == 0 {
		sourceTypes = DefaultSources
	}

	results := make(map[string]int, len(sourceTypes))
	for _, st := range sourceTypes {
		rows, err := i.sources.SourceRows(ctx, st, sourceID)
		if err != nil {
			return results, err
		}

		updated := 0
		for _, row := range rows {
			doc := BuildDocument(st, row)
			if doc.Content == "" {
				continue
			}
			changed, err := i.UpsertDocument(ctx, doc)
			if err != nil {
				return results, err
			}
			if changed {
				updated++
			}
		}
		results[string(st)] = updated
		logger.Log.WithFields(map[string]interface{}{
			"source_type": st,
			"rows":        len(rows),
			"updated":     updated,
		}).Info("rag ingestion finished")
	}
	return results, nil
}

// UpsertDocument stores doc and regenerates its chunks when the content is
// new or changed. It reports whether anything was written. The document row
// and its chunks are written in one transaction, so a failed chunk write
// leaves the previous content in place for the next run to retry.
func (i *Ingestor) UpsertDocument(ctx context.Context, doc Document) (bool, error) {
	existing, err := i.docs.FindDocument(ctx, doc.SourceType, doc.SourceID, doc.Lang)
	if err != nil {
		return false, fmt.Errorf("lookup document %s/%s: %w", doc.SourceType, doc.SourceID, err)
	}
	if existing != nil && existing.Content == doc.Content {
		return false, nil
	}

	err = i.docs.Atomic(ctx, func(tx DocumentStore) error {
		return i.write(ctx, tx, doc, existing)
	})
	if err != nil {
		return false, err
	}

	metrics.RAGDocumentsUpdated.WithLabelValues(string(doc.SourceType)).Inc()
	return true, nil
}

func (i *Ingestor) write(ctx context.Context, docs DocumentStore, doc Document, existing *DocumentRecord) error {
	record := existing
	if record == nil {
		record = &DocumentRecord{
			SourceType: string(doc.SourceType),
			SourceID:   doc.SourceID,
			Lang:       doc.Lang,
			Title:      doc.Title,
			Content:    doc.Content,
			Version:    1,
		}
		if err := docs.InsertDocument(ctx, record); err != nil {
			return fmt.Errorf("insert document %s/%s: %w", doc.SourceType, doc.SourceID, err)
		}
	} else {
		record.Title = doc.Title
		record.Content = doc.Content
		record.Version++
		if err := docs.UpdateDocument(ctx, record); err != nil {
			return fmt.Errorf("update document %d: %w", record.ID, err)
		}
	}

	chunks := ChunkText(doc.Content, i.maxLength)
	records := make([]ChunkRecord, len(chunks))
	for n, c := range chunks {
		records[n] = ChunkRecord{
			ChunkIndex: c.Index,
			Content:    c.Content,
			Metadata: datatypes.JSONMap{
				"source_type": string(doc.SourceType),
				"source_id":   doc.SourceID,
				"lang":        doc.Lang,
				"title":       doc.Title,
				"version":     record.Version,
			},
		}
	}
	if err := docs.ReplaceChunks(ctx, record.ID, records); err != nil {
		return fmt.Errorf("replace chunks for document %d: %w", record.ID, err)
	}
	return nil
}
