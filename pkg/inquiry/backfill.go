package inquiry

import (
	"context"
	"fmt"
	"sort"

	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/security"
	"gorm.io/datatypes"
)

const DefaultBackfillBatch = 100

type BackfillStore interface {
	// Batch returns up to limit rows with id > afterID in ascending id order.
	Batch(ctx context.Context, afterID int64, limit int) ([]Inquiry, error)
	UpdateColumns(ctx context.Context, id int64, updates map[string]interface{}) error
}

type BackfillOptions struct {
	DryRun    bool
	BatchSize int
	StartID   int64
	// OnRow is called once per row that needed encryption.
	OnRow func(id int64, columns []string, err error)
}

type BackfillResult struct {
	Scanned   int
	Encrypted int
	Skipped   int
	Failed    int
}

// LegacyUpdates returns the column updates that encrypt row's remaining
// plaintext PII. Rows that are fully encrypted yield an empty map.
func LegacyUpdates(c *security.Cipher, row Inquiry) (map[string]interface{}, error) {
	updates := map[string]interface{}{}
	columns := []struct {
		name  string
		value *string
	}{
		{"first_name", row.FirstName},
		{"last_name", row.LastName},
		{"email", row.Email},
		{"contact_id", row.ContactID},
		{"message", row.Message},
	}
	for _, col := range columns {
		if col.value == nil || *col.value == "" || security.IsEnvelope(*col.value) {
			continue
		}
		enc, err := c.Encrypt(*col.value)
		if err != nil {
			return nil, fmt.Errorf("encrypting %s: %w", col.name, err)
		}
		updates[col.name] = enc
	}

	if hasPlainPII(row.Intake) {
		intake, err := c.EncryptJSONFields(row.Intake, security.IntakePIIKeys)
		if err != nil {
			return nil, fmt.Errorf("encrypting intake: %w", err)
		}
		updates["intake"] = datatypes.JSONMap(intake)
	}
	return updates, nil
}

func hasPlainPII(intake map[string]interface{}) bool {
	for _, key := range security.IntakePIIKeys {
		if s, ok := intake[key].(string); ok && s != "" && !security.IsEnvelope(s) {
			return true
		}
	}
	return false
}

// Backfill walks inquiries in id order and encrypts plaintext PII left by
// rows written before encryption at rest. A row that fails is counted and
// skipped. Plaintext never reaches the log.
func Backfill(ctx context.Context, store BackfillStore, c *security.Cipher, opts BackfillOptions) (BackfillResult, error) {
	var res BackfillResult
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBackfillBatch
	}
	after := opts.StartID - 1

	for {
		rows, err := store.Batch(ctx, after, opts.BatchSize)
		if err != nil {
			return res, fmt.Errorf("read batch after id %d: %w", after, err)
		}
		if len(rows) == 0 {
			return res, nil
		}

		for _, row := range rows {
			after = row.ID
			res.Scanned++

			updates, err := LegacyUpdates(c, row)
			if err == nil && len(updates) == 0 {
				res.Skipped++
				continue
			}
			cols := updatedColumns(updates)
			if err == nil && !opts.DryRun {
				err = store.UpdateColumns(ctx, row.ID, updates)
			}
			if err != nil {
				res.Failed++
				logger.Log.WithError(err).WithField("inquiry_id", row.ID).Error("encryption backfill failed for row")
			} else {
				res.Encrypted++
			}
			if opts.OnRow != nil {
				opts.OnRow(row.ID, cols, err)
			}
		}
	}
}

func updatedColumns(updates map[string]interface{}) []string {
	cols := make([]string, 0, len(updates))
	for k := range updates {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
