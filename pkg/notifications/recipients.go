package notifications

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/security"
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

func ValidE164(phone string) bool {
	return e164.MatchString(phone)
}

var phoneNoise = regexp.MustCompile(`[^\d+\-]`)

// MaskPhone strips formatting and keeps only the last four digits readable.
func MaskPhone(phone string) string {
	cleaned := phoneNoise.ReplaceAllString(phone, "")
	if len(cleaned) <= 4 {
		return "****"
	}
	return security.MaskPhone(cleaned)
}

type RecipientStore interface {
	List(ctx context.Context) ([]Recipient, error)
	Active(ctx context.Context) ([]Recipient, error)
	Create(ctx context.Context, rec *Recipient) error
	Update(ctx context.Context, id string, patch RecipientPatch) error
	SoftDelete(ctx context.Context, id string) error
	RecordResult(ctx context.Context, id string, success bool) error
}

// Directory resolves who gets notified: active rows in the database, or the
// ADMIN_PHONE_NUMBERS list when the table is empty or unreachable.
type Directory struct {
	store    RecipientStore
	fallback []string
}

func NewDirectory(store RecipientStore, fallback []string) *Directory {
	return &Directory{store: store, fallback: fallback}
}

func (d *Directory) Active(ctx context.Context) []Target {
	if d.store != nil {
		rows, err := d.store.Active(ctx)
		if err != nil {
			logger.Log.WithError(err).Warn("recipient lookup failed, using env fallback")
		} else if len(rows) > 0 {
			targets := make([]Target, 0, len(rows))
			for _, row := range rows {
				targets = append(targets, Target{
					ID:      row.ID,
					Label:   row.Label,
					Phone:   row.Phone,
					Channel: row.Channel,
					Source:  SourceDB,
				})
			}
			return targets
		}
	}

	var targets []Target
	for i, phone := range d.fallback {
		phone = strings.TrimSpace(phone)
		if phone == "" {
			continue
		}
		targets = append(targets, Target{
			Label:   fmt.Sprintf("ENV-%d", i+1),
			Phone:   phone,
			Channel: ChannelSMS,
			Source:  SourceEnv,
		})
	}
	return targets
}

// RecordResult updates send stats for database recipients only.
func (d *Directory) RecordResult(ctx context.Context, t Target, success bool) {
	if d.store == nil || t.ID == "" {
		return
	}
	if err := d.store.RecordResult(ctx, t.ID, success); err != nil {
		logger.Log.WithError(err).WithField("recipient_id", t.ID).Warn("failed to update recipient stats")
	}
}
