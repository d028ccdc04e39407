package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/observability/metrics"
)

type Store interface {
	Insert(ctx context.Context, rec *Record) error
}

// Auditor writes admin audit entries. It never returns an error: a failed
// write is logged by message and counted, and the caller carries on.
type Auditor struct {
	store     Store
	sanitizer *Sanitizer
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewAuditor(store Store, sanitizer *Sanitizer) *Auditor {
	if sanitizer == nil {
		sanitizer = NewSanitizer(nil)
	}
	return &Auditor{store: store, sanitizer: sanitizer, timeout: 5 * time.Second}
}

// Log inserts the entry and returns its id, or nil when the write failed.
func (a *Auditor) Log(ctx context.Context, e Entry) (id *int64) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.AuditWriteFailures.Inc()
			logger.Log.WithField("panic", rec).Error("audit log write panicked")
			id = nil
		}
	}()

	if a == nil || a.store == nil {
		return nil
	}
	if e.Action == "" {
		logger.Log.Warn("audit entry without action dropped")
		return nil
	}

	rec := &Record{
		AdminEmail:  optional(strings.ToLower(strings.TrimSpace(e.AdminEmail))),
		AdminUserID: optional(e.AdminUserID),
		Action:      string(e.Action),
		InquiryIDs:  ToIntArray(e.InquiryIDs),
		IPAddress:   optional(e.IPAddress),
		UserAgent:   optional(truncate(e.UserAgent)),
		Metadata:    a.sanitizer.Metadata(e.Metadata),
	}

	if err := a.store.Insert(ctx, rec); err != nil {
		metrics.AuditWriteFailures.Inc()
		logger.Log.WithFields(map[string]interface{}{
			"action": rec.Action,
			"error":  a.sanitizer.redactor.Redact(err.Error()),
		}).Error("audit log write failed")
		return nil
	}
	return &rec.ID
}

// LogAsync writes the entry off the request path.
func (a *Auditor) LogAsync(e Entry) {
	if a == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		a.Log(ctx, e)
	}()
}

// Wait blocks until pending async writes finish. Called during shutdown.
func (a *Auditor) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
