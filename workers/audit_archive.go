package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"time"

	"casual-game-core/models"
	"casual-game-core/store"
	"casual-game-core/utils"
)

// AuditArchiver exports one UTC day of the audit trail as JSON lines to object
// storage. It only reads the audit log.
type AuditArchiver struct {
	Store    store.ModerationStore
	Uploader utils.ObjectUploader
	Now      func() time.Time
}

func NewAuditArchiver(st store.ModerationStore, uploader utils.ObjectUploader) *AuditArchiver {
	return &AuditArchiver{Store: st, Uploader: uploader, Now: time.Now}
}

func archiveKey(day time.Time) string {
	return fmt.Sprintf("audit/%04d/%02d/%02d.jsonl", day.Year(), day.Month(), day.Day())
}

// ArchiveDay uploads entries created on day (UTC) and returns how many were written.
func (a *AuditArchiver) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	entries, err := a.Store.ListAudit(ctx, store.AuditQuery{Since: start, Until: start.AddDate(0, 0, 1)})
	if err != nil {
		return 0, fmt.Errorf("list audit for %s: %w", start.Format(time.DateOnly), err)
	}
	slices.SortStableFunc(entries, func(x, y models.AuditLogEntry) int { return x.CreatedAt.Compare(y.CreatedAt) })

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return 0, fmt.Errorf("encode audit entry %s: %w", e.ID, err)
		}
	}

	url, err := a.Uploader.Upload(ctx, archiveKey(start), "application/x-ndjson", buf.Bytes())
	if err != nil {
		return 0, err
	}
	log.Printf("📦 [ARCHIVE] %d audit entries for %s → %s", len(entries), start.Format(time.DateOnly), url)
	return len(entries), nil
}

// ArchiveYesterday is the scheduled entry point.
func (a *AuditArchiver) ArchiveYesterday(ctx context.Context) (int64, error) {
	n, err := a.ArchiveDay(ctx, a.Now().UTC().AddDate(0, 0, -1))
	return int64(n), err
}
