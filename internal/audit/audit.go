package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

// Trail is the append-only scan log. Entries are written once per scan
// attempt and never updated or deleted.
type Trail struct {
	Bun *bun.DB
}

func NewTrail(bunDB *bun.DB) *Trail {
	return &Trail{Bun: bunDB}
}

// Record appends one scan log entry.
func (t *Trail) Record(ctx context.Context, entry models.ScanLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := t.Bun.NewInsert().Model(&entry).Exec(ctx)
	return err
}

// EntriesForEvent returns an event's scan log newest-first. A limit of zero
// means no limit.
func (t *Trail) EntriesForEvent(ctx context.Context, eventID string, limit int) ([]models.ScanLog, error) {
	var entries []models.ScanLog
	q := t.Bun.NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entries, nil
}
