package repository

import (
	"context"
	"time"
)

// InsertDeadLetter records an event payload that exhausted the buffer's
// flush retries (spec.md §4.3). Capacity (10 000) and overflow handling
// live in internal/buffer, which calls CountDeadLetters first and skips
// the insert (logging instead) when full.
func (r *Repository) InsertDeadLetter(ctx context.Context, eventType string, payload []byte, reason string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO dead_letters (event_type, payload, error, created_at)
		VALUES ($1, $2, $3, NOW())`,
		eventType, payload, reason,
	)
	return err
}

// CountDeadLetters reports current DLQ occupancy, used to enforce the
// 10 000-entry capacity and the 80% warn threshold.
func (r *Repository) CountDeadLetters(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM dead_letters`).Scan(&n)
	return n, err
}

// EvictOldDeadLetters deletes entries older than maxAge (5 minutes per
// spec.md §4.3) and returns how many were removed.
func (r *Repository) EvictOldDeadLetters(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM dead_letters WHERE created_at < $1`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
