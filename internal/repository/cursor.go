package repository

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"

	"agentindex/internal/models"
)

const cursorID = "main"

// GetCursor returns the single cursor row, or a zero-value cursor with
// ID "main" if none has been written yet (cold start).
func (r *Repository) GetCursor(ctx context.Context) (models.Cursor, error) {
	return getCursorTx(ctx, r.db)
}

func getCursorTx(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}) (models.Cursor, error) {
	c := models.Cursor{ID: cursorID}
	var lastSig, source, pendingCont, pendingStop sql.NullString
	var lastSlot sql.NullInt64
	var updatedAt sql.NullTime

	row := q.QueryRow(ctx, `
		SELECT last_signature, last_slot, source, pending_continuation, pending_stop_signature, updated_at
		FROM indexer_cursor WHERE id = $1`, cursorID)
	err := row.Scan(&lastSig, &lastSlot, &source, &pendingCont, &pendingStop, &updatedAt)
	if err == pgx.ErrNoRows {
		return c, nil
	}
	if err != nil {
		return models.Cursor{}, err
	}

	c.LastSignature = lastSig.String
	c.LastSlot = uint64(lastSlot.Int64)
	c.Source = source.String
	c.PendingContinuation = pendingCont.String
	c.PendingStopSignature = pendingStop.String
	c.UpdatedAt = updatedAt.Time
	return c, nil
}

// UpdateCursor upserts the cursor row with a last-wins guard on slot:
// the write only takes effect if the incoming slot is greater than (or
// the row doesn't exist yet), handling out-of-order writes across
// concurrently processed transactions (spec.md §4.2.4).
func (r *Repository) UpdateCursor(ctx context.Context, sig string, slot uint64, source string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO indexer_cursor (id, last_signature, last_slot, source, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_signature = EXCLUDED.last_signature,
			last_slot = EXCLUDED.last_slot,
			source = EXCLUDED.source,
			updated_at = NOW()
		WHERE indexer_cursor.last_slot < EXCLUDED.last_slot OR indexer_cursor.last_slot IS NULL`,
		cursorID, sig, int64(slot), source,
	)
	return err
}

// UpdateCursorTx is the same upsert run inside an existing transaction,
// used by the event buffer's single flush transaction (spec.md §4.3).
func UpdateCursorTx(ctx context.Context, tx pgx.Tx, sig string, slot uint64, source string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO indexer_cursor (id, last_signature, last_slot, source, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_signature = EXCLUDED.last_signature,
			last_slot = EXCLUDED.last_slot,
			source = EXCLUDED.source,
			updated_at = NOW()
		WHERE indexer_cursor.last_slot < EXCLUDED.last_slot OR indexer_cursor.last_slot IS NULL`,
		cursorID, sig, int64(slot), source,
	)
	return err
}

// SavePendingContinuation records the live-tail memory guard's saved
// pagination state (spec.md §4.2.3) without touching the processed
// frontier.
func (r *Repository) SavePendingContinuation(ctx context.Context, continuation, stopSignature string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO indexer_cursor (id, pending_continuation, pending_stop_signature, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			pending_continuation = EXCLUDED.pending_continuation,
			pending_stop_signature = EXCLUDED.pending_stop_signature,
			updated_at = NOW()`,
		cursorID, nullableString(continuation), nullableString(stopSignature),
	)
	return err
}

// ClearPendingContinuation is called once the memory-guarded pagination
// catches up to its original stop point.
func (r *Repository) ClearPendingContinuation(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		UPDATE indexer_cursor SET pending_continuation = NULL, pending_stop_signature = NULL, updated_at = NOW()
		WHERE id = $1`, cursorID)
	return err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
