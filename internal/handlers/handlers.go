// Package handlers implements the per-event-type SQL projections:
// idempotent upserts that turn a decoded event into PENDING rows.
//
// Every handler is a pure function over (ctx, tx, event). The only
// caller is the event buffer's batched flush (many events, one commit):
// there is a single write path, not a separate one-event-per-commit mode.
//
// Grounded on the teacher's internal/repository/postgres_ingest.go:
// sanitizeForPG before every TEXT column, ON CONFLICT upserts that only
// touch non-terminal columns, and log-and-continue on a single bad row
// rather than failing the whole batch for integrity violations.
package handlers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"agentindex/internal/compress"
	"agentindex/internal/decoder"
	"agentindex/internal/pda"
	"agentindex/internal/repository"
)

// metadataValueSizeGate is the byte threshold above which an on-chain
// metadata value is compressed before storage (spec.md §4.4: "custom
// keys are compressed if payload exceeds 256 bytes and compression
// actually shrinks the payload"), mirroring
// internal/uriworker/write.go's customValueSizeGate for off-chain
// fields.
const metadataValueSizeGate = 256

// encodeMetadataValue frames an on-chain metadata value per the same
// rule internal/uriworker/write.go applies to off-chain fields: raw
// below the size gate, compressed (falling back to raw if compression
// doesn't shrink it) above it. The framed bytes are what lands in the
// metadata_entries.value bytea column.
func encodeMetadataValue(v []byte) []byte {
	if len(v) <= metadataValueSizeGate {
		return compress.Raw(v)
	}
	return compress.CompressOrRaw(v)
}

// Dispatch exhaustively matches evt against the closed event set and
// runs its projection. An event type outside the switch is a
// programming error (the decoder already rejects unknown wire types),
// so Dispatch returns an error rather than silently ignoring it.
func Dispatch(ctx context.Context, tx pgx.Tx, evt decoder.Event) error {
	switch e := evt.(type) {
	case decoder.AgentRegistered:
		return HandleAgentRegistered(ctx, tx, e)
	case decoder.UriUpdated:
		return HandleUriUpdated(ctx, tx, e)
	case decoder.WalletUpdated:
		return HandleWalletUpdated(ctx, tx, e)
	case decoder.AtomEnabled:
		return HandleAtomEnabled(ctx, tx, e)
	case decoder.OwnerSynced:
		return HandleOwnerSynced(ctx, tx, e)
	case decoder.MetadataSet:
		return HandleMetadataSet(ctx, tx, e)
	case decoder.MetadataDeleted:
		return HandleMetadataDeleted(ctx, tx, e)
	case decoder.NewFeedback:
		return HandleNewFeedback(ctx, tx, e)
	case decoder.ResponseAppended:
		return HandleResponseAppended(ctx, tx, e)
	case decoder.FeedbackRevoked:
		return HandleFeedbackRevoked(ctx, tx, e)
	case decoder.RegistryInitialized:
		return HandleRegistryInitialized(ctx, tx, e)
	default:
		return fmt.Errorf("handlers: unhandled event type %T", evt)
	}
}

// HandleAgentRegistered upserts the agent row as PENDING. Re-registration
// (same asset, later slot) refreshes identity fields but never touches a
// status that has already gone terminal.
func HandleAgentRegistered(ctx context.Context, tx pgx.Tx, e decoder.AgentRegistered) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO agents (asset, owner, collection, wallet, uri, atom_enabled, status, block_slot, tx_index, tx_signature)
		VALUES ($1, $2, $3, NULL, $4, $5, 'PENDING', $6, $7, $8)
		ON CONFLICT (asset) DO UPDATE SET
			owner = EXCLUDED.owner,
			collection = EXCLUDED.collection,
			uri = EXCLUDED.uri,
			atom_enabled = EXCLUDED.atom_enabled,
			updated_at = NOW()
		WHERE agents.status != 'ORPHANED'`,
		repository.SanitizeForPG(e.Asset), repository.SanitizeForPG(e.Owner), repository.SanitizeForPG(e.Collection),
		repository.SanitizeForPG(e.AgentURI), e.AtomEnabled,
		int64(e.BlockSlot), e.TxIndex, e.TxSignature,
	)
	return err
}

// HandleUriUpdated updates agent_uri. The caller (the event buffer) is
// responsible for also enqueuing the URI worker once this commits.
func HandleUriUpdated(ctx context.Context, tx pgx.Tx, e decoder.UriUpdated) error {
	_, err := tx.Exec(ctx, `
		UPDATE agents SET uri = $2, updated_at = NOW()
		WHERE asset = $1 AND status != 'ORPHANED'`,
		repository.SanitizeForPG(e.Asset), repository.SanitizeForPG(e.URI),
	)
	return err
}

// HandleWalletUpdated updates agent_wallet.
func HandleWalletUpdated(ctx context.Context, tx pgx.Tx, e decoder.WalletUpdated) error {
	_, err := tx.Exec(ctx, `
		UPDATE agents SET wallet = $2, updated_at = NOW()
		WHERE asset = $1 AND status != 'ORPHANED'`,
		repository.SanitizeForPG(e.Asset), repository.SanitizeForPG(e.Wallet),
	)
	return err
}

// HandleAtomEnabled flips atom_enabled on.
func HandleAtomEnabled(ctx context.Context, tx pgx.Tx, e decoder.AtomEnabled) error {
	_, err := tx.Exec(ctx, `
		UPDATE agents SET atom_enabled = true, updated_at = NOW()
		WHERE asset = $1 AND status != 'ORPHANED'`,
		repository.SanitizeForPG(e.Asset),
	)
	return err
}

// HandleOwnerSynced updates owner.
func HandleOwnerSynced(ctx context.Context, tx pgx.Tx, e decoder.OwnerSynced) error {
	_, err := tx.Exec(ctx, `
		UPDATE agents SET owner = $2, updated_at = NOW()
		WHERE asset = $1 AND status != 'ORPHANED'`,
		repository.SanitizeForPG(e.Asset), repository.SanitizeForPG(e.Owner),
	)
	return err
}

// HandleRegistryInitialized upserts the collection pointer row.
func HandleRegistryInitialized(ctx context.Context, tx pgx.Tx, e decoder.RegistryInitialized) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO collections (collection, first_seen_slot, first_seen_tx, last_seen_slot, last_seen_tx, status)
		VALUES ($1, $2, $3, $2, $3, 'PENDING')
		ON CONFLICT (collection) DO UPDATE SET
			last_seen_slot = GREATEST(collections.last_seen_slot, EXCLUDED.last_seen_slot),
			last_seen_tx = CASE WHEN EXCLUDED.last_seen_slot >= collections.last_seen_slot THEN EXCLUDED.last_seen_tx ELSE collections.last_seen_tx END,
			updated_at = NOW()
		WHERE collections.status != 'ORPHANED'`,
		repository.SanitizeForPG(e.Collection), int64(e.BlockSlot), e.TxSignature,
	)
	return err
}

// HandleMetadataSet upserts (asset, key). Rejects the reserved _uri:
// namespace (owned exclusively by the URI worker, spec.md §3) and never
// overwrites a row already marked immutable. The raw event value is run
// through encodeMetadataValue here, framing and size-gating it the same
// way the URI worker frames off-chain fields, before it ever reaches
// the bytea column.
func HandleMetadataSet(ctx context.Context, tx pgx.Tx, e decoder.MetadataSet) error {
	key := repository.SanitizeForPG(e.Key)
	if len(key) >= len("_uri:") && key[:len("_uri:")] == "_uri:" {
		return fmt.Errorf("handlers: on-chain event attempted reserved metadata key %q", key)
	}

	keyHash := pda.MetadataKeyHash(key)
	value := encodeMetadataValue(e.Value)

	_, err := tx.Exec(ctx, `
		INSERT INTO metadata_entries (asset, key, key_hash, value, immutable, block_slot, tx_index, tx_signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (asset, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
		WHERE metadata_entries.immutable = false`,
		repository.SanitizeForPG(e.Asset), key, keyHash, value, e.Immutable,
		int64(e.BlockSlot), e.TxIndex, e.TxSignature,
	)
	return err
}

// HandleMetadataDeleted removes a (asset, key) entry. Deleting an
// immutable entry is a no-op, matching the immutable-set rule.
func HandleMetadataDeleted(ctx context.Context, tx pgx.Tx, e decoder.MetadataDeleted) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM metadata_entries WHERE asset = $1 AND key = $2 AND immutable = false`,
		repository.SanitizeForPG(e.Asset), repository.SanitizeForPG(e.Key),
	)
	return err
}

// HandleNewFeedback inserts a feedback row (ORPHANED immediately if no
// parent agent exists, per the Integrity violation error kind in
// spec.md §7) and recomputes the agent's aggregate stats.
func HandleNewFeedback(ctx context.Context, tx pgx.Tx, e decoder.NewFeedback) error {
	status := "PENDING"
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM agents WHERE asset = $1 AND status != 'ORPHANED')`, e.Asset).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		status = "ORPHANED"
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO feedbacks (
			asset, client_address, feedback_index, value_raw, value_decimals, score,
			tag1, tag2, endpoint, feedback_uri, feedback_hash, running_digest,
			status, block_slot, tx_index, tx_signature
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (asset, client_address, feedback_index) DO NOTHING`,
		repository.SanitizeForPG(e.Asset), repository.SanitizeForPG(e.ClientAddress), e.FeedbackIndex,
		e.Value.String(), e.ValueDecimals, e.Score,
		nullIfEmpty(repository.SanitizeForPG(e.Tag1)), nullIfEmpty(repository.SanitizeForPG(e.Tag2)),
		nullIfEmpty(repository.SanitizeForPG(e.Endpoint)), nullIfEmpty(repository.SanitizeForPG(e.FeedbackURI)),
		nullIfZeroHash(e.FeedbackHash), nullIfZeroHash(e.RunningDigest),
		status, int64(e.BlockSlot), e.TxIndex, e.TxSignature,
	)
	if err != nil {
		return err
	}
	return repository.RecomputeAgentStats(ctx, tx, e.Asset)
}

// HandleResponseAppended inserts a response row keyed on tx_signature so
// replaying the same transaction during re-indexing is a no-op.
func HandleResponseAppended(ctx context.Context, tx pgx.Tx, e decoder.ResponseAppended) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO responses (asset, client_address, feedback_index, responder, tx_signature, response_uri, running_digest, status, block_slot, tx_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', $8, $9)
		ON CONFLICT (asset, client_address, feedback_index, responder, tx_signature) DO NOTHING`,
		repository.SanitizeForPG(e.Asset), repository.SanitizeForPG(e.ClientAddress), e.FeedbackIndex,
		repository.SanitizeForPG(e.Responder), e.TxSignature, nullIfEmpty(repository.SanitizeForPG(e.ResponseURI)),
		nullIfZeroHash(e.RunningDigest), int64(e.BlockSlot), e.TxIndex,
	)
	return err
}

// HandleFeedbackRevoked marks the parent feedback revoked and inserts
// the revocation row (ORPHANED if the parent feedback is missing), then
// recomputes agent stats since revoked feedback drops out of the
// aggregate.
func HandleFeedbackRevoked(ctx context.Context, tx pgx.Tx, e decoder.FeedbackRevoked) error {
	tag, err := tx.Exec(ctx, `
		UPDATE feedbacks SET is_revoked = true, updated_at = NOW()
		WHERE asset = $1 AND client_address = $2 AND feedback_index = $3 AND status != 'ORPHANED'`,
		repository.SanitizeForPG(e.Asset), repository.SanitizeForPG(e.ClientAddress), e.FeedbackIndex,
	)
	if err != nil {
		return err
	}

	status := "PENDING"
	if tag.RowsAffected() == 0 {
		status = "ORPHANED"
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO revocations (asset, client_address, feedback_index, running_digest, status, block_slot, tx_index, tx_signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (asset, client_address, feedback_index) DO NOTHING`,
		repository.SanitizeForPG(e.Asset), repository.SanitizeForPG(e.ClientAddress), e.FeedbackIndex,
		nullIfZeroHash(e.RunningDigest), status, int64(e.BlockSlot), e.TxIndex, e.TxSignature,
	); err != nil {
		return err
	}

	return repository.RecomputeAgentStats(ctx, tx, e.Asset)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullIfZeroHash normalizes an all-zero 32-byte hash to NULL rather than
// storing the literal zero value, per spec.md §4.4.
func nullIfZeroHash(h [32]byte) any {
	if h == [32]byte{} {
		return nil
	}
	return h[:]
}
