package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"agentindex/internal/models"
)

// GetAgent fetches one agent row by asset. Returns (nil, nil) if absent.
func (r *Repository) GetAgent(ctx context.Context, asset string) (*models.Agent, error) {
	row := r.db.QueryRow(ctx, `
		SELECT asset, global_id, owner, collection, COALESCE(wallet,''), COALESCE(uri,''),
			feedback_digest, feedback_count, response_digest, response_count,
			revoke_digest, revoke_count, raw_avg_score, atom_enabled, status,
			block_slot, tx_index, tx_signature, verified_at, created_at, updated_at
		FROM agents WHERE asset = $1`, asset)
	return scanAgent(row)
}

// ListAgentsByCollection returns agents in a collection, newest-first,
// excluding orphaned rows by default (canonical-view filter, spec.md §7).
func (r *Repository) ListAgentsByCollection(ctx context.Context, collection string, limit int) ([]models.Agent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT asset, global_id, owner, collection, COALESCE(wallet,''), COALESCE(uri,''),
			feedback_digest, feedback_count, response_digest, response_count,
			revoke_digest, revoke_count, raw_avg_score, atom_enabled, status,
			block_slot, tx_index, tx_signature, verified_at, created_at, updated_at
		FROM agents
		WHERE collection = $1 AND status != 'ORPHANED'
		ORDER BY block_slot DESC, COALESCE(tx_index, 2147483647) DESC, tx_signature DESC
		LIMIT $2`, collection, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Agent
	for rows.Next() {
		a, err := scanAgentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListFeedbacksByAsset returns non-orphaned feedback for an asset,
// oldest-first (canonical ordering contract, spec.md §4.2.1).
func (r *Repository) ListFeedbacksByAsset(ctx context.Context, asset string, limit int) ([]models.Feedback, error) {
	rows, err := r.db.Query(ctx, `
		SELECT asset, client_address, feedback_index, value_raw, value_decimals, score,
			COALESCE(tag1,''), COALESCE(tag2,''), COALESCE(endpoint,''), COALESCE(feedback_uri,''),
			feedback_hash, running_digest, is_revoked, status,
			block_slot, tx_index, tx_signature, created_at, updated_at
		FROM feedbacks
		WHERE asset = $1 AND status != 'ORPHANED'
		ORDER BY block_slot ASC, COALESCE(tx_index, 2147483647) ASC, tx_signature ASC
		LIMIT $2`, asset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Feedback
	for rows.Next() {
		var f models.Feedback
		var txIndex *int32
		if err := rows.Scan(&f.Asset, &f.ClientAddress, &f.FeedbackIndex, &f.ValueRaw, &f.ValueDecimals, &f.Score,
			&f.Tag1, &f.Tag2, &f.Endpoint, &f.FeedbackURI, &f.FeedbackHash, &f.RunningDigest, &f.IsRevoked, &f.Status,
			&f.BlockSlot, &txIndex, &f.TxSignature, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.TxIndex = txIndex
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanAgent(row pgx.Row) (*models.Agent, error) {
	a := &models.Agent{}
	var txIndex *int32
	var verifiedAt *time.Time
	err := row.Scan(&a.Asset, &a.GlobalID, &a.Owner, &a.Collection, &a.Wallet, &a.URI,
		&a.FeedbackDigest, &a.FeedbackCount, &a.ResponseDigest, &a.ResponseCount,
		&a.RevokeDigest, &a.RevokeCount, &a.RawAvgScore, &a.AtomEnabled, &a.Status,
		&a.BlockSlot, &txIndex, &a.TxSignature, &verifiedAt, &a.CreatedAt, &a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.TxIndex = txIndex
	a.VerifiedAt = verifiedAt
	return a, nil
}

func scanAgentRow(rows pgx.Rows) (*models.Agent, error) {
	a := &models.Agent{}
	var txIndex *int32
	var verifiedAt *time.Time
	err := rows.Scan(&a.Asset, &a.GlobalID, &a.Owner, &a.Collection, &a.Wallet, &a.URI,
		&a.FeedbackDigest, &a.FeedbackCount, &a.ResponseDigest, &a.ResponseCount,
		&a.RevokeDigest, &a.RevokeCount, &a.RawAvgScore, &a.AtomEnabled, &a.Status,
		&a.BlockSlot, &txIndex, &a.TxSignature, &verifiedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.TxIndex = txIndex
	a.VerifiedAt = verifiedAt
	return a, nil
}

// PendingAgents returns agent rows at or below cutoff slot, candidates
// for the verifier's existence check (spec.md §4.5.1).
func (r *Repository) PendingAgents(ctx context.Context, cutoff uint64, limit int) ([]models.Agent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT asset, global_id, owner, collection, COALESCE(wallet,''), COALESCE(uri,''),
			feedback_digest, feedback_count, response_digest, response_count,
			revoke_digest, revoke_count, raw_avg_score, atom_enabled, status,
			block_slot, tx_index, tx_signature, verified_at, created_at, updated_at
		FROM agents WHERE status = 'PENDING' AND block_slot <= $1
		ORDER BY block_slot ASC LIMIT $2`, int64(cutoff), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Agent
	for rows.Next() {
		a, err := scanAgentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// PendingValidations returns validation rows at or below cutoff slot.
func (r *Repository) PendingValidations(ctx context.Context, cutoff uint64, limit int) ([]models.Validation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT asset, validator, nonce, status, block_slot, tx_index, tx_signature, created_at
		FROM validations WHERE status = 'PENDING' AND block_slot <= $1
		ORDER BY block_slot ASC LIMIT $2`, int64(cutoff), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Validation
	for rows.Next() {
		var v models.Validation
		var txIndex *int32
		if err := rows.Scan(&v.Asset, &v.Validator, &v.Nonce, &v.Status, &v.BlockSlot, &txIndex, &v.TxSignature, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.TxIndex = txIndex
		out = append(out, v)
	}
	return out, rows.Err()
}

// PendingMetadataEntries returns metadata rows at or below cutoff slot,
// excluding the URI-worker-owned namespace (spec.md §4.5.2's special
// case: those are auto-finalized, never existence-checked on-chain).
func (r *Repository) PendingMetadataEntries(ctx context.Context, cutoff uint64, limit int) ([]models.MetadataEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT asset, key, key_hash, value, immutable, block_slot, tx_index, tx_signature, created_at, updated_at
		FROM metadata_entries
		WHERE status = 'PENDING' AND block_slot <= $1 AND key NOT LIKE '_uri:%'
		ORDER BY block_slot ASC LIMIT $2`, int64(cutoff), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MetadataEntry
	for rows.Next() {
		var m models.MetadataEntry
		var txIndex *int32
		if err := rows.Scan(&m.Asset, &m.Key, &m.KeyHash, &m.Value, &m.Immutable, &m.BlockSlot, &txIndex, &m.TxSignature, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.TxIndex = txIndex
		out = append(out, m)
	}
	return out, rows.Err()
}

// AutoFinalizeURIMetadata finalizes every pending `_uri:*` metadata row
// unconditionally: those keys are indexer-owned, never on-chain (spec.md
// §4.5.2 special case).
func (r *Repository) AutoFinalizeURIMetadata(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE metadata_entries SET status = 'FINALIZED', updated_at = NOW()
		WHERE status = 'PENDING' AND key LIKE '_uri:%'`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// URIMetadataField is one key/value pair the URI worker wants persisted
// under the `_uri:` namespace.
type URIMetadataField struct {
	Key   string // without the `_uri:` prefix
	Value []byte // already framed by internal/compress
}

// ReplaceURIMetadata deletes every existing `_uri:*` row for asset and
// inserts the given fields in one transaction (spec.md §4.6: "the write
// path deletes all prior _uri:* rows then inserts fresh ones"), stamped
// FINALIZED immediately since these rows are indexer-owned, not
// on-chain.
func (r *Repository) ReplaceURIMetadata(ctx context.Context, asset string, fields []URIMetadataField) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM metadata_entries WHERE asset = $1 AND key LIKE '_uri:%'`, asset); err != nil {
			return err
		}
		for _, f := range fields {
			key := models.URIMetadataPrefix + f.Key
			if _, err := tx.Exec(ctx, `
				INSERT INTO metadata_entries (asset, key, key_hash, value, immutable, status, block_slot, tx_index, tx_signature)
				VALUES ($1, $2, '', $3, false, 'FINALIZED', 0, NULL, '')`,
				asset, SanitizeForPG(key), f.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkMetadataStatus transitions one metadata row.
func (r *Repository) MarkMetadataStatus(ctx context.Context, asset, key string, status models.Status) error {
	_, err := r.db.Exec(ctx, `
		UPDATE metadata_entries SET status = $3, updated_at = NOW()
		WHERE asset = $1 AND key = $2 AND status = 'PENDING'`, asset, key, string(status))
	return err
}

// PendingCollections returns registry rows at or below cutoff slot.
func (r *Repository) PendingCollections(ctx context.Context, cutoff uint64, limit int) ([]models.Collection, error) {
	rows, err := r.db.Query(ctx, `
		SELECT collection, first_seen_slot, first_seen_tx, last_seen_slot, last_seen_tx, status, created_at, updated_at
		FROM collections WHERE status = 'PENDING' AND first_seen_slot <= $1
		ORDER BY first_seen_slot ASC LIMIT $2`, int64(cutoff), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Collection
	for rows.Next() {
		var c models.Collection
		if err := rows.Scan(&c.Collection, &c.FirstSeenSlot, &c.FirstSeenTx, &c.LastSeenSlot, &c.LastSeenTx, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkCollectionStatus transitions one collection row.
func (r *Repository) MarkCollectionStatus(ctx context.Context, collection string, status models.Status) error {
	_, err := r.db.Exec(ctx, `
		UPDATE collections SET status = $2, updated_at = NOW()
		WHERE collection = $1 AND status = 'PENDING'`, collection, string(status))
	return err
}

// MarkAgentStatus transitions a single agent row's status (verifier-owned
// column, spec.md §3's ownership rule). No-op if the row is already
// terminal.
func (r *Repository) MarkAgentStatus(ctx context.Context, asset string, status models.Status) error {
	_, err := r.db.Exec(ctx, `
		UPDATE agents SET status = $2, verified_at = NOW(), updated_at = NOW()
		WHERE asset = $1 AND status = 'PENDING'`, asset, string(status))
	return err
}

// MarkValidationStatus transitions one validation row.
func (r *Repository) MarkValidationStatus(ctx context.Context, asset, validator string, nonce uint32, status models.Status) error {
	_, err := r.db.Exec(ctx, `
		UPDATE validations SET status = $4, verified_at = NOW(), updated_at = NOW()
		WHERE asset = $1 AND validator = $2 AND nonce = $3 AND status = 'PENDING'`,
		asset, validator, nonce, string(status))
	return err
}

// OrphanAgentChain cascades ORPHANED status from an agent to all of its
// feedbacks, responses, and revocations in one statement per table
// (spec.md §4.5.3 step 4).
func (r *Repository) OrphanAgentChain(ctx context.Context, asset string) error {
	_, err := r.db.Exec(ctx, `UPDATE feedbacks SET status = 'ORPHANED', updated_at = NOW() WHERE asset = $1 AND status != 'ORPHANED'`, asset)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `UPDATE responses SET status = 'ORPHANED', updated_at = NOW() WHERE asset = $1 AND status != 'ORPHANED'`, asset)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `UPDATE revocations SET status = 'ORPHANED', updated_at = NOW() WHERE asset = $1 AND status != 'ORPHANED'`, asset)
	return err
}

// ChainState is the local half of the hash-chain comparison lattice
// (spec.md §4.5.3): the latest non-orphaned running digest and a count
// of non-orphaned events on that chain.
type ChainState struct {
	Digest []byte
	Count  int64
}

// FeedbackChainState reads the local feedback-chain state for an asset.
func (r *Repository) FeedbackChainState(ctx context.Context, asset string) (ChainState, error) {
	return chainState(ctx, r.db, `
		SELECT
			(SELECT running_digest FROM feedbacks
			 WHERE asset = $1 AND status != 'ORPHANED'
			 ORDER BY block_slot DESC, COALESCE(tx_index, 2147483647) DESC, tx_signature DESC LIMIT 1),
			(SELECT count(*) FROM feedbacks WHERE asset = $1 AND status != 'ORPHANED')`, asset)
}

// ResponseChainState reads the local response-chain state for an asset.
// Per design note §9, "latest" uses descending ordering on the same
// composite key used everywhere else, just reversed.
func (r *Repository) ResponseChainState(ctx context.Context, asset string) (ChainState, error) {
	return chainState(ctx, r.db, `
		SELECT
			(SELECT running_digest FROM responses
			 WHERE asset = $1 AND status != 'ORPHANED'
			 ORDER BY block_slot DESC, COALESCE(tx_index, 2147483647) DESC, tx_signature DESC LIMIT 1),
			(SELECT count(*) FROM responses WHERE asset = $1 AND status != 'ORPHANED')`, asset)
}

// RevokeChainState reads the local revoke-chain state for an asset.
func (r *Repository) RevokeChainState(ctx context.Context, asset string) (ChainState, error) {
	return chainState(ctx, r.db, `
		SELECT
			(SELECT running_digest FROM revocations
			 WHERE asset = $1 AND status != 'ORPHANED'
			 ORDER BY block_slot DESC, COALESCE(tx_index, 2147483647) DESC, tx_signature DESC LIMIT 1),
			(SELECT count(*) FROM revocations WHERE asset = $1 AND status != 'ORPHANED')`, asset)
}

func chainState(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, sql string, asset string) (ChainState, error) {
	var cs ChainState
	err := q.QueryRow(ctx, sql, asset).Scan(&cs.Digest, &cs.Count)
	if err != nil {
		return ChainState{}, err
	}
	return cs, nil
}

// FinalizeFeedbackChain marks every currently-PENDING feedback row for
// asset as FINALIZED. Called only once the verifier's hash-chain
// comparison lattice confirms local state matches on-chain (spec.md
// §4.5.3).
func (r *Repository) FinalizeFeedbackChain(ctx context.Context, asset string) error {
	_, err := r.db.Exec(ctx, `UPDATE feedbacks SET status = 'FINALIZED', verified_at = NOW(), updated_at = NOW() WHERE asset = $1 AND status = 'PENDING'`, asset)
	return err
}

// FinalizeResponseChain marks every currently-PENDING response row for
// asset as FINALIZED.
func (r *Repository) FinalizeResponseChain(ctx context.Context, asset string) error {
	_, err := r.db.Exec(ctx, `UPDATE responses SET status = 'FINALIZED', verified_at = NOW(), updated_at = NOW() WHERE asset = $1 AND status = 'PENDING'`, asset)
	return err
}

// FinalizeRevokeChain marks every currently-PENDING revocation row for
// asset as FINALIZED.
func (r *Repository) FinalizeRevokeChain(ctx context.Context, asset string) error {
	_, err := r.db.Exec(ctx, `UPDATE revocations SET status = 'FINALIZED', verified_at = NOW(), updated_at = NOW() WHERE asset = $1 AND status = 'PENDING'`, asset)
	return err
}

// ListMetadataByAsset returns every non-orphaned metadata row for an
// asset, including the `_uri:*` rows the URI worker owns — the API
// layer's agent-detail view merges both namespaces.
func (r *Repository) ListMetadataByAsset(ctx context.Context, asset string) ([]models.MetadataEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT asset, key, key_hash, value, immutable, block_slot, tx_index, tx_signature, created_at, updated_at
		FROM metadata_entries WHERE asset = $1 AND status != 'ORPHANED'
		ORDER BY key ASC`, asset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MetadataEntry
	for rows.Next() {
		var m models.MetadataEntry
		var txIndex *int32
		if err := rows.Scan(&m.Asset, &m.Key, &m.KeyHash, &m.Value, &m.Immutable, &m.BlockSlot, &txIndex, &m.TxSignature, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.TxIndex = txIndex
		out = append(out, m)
	}
	return out, rows.Err()
}

// Stats is the aggregate snapshot served by /status.
type Stats struct {
	TotalAgents     int64
	TotalFeedbacks  int64
	PendingAgents   int64
	OrphanedAgents  int64
	DeadLetterCount int64
}

// GetStats computes the counts the status endpoint reports. Each count
// is a separate fast index-only scan; a partial failure degrades that
// one field to zero rather than failing the whole snapshot.
func (r *Repository) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	_ = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM agents WHERE status != 'ORPHANED'`).Scan(&s.TotalAgents)
	_ = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM feedbacks WHERE status != 'ORPHANED'`).Scan(&s.TotalFeedbacks)
	_ = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM agents WHERE status = 'PENDING'`).Scan(&s.PendingAgents)
	_ = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM agents WHERE status = 'ORPHANED'`).Scan(&s.OrphanedAgents)
	if count, err := r.CountDeadLetters(ctx); err == nil {
		s.DeadLetterCount = int64(count)
	}
	return s, nil
}

// RecomputeAgentStats recalculates feedback_count and raw_avg_score from
// a COUNT(*)/AVG(score) over non-revoked feedback rows, in the single
// UPDATE the spec requires (spec.md §4.4).
func RecomputeAgentStats(ctx context.Context, tx pgx.Tx, asset string) error {
	_, err := tx.Exec(ctx, `
		UPDATE agents SET
			feedback_count = sub.cnt,
			raw_avg_score = COALESCE(sub.avg_score, 0),
			updated_at = NOW()
		FROM (
			SELECT count(*) AS cnt, AVG(score) AS avg_score
			FROM feedbacks WHERE asset = $1 AND is_revoked = false AND status != 'ORPHANED'
		) sub
		WHERE agents.asset = $1`, asset)
	return err
}
