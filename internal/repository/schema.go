package repository

// schemaDDL creates every table the indexer owns if it doesn't already
// exist. Mirrors spec.md §3/§6.5: one table per entity, a status column
// on every verifiable row, a monotonic cursor row, and a dead-letter
// table for the event buffer's exhausted-retry path.
const schemaDDL = `
CREATE SEQUENCE IF NOT EXISTS agent_global_id_seq;

CREATE TABLE IF NOT EXISTS agents (
	asset               TEXT PRIMARY KEY,
	global_id           BIGINT,
	owner               TEXT NOT NULL,
	collection          TEXT NOT NULL,
	wallet              TEXT,
	uri                 TEXT,
	feedback_digest     TEXT,
	feedback_count      BIGINT NOT NULL DEFAULT 0,
	response_digest     TEXT,
	response_count      BIGINT NOT NULL DEFAULT 0,
	revoke_digest       TEXT,
	revoke_count        BIGINT NOT NULL DEFAULT 0,
	raw_avg_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	atom_enabled        BOOLEAN NOT NULL DEFAULT false,
	status              TEXT NOT NULL DEFAULT 'PENDING',
	block_slot          BIGINT NOT NULL,
	tx_index            INT,
	tx_signature        TEXT NOT NULL,
	verified_at         TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_agents_status_slot ON agents (status, block_slot);
CREATE INDEX IF NOT EXISTS idx_agents_collection ON agents (collection);

CREATE OR REPLACE FUNCTION assign_agent_global_id() RETURNS trigger AS $$
BEGIN
	IF NEW.status <> 'ORPHANED' AND NEW.global_id IS NULL THEN
		NEW.global_id := nextval('agent_global_id_seq');
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_assign_agent_global_id ON agents;
CREATE TRIGGER trg_assign_agent_global_id
	BEFORE INSERT ON agents
	FOR EACH ROW EXECUTE FUNCTION assign_agent_global_id();

CREATE TABLE IF NOT EXISTS feedbacks (
	asset           TEXT NOT NULL,
	client_address  TEXT NOT NULL,
	feedback_index  BIGINT NOT NULL,
	value_raw       TEXT NOT NULL,
	value_decimals  INT NOT NULL DEFAULT 0,
	score           INT NOT NULL,
	tag1            TEXT,
	tag2            TEXT,
	endpoint        TEXT,
	feedback_uri    TEXT,
	feedback_hash   TEXT,
	running_digest  TEXT,
	is_revoked      BOOLEAN NOT NULL DEFAULT false,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	block_slot      BIGINT NOT NULL,
	tx_index        INT,
	tx_signature    TEXT NOT NULL,
	verified_at     TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (asset, client_address, feedback_index)
);
CREATE INDEX IF NOT EXISTS idx_feedbacks_status_slot ON feedbacks (status, block_slot);
CREATE INDEX IF NOT EXISTS idx_feedbacks_asset ON feedbacks (asset);

CREATE TABLE IF NOT EXISTS responses (
	asset           TEXT NOT NULL,
	client_address  TEXT NOT NULL,
	feedback_index  BIGINT NOT NULL,
	responder       TEXT NOT NULL,
	tx_signature    TEXT NOT NULL,
	response_uri    TEXT,
	running_digest  TEXT,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	block_slot      BIGINT NOT NULL,
	tx_index        INT,
	verified_at     TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (asset, client_address, feedback_index, responder, tx_signature)
);
CREATE INDEX IF NOT EXISTS idx_responses_status_slot ON responses (status, block_slot);
CREATE INDEX IF NOT EXISTS idx_responses_asset ON responses (asset);

CREATE TABLE IF NOT EXISTS revocations (
	asset           TEXT NOT NULL,
	client_address  TEXT NOT NULL,
	feedback_index  BIGINT NOT NULL,
	running_digest  TEXT,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	block_slot      BIGINT NOT NULL,
	tx_index        INT,
	tx_signature    TEXT NOT NULL,
	verified_at     TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (asset, client_address, feedback_index)
);
CREATE INDEX IF NOT EXISTS idx_revocations_status_slot ON revocations (status, block_slot);
CREATE INDEX IF NOT EXISTS idx_revocations_asset ON revocations (asset);

CREATE TABLE IF NOT EXISTS metadata_entries (
	asset         TEXT NOT NULL,
	key           TEXT NOT NULL,
	key_hash      TEXT NOT NULL,
	value         BYTEA NOT NULL,
	immutable     BOOLEAN NOT NULL DEFAULT false,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	block_slot    BIGINT NOT NULL DEFAULT 0,
	tx_index      INT,
	tx_signature  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (asset, key)
);
CREATE INDEX IF NOT EXISTS idx_metadata_asset ON metadata_entries (asset);
CREATE INDEX IF NOT EXISTS idx_metadata_status_slot ON metadata_entries (status, block_slot);

CREATE TABLE IF NOT EXISTS validations (
	asset         TEXT NOT NULL,
	validator     TEXT NOT NULL,
	nonce         BIGINT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	block_slot    BIGINT NOT NULL,
	tx_index      INT,
	tx_signature  TEXT NOT NULL,
	verified_at   TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (asset, validator, nonce)
);
CREATE INDEX IF NOT EXISTS idx_validations_status_slot ON validations (status, block_slot);
CREATE INDEX IF NOT EXISTS idx_validations_asset ON validations (asset);

CREATE TABLE IF NOT EXISTS collections (
	collection      TEXT PRIMARY KEY,
	first_seen_slot BIGINT NOT NULL,
	first_seen_tx   TEXT NOT NULL DEFAULT '',
	last_seen_slot  BIGINT NOT NULL,
	last_seen_tx    TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'PENDING',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_collections_status_slot ON collections (status, last_seen_slot);

CREATE TABLE IF NOT EXISTS indexer_cursor (
	id                     TEXT PRIMARY KEY,
	last_signature         TEXT,
	last_slot              BIGINT,
	source                 TEXT,
	pending_continuation    TEXT,
	pending_stop_signature  TEXT,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id          BIGSERIAL PRIMARY KEY,
	event_type  TEXT NOT NULL,
	payload     BYTEA NOT NULL,
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_created_at ON dead_letters (created_at);
`
