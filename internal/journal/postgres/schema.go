package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS proof_calls (
	call_id UUID PRIMARY KEY,
	kind TEXT NOT NULL,
	proof_cid TEXT NOT NULL,
	signer TEXT NOT NULL DEFAULT '',
	state SMALLINT NOT NULL,
	tx_hash TEXT,
	payload_digest TEXT,
	archive_key TEXT,
	error_code TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT proof_calls_kind_known CHECK (kind IN ('authority', 'signature', 'agreement')),
	CONSTRAINT proof_calls_state_range CHECK (state >= 1 AND state <= 6)
);

CREATE INDEX IF NOT EXISTS proof_calls_proof_cid_idx ON proof_calls (proof_cid, created_at);
CREATE INDEX IF NOT EXISTS proof_calls_state_idx ON proof_calls (state);

-- Proof CIDs are opaque; blank ones are journaled and left for the contract to reject.
ALTER TABLE proof_calls DROP CONSTRAINT IF EXISTS proof_calls_proof_cid_nonempty;

CREATE TABLE IF NOT EXISTS proof_call_events (
	event_id BIGSERIAL PRIMARY KEY,
	call_id UUID NOT NULL REFERENCES proof_calls(call_id) ON DELETE CASCADE,
	from_state SMALLINT NOT NULL,
	to_state SMALLINT NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS proof_call_events_call_created_idx ON proof_call_events (call_id, created_at);
`
