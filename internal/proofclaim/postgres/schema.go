package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS proof_claims (
	kind TEXT NOT NULL CHECK (kind IN ('authority', 'signature', 'agreement')),
	proof_cid TEXT NOT NULL,
	owner TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, proof_cid)
);

CREATE INDEX IF NOT EXISTS proof_claims_expires_at_idx ON proof_claims (expires_at);
`
