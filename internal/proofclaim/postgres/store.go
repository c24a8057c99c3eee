package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DAOsign/daosign-go/internal/proofclaim"
	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInvalidConfig = errors.New("proofclaim/postgres: invalid config")

// Store uses the database clock for expiry so instances with skewed clocks agree.
type Store struct {
	pool *pgxpool.Pool
}

var _ proofclaim.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("proofclaim/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) TryClaim(ctx context.Context, kind proofmsg.Kind, proofCID, owner string, ttl time.Duration) (proofclaim.Claim, bool, error) {
	if s == nil || s.pool == nil {
		return proofclaim.Claim{}, false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := proofclaim.ValidateClaim(kind, proofCID, owner, ttl); err != nil {
		return proofclaim.Claim{}, false, err
	}

	var expires time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO proof_claims (kind, proof_cid, owner, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, now() + ($4::bigint * interval '1 millisecond'), now(), now())
		ON CONFLICT (kind, proof_cid) DO UPDATE
		SET owner = EXCLUDED.owner,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
		WHERE proof_claims.expires_at <= now()
		RETURNING expires_at
	`, kind.String(), proofCID, owner, ttlMilliseconds(ttl)).Scan(&expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Held by someone else; report the holder.
			c, gerr := s.Get(ctx, kind, proofCID)
			if gerr != nil {
				return proofclaim.Claim{}, false, gerr
			}
			return c, false, nil
		}
		return proofclaim.Claim{}, false, fmt.Errorf("proofclaim/postgres: try claim: %w", err)
	}

	return proofclaim.Claim{Kind: kind, ProofCID: proofCID, Owner: owner, ExpiresAt: expires}, true, nil
}

func (s *Store) Release(ctx context.Context, kind proofmsg.Kind, proofCID, owner string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := proofclaim.ValidateKey(kind, proofCID); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM proof_claims WHERE kind = $1 AND proof_cid = $2 AND owner = $3`, kind.String(), proofCID, owner)
	if err != nil {
		return fmt.Errorf("proofclaim/postgres: release: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	c, gerr := s.Get(ctx, kind, proofCID)
	if errors.Is(gerr, proofclaim.ErrNotFound) {
		return nil
	}
	if gerr != nil {
		return gerr
	}
	if c.Owner != owner {
		return proofclaim.ErrNotOwner
	}
	return nil
}

func (s *Store) Get(ctx context.Context, kind proofmsg.Kind, proofCID string) (proofclaim.Claim, error) {
	if s == nil || s.pool == nil {
		return proofclaim.Claim{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := proofclaim.ValidateKey(kind, proofCID); err != nil {
		return proofclaim.Claim{}, err
	}

	c := proofclaim.Claim{Kind: kind, ProofCID: proofCID}
	err := s.pool.QueryRow(ctx, `SELECT owner, expires_at FROM proof_claims WHERE kind = $1 AND proof_cid = $2`,
		kind.String(), proofCID).Scan(&c.Owner, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return proofclaim.Claim{}, proofclaim.ErrNotFound
		}
		return proofclaim.Claim{}, fmt.Errorf("proofclaim/postgres: get: %w", err)
	}
	return c, nil
}

func ttlMilliseconds(ttl time.Duration) int64 {
	if ms := ttl.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}
