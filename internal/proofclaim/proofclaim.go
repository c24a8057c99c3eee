// Package proofclaim keeps two service instances from submitting the same proof at once. A
// claim is an expiring ownership record keyed by proof kind and CID.
package proofclaim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
)

var (
	ErrInvalidInput = errors.New("proofclaim: invalid input")
	ErrNotFound     = errors.New("proofclaim: not found")
	ErrNotOwner     = errors.New("proofclaim: not owner")
)

type Claim struct {
	Kind      proofmsg.Kind
	ProofCID  string
	Owner     string
	ExpiresAt time.Time
}

// Store is a compare-and-swap claim table.
//
// TryClaim succeeds when no live claim exists for the proof; otherwise it returns the holder's
// claim and false. Release is idempotent when the claim is already gone and rejects other owners.
type Store interface {
	TryClaim(ctx context.Context, kind proofmsg.Kind, proofCID, owner string, ttl time.Duration) (Claim, bool, error)
	Release(ctx context.Context, kind proofmsg.Kind, proofCID, owner string) error
	Get(ctx context.Context, kind proofmsg.Kind, proofCID string) (Claim, error)
}

func ValidateKey(kind proofmsg.Kind, proofCID string) error {
	if !kind.Valid() || strings.TrimSpace(proofCID) == "" {
		return fmt.Errorf("%w: kind and proof cid are required", ErrInvalidInput)
	}
	return nil
}

func ValidateClaim(kind proofmsg.Kind, proofCID, owner string, ttl time.Duration) error {
	if err := ValidateKey(kind, proofCID); err != nil {
		return err
	}
	if strings.TrimSpace(owner) == "" || ttl <= 0 {
		return fmt.Errorf("%w: owner must be non-empty and ttl must be > 0", ErrInvalidInput)
	}
	return nil
}
