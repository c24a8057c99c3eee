package proofclaim

import (
	"context"
	"sync"
	"time"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
)

type claimKey struct {
	kind proofmsg.Kind
	cid  string
}

// MemoryStore holds claims for a single process. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	claims map[claimKey]Claim
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:    now,
		claims: make(map[claimKey]Claim),
	}
}

func (s *MemoryStore) TryClaim(_ context.Context, kind proofmsg.Kind, proofCID, owner string, ttl time.Duration) (Claim, bool, error) {
	if err := ValidateClaim(kind, proofCID, owner, ttl); err != nil {
		return Claim{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := claimKey{kind: kind, cid: proofCID}
	if c, ok := s.claims[k]; ok && c.ExpiresAt.After(now) {
		return c, false, nil
	}
	c := Claim{Kind: kind, ProofCID: proofCID, Owner: owner, ExpiresAt: now.Add(ttl)}
	s.claims[k] = c
	return c, true, nil
}

func (s *MemoryStore) Release(_ context.Context, kind proofmsg.Kind, proofCID, owner string) error {
	if err := ValidateKey(kind, proofCID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := claimKey{kind: kind, cid: proofCID}
	c, ok := s.claims[k]
	if !ok {
		return nil
	}
	if c.Owner != owner {
		return ErrNotOwner
	}
	delete(s.claims, k)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, kind proofmsg.Kind, proofCID string) (Claim, error) {
	if err := ValidateKey(kind, proofCID); err != nil {
		return Claim{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimKey{kind: kind, cid: proofCID}]
	if !ok {
		return Claim{}, ErrNotFound
	}
	return c, nil
}
