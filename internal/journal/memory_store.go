package journal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu sync.Mutex

	nowFn   func() time.Time
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(nowFn func() time.Time) *MemoryStore {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemoryStore{nowFn: nowFn, records: make(map[string]Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	if s == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	now := s.nowFn().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return ErrAlreadyExists
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, t Transition) (Record, error) {
	if s == nil {
		return Record{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	now := s.nowFn().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if err := CheckTransition(rec.State, t.State); err != nil {
		return Record{}, err
	}
	rec.State = t.State
	if t.TxHash != "" {
		rec.TxHash = t.TxHash
	}
	if t.ErrorCode != "" {
		rec.ErrorCode = t.ErrorCode
	}
	if t.ErrorMessage != "" {
		rec.ErrorMessage = t.ErrorMessage
	}
	rec.UpdatedAt = now
	if !t.At.IsZero() {
		rec.UpdatedAt = t.At.UTC()
	}
	s.records[id] = rec
	return rec, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	if s == nil {
		return Record{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// ListByProofCID returns every call for proofCID, oldest first.
func (s *MemoryStore) ListByProofCID(_ context.Context, proofCID string) ([]Record, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.records {
		if rec.ProofCID == proofCID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
