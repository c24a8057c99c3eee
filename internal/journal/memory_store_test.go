package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/DAOsign/daosign-go/internal/submitter"
	"github.com/google/uuid"
)

func newRecord(proofCID string) Record {
	return Record{
		ID:       uuid.NewString(),
		Kind:     proofmsg.KindSignature,
		ProofCID: proofCID,
		Signer:   "0x5678",
		State:    submitter.StateBuilt,
	}
}

func TestMemoryStore_CreateRejectsDuplicateAndInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 2, 11, 13, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })

	rec := newRecord("cid-1")
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, rec); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps: %+v", got)
	}

	// Proof CIDs are opaque; a blank one is still journaled.
	if err := store.Create(ctx, newRecord("")); err != nil {
		t.Fatalf("blank cid: %v", err)
	}
	bad := newRecord("cid")
	bad.ID = "not-a-uuid"
	if err := store.Create(ctx, bad); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("bad id: expected ErrInvalidRecord, got %v", err)
	}
}

func TestMemoryStore_TransitionKeepsFieldsAndStopsAtTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(nil)
	rec := newRecord("cid-2")
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	steps := []Transition{
		{State: submitter.StateSimulated},
		{State: submitter.StateSubmitted, TxHash: "0xaa"},
		{State: submitter.StateInBlock},
		{State: submitter.StateFinalized},
	}
	var got Record
	var err error
	for _, st := range steps {
		got, err = store.Transition(ctx, rec.ID, st)
		if err != nil {
			t.Fatalf("Transition(%s): %v", st.State, err)
		}
	}
	if got.State != submitter.StateFinalized || got.TxHash != "0xaa" {
		t.Fatalf("record: %+v", got)
	}

	if _, err := store.Transition(ctx, rec.ID, Transition{State: submitter.StateFinalized}); err != nil {
		t.Fatalf("repeat terminal: %v", err)
	}
	if _, err := store.Transition(ctx, rec.ID, Transition{State: submitter.StateFailed}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := store.Transition(ctx, uuid.NewString(), Transition{State: submitter.StateFailed}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListByProofCIDOldestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 2, 11, 13, 0, 0, 0, time.UTC)
	store := NewMemoryStore(nil)

	first := newRecord("shared")
	first.CreatedAt = now.Add(time.Minute)
	second := newRecord("shared")
	second.CreatedAt = now
	other := newRecord("other")
	for _, r := range []Record{first, second, other} {
		if err := store.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := store.ListByProofCID(ctx, "shared")
	if err != nil {
		t.Fatalf("ListByProofCID: %v", err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("order: %+v", got)
	}
}
