// Package archive keeps the encoded payload of every submitted proof in an object store, keyed by
// proof kind and CID, with a content CID for integrity checks on read.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/ipfs/go-cid"
)

var (
	ErrInvalidConfig = errors.New("archive: invalid config")
	ErrInvalidKey    = errors.New("archive: invalid key")
	ErrNotFound      = errors.New("archive: not found")
	ErrTooLarge      = errors.New("archive: object too large")
	ErrCorrupt       = errors.New("archive: content does not match its cid")
)

const (
	metaKind       = "kind"
	metaProofCID   = "proof-cid"
	metaContentCID = "content-cid"
)

// Entry describes one archived payload.
type Entry struct {
	Key        string
	Kind       proofmsg.Kind
	ProofCID   string
	ContentCID string
	Size       int
}

type Archive struct {
	backend Backend
}

func New(backend Backend) (*Archive, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidConfig)
	}
	return &Archive{backend: backend}, nil
}

// Key is proofs/<kind>/<canonical proof cid>.json.
func Key(kind proofmsg.Kind, proofCID string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %d", ErrInvalidKey, uint8(kind))
	}
	canonical, err := CanonicalProofCID(proofCID)
	if err != nil {
		return "", err
	}
	return "proofs/" + kind.String() + "/" + canonical + ".json", nil
}

// Put stores the JSON rendering of payload. Storing the same payload twice rewrites identical
// content under the same key.
func (a *Archive) Put(ctx context.Context, payload proofmsg.Payload) (Entry, error) {
	if payload == nil {
		return Entry{}, fmt.Errorf("%w: nil payload", ErrInvalidKey)
	}
	key, err := Key(payload.Kind(), payload.CID())
	if err != nil {
		return Entry{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("archive: marshal payload: %w", err)
	}
	content, err := ContentCID(data)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Key:        key,
		Kind:       payload.Kind(),
		ProofCID:   payload.CID(),
		ContentCID: content.String(),
		Size:       len(data),
	}
	if err := a.backend.Put(ctx, key, data, map[string]string{
		metaKind:       entry.Kind.String(),
		metaProofCID:   entry.ProofCID,
		metaContentCID: entry.ContentCID,
	}); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Get returns the archived payload JSON and verifies it against its recorded content CID.
func (a *Archive) Get(ctx context.Context, kind proofmsg.Kind, proofCID string) (Entry, []byte, error) {
	key, err := Key(kind, proofCID)
	if err != nil {
		return Entry{}, nil, err
	}
	data, meta, err := a.backend.Get(ctx, key)
	if err != nil {
		return Entry{}, nil, err
	}

	got, err := ContentCID(data)
	if err != nil {
		return Entry{}, nil, err
	}
	if want := meta[metaContentCID]; want != "" {
		wantCID, err := cid.Decode(want)
		if err != nil || !wantCID.Equals(got) {
			return Entry{}, nil, fmt.Errorf("%w: %s", ErrCorrupt, key)
		}
	}

	entry := Entry{
		Key:        key,
		Kind:       kind,
		ProofCID:   meta[metaProofCID],
		ContentCID: got.String(),
		Size:       len(data),
	}
	if entry.ProofCID == "" {
		entry.ProofCID = proofCID
	}
	return entry, data, nil
}

func (a *Archive) Exists(ctx context.Context, kind proofmsg.Kind, proofCID string) (bool, error) {
	key, err := Key(kind, proofCID)
	if err != nil {
		return false, err
	}
	return a.backend.Exists(ctx, key)
}
