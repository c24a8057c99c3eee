// Package journal keeps a durable record of every proof submission and its state transitions.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/DAOsign/daosign-go/internal/submitter"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidRecord     = errors.New("journal: invalid record")
	ErrNotFound          = errors.New("journal: not found")
	ErrAlreadyExists     = errors.New("journal: record already exists")
	ErrInvalidTransition = errors.New("journal: invalid transition")
	ErrInvalidConfig     = errors.New("journal: invalid config")
)

// Record is one submission, keyed by the submitter's call id.
type Record struct {
	ID       string
	Kind     proofmsg.Kind
	ProofCID string
	Signer   string
	State    submitter.State
	TxHash   string

	// PayloadDigest is the keccak256 of the payload's JSON rendering.
	PayloadDigest string
	ArchiveKey    string

	ErrorCode    string
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Record) Validate() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("%w: id: %v", ErrInvalidRecord, err)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidRecord, uint8(r.Kind))
	}
	if r.State < submitter.StateBuilt || r.State > submitter.StateFailed {
		return fmt.Errorf("%w: state %s", ErrInvalidRecord, r.State)
	}
	return nil
}

// Transition moves a record to State. Empty fields leave the stored value unchanged.
type Transition struct {
	State        submitter.State
	TxHash       string
	ErrorCode    string
	ErrorMessage string
	At           time.Time
}

// CheckTransition rejects moves out of a terminal state. Repeating the terminal state is allowed.
func CheckTransition(from, to submitter.State) error {
	if to < submitter.StateBuilt || to > submitter.StateFailed {
		return fmt.Errorf("%w: unknown state %s", ErrInvalidTransition, to)
	}
	if from.Terminal() && from != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

type Store interface {
	Create(ctx context.Context, rec Record) error
	Transition(ctx context.Context, id string, t Transition) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	ListByProofCID(ctx context.Context, proofCID string) ([]Record, error)
}

// PayloadDigest returns the 0x-prefixed keccak256 of payload's JSON rendering.
func PayloadDigest(payload proofmsg.Payload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("%w: nil payload", ErrInvalidRecord)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("journal: marshal payload: %w", err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return hexutil.Encode(h.Sum(nil)), nil
}

type annotationKey struct{}

// Annotation carries per-call details the submitter does not know about.
type Annotation struct {
	PayloadDigest string
	ArchiveKey    string
}

// WithAnnotation attaches a to ctx so a Recorder stores it with the call it observes.
func WithAnnotation(ctx context.Context, a Annotation) context.Context {
	return context.WithValue(ctx, annotationKey{}, a)
}

func annotationFrom(ctx context.Context) Annotation {
	a, _ := ctx.Value(annotationKey{}).(Annotation)
	return a
}
