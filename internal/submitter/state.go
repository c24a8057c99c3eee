package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
)

// State is a step of a single submission: Built → Simulated → Submitted → InBlock → Finalized,
// with Failed reachable from every non-terminal state.
type State uint8

const (
	StateBuilt State = iota + 1
	StateSimulated
	StateSubmitted
	StateInBlock
	StateFinalized
	StateFailed
)

func (s State) String() string {
	switch s {
	case 0:
		return "none"
	case StateBuilt:
		return "built"
	case StateSimulated:
		return "simulated"
	case StateSubmitted:
		return "submitted"
	case StateInBlock:
		return "in_block"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

func (s State) Terminal() bool {
	return s == StateFinalized || s == StateFailed
}

// Call identifies one submission for observers.
type Call struct {
	ID       string
	Kind     proofmsg.Kind
	ProofCID string
	Signer   string
	TxHash   string
	Started  time.Time
}

// Event is a single state transition.
type Event struct {
	Call Call
	From State
	To   State
	At   time.Time
	// Err is set on transitions into StateFailed.
	Err error
}

// Observer sees every transition of every call. Implementations must not block for long; the
// submission waits for Observe to return.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }
