// Package ledger defines what the proof pipeline needs from a ledger client: a scoped connection,
// a contract handle with simulate and submit calls, a signer, and a per-submission status stream.
package ledger

import (
	"context"
	"math/big"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
)

// Weight bounds or reports the cost of a contract call.
type Weight struct {
	RefTime   uint64
	ProofSize uint64
}

func (w Weight) IsZero() bool { return w.RefTime == 0 && w.ProofSize == 0 }

// SimulationCeiling is the gas ceiling for dry runs. It only bounds the simulation and is never
// used as the real limit.
var SimulationCeiling = Weight{
	RefTime:   5_000_000_000_000 - 1,
	ProofSize: 1_000_000,
}

// CallOptions accompany every simulate and submit call. A nil StorageDepositLimit means no limit.
type CallOptions struct {
	GasLimit            Weight
	StorageDepositLimit *big.Int
}

// SimulationResult is the outcome of a dry run. Failed reports that the contract rejected the
// call; GasRequired is what the real submission should be charged against.
type SimulationResult struct {
	Failed      bool
	Reason      string
	GasRequired Weight
}

// Signer authorizes submitted calls for a single account.
type Signer interface {
	Address() string
	// Sign returns a recoverable signature over a 32-byte digest.
	Sign(digest []byte) ([]byte, error)
}

// Dialer opens a fresh connection per call.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

type Conn interface {
	Contract(address string) (Contract, error)
	// FreeBalance returns the transferable balance of address.
	FreeBalance(ctx context.Context, address string) (*big.Int, error)
	Close() error
}

type Contract interface {
	Simulate(ctx context.Context, caller string, opts CallOptions, payload proofmsg.Payload) (SimulationResult, error)
	Submit(ctx context.Context, signer Signer, opts CallOptions, payload proofmsg.Payload) (Submission, error)
}

// Submission tracks one broadcast call.
type Submission interface {
	TxHash() string
	// Next blocks until the next status change. Errors end the stream.
	Next(ctx context.Context) (StatusUpdate, error)
}
