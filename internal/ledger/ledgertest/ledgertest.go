// Package ledgertest provides a scripted in-memory ledger for tests.
package ledgertest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/DAOsign/daosign-go/internal/ledger"
	"github.com/DAOsign/daosign-go/internal/proofmsg"
)

// ErrStreamEnded is returned by Next once a scripted stream has no more updates and no error.
var ErrStreamEnded = errors.New("ledgertest: status stream ended")

// SimulateCall records the arguments of a Simulate call.
type SimulateCall struct {
	Caller  string
	Opts    ledger.CallOptions
	Payload proofmsg.Payload
}

// SubmitCall records the arguments of a Submit call.
type SubmitCall struct {
	Signer  string
	Opts    ledger.CallOptions
	Payload proofmsg.Payload
}

// Ledger is a fake ledger. Zero-value fields mean success with empty results.
type Ledger struct {
	mu sync.Mutex

	DialErr     error
	ContractErr error

	SimResult ledger.SimulationResult
	SimErr    error

	SubmitErr error
	TxHash    string
	Updates   []ledger.StatusUpdate
	StreamErr error

	Balances   map[string]*big.Int
	BalanceErr error

	Dials          int
	Closes         int
	ContractAddrs  []string
	SimulateCalls  []SimulateCall
	SubmitCalls    []SubmitCall
	BalanceQueries []string
}

func (l *Ledger) Dial(_ context.Context) (ledger.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.DialErr != nil {
		return nil, l.DialErr
	}
	l.Dials++
	return &conn{l: l}, nil
}

// OpenConns is the number of dialed connections not yet closed.
func (l *Ledger) OpenConns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Dials - l.Closes
}

func (l *Ledger) Snapshot() (sims []SimulateCall, subs []SubmitCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SimulateCall(nil), l.SimulateCalls...), append([]SubmitCall(nil), l.SubmitCalls...)
}

type conn struct {
	l      *Ledger
	closed bool
}

func (c *conn) Contract(address string) (ledger.Contract, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	c.l.ContractAddrs = append(c.l.ContractAddrs, address)
	if c.l.ContractErr != nil {
		return nil, c.l.ContractErr
	}
	return &contract{l: c.l}, nil
}

func (c *conn) FreeBalance(_ context.Context, address string) (*big.Int, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	c.l.BalanceQueries = append(c.l.BalanceQueries, address)
	if c.l.BalanceErr != nil {
		return nil, c.l.BalanceErr
	}
	if v, ok := c.l.Balances[address]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (c *conn) Close() error {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.l.Closes++
	}
	return nil
}

type contract struct {
	l *Ledger
}

func (c *contract) Simulate(_ context.Context, caller string, opts ledger.CallOptions, payload proofmsg.Payload) (ledger.SimulationResult, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	c.l.SimulateCalls = append(c.l.SimulateCalls, SimulateCall{Caller: caller, Opts: opts, Payload: payload})
	if c.l.SimErr != nil {
		return ledger.SimulationResult{}, c.l.SimErr
	}
	return c.l.SimResult, nil
}

func (c *contract) Submit(_ context.Context, signer ledger.Signer, opts ledger.CallOptions, payload proofmsg.Payload) (ledger.Submission, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	c.l.SubmitCalls = append(c.l.SubmitCalls, SubmitCall{Signer: signer.Address(), Opts: opts, Payload: payload})
	if c.l.SubmitErr != nil {
		return nil, c.l.SubmitErr
	}
	return &submission{
		hash:    c.l.TxHash,
		updates: append([]ledger.StatusUpdate(nil), c.l.Updates...),
		err:     c.l.StreamErr,
	}, nil
}

type submission struct {
	mu      sync.Mutex
	hash    string
	updates []ledger.StatusUpdate
	err     error
}

func (s *submission) TxHash() string { return s.hash }

func (s *submission) Next(ctx context.Context) (ledger.StatusUpdate, error) {
	if err := ctx.Err(); err != nil {
		return ledger.StatusUpdate{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) > 0 {
		u := s.updates[0]
		s.updates = s.updates[1:]
		if u.TxHash == "" {
			u.TxHash = s.hash
		}
		return u, nil
	}
	if s.err != nil {
		return ledger.StatusUpdate{}, s.err
	}
	return ledger.StatusUpdate{}, ErrStreamEnded
}

// Signer is a fake signer returning a fixed 65-byte signature.
type Signer struct {
	Addr string
	Err  error
}

func (s Signer) Address() string { return s.Addr }

func (s Signer) Sign(digest []byte) ([]byte, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	sig := make([]byte, 65)
	copy(sig, digest)
	return sig, nil
}

// Finalizing returns the in-block then finalized updates of a successful submission.
func Finalizing() []ledger.StatusUpdate {
	return []ledger.StatusUpdate{
		{Status: ledger.StatusBroadcast},
		{Status: ledger.StatusInBlock, BlockHash: "0xb10c", BlockNumber: 7},
		{Status: ledger.StatusFinalized, BlockHash: "0xb10c", BlockNumber: 7},
	}
}
