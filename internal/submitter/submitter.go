// Package submitter drives a single proof through dry-run simulation, submission and
// finalization, producing a transaction hash or a normalized failure.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DAOsign/daosign-go/internal/ledger"
	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/google/uuid"
)

// wrapSubmitErrors says whether submission errors of a kind are normalized into
// ErrTransactionFailed. Agreement submissions surface their submission error unchanged.
var wrapSubmitErrors = map[proofmsg.Kind]bool{
	proofmsg.KindAuthority: true,
	proofmsg.KindSignature: true,
	proofmsg.KindAgreement: false,
}

type Config struct {
	// Ceiling bounds simulations. Defaults to ledger.SimulationCeiling.
	Ceiling ledger.Weight

	Observers []Observer
	Logger    *slog.Logger
	Now       func() time.Time
}

type Submitter struct {
	dialer   ledger.Dialer
	contract string
	cfg      Config
	log      *slog.Logger
}

func New(dialer ledger.Dialer, contractAddress string, cfg Config) (*Submitter, error) {
	if dialer == nil {
		return nil, fmt.Errorf("%w: nil dialer", ErrInvalidConfig)
	}
	contractAddress = strings.TrimSpace(contractAddress)
	if contractAddress == "" {
		return nil, fmt.Errorf("%w: missing contract address", ErrInvalidConfig)
	}
	if cfg.Ceiling.IsZero() {
		cfg.Ceiling = ledger.SimulationCeiling
	}
	for _, o := range cfg.Observers {
		if o == nil {
			return nil, fmt.Errorf("%w: nil observer", ErrInvalidConfig)
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Submitter{
		dialer:   dialer,
		contract: contractAddress,
		cfg:      cfg,
		log:      log,
	}, nil
}

// ContractAddress is the contract every call is bound to.
func (s *Submitter) ContractAddress() string { return s.contract }

// Submit simulates, submits, and waits for finalization of payload signed by signer. It returns
// the transaction hash once the ledger reports the transaction finalized.
//
// The connection opened for the call is closed on every return path.
func (s *Submitter) Submit(ctx context.Context, signer ledger.Signer, payload proofmsg.Payload) (string, error) {
	if signer == nil || payload == nil {
		return "", fmt.Errorf("%w: nil signer or payload", ErrInvalidConfig)
	}
	kind := payload.Kind()
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown proof kind %d", ErrInvalidConfig, uint8(kind))
	}

	r := &run{
		s: s,
		call: Call{
			ID:       uuid.NewString(),
			Kind:     kind,
			ProofCID: payload.CID(),
			Signer:   signer.Address(),
			Started:  s.cfg.Now().UTC(),
		},
	}
	log := s.log.With("call_id", r.call.ID, "kind", kind.String(), "method", kind.Method())

	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		err = fmt.Errorf("submitter: dial: %w", err)
		r.fail(ctx, err)
		return "", err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warn("release connection", "err", cerr)
		}
	}()

	contract, err := conn.Contract(s.contract)
	if err != nil {
		err = fmt.Errorf("submitter: bind contract %s: %w", s.contract, err)
		r.fail(ctx, err)
		return "", err
	}
	r.to(ctx, StateBuilt)

	sim, err := contract.Simulate(ctx, signer.Address(), ledger.CallOptions{GasLimit: s.cfg.Ceiling}, payload)
	if err != nil {
		log.Warn("simulation error", "err", err)
		err = failure(StageSimulate, err)
		r.fail(ctx, err)
		return "", err
	}
	if sim.Failed {
		cause := ErrSimulationRejected
		if sim.Reason != "" {
			cause = fmt.Errorf("%w: %s", ErrSimulationRejected, sim.Reason)
		}
		err = failure(StageSimulate, cause)
		log.Warn("simulation rejected", "reason", sim.Reason)
		r.fail(ctx, err)
		return "", err
	}
	r.to(ctx, StateSimulated)

	sub, err := contract.Submit(ctx, signer, ledger.CallOptions{GasLimit: sim.GasRequired}, payload)
	if err != nil {
		log.Warn("submission error", "err", err)
		if wrapSubmitErrors[kind] {
			err = failure(StageSubmit, err)
		}
		r.fail(ctx, err)
		return "", err
	}
	r.call.TxHash = sub.TxHash()
	r.to(ctx, StateSubmitted)
	log.Info("transaction submitted", "tx_hash", r.call.TxHash, "ref_time", sim.GasRequired.RefTime, "proof_size", sim.GasRequired.ProofSize)

	return r.await(ctx, log, sub)
}

func (r *run) await(ctx context.Context, log *slog.Logger, sub ledger.Submission) (string, error) {
	for {
		u, err := sub.Next(ctx)
		if err != nil {
			r.fail(ctx, err)
			return "", err
		}
		if u.TxHash != "" {
			r.call.TxHash = u.TxHash
		}

		switch u.Status {
		case ledger.StatusInBlock:
			log.Info("Transaction included in block", "tx_hash", r.call.TxHash, "block_hash", u.BlockHash, "block_number", u.BlockNumber)
			r.to(ctx, StateInBlock)
		case ledger.StatusRetracted:
			log.Warn("transaction retracted from block", "tx_hash", r.call.TxHash, "block_hash", u.BlockHash)
			r.to(ctx, StateSubmitted)
		case ledger.StatusFinalized:
			log.Info("Transaction finalized", "tx_hash", r.call.TxHash, "block_hash", u.BlockHash, "block_number", u.BlockNumber)
			r.to(ctx, StateFinalized)
			return r.call.TxHash, nil
		case ledger.StatusInvalid, ledger.StatusDropped, ledger.StatusUsurped:
			err := failure(StageFinalize, fmt.Errorf("%w: %s", ErrNotFinalized, u.Status))
			log.Warn("transaction not finalized", "tx_hash", r.call.TxHash, "status", u.Status.String())
			r.fail(ctx, err)
			return "", err
		default:
			log.Debug("transaction status", "tx_hash", r.call.TxHash, "status", u.Status.String())
		}
	}
}

type run struct {
	s     *Submitter
	call  Call
	state State
}

func (r *run) to(ctx context.Context, next State) {
	ev := Event{
		Call: r.call,
		From: r.state,
		To:   next,
		At:   r.s.cfg.Now().UTC(),
	}
	r.state = next
	r.emit(ctx, ev)
}

func (r *run) fail(ctx context.Context, err error) {
	ev := Event{
		Call: r.call,
		From: r.state,
		To:   StateFailed,
		At:   r.s.cfg.Now().UTC(),
		Err:  err,
	}
	r.state = StateFailed
	r.emit(ctx, ev)
}

func (r *run) emit(ctx context.Context, ev Event) {
	// Observers still see the failure transition when ctx is already done.
	octx := context.WithoutCancel(ctx)
	for _, o := range r.s.cfg.Observers {
		o.Observe(octx, ev)
	}
}

// IsTransactionFailed reports whether err is the normalized failure kind.
func IsTransactionFailed(err error) bool {
	return errors.Is(err, ErrTransactionFailed)
}
