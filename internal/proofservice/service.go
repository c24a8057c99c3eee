// Package proofservice turns proof documents into finalized ledger transactions: decode, encode,
// archive, submit.
package proofservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DAOsign/daosign-go/internal/archive"
	"github.com/DAOsign/daosign-go/internal/journal"
	"github.com/DAOsign/daosign-go/internal/ledger"
	"github.com/DAOsign/daosign-go/internal/proofclaim"
	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/DAOsign/daosign-go/internal/submitter"
)

var (
	ErrInvalidConfig = errors.New("proofservice: invalid config")
	ErrUnknownSigner = errors.New("proofservice: unknown signer")
)

const (
	// CodeUnknownSigner is the outcome code for requests naming a signer the service does not hold.
	CodeUnknownSigner = "unknown_signer"
	// CodeInProgress means another instance holds the claim on the same proof.
	CodeInProgress = "in_progress"
)

// PayloadSubmitter is satisfied by *daosign.Client.
type PayloadSubmitter interface {
	SubmitPayload(ctx context.Context, signer ledger.Signer, payload proofmsg.Payload) (string, error)
}

type Config struct {
	// RequestTimeout bounds one submission, finalization included. Defaults to 10 minutes.
	RequestTimeout time.Duration

	// Claims, when set, serializes submissions of the same proof across instances sharing the
	// store. ClaimOwner identifies this instance; ClaimTTL defaults to RequestTimeout plus a minute.
	Claims     proofclaim.Store
	ClaimOwner string
	ClaimTTL   time.Duration
}

type Service struct {
	cfg Config

	client   PayloadSubmitter
	signers  map[string]ledger.Signer
	order    []ledger.Signer
	fallback ledger.Signer
	archive  *archive.Archive
	log      *slog.Logger
}

// New builds a service signing with signers; the first one is the default. arc may be nil to skip
// archiving.
func New(cfg Config, client PayloadSubmitter, signers []ledger.Signer, arc *archive.Archive, log *slog.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil client", ErrInvalidConfig)
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("%w: at least one signer is required", ErrInvalidConfig)
	}
	if cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("%w: request timeout must be >= 0", ErrInvalidConfig)
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	if cfg.Claims != nil {
		if strings.TrimSpace(cfg.ClaimOwner) == "" {
			return nil, fmt.Errorf("%w: claim owner is required with a claim store", ErrInvalidConfig)
		}
		if cfg.ClaimTTL < 0 {
			return nil, fmt.Errorf("%w: claim ttl must be >= 0", ErrInvalidConfig)
		}
		if cfg.ClaimTTL == 0 {
			cfg.ClaimTTL = cfg.RequestTimeout + time.Minute
		}
	}
	byAddr := make(map[string]ledger.Signer, len(signers))
	for _, sg := range signers {
		if sg == nil {
			return nil, fmt.Errorf("%w: nil signer", ErrInvalidConfig)
		}
		addr := normalizeAddress(sg.Address())
		if _, dup := byAddr[addr]; dup {
			return nil, fmt.Errorf("%w: duplicate signer %s", ErrInvalidConfig, sg.Address())
		}
		byAddr[addr] = sg
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		client:   client,
		signers:  byAddr,
		order:    append([]ledger.Signer(nil), signers...),
		fallback: signers[0],
		archive:  arc,
		log:      log,
	}, nil
}

// Signers lists the configured signer addresses, default first.
func (s *Service) Signers() []string {
	out := make([]string, 0, len(s.order))
	for _, sg := range s.order {
		out = append(out, sg.Address())
	}
	return out
}

// Process stores one proof. Rejected input and ledger failures are reported in the Outcome; the
// error is only set when the request could not be processed at all (archive unavailable).
func (s *Service) Process(ctx context.Context, req Request) (Outcome, error) {
	out := Outcome{}
	if req.Kind.Valid() {
		out.Kind = req.Kind.String()
	}

	signer, err := s.signerFor(req.Signer)
	if err != nil {
		return failed(out, CodeUnknownSigner, err.Error(), false), nil
	}
	out.Signer = signer.Address()

	proof, err := proofmsg.DecodeProof(req.Kind, req.Proof)
	if err != nil {
		return failed(out, submitter.ErrorCode(err), err.Error(), false), nil
	}
	out.ProofCID = proof.CID()

	payload, err := proofmsg.Build(proof)
	if err != nil {
		return failed(out, submitter.ErrorCode(err), err.Error(), false), nil
	}
	out.PayloadDigest, err = journal.PayloadDigest(payload)
	if err != nil {
		return Outcome{}, err
	}

	// CIDs are opaque; a blank one is left for the contract to judge, with no claim or archive key.
	keyed := strings.TrimSpace(out.ProofCID) != ""

	if s.cfg.Claims != nil && keyed {
		held, ok, err := s.cfg.Claims.TryClaim(ctx, req.Kind, out.ProofCID, s.cfg.ClaimOwner, s.cfg.ClaimTTL)
		if errors.Is(err, proofclaim.ErrInvalidInput) {
			return failed(out, submitter.CodeInvalidPayload, err.Error(), false), nil
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("proofservice: claim %s: %w", out.ProofCID, err)
		}
		if !ok {
			msg := fmt.Sprintf("proof is being stored by %s until %s", held.Owner, held.ExpiresAt.UTC().Format(time.RFC3339))
			return failed(out, CodeInProgress, msg, true), nil
		}
		defer s.releaseClaim(ctx, req.Kind, out.ProofCID)
	}

	if s.archive != nil && keyed {
		entry, err := s.archive.Put(ctx, payload)
		if errors.Is(err, archive.ErrInvalidKey) {
			return failed(out, submitter.CodeInvalidPayload, err.Error(), false), nil
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("proofservice: archive %s: %w", out.ProofCID, err)
		}
		out.ArchiveKey = entry.Key
		out.ContentCID = entry.ContentCID
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	runCtx = journal.WithAnnotation(runCtx, journal.Annotation{
		PayloadDigest: out.PayloadDigest,
		ArchiveKey:    out.ArchiveKey,
	})

	txHash, err := s.client.SubmitPayload(runCtx, signer, payload)
	if err != nil {
		code := submitter.ErrorCode(err)
		s.log.Warn("proof not stored",
			"kind", out.Kind,
			"proof_cid", out.ProofCID,
			"error_code", code,
			"err", submitter.ErrorDetail(err),
		)
		return failed(out, code, err.Error(), retryable(code)), nil
	}

	out.Status = StatusFinalized
	out.TxHash = txHash
	s.log.Info("proof stored", "kind", out.Kind, "proof_cid", out.ProofCID, "tx_hash", txHash)
	return out, nil
}

func (s *Service) releaseClaim(ctx context.Context, kind proofmsg.Kind, proofCID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.cfg.Claims.Release(ctx, kind, proofCID, s.cfg.ClaimOwner); err != nil {
		s.log.Warn("release proof claim", "kind", kind.String(), "proof_cid", proofCID, "err", err)
	}
}

func (s *Service) signerFor(addr string) (ledger.Signer, error) {
	if strings.TrimSpace(addr) == "" {
		return s.fallback, nil
	}
	sg, ok := s.signers[normalizeAddress(addr)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, addr)
	}
	return sg, nil
}

func failed(out Outcome, code, message string, retry bool) Outcome {
	out.Status = StatusFailed
	out.ErrorCode = code
	out.ErrorMessage = message
	out.Retryable = retry
	return out
}

// retryable reports whether a failure may succeed when the same request is replayed.
func retryable(code string) bool {
	switch code {
	case submitter.CodeTimeout, submitter.CodeLedgerError, CodeInProgress:
		return true
	default:
		return false
	}
}

func normalizeAddress(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}
