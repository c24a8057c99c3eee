package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/DAOsign/daosign-go/internal/ledger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrStreamClosed is returned by Next after a terminal status was delivered.
var ErrStreamClosed = errors.New("evm: status stream closed")

// submission polls the node for one transaction. It is not safe for concurrent use.
type submission struct {
	conn  *conn
	hash  common.Hash
	from  common.Address
	nonce uint64

	announced bool
	included  *types.Receipt
	done      bool
}

func newSubmission(c *conn, hash common.Hash, from common.Address, nonce uint64) *submission {
	return &submission{conn: c, hash: hash, from: from, nonce: nonce}
}

func (s *submission) TxHash() string { return s.hash.Hex() }

func (s *submission) Next(ctx context.Context) (ledger.StatusUpdate, error) {
	if s.done {
		return ledger.StatusUpdate{}, ErrStreamClosed
	}
	if !s.announced {
		s.announced = true
		return s.update(ledger.StatusBroadcast, nil), nil
	}

	backend := s.conn.backend
	cfg := s.conn.d.cfg
	for {
		if err := ctx.Err(); err != nil {
			return ledger.StatusUpdate{}, err
		}

		receipt, err := backend.TransactionReceipt(ctx, s.hash)
		switch {
		case err == nil && receipt != nil:
			if s.included != nil && receipt.BlockHash != s.included.BlockHash {
				prev := s.included
				s.included = nil
				return s.update(ledger.StatusRetracted, prev), nil
			}
			if s.included == nil {
				s.included = receipt
				if receipt.Status == types.ReceiptStatusFailed {
					s.done = true
					return s.update(ledger.StatusInvalid, receipt), nil
				}
				return s.update(ledger.StatusInBlock, receipt), nil
			}
			final, err := s.finalizedHead(ctx)
			if err != nil {
				return ledger.StatusUpdate{}, err
			}
			if receipt.BlockNumber != nil && final >= receipt.BlockNumber.Uint64() {
				s.done = true
				return s.update(ledger.StatusFinalized, receipt), nil
			}

		case err == nil || errors.Is(err, ethereum.NotFound):
			if s.included != nil {
				prev := s.included
				s.included = nil
				return s.update(ledger.StatusRetracted, prev), nil
			}
			usurped, err := s.nonceConsumed(ctx)
			if err != nil {
				return ledger.StatusUpdate{}, err
			}
			if usurped {
				s.done = true
				return s.update(ledger.StatusUsurped, nil), nil
			}

		default:
			return ledger.StatusUpdate{}, fmt.Errorf("evm: receipt: %w", err)
		}

		if err := cfg.Sleep(ctx, cfg.PollInterval); err != nil {
			return ledger.StatusUpdate{}, err
		}
	}
}

func (s *submission) finalizedHead(ctx context.Context) (uint64, error) {
	backend := s.conn.backend
	depth := s.conn.d.cfg.FinalityDepth
	if depth == 0 {
		h, err := backend.HeaderByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
		if err != nil {
			return 0, fmt.Errorf("evm: finalized header: %w", err)
		}
		if h == nil || h.Number == nil {
			return 0, nil
		}
		return h.Number.Uint64(), nil
	}

	h, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("evm: latest header: %w", err)
	}
	if h == nil || h.Number == nil {
		return 0, nil
	}
	latest := h.Number.Uint64()
	if latest < depth {
		return 0, nil
	}
	return latest - depth, nil
}

// nonceConsumed reports whether the sender's mined nonce passed ours while our transaction has
// no receipt. The receipt is checked once more to rule out an indexing lag.
func (s *submission) nonceConsumed(ctx context.Context) (bool, error) {
	mined, err := s.conn.backend.NonceAt(ctx, s.from, nil)
	if err != nil {
		return false, fmt.Errorf("evm: nonce at: %w", err)
	}
	if mined <= s.nonce {
		return false, nil
	}
	receipt, err := s.conn.backend.TransactionReceipt(ctx, s.hash)
	if err == nil && receipt != nil {
		return false, nil
	}
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		return false, fmt.Errorf("evm: receipt: %w", err)
	}
	return true, nil
}

func (s *submission) update(status ledger.Status, receipt *types.Receipt) ledger.StatusUpdate {
	u := ledger.StatusUpdate{Status: status, TxHash: s.hash.Hex()}
	if receipt != nil {
		u.BlockHash = receipt.BlockHash.Hex()
		if receipt.BlockNumber != nil {
			u.BlockNumber = receipt.BlockNumber.Uint64()
		}
	}
	return u
}
