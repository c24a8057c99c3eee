package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/DAOsign/daosign-go/internal/daosignabi"
	"github.com/DAOsign/daosign-go/internal/ledger"
	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrMissingGasLimit = errors.New("evm: gas limit is required")
	ErrMissingBaseFee  = errors.New("evm: latest header has no base fee")
)

// JSON-RPC error code geth uses for reverted calls.
const revertErrorCode = 3

type contract struct {
	conn *conn
	addr common.Address
}

func (c *contract) Simulate(ctx context.Context, caller string, opts ledger.CallOptions, payload proofmsg.Payload) (ledger.SimulationResult, error) {
	from, err := parseAddress(caller)
	if err != nil {
		return ledger.SimulationResult{}, err
	}
	data, err := daosignabi.Pack(payload)
	if err != nil {
		return ledger.SimulationResult{}, err
	}

	gas := opts.GasLimit.RefTime
	if limit := c.conn.d.cfg.MaxCallGas; gas == 0 || gas > limit {
		gas = limit
	}
	msg := ethereum.CallMsg{From: from, To: &c.addr, Gas: gas, Data: data}

	if _, err := c.conn.backend.CallContract(ctx, msg, nil); err != nil {
		if reason, ok := revertReason(err); ok {
			return ledger.SimulationResult{Failed: true, Reason: reason}, nil
		}
		return ledger.SimulationResult{}, fmt.Errorf("evm: eth_call: %w", err)
	}

	est, err := c.conn.backend.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return ledger.SimulationResult{Failed: true, Reason: reason}, nil
		}
		return ledger.SimulationResult{}, fmt.Errorf("evm: estimate gas: %w", err)
	}
	return ledger.SimulationResult{
		GasRequired: ledger.Weight{RefTime: applyGasMultiplier(est, c.conn.d.cfg.GasLimitMultiplier)},
	}, nil
}

func (c *contract) Submit(ctx context.Context, signer ledger.Signer, opts ledger.CallOptions, payload proofmsg.Payload) (ledger.Submission, error) {
	if signer == nil {
		return nil, ErrInvalidSigner
	}
	from, err := parseAddress(signer.Address())
	if err != nil {
		return nil, err
	}
	if opts.GasLimit.RefTime == 0 {
		return nil, ErrMissingGasLimit
	}
	data, err := daosignabi.Pack(payload)
	if err != nil {
		return nil, err
	}

	cfg := c.conn.d.cfg
	backend := c.conn.backend

	suggestedTip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: suggest tip: %w", err)
	}
	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: latest header: %w", err)
	}
	if head == nil || head.BaseFee == nil {
		return nil, ErrMissingBaseFee
	}
	tipCap, feeCap, err := Calc1559Fees(head.BaseFee, suggestedTip, cfg.MinTipCap)
	if err != nil {
		return nil, err
	}

	nm := c.conn.d.nonceManager(from)
	nonce, err := nm.Next(ctx, backend)
	if err != nil {
		return nil, fmt.Errorf("evm: nonce: %w", err)
	}

	to := c.addr
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       opts.GasLimit.RefTime,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	})
	signed, err := signTx(tx, cfg.ChainID, signer, from)
	if err != nil {
		nm.Release(nonce)
		return nil, err
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		nm.Release(nonce)
		if _, serr := nm.Sync(ctx, backend); serr != nil {
			cfg.Logger.Debug("nonce sync after send failure", "from", from.Hex(), "err", serr)
		}
		return nil, fmt.Errorf("evm: send tx: %w", err)
	}

	cfg.Logger.Debug("transaction broadcast",
		"tx_hash", signed.Hash().Hex(),
		"from", from.Hex(),
		"nonce", nonce,
		"gas", opts.GasLimit.RefTime,
	)
	return newSubmission(c.conn, signed.Hash(), from, nonce), nil
}

// revertReason reports whether err is a node-side revert and, if so, its reason.
func revertReason(err error) (string, bool) {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return "", false
	}
	if rpcErr.ErrorCode() != revertErrorCode && !strings.Contains(rpcErr.Error(), "execution reverted") {
		return "", false
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(s); decErr == nil {
				if reason := daosignabi.RevertReason(raw); reason != "" {
					return reason, true
				}
			}
		}
	}
	return rpcErr.Error(), true
}
