// Package evm implements the ledger interfaces on an Ethereum JSON-RPC node.
package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/DAOsign/daosign-go/internal/ledger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrInvalidConfig  = errors.New("evm: invalid config")
	ErrInvalidAddress = errors.New("evm: invalid address")
	ErrChainMismatch  = errors.New("evm: chain id mismatch")
)

// DefaultMaxCallGas matches geth's default RPC gas cap.
const DefaultMaxCallGas = 50_000_000

// Backend is the subset of *ethclient.Client used by a connection.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

type Config struct {
	RPCURL  string
	ChainID *big.Int

	MinTipCap          *big.Int
	GasLimitMultiplier float64
	// MaxCallGas caps the simulation ceiling passed to eth_call. Zero means DefaultMaxCallGas.
	MaxCallGas uint64

	PollInterval time.Duration
	// FinalityDepth of zero uses the node's "finalized" block tag.
	FinalityDepth uint64

	// Dial opens the backend. Defaults to ethclient.DialContext.
	Dial func(ctx context.Context, rawURL string) (Backend, error)

	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Dialer opens one backend connection per proof call. Nonce allocation is shared by every
// connection it opens.
type Dialer struct {
	cfg Config

	mu     sync.Mutex
	nonces map[common.Address]*NonceManager
}

var _ ledger.Dialer = (*Dialer)(nil)

func NewDialer(cfg Config) (*Dialer, error) {
	if cfg.RPCURL == "" && cfg.Dial == nil {
		return nil, fmt.Errorf("%w: rpc url is required", ErrInvalidConfig)
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("%w: chain id must be > 0", ErrInvalidConfig)
	}
	if cfg.MinTipCap == nil {
		cfg.MinTipCap = new(big.Int)
	}
	if cfg.MinTipCap.Sign() < 0 {
		return nil, fmt.Errorf("%w: min tip cap must be >= 0", ErrInvalidConfig)
	}
	if cfg.GasLimitMultiplier == 0 {
		cfg.GasLimitMultiplier = 1
	}
	if cfg.GasLimitMultiplier < 1 {
		return nil, fmt.Errorf("%w: gas limit multiplier must be >= 1", ErrInvalidConfig)
	}
	if cfg.MaxCallGas == 0 {
		cfg.MaxCallGas = DefaultMaxCallGas
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be > 0", ErrInvalidConfig)
	}
	if cfg.Dial == nil {
		cfg.Dial = dialEthclient
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dialer{cfg: cfg, nonces: make(map[common.Address]*NonceManager)}, nil
}

func dialEthclient(ctx context.Context, rawURL string) (Backend, error) {
	return ethclient.DialContext(ctx, rawURL)
}

func (d *Dialer) Dial(ctx context.Context) (ledger.Conn, error) {
	backend, err := d.cfg.Dial(ctx, d.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("evm: chain id: %w", err)
	}
	if chainID.Cmp(d.cfg.ChainID) != 0 {
		backend.Close()
		return nil, fmt.Errorf("%w: got %s want %s", ErrChainMismatch, chainID, d.cfg.ChainID)
	}
	return &conn{d: d, backend: backend}, nil
}

func (d *Dialer) nonceManager(addr common.Address) *NonceManager {
	d.mu.Lock()
	defer d.mu.Unlock()
	nm, ok := d.nonces[addr]
	if !ok {
		nm = NewNonceManager(addr)
		d.nonces[addr] = nm
	}
	return nm
}

type conn struct {
	d       *Dialer
	backend Backend

	closeOnce sync.Once
}

func (c *conn) Contract(address string) (ledger.Contract, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	return &contract{conn: c, addr: addr}, nil
}

func (c *conn) FreeBalance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	return c.backend.BalanceAt(ctx, addr, nil)
}

func (c *conn) Close() error {
	c.closeOnce.Do(c.backend.Close)
	return nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr := common.HexToAddress(s)
	if (addr == common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return addr, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
