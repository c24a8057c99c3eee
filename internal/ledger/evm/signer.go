package evm

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/DAOsign/daosign-go/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSigner  = errors.New("evm: invalid signer")
	ErrSignerMismatch = errors.New("evm: signature does not recover to signer address")
)

// LocalSigner signs with an in-process secp256k1 key. Production signers may be backed by
// KMS/HSM; anything implementing ledger.Signer works.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

var _ ledger.Signer = (*LocalSigner)(nil)

func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	var addr common.Address
	if key != nil {
		addr = crypto.PubkeyToAddress(key.PublicKey)
	}
	return &LocalSigner{key: key, addr: addr}
}

func (s *LocalSigner) Address() string { return s.addr.Hex() }

func (s *LocalSigner) Sign(digest []byte) ([]byte, error) {
	if s.key == nil || len(digest) != common.HashLength {
		return nil, ErrInvalidSigner
	}
	return crypto.Sign(digest, s.key)
}

// signTx has signer authorize tx and checks the signature recovers to from.
func signTx(tx *types.Transaction, chainID *big.Int, signer ledger.Signer, from common.Address) (*types.Transaction, error) {
	if tx == nil || chainID == nil || chainID.Sign() <= 0 || signer == nil {
		return nil, ErrInvalidSigner
	}
	txSigner := types.LatestSignerForChainID(chainID)
	sig, err := signer.Sign(txSigner.Hash(tx).Bytes())
	if err != nil {
		return nil, fmt.Errorf("evm: sign tx: %w", err)
	}
	signed, err := tx.WithSignature(txSigner, sig)
	if err != nil {
		return nil, fmt.Errorf("evm: attach signature: %w", err)
	}
	sender, err := types.Sender(txSigner, signed)
	if err != nil {
		return nil, fmt.Errorf("evm: recover sender: %w", err)
	}
	if sender != from {
		return nil, fmt.Errorf("%w: got %s want %s", ErrSignerMismatch, sender, from)
	}
	return signed, nil
}
