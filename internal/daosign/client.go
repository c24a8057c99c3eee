// Package daosign is the entry point for storing DAOsign proofs on a ledger and reading account
// balances. Each call opens and releases its own ledger connection.
package daosign

import (
	"context"

	"github.com/DAOsign/daosign-go/internal/balance"
	"github.com/DAOsign/daosign-go/internal/ledger"
	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/DAOsign/daosign-go/internal/submitter"
)

type Client struct {
	dialer ledger.Dialer
	sub    *submitter.Submitter
}

// New binds a client to the proofs contract at contractAddress. cfg is handed to the submitter
// unchanged.
func New(dialer ledger.Dialer, contractAddress string, cfg submitter.Config) (*Client, error) {
	sub, err := submitter.New(dialer, contractAddress, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{dialer: dialer, sub: sub}, nil
}

func (c *Client) ContractAddress() string { return c.sub.ContractAddress() }

// StoreProofOfAuthority returns the hash of the finalized transaction.
func (c *Client) StoreProofOfAuthority(ctx context.Context, signer ledger.Signer, p proofmsg.AuthorityProof) (string, error) {
	payload, err := proofmsg.BuildAuthority(p)
	if err != nil {
		return "", err
	}
	return c.sub.Submit(ctx, signer, payload)
}

func (c *Client) StoreProofOfSignature(ctx context.Context, signer ledger.Signer, p proofmsg.SignatureProof) (string, error) {
	payload, err := proofmsg.BuildSignature(p)
	if err != nil {
		return "", err
	}
	return c.sub.Submit(ctx, signer, payload)
}

func (c *Client) StoreProofOfAgreement(ctx context.Context, signer ledger.Signer, p proofmsg.AgreementProof) (string, error) {
	payload, err := proofmsg.BuildAgreement(p)
	if err != nil {
		return "", err
	}
	return c.sub.Submit(ctx, signer, payload)
}

// Store dispatches on the proof's kind.
func (c *Client) Store(ctx context.Context, signer ledger.Signer, p proofmsg.Proof) (string, error) {
	payload, err := proofmsg.Build(p)
	if err != nil {
		return "", err
	}
	return c.sub.Submit(ctx, signer, payload)
}

// SubmitPayload submits an already encoded payload.
func (c *Client) SubmitPayload(ctx context.Context, signer ledger.Signer, payload proofmsg.Payload) (string, error) {
	return c.sub.Submit(ctx, signer, payload)
}

// AccountBalance returns the free balance of address as a decimal string.
func (c *Client) AccountBalance(ctx context.Context, address string) (string, error) {
	return balance.Query(ctx, c.dialer, address)
}
