// Package proofmsg maps proof records onto the payload shapes the proof contract expects.
package proofmsg

import (
	"errors"

	"github.com/DAOsign/daosign-go/internal/wire"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	AuthorityName = "Proof-of-Authority"
	SignatureName = "Proof-of-Signature"
)

var ErrInvalidProof = errors.New("proofmsg: invalid proof")

// Proof is a caller-supplied proof record of one Kind.
type Proof interface {
	Kind() Kind
	CID() string
}

type Signer struct {
	Address  string
	Metadata string
}

type AuthorityMessage struct {
	FromAddress  string
	AgreementCID string
	Signers      []Signer
	Timestamp    int64
	Metadata     string
}

type AuthorityProof struct {
	Message   AuthorityMessage
	ProofCID  string
	Signature string
}

type SignatureMessage struct {
	SignerAddress string
	AuthorityCID  string
	Timestamp     int64
	Metadata      string
}

type SignatureProof struct {
	Message   SignatureMessage
	ProofCID  string
	Signature string
}

type AgreementMessage struct {
	AuthorityCID  string
	SignatureCIDs []string
	Timestamp     int64
	Metadata      string
}

// AgreementProof carries no signature; agreement proofs are unsigned.
type AgreementProof struct {
	Message  AgreementMessage
	ProofCID string
}

func (AuthorityProof) Kind() Kind { return KindAuthority }
func (SignatureProof) Kind() Kind { return KindSignature }
func (AgreementProof) Kind() Kind { return KindAgreement }
func (p AuthorityProof) CID() string { return p.ProofCID }
func (p SignatureProof) CID() string { return p.ProofCID }
func (p AgreementProof) CID() string { return p.ProofCID }

// Payload is an encoded proof ready for a contract call. The set of implementations is closed.
type Payload interface {
	Kind() Kind
	CID() string
	isPayload()
}

type WireSigner struct {
	Addr     wire.Bytes32 `json:"addr"`
	Metadata string       `json:"metadata"`
}

type AuthorityWireMessage struct {
	Name         string       `json:"name"`
	From         wire.Bytes32 `json:"from"`
	AgreementCid string       `json:"agreementCid"`
	Signers      []WireSigner `json:"signers"`
	Timestamp    wire.Bytes32 `json:"timestamp"`
	Metadata     string       `json:"metadata"`
}

type AuthorityPayload struct {
	Message   AuthorityWireMessage `json:"message"`
	ProofCid  string               `json:"proofCid"`
	Signature hexutil.Bytes        `json:"signature"`
}

type SignatureWireMessage struct {
	Name         string       `json:"name"`
	Signer       wire.Bytes32 `json:"signer"`
	AuthorityCid string       `json:"authorityCid"`
	Timestamp    wire.Bytes32 `json:"timestamp"`
	Metadata     string       `json:"metadata"`
}

type SignaturePayload struct {
	Message   SignatureWireMessage `json:"message"`
	ProofCid  string               `json:"proofCid"`
	Signature hexutil.Bytes        `json:"signature"`
}

type AgreementWireMessage struct {
	Metadata      string       `json:"metadata"`
	Timestamp     wire.Bytes32 `json:"timestamp"`
	AuthorityCid  string       `json:"authorityCid"`
	SignatureCids []string     `json:"signatureCids"`
}

type AgreementPayload struct {
	Message  AgreementWireMessage `json:"message"`
	ProofCid string               `json:"proofCid"`
}

func (AuthorityPayload) Kind() Kind { return KindAuthority }
func (SignaturePayload) Kind() Kind { return KindSignature }
func (AgreementPayload) Kind() Kind { return KindAgreement }
func (p AuthorityPayload) CID() string { return p.ProofCid }
func (p SignaturePayload) CID() string { return p.ProofCid }
func (p AgreementPayload) CID() string { return p.ProofCid }
func (AuthorityPayload) isPayload() {}
func (SignaturePayload) isPayload() {}
func (AgreementPayload) isPayload() {}
