// Package daosignabi packs calldata for the DAOsign proof contract.
package daosignabi

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

var ErrInvalidInput = errors.New("daosignabi: invalid input")

var (
	initOnce sync.Once
	initErr  error

	daosignABI abi.ABI
)

func initABI() error {
	initOnce.Do(func() {
		var err error
		daosignABI, err = abi.JSON(strings.NewReader(proofsABIJSON))
		if err != nil {
			initErr = fmt.Errorf("daosignabi: parse ABI: %w", err)
		}
	})
	return initErr
}

// ABI returns the parsed contract ABI.
func ABI() (abi.ABI, error) {
	if err := initABI(); err != nil {
		return abi.ABI{}, err
	}
	return daosignABI, nil
}

// Method returns the ABI method storing proofs of kind k.
func Method(k proofmsg.Kind) (abi.Method, error) {
	if err := initABI(); err != nil {
		return abi.Method{}, err
	}
	m, ok := daosignABI.Methods[k.Method()]
	if !ok {
		return abi.Method{}, fmt.Errorf("%w: no method for kind %s", ErrInvalidInput, k)
	}
	return m, nil
}

// Field names mirror the Solidity tuple component names (see proofsABIJSON).
type signerABI struct {
	Addr     [32]byte
	Metadata string
}

type authorityMessageABI struct {
	Name         string
	From         [32]byte
	AgreementCid string
	Signers      []signerABI
	Timestamp    [32]byte
	Metadata     string
}

type signatureMessageABI struct {
	Name         string
	Signer       [32]byte
	AuthorityCid string
	Timestamp    [32]byte
	Metadata     string
}

type agreementMessageABI struct {
	Metadata      string
	Timestamp     [32]byte
	AuthorityCid  string
	SignatureCids []string
}

// Pack returns the calldata for storing payload.
func Pack(payload proofmsg.Payload) ([]byte, error) {
	if err := initABI(); err != nil {
		return nil, err
	}

	var (
		b   []byte
		err error
	)
	switch p := payload.(type) {
	case proofmsg.AuthorityPayload:
		signers := make([]signerABI, 0, len(p.Message.Signers))
		for _, s := range p.Message.Signers {
			signers = append(signers, signerABI{Addr: s.Addr, Metadata: s.Metadata})
		}
		msg := authorityMessageABI{
			Name:         p.Message.Name,
			From:         p.Message.From,
			AgreementCid: p.Message.AgreementCid,
			Signers:      signers,
			Timestamp:    p.Message.Timestamp,
			Metadata:     p.Message.Metadata,
		}
		b, err = daosignABI.Pack(p.Kind().Method(), msg, p.ProofCid, []byte(p.Signature))
	case proofmsg.SignaturePayload:
		msg := signatureMessageABI{
			Name:         p.Message.Name,
			Signer:       p.Message.Signer,
			AuthorityCid: p.Message.AuthorityCid,
			Timestamp:    p.Message.Timestamp,
			Metadata:     p.Message.Metadata,
		}
		b, err = daosignABI.Pack(p.Kind().Method(), msg, p.ProofCid, []byte(p.Signature))
	case proofmsg.AgreementPayload:
		cids := p.Message.SignatureCids
		if cids == nil {
			cids = []string{}
		}
		msg := agreementMessageABI{
			Metadata:      p.Message.Metadata,
			Timestamp:     p.Message.Timestamp,
			AuthorityCid:  p.Message.AuthorityCid,
			SignatureCids: cids,
		}
		b, err = daosignABI.Pack(p.Kind().Method(), msg, p.ProofCid)
	default:
		return nil, fmt.Errorf("%w: unsupported payload %T", ErrInvalidInput, payload)
	}
	if err != nil {
		return nil, fmt.Errorf("daosignabi: pack %s calldata: %w", payload.Kind().Method(), err)
	}
	return b, nil
}

// RevertReason decodes an Error(string) revert payload, returning "" when data is not one.
func RevertReason(data []byte) string {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return ""
	}
	return reason
}

const proofsABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType":"string","name":"name","type":"string"},
          {"internalType":"bytes32","name":"from","type":"bytes32"},
          {"internalType":"string","name":"agreementCid","type":"string"},
          {
            "components": [
              {"internalType":"bytes32","name":"addr","type":"bytes32"},
              {"internalType":"string","name":"metadata","type":"string"}
            ],
            "internalType":"struct DAOsign.Signer[]",
            "name":"signers",
            "type":"tuple[]"
          },
          {"internalType":"bytes32","name":"timestamp","type":"bytes32"},
          {"internalType":"string","name":"metadata","type":"string"}
        ],
        "internalType":"struct DAOsign.ProofOfAuthorityMsg",
        "name":"message",
        "type":"tuple"
      },
      {"internalType":"string","name":"proofCid","type":"string"},
      {"internalType":"bytes","name":"signature","type":"bytes"}
    ],
    "name":"storeProofOfAuthority",
    "outputs":[],
    "stateMutability":"nonpayable",
    "type":"function"
  },
  {
    "inputs": [
      {
        "components": [
          {"internalType":"string","name":"name","type":"string"},
          {"internalType":"bytes32","name":"signer","type":"bytes32"},
          {"internalType":"string","name":"authorityCid","type":"string"},
          {"internalType":"bytes32","name":"timestamp","type":"bytes32"},
          {"internalType":"string","name":"metadata","type":"string"}
        ],
        "internalType":"struct DAOsign.ProofOfSignatureMsg",
        "name":"message",
        "type":"tuple"
      },
      {"internalType":"string","name":"proofCid","type":"string"},
      {"internalType":"bytes","name":"signature","type":"bytes"}
    ],
    "name":"storeProofOfSignature",
    "outputs":[],
    "stateMutability":"nonpayable",
    "type":"function"
  },
  {
    "inputs": [
      {
        "components": [
          {"internalType":"string","name":"metadata","type":"string"},
          {"internalType":"bytes32","name":"timestamp","type":"bytes32"},
          {"internalType":"string","name":"authorityCid","type":"string"},
          {"internalType":"string[]","name":"signatureCids","type":"string[]"}
        ],
        "internalType":"struct DAOsign.ProofOfAgreementMsg",
        "name":"message",
        "type":"tuple"
      },
      {"internalType":"string","name":"proofCid","type":"string"}
    ],
    "name":"storeProofOfAgreement",
    "outputs":[],
    "stateMutability":"nonpayable",
    "type":"function"
  }
]`
