package proofmsg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DAOsign/daosign-go/internal/wire"
)

// The JSON field names follow the DAOsign SDK proof documents, e.g.
//
//	{"message":{"from":"0x..","agreementCID":"..","signers":[{"addr":"0x..","metadata":".."}],
//	 "timestamp":1700000000,"metadata":".."},"proofCID":"..","signature":"0x.."}

type rawSigner struct {
	Addr     string `json:"addr"`
	Metadata string `json:"metadata"`
}

type rawAuthority struct {
	Message struct {
		Name         string      `json:"name"`
		From         string      `json:"from"`
		AgreementCID string      `json:"agreementCID"`
		Signers      []rawSigner `json:"signers"`
		Timestamp    json.Number `json:"timestamp"`
		Metadata     string      `json:"metadata"`
	} `json:"message"`
	ProofCID  string `json:"proofCID"`
	Signature string `json:"signature"`
}

type rawSignature struct {
	Message struct {
		Name         string      `json:"name"`
		Signer       string      `json:"signer"`
		AuthorityCID string      `json:"authorityCID"`
		Timestamp    json.Number `json:"timestamp"`
		Metadata     string      `json:"metadata"`
	} `json:"message"`
	ProofCID  string `json:"proofCID"`
	Signature string `json:"signature"`
}

type rawAgreement struct {
	Message struct {
		Name          string      `json:"name"`
		AuthorityCID  string      `json:"authorityCID"`
		SignatureCIDs []string    `json:"signatureCIDs"`
		Timestamp     json.Number `json:"timestamp"`
		Metadata      string      `json:"metadata"`
	} `json:"message"`
	ProofCID string `json:"proofCID"`
}

func DecodeAuthorityProof(payload []byte) (AuthorityProof, error) {
	var raw rawAuthority
	if err := decodeJSON(payload, &raw); err != nil {
		return AuthorityProof{}, err
	}
	ts, err := decodeTimestamp(raw.Message.Timestamp)
	if err != nil {
		return AuthorityProof{}, err
	}
	signers := make([]Signer, 0, len(raw.Message.Signers))
	for _, s := range raw.Message.Signers {
		signers = append(signers, Signer{Address: strings.TrimSpace(s.Addr), Metadata: s.Metadata})
	}
	return AuthorityProof{
		Message: AuthorityMessage{
			FromAddress:  strings.TrimSpace(raw.Message.From),
			AgreementCID: raw.Message.AgreementCID,
			Signers:      signers,
			Timestamp:    ts,
			Metadata:     raw.Message.Metadata,
		},
		ProofCID:  raw.ProofCID,
		Signature: strings.TrimSpace(raw.Signature),
	}, nil
}

func DecodeSignatureProof(payload []byte) (SignatureProof, error) {
	var raw rawSignature
	if err := decodeJSON(payload, &raw); err != nil {
		return SignatureProof{}, err
	}
	ts, err := decodeTimestamp(raw.Message.Timestamp)
	if err != nil {
		return SignatureProof{}, err
	}
	return SignatureProof{
		Message: SignatureMessage{
			SignerAddress: strings.TrimSpace(raw.Message.Signer),
			AuthorityCID:  raw.Message.AuthorityCID,
			Timestamp:     ts,
			Metadata:      raw.Message.Metadata,
		},
		ProofCID:  raw.ProofCID,
		Signature: strings.TrimSpace(raw.Signature),
	}, nil
}

func DecodeAgreementProof(payload []byte) (AgreementProof, error) {
	var raw rawAgreement
	if err := decodeJSON(payload, &raw); err != nil {
		return AgreementProof{}, err
	}
	ts, err := decodeTimestamp(raw.Message.Timestamp)
	if err != nil {
		return AgreementProof{}, err
	}
	return AgreementProof{
		Message: AgreementMessage{
			AuthorityCID:  raw.Message.AuthorityCID,
			SignatureCIDs: raw.Message.SignatureCIDs,
			Timestamp:     ts,
			Metadata:      raw.Message.Metadata,
		},
		ProofCID: raw.ProofCID,
	}, nil
}

// DecodeProof decodes a JSON proof document of the given kind.
func DecodeProof(kind Kind, payload []byte) (Proof, error) {
	switch kind {
	case KindAuthority:
		return DecodeAuthorityProof(payload)
	case KindSignature:
		return DecodeSignatureProof(payload)
	case KindAgreement:
		return DecodeAgreementProof(payload)
	default:
		return nil, fmt.Errorf("%w: unknown proof kind %d", ErrInvalidProof, uint8(kind))
	}
}

func decodeJSON(payload []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode payload: %v", ErrInvalidProof, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after payload", ErrInvalidProof)
	}
	return nil
}

// decodeTimestamp treats a missing timestamp as zero, which the contract decides on.
func decodeTimestamp(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	ts, err := wire.IntegerFromJSON(n)
	if err != nil {
		return 0, fmt.Errorf("proofmsg: timestamp: %w", err)
	}
	return ts, nil
}
