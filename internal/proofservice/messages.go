package proofservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
)

// Request asks for one proof to be stored. Signer selects a configured signer by address; empty
// means the default signer.
type Request struct {
	Kind   proofmsg.Kind   `json:"kind"`
	Signer string          `json:"signer,omitempty"`
	Proof  json.RawMessage `json:"proof"`
}

// DecodeRequest parses a queued request: {"kind":"signature","signer":"0x..","proof":{...}}.
func DecodeRequest(b []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("%w: request: %v", proofmsg.ErrInvalidProof, err)
	}
	if dec.More() {
		return Request{}, fmt.Errorf("%w: request: trailing data", proofmsg.ErrInvalidProof)
	}
	if !req.Kind.Valid() {
		return Request{}, fmt.Errorf("%w: request: missing kind", proofmsg.ErrInvalidProof)
	}
	if len(bytes.TrimSpace(req.Proof)) == 0 {
		return Request{}, fmt.Errorf("%w: request: missing proof", proofmsg.ErrInvalidProof)
	}
	req.Signer = strings.TrimSpace(req.Signer)
	return req, nil
}

type Status string

const (
	StatusFinalized Status = "finalized"
	StatusFailed    Status = "failed"
)

// Outcome is the result event of one request. Kind is empty when the request could not be
// decoded.
type Outcome struct {
	Status        Status `json:"status"`
	Kind          string `json:"kind,omitempty"`
	ProofCID      string `json:"proofCID,omitempty"`
	Signer        string `json:"signer,omitempty"`
	TxHash        string `json:"txHash,omitempty"`
	ArchiveKey    string `json:"archiveKey,omitempty"`
	ContentCID    string `json:"contentCID,omitempty"`
	PayloadDigest string `json:"payloadDigest,omitempty"`

	Retryable    bool   `json:"retryable,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func EncodeOutcome(o Outcome) ([]byte, error) {
	return json.Marshal(o)
}
