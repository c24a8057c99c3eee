package httpapi

import "github.com/DAOsign/daosign-go/internal/proofservice"

// ProofResponse is the response body for POST /v1/proofs/{kind}. Error repeats ErrorCode on
// failures so every non-200 body carries an "error" field.
type ProofResponse struct {
	proofservice.Outcome
	Error string `json:"error,omitempty"`
}

// BalanceResponse is the response body for GET /v1/balances/{address}.
type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type errorResponse struct {
	Error string `json:"error"`
}
