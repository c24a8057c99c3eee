package submitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/DAOsign/daosign-go/internal/wire"
)

var (
	ErrInvalidConfig = errors.New("submitter: invalid config")

	// ErrTransactionFailed is the single failure kind callers see for simulation rejections and
	// submission errors. The underlying cause stays reachable through errors.Is / errors.As.
	ErrTransactionFailed = errors.New("submitter: transaction failed")

	ErrSimulationRejected = errors.New("submitter: simulation rejected")
	ErrNotFinalized       = errors.New("submitter: transaction not finalized")
)

type Stage string

const (
	StageSimulate Stage = "simulate"
	StageSubmit   Stage = "submit"
	StageFinalize Stage = "finalize"
)

// FailureError is returned for every normalized failure. Its message is always that of
// ErrTransactionFailed.
type FailureError struct {
	Stage Stage
	Cause error
}

func (e *FailureError) Error() string {
	return ErrTransactionFailed.Error()
}

func (e *FailureError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrTransactionFailed}
	}
	return []error{ErrTransactionFailed, e.Cause}
}

// Detail includes the stage and cause, for logs.
func (e *FailureError) Detail() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", ErrTransactionFailed, e.Stage)
	}
	return fmt.Sprintf("%s: %s: %v", ErrTransactionFailed, e.Stage, e.Cause)
}

func failure(stage Stage, cause error) error {
	return &FailureError{Stage: stage, Cause: cause}
}

// Stable error codes shared by the journal, the HTTP API and worker failure events.
const (
	CodeTransactionFailed = "transaction_failed"
	CodeInvalidPayload    = "invalid_payload"
	CodeOutOfRange        = "out_of_range"
	CodeMalformedHex      = "malformed_hex"
	CodeTimeout           = "timeout"
	CodeCanceled          = "canceled"
	CodeLedgerError       = "ledger_error"
)

// ErrorCode classifies an error returned while building or submitting a proof.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransactionFailed):
		return CodeTransactionFailed
	case errors.Is(err, wire.ErrOutOfRange):
		return CodeOutOfRange
	case errors.Is(err, wire.ErrMalformedHex):
		return CodeMalformedHex
	case errors.Is(err, proofmsg.ErrInvalidProof):
		return CodeInvalidPayload
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	default:
		return CodeLedgerError
	}
}

// ErrorDetail is the log-friendly rendering of err, including the failure stage and cause when
// err is a *FailureError.
func ErrorDetail(err error) string {
	if err == nil {
		return ""
	}
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Detail()
	}
	return err.Error()
}
