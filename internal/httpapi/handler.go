// Package httpapi serves proof submission and balance reads over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DAOsign/daosign-go/internal/balance"
	"github.com/DAOsign/daosign-go/internal/ledger/evm"
	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/DAOsign/daosign-go/internal/proofservice"
	"github.com/DAOsign/daosign-go/internal/submitter"
)

// CodeQueryFailed is returned when a balance read fails on the ledger side.
const CodeQueryFailed = "query_failed"

type ProofProcessor interface {
	Process(ctx context.Context, req proofservice.Request) (proofservice.Outcome, error)
}

type BalanceReader interface {
	AccountBalance(ctx context.Context, address string) (string, error)
}

type Config struct {
	// AuthToken enables bearer-token auth on /v1 routes when set.
	AuthToken string

	// MaxBodyBytes limits request sizes. Defaults to 1 MiB.
	MaxBodyBytes int64

	// MaxWaitSeconds bounds per-request execution time (server-side). Defaults to 600s, since a
	// proof request waits for finalization.
	MaxWaitSeconds int

	// Metrics is served on GET /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

func NewHandler(proofs ProofProcessor, balances BalanceReader, cfg Config) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.MaxWaitSeconds <= 0 {
		cfg.MaxWaitSeconds = 600
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := time.Duration(cfg.MaxWaitSeconds) * time.Second

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	mux.HandleFunc("POST /v1/proofs/{kind}", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, cfg.AuthToken) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		kind, err := proofmsg.ParseKind(r.PathValue("kind"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown_kind"})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "body_too_large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body"})
			return
		}
		if !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_json"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		out, err := proofs.Process(ctx, proofservice.Request{
			Kind:   kind,
			Signer: r.URL.Query().Get("signer"),
			Proof:  body,
		})
		if err != nil {
			log.Error("process proof", "kind", kind.String(), "err", err)
			// Avoid leaking internal details by default.
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
			return
		}
		resp := ProofResponse{Outcome: out}
		if out.Status != proofservice.StatusFinalized {
			resp.Error = out.ErrorCode
		}
		writeJSON(w, statusForOutcome(out), resp)
	})

	mux.HandleFunc("GET /v1/balances/{address}", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, cfg.AuthToken) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		address := strings.TrimSpace(r.PathValue("address"))

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		free, err := balances.AccountBalance(ctx, address)
		if err != nil {
			switch {
			case errors.Is(err, balance.ErrInvalidAddress), errors.Is(err, evm.ErrInvalidAddress):
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_address"})
			case errors.Is(err, context.DeadlineExceeded):
				writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: submitter.CodeTimeout})
			case errors.Is(err, context.Canceled):
				writeJSON(w, http.StatusRequestTimeout, errorResponse{Error: submitter.CodeCanceled})
			default:
				log.Warn("balance query failed", "address", address, "err", err)
				writeJSON(w, http.StatusBadGateway, errorResponse{Error: CodeQueryFailed})
			}
			return
		}
		writeJSON(w, http.StatusOK, BalanceResponse{Address: address, Balance: free})
	})

	return mux
}

func statusForOutcome(out proofservice.Outcome) int {
	if out.Status == proofservice.StatusFinalized {
		return http.StatusOK
	}
	switch out.ErrorCode {
	case submitter.CodeInvalidPayload, submitter.CodeOutOfRange, submitter.CodeMalformedHex, proofservice.CodeUnknownSigner:
		return http.StatusBadRequest
	case proofservice.CodeInProgress:
		return http.StatusConflict
	case submitter.CodeTransactionFailed:
		return http.StatusUnprocessableEntity
	case submitter.CodeTimeout:
		return http.StatusGatewayTimeout
	case submitter.CodeCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func authorized(r *http.Request, token string) bool {
	return token == "" || checkBearer(r.Header.Get("Authorization"), token)
}

func checkBearer(header string, wantToken string) bool {
	// Exact "Bearer <token>" with a single space.
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return got == wantToken
}
