package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DAOsign/daosign-go/internal/httpapi"
	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/DAOsign/daosign-go/internal/proofservice"
	"github.com/DAOsign/daosign-go/internal/submitter"
)

const proofJSON = `{"proofCID":"agreementCID","message":{"authorityCID":"a","signatureCIDs":["s1"]}}`

type stubProcessor struct {
	got proofservice.Request
	out proofservice.Outcome
}

func (s *stubProcessor) Process(_ context.Context, req proofservice.Request) (proofservice.Outcome, error) {
	s.got = req
	out := s.out
	out.Kind = req.Kind.String()
	return out, nil
}

type stubBalances struct{}

func (stubBalances) AccountBalance(_ context.Context, address string) (string, error) {
	return "1000000", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAPI(t *testing.T, proc *stubProcessor) string {
	t.Helper()
	srv := httptest.NewServer(httpapi.NewHandler(proc, stubBalances{}, httpapi.Config{}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestLoadProof(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "proof.json")
	if err := os.WriteFile(path, []byte("\n"+proofJSON+"\n"), 0o600); err != nil {
		t.Fatalf("write proof: %v", err)
	}
	got, err := loadProof(path, nil)
	if err != nil {
		t.Fatalf("loadProof file: %v", err)
	}
	if string(got) != proofJSON {
		t.Fatalf("file proof: %q", got)
	}

	got, err = loadProof("", strings.NewReader(proofJSON))
	if err != nil || string(got) != proofJSON {
		t.Fatalf("stdin proof: %q %v", got, err)
	}
	if _, err := loadProof("", strings.NewReader(" \n")); err == nil {
		t.Fatalf("expected error for empty stdin")
	}
}

func TestRunMain_Usage(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		nil,
		{"transfer"},
		{"store", "--kind", "receipt"},
		{"balance"},
	} {
		err := runMain(context.Background(), args, strings.NewReader(proofJSON), io.Discard, discardLogger())
		if !errors.Is(err, errUsage) {
			t.Fatalf("%v: expected usage error, got %v", args, err)
		}
	}
}

func TestRunMain_StoreThroughAPI(t *testing.T) {
	t.Parallel()

	proc := &stubProcessor{out: proofservice.Outcome{Status: proofservice.StatusFinalized, ProofCID: "agreementCID", TxHash: "0xaa"}}
	url := newAPI(t, proc)

	var out bytes.Buffer
	err := runMain(context.Background(),
		[]string{"store", "--api-url", url, "--kind", "agreement", "--signer", "0xb2"},
		strings.NewReader(proofJSON), &out, discardLogger())
	if err != nil {
		t.Fatalf("runMain: %v", err)
	}
	if proc.got.Kind != proofmsg.KindAgreement || proc.got.Signer != "0xb2" || string(proc.got.Proof) != proofJSON {
		t.Fatalf("request: %+v", proc.got)
	}
	var got proofservice.Outcome
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal stdout: %v", err)
	}
	if got.TxHash != "0xaa" || got.Kind != "agreement" {
		t.Fatalf("outcome: %+v", got)
	}
}

func TestRunMain_StoreFailurePrintsOutcomeAndFails(t *testing.T) {
	t.Parallel()

	proc := &stubProcessor{out: proofservice.Outcome{Status: proofservice.StatusFailed, ErrorCode: submitter.CodeTransactionFailed}}
	url := newAPI(t, proc)

	var out bytes.Buffer
	err := runMain(context.Background(),
		[]string{"store", "--api-url", url, "--kind", "signature"},
		strings.NewReader(proofJSON), &out, discardLogger())
	if err == nil || !strings.Contains(err.Error(), submitter.CodeTransactionFailed) {
		t.Fatalf("expected transaction_failed error, got %v", err)
	}
	if !strings.Contains(out.String(), `"errorCode": "transaction_failed"`) {
		t.Fatalf("stdout: %s", out.String())
	}
}

func TestRunMain_BalanceThroughAPI(t *testing.T) {
	t.Parallel()

	url := newAPI(t, &stubProcessor{})
	var out bytes.Buffer
	if err := runMain(context.Background(), []string{"balance", "--api-url", url, "--address", "0xabc"}, nil, &out, discardLogger()); err != nil {
		t.Fatalf("runMain: %v", err)
	}
	var got httpapi.BalanceResponse
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal stdout: %v", err)
	}
	if got.Address != "0xabc" || got.Balance != "1000000" {
		t.Fatalf("balance: %+v", got)
	}
}

func TestRunMain_LocalBalanceNeedsLedgerFlags(t *testing.T) {
	t.Parallel()

	err := runMain(context.Background(), []string{"balance", "--address", "0xabc"}, nil, io.Discard, discardLogger())
	if err == nil || !strings.Contains(err.Error(), "--rpc-url") {
		t.Fatalf("expected missing rpc url error, got %v", err)
	}
}
