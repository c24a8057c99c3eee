package daosign

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/DAOsign/daosign-go/internal/ledger"
	"github.com/DAOsign/daosign-go/internal/ledger/ledgertest"
	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/DAOsign/daosign-go/internal/submitter"
	"github.com/DAOsign/daosign-go/internal/wire"
)

const (
	testContract = "0x00000000000000000000000000000000000000c0"
	testTxHash   = "0x00000000000000000000000000000000000000000000000000000000000000aa"
)

var testSigner = ledgertest.Signer{Addr: "0x5678"}

func newFinalizingLedger() *ledgertest.Ledger {
	return &ledgertest.Ledger{
		SimResult: ledger.SimulationResult{GasRequired: ledger.Weight{RefTime: 100_000}},
		TxHash:    testTxHash,
		Updates:   ledgertest.Finalizing(),
	}
}

func newTestClient(t *testing.T, l *ledgertest.Ledger) *Client {
	t.Helper()
	c, err := New(l, testContract, submitter.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClient_StoresEachProofKind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	authority := proofmsg.AuthorityProof{
		Message: proofmsg.AuthorityMessage{
			FromAddress:  "0x1234",
			AgreementCID: "agreementCID",
			Signers:      []proofmsg.Signer{{Address: "0x5678", Metadata: "m"}},
			Timestamp:    1,
		},
		ProofCID:  "authorityCID",
		Signature: "0x0123",
	}
	signature := proofmsg.SignatureProof{
		Message:   proofmsg.SignatureMessage{SignerAddress: "0x5678", AuthorityCID: "authorityCID", Timestamp: 2},
		ProofCID:  "signatureCID",
		Signature: "0x4567",
	}
	agreement := proofmsg.AgreementProof{
		Message:  proofmsg.AgreementMessage{AuthorityCID: "authorityCID", SignatureCIDs: []string{"signatureCID"}},
		ProofCID: "agreementProofCID",
	}

	cases := []struct {
		name  string
		store func(c *Client) (string, error)
		kind  proofmsg.Kind
	}{
		{"authority", func(c *Client) (string, error) { return c.StoreProofOfAuthority(ctx, testSigner, authority) }, proofmsg.KindAuthority},
		{"signature", func(c *Client) (string, error) { return c.StoreProofOfSignature(ctx, testSigner, signature) }, proofmsg.KindSignature},
		{"agreement", func(c *Client) (string, error) { return c.StoreProofOfAgreement(ctx, testSigner, agreement) }, proofmsg.KindAgreement},
		{"generic", func(c *Client) (string, error) { return c.Store(ctx, testSigner, &agreement) }, proofmsg.KindAgreement},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			l := newFinalizingLedger()
			got, err := tc.store(newTestClient(t, l))
			if err != nil {
				t.Fatalf("store: %v", err)
			}
			if got != testTxHash {
				t.Fatalf("tx hash: got %q want %q", got, testTxHash)
			}
			_, subs := l.Snapshot()
			if len(subs) != 1 || subs[0].Payload.Kind() != tc.kind {
				t.Fatalf("submitted payloads: %+v", subs)
			}
			if l.OpenConns() != 0 {
				t.Fatalf("leaked connections: %d", l.OpenConns())
			}
		})
	}
}

func TestClient_EncodingErrorFailsBeforeDial(t *testing.T) {
	t.Parallel()

	l := newFinalizingLedger()
	c := newTestClient(t, l)

	_, err := c.StoreProofOfSignature(context.Background(), testSigner, proofmsg.SignatureProof{
		Message:   proofmsg.SignatureMessage{SignerAddress: "0x123"},
		Signature: "0x00",
	})
	if !errors.Is(err, wire.ErrMalformedHex) {
		t.Fatalf("expected ErrMalformedHex, got %v", err)
	}
	if l.Dials != 0 {
		t.Fatalf("dials: got %d want 0", l.Dials)
	}
}

func TestClient_SubmissionFailureIsTransactionFailed(t *testing.T) {
	t.Parallel()

	l := newFinalizingLedger()
	l.SimResult = ledger.SimulationResult{Failed: true, Reason: "proof exists"}
	c := newTestClient(t, l)

	_, err := c.StoreProofOfAuthority(context.Background(), testSigner, proofmsg.AuthorityProof{ProofCID: "cid"})
	if !errors.Is(err, submitter.ErrTransactionFailed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
}

func TestClient_AccountBalance(t *testing.T) {
	t.Parallel()

	l := &ledgertest.Ledger{Balances: map[string]*big.Int{"0xabc": big.NewInt(1_000_000)}}
	c := newTestClient(t, l)

	got, err := c.AccountBalance(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("AccountBalance: %v", err)
	}
	if got != "1000000" {
		t.Fatalf("balance: got %q want 1000000", got)
	}

	l.BalanceErr = errors.New("Query failed")
	if _, err := c.AccountBalance(context.Background(), "0xabc"); err == nil || err.Error() != "Query failed" {
		t.Fatalf("expected unchanged error, got %v", err)
	}
}

func TestNew_RejectsMissingContract(t *testing.T) {
	t.Parallel()

	if _, err := New(&ledgertest.Ledger{}, " ", submitter.Config{}); !errors.Is(err, submitter.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
