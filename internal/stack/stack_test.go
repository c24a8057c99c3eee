package stack

import (
	"context"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"
	"time"
)

const (
	hardhatKey0  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAddr0 = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testContract = "0x00000000000000000000000000000000000000c0"
)

func parseOptions(t *testing.T, args ...string) Options {
	t.Helper()
	var o Options
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	o.Register(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return o
}

func TestOptions_Defaults(t *testing.T) {
	t.Parallel()

	o := parseOptions(t, "--rpc-url", "http://127.0.0.1:8545", "--chain-id", "31337", "--contract", testContract)
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if o.JournalDriver != DriverMemory || o.ArchiveDriver != DriverNone || o.SecretsDriver != "env" {
		t.Fatalf("drivers: %+v", o)
	}
	if o.PollInterval != 2*time.Second || o.RequestTimeout != 10*time.Minute || o.GasMult != 1.2 {
		t.Fatalf("timing defaults: %+v", o)
	}
}

func TestOptions_ValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	o := parseOptions(t,
		"--contract", "0x12",
		"--gas-mult", "0.5",
		"--journal-driver", "postgres",
		"--archive-driver", "s3",
	)
	err := o.Validate()
	if !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
	for _, want := range []string{"--rpc-url", "--chain-id", "--contract", "--gas-mult", "--postgres-dsn", "--archive-bucket"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}

	o = parseOptions(t, "--rpc-url", "x", "--chain-id", "1", "--contract", testContract, "--archive-driver", "gcs")
	if err := o.Validate(); err == nil || !strings.Contains(err.Error(), "--archive-driver") {
		t.Fatalf("expected archive driver error, got %v", err)
	}
}

func TestBuild_MemoryDrivers(t *testing.T) {
	t.Setenv("DAOSIGN_TEST_KEYS", hardhatKey0)

	o := parseOptions(t,
		"--rpc-url", "http://127.0.0.1:8545",
		"--chain-id", "31337",
		"--contract", testContract,
		"--signer-keys", "DAOSIGN_TEST_KEYS",
		"--archive-driver", "memory",
	)
	s, err := Build(context.Background(), o, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()

	if s.Client.ContractAddress() != testContract {
		t.Fatalf("contract: got %s", s.Client.ContractAddress())
	}
	signers := s.Service.Signers()
	if len(signers) != 1 || !strings.EqualFold(signers[0], hardhatAddr0) {
		t.Fatalf("signers: %v", signers)
	}
	if s.Journal == nil || s.Claims == nil || s.Metrics == nil {
		t.Fatalf("stack: %+v", s)
	}
	if _, err := s.Registry.Gather(); err != nil {
		t.Fatalf("Gather: %v", err)
	}
}

func TestBuild_MissingSignerKeys(t *testing.T) {
	t.Setenv("DAOSIGN_TEST_KEYS_EMPTY", "")

	o := parseOptions(t,
		"--rpc-url", "http://127.0.0.1:8545",
		"--chain-id", "31337",
		"--contract", testContract,
		"--signer-keys", "DAOSIGN_TEST_KEYS_EMPTY",
	)
	if _, err := Build(context.Background(), o, nil); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestNewDialer_NeedsOnlyLedgerOptions(t *testing.T) {
	t.Parallel()

	o := parseOptions(t, "--rpc-url", "http://127.0.0.1:8545", "--chain-id", "31337")
	if err := o.Validate(); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("Validate without contract: got %v", err)
	}
	if _, err := o.NewDialer(nil); err != nil {
		t.Fatalf("NewDialer: %v", err)
	}

	o = parseOptions(t, "--chain-id", "31337")
	if _, err := o.NewDialer(nil); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("NewDialer without rpc url: got %v", err)
	}
}
