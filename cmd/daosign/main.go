// Command daosign stores a single proof or reads a balance, either against a ledger directly or
// through a daosign-api server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/DAOsign/daosign-go/internal/balance"
	"github.com/DAOsign/daosign-go/internal/httpapi"
	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/DAOsign/daosign-go/internal/proofservice"
	"github.com/DAOsign/daosign-go/internal/stack"
)

const usage = `usage:
  daosign store   --kind authority|signature|agreement [--signer 0x..] [--proof-file f.json] [flags]
  daosign balance --address 0x.. [flags]

Pass --api-url to go through a daosign-api server; otherwise the ledger flags are required.`

var errUsage = errors.New(usage)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runMain(ctx, os.Args[1:], os.Stdin, os.Stdout, log); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func runMain(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, log *slog.Logger) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "store":
		return runStore(ctx, args[1:], stdin, stdout, log)
	case "balance":
		return runBalance(ctx, args[1:], stdout, log)
	default:
		return fmt.Errorf("%w\n\nunknown command %q", errUsage, args[0])
	}
}

type remoteFlags struct {
	apiURL   string
	tokenEnv string
}

func (r *remoteFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&r.apiURL, "api-url", "", "daosign-api base URL; when set the ledger flags are ignored")
	fs.StringVar(&r.tokenEnv, "api-token-env", "DAOSIGN_API_AUTH_TOKEN", "env var holding the API bearer token")
}

func (r remoteFlags) client() (*httpapi.Client, error) {
	return httpapi.NewClient(r.apiURL, os.Getenv(r.tokenEnv))
}

func runStore(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, log *slog.Logger) error {
	var (
		opts   stack.Options
		remote remoteFlags
	)
	fs := flag.NewFlagSet("daosign store", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts.Register(fs)
	remote.register(fs)
	kindFlag := fs.String("kind", "", "proof kind: authority|signature|agreement (required)")
	signer := fs.String("signer", "", "signer address; defaults to the first configured signer")
	proofFile := fs.String("proof-file", "", "proof document path; stdin when empty")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n\n%v", errUsage, err)
	}

	kind, err := proofmsg.ParseKind(*kindFlag)
	if err != nil {
		return fmt.Errorf("%w\n\n--kind: %v", errUsage, err)
	}
	proof, err := loadProof(*proofFile, stdin)
	if err != nil {
		return err
	}

	var out proofservice.Outcome
	if strings.TrimSpace(remote.apiURL) != "" {
		c, err := remote.client()
		if err != nil {
			return err
		}
		resp, err := c.StoreProof(ctx, kind, *signer, proof)
		if resp.Status == "" {
			return err
		}
		out = resp.Outcome
	} else {
		st, err := stack.Build(ctx, opts, log)
		if err != nil {
			return err
		}
		defer st.Close()
		out, err = st.Service.Process(ctx, proofservice.Request{Kind: kind, Signer: *signer, Proof: proof})
		if err != nil {
			return err
		}
	}

	if err := writeJSON(stdout, out); err != nil {
		return err
	}
	if out.Status != proofservice.StatusFinalized {
		return fmt.Errorf("proof not stored: %s", out.ErrorCode)
	}
	return nil
}

func runBalance(ctx context.Context, args []string, stdout io.Writer, log *slog.Logger) error {
	var (
		opts   stack.Options
		remote remoteFlags
	)
	fs := flag.NewFlagSet("daosign balance", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts.Register(fs)
	remote.register(fs)
	address := fs.String("address", "", "account address (required)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n\n%v", errUsage, err)
	}
	if strings.TrimSpace(*address) == "" {
		return fmt.Errorf("%w\n\n--address is required", errUsage)
	}

	if strings.TrimSpace(remote.apiURL) != "" {
		c, err := remote.client()
		if err != nil {
			return err
		}
		resp, err := c.Balance(ctx, *address)
		if err != nil {
			return err
		}
		return writeJSON(stdout, resp)
	}

	dialer, err := opts.NewDialer(log)
	if err != nil {
		return err
	}
	free, err := balance.Query(ctx, dialer, *address)
	if err != nil {
		return err
	}
	return writeJSON(stdout, httpapi.BalanceResponse{Address: strings.TrimSpace(*address), Balance: free})
}

func loadProof(path string, stdin io.Reader) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if strings.TrimSpace(path) != "" {
		b, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read proof file %q: %w", path, err)
		}
	} else {
		if stdin == nil {
			return nil, errors.New("proof is required via --proof-file or stdin")
		}
		b, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin proof: %w", err)
		}
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, errors.New("proof is required via --proof-file or stdin")
	}
	return b, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
