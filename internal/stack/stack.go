// Package stack assembles the ledger client, proof service and their storage from command-line
// options. It is shared by the API and worker binaries.
package stack

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/DAOsign/daosign-go/internal/archive"
	"github.com/DAOsign/daosign-go/internal/daosign"
	"github.com/DAOsign/daosign-go/internal/journal"
	journalpg "github.com/DAOsign/daosign-go/internal/journal/postgres"
	"github.com/DAOsign/daosign-go/internal/ledger"
	"github.com/DAOsign/daosign-go/internal/ledger/evm"
	"github.com/DAOsign/daosign-go/internal/metrics"
	"github.com/DAOsign/daosign-go/internal/proofclaim"
	claimpg "github.com/DAOsign/daosign-go/internal/proofclaim/postgres"
	"github.com/DAOsign/daosign-go/internal/proofservice"
	"github.com/DAOsign/daosign-go/internal/secrets"
	"github.com/DAOsign/daosign-go/internal/submitter"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
	DriverNone     = "none"
)

var ErrInvalidOptions = errors.New("stack: invalid options")

type Options struct {
	RPCURL        string
	ChainID       uint64
	Contract      string
	MinTipGwei    int64
	GasMult       float64
	MaxCallGas    uint64
	PollInterval  time.Duration
	FinalityDepth uint64

	SecretsDriver string
	SignerKeysRef string

	JournalDriver string
	PostgresDSN   string

	ArchiveDriver string
	ArchiveBucket string
	ArchivePrefix string

	RequestTimeout time.Duration
	InstanceID     string
}

// Register binds every option to a flag on fs.
func (o *Options) Register(fs *flag.FlagSet) {
	fs.StringVar(&o.RPCURL, "rpc-url", "", "EVM JSON-RPC URL (required)")
	fs.Uint64Var(&o.ChainID, "chain-id", 0, "EVM chain id (required)")
	fs.StringVar(&o.Contract, "contract", "", "DAOsign proofs contract address (required)")
	fs.Int64Var(&o.MinTipGwei, "min-tip-gwei", 1, "minimum priority fee (gwei)")
	fs.Float64Var(&o.GasMult, "gas-mult", 1.2, "gas limit multiplier applied to estimates")
	fs.Uint64Var(&o.MaxCallGas, "max-call-gas", evm.DefaultMaxCallGas, "gas cap for simulations")
	fs.DurationVar(&o.PollInterval, "poll-interval", 2*time.Second, "receipt poll interval")
	fs.Uint64Var(&o.FinalityDepth, "finality-depth", 0, "confirmations treated as final; 0 uses the node's finalized tag")

	fs.StringVar(&o.SecretsDriver, "secrets-driver", secrets.DriverEnv, "secrets driver: env|aws")
	fs.StringVar(&o.SignerKeysRef, "signer-keys", "DAOSIGN_SIGNER_KEYS", "env var or secret id holding comma-separated hex private keys")

	fs.StringVar(&o.JournalDriver, "journal-driver", DriverMemory, "journal driver: memory|postgres")
	fs.StringVar(&o.PostgresDSN, "postgres-dsn", "", "Postgres DSN (required when --journal-driver=postgres)")

	fs.StringVar(&o.ArchiveDriver, "archive-driver", DriverNone, "payload archive driver: none|memory|s3")
	fs.StringVar(&o.ArchiveBucket, "archive-bucket", "", "S3 bucket for archived payloads")
	fs.StringVar(&o.ArchivePrefix, "archive-prefix", "daosign", "S3 key prefix for archived payloads")

	fs.DurationVar(&o.RequestTimeout, "request-timeout", 10*time.Minute, "per proof timeout, finalization included")
	fs.StringVar(&o.InstanceID, "instance-id", "", "owner name for proof claims (default: random)")
}

// ValidateLedger checks only the options NewDialer needs.
func (o Options) ValidateLedger() error {
	if problems := o.ledgerProblems(); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(problems, "; "))
	}
	return nil
}

func (o Options) ledgerProblems() []string {
	var problems []string
	if strings.TrimSpace(o.RPCURL) == "" {
		problems = append(problems, "--rpc-url is required")
	}
	if o.ChainID == 0 {
		problems = append(problems, "--chain-id is required")
	}
	if o.MinTipGwei < 0 {
		problems = append(problems, "--min-tip-gwei must be >= 0")
	}
	if o.GasMult < 1 {
		problems = append(problems, "--gas-mult must be >= 1")
	}
	if o.PollInterval <= 0 {
		problems = append(problems, "--poll-interval must be > 0")
	}
	return problems
}

func (o Options) Validate() error {
	problems := o.ledgerProblems()
	if !common.IsHexAddress(o.Contract) {
		problems = append(problems, "--contract must be a valid hex address")
	}
	if o.RequestTimeout <= 0 {
		problems = append(problems, "--request-timeout must be > 0")
	}
	if strings.TrimSpace(o.SignerKeysRef) == "" {
		problems = append(problems, "--signer-keys is required")
	}
	switch normalize(o.JournalDriver) {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(o.PostgresDSN) == "" {
			problems = append(problems, "--postgres-dsn is required when --journal-driver=postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported --journal-driver %q", o.JournalDriver))
	}
	switch normalize(o.ArchiveDriver) {
	case DriverNone, DriverMemory:
	case DriverS3:
		if strings.TrimSpace(o.ArchiveBucket) == "" {
			problems = append(problems, "--archive-bucket is required when --archive-driver=s3")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported --archive-driver %q", o.ArchiveDriver))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(problems, "; "))
	}
	return nil
}

// Stack is everything a binary needs to store proofs and serve balances.
type Stack struct {
	Client   *daosign.Client
	Service  *proofservice.Service
	Journal  journal.Store
	Claims   proofclaim.Store
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	closers []func()
}

// Build validates o and wires the stack. Nothing dials the ledger until the first call.
func Build(ctx context.Context, o Options, log *slog.Logger) (*Stack, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Stack{Registry: prometheus.NewRegistry()}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(s.Registry)
	if err != nil {
		return nil, fmt.Errorf("stack: metrics: %w", err)
	}
	s.Metrics = m

	provider, err := secrets.New(ctx, o.SecretsDriver)
	if err != nil {
		return nil, err
	}
	localSigners, err := secrets.LoadSigners(ctx, provider, o.SignerKeysRef)
	if err != nil {
		return nil, err
	}
	signers := make([]ledger.Signer, 0, len(localSigners))
	for _, sg := range localSigners {
		signers = append(signers, sg)
	}

	if err := s.openStores(ctx, o); err != nil {
		return nil, err
	}
	recorder, err := journal.NewRecorder(s.Journal, log)
	if err != nil {
		return nil, err
	}

	arc, err := openArchive(ctx, o)
	if err != nil {
		return nil, err
	}

	dialer, err := o.NewDialer(log)
	if err != nil {
		return nil, err
	}

	s.Client, err = daosign.New(dialer, o.Contract, submitter.Config{
		Observers: []submitter.Observer{recorder, s.Metrics},
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	owner := strings.TrimSpace(o.InstanceID)
	if owner == "" {
		owner = uuid.NewString()
	}
	s.Service, err = proofservice.New(proofservice.Config{
		RequestTimeout: o.RequestTimeout,
		Claims:         s.Claims,
		ClaimOwner:     owner,
	}, s.Client, signers, arc, log.With("instance", owner))
	if err != nil {
		return nil, err
	}

	ok = true
	return s, nil
}

// NewDialer builds the EVM dialer described by o. It does not connect.
func (o Options) NewDialer(log *slog.Logger) (*evm.Dialer, error) {
	if err := o.ValidateLedger(); err != nil {
		return nil, err
	}
	return evm.NewDialer(evm.Config{
		RPCURL:             o.RPCURL,
		ChainID:            new(big.Int).SetUint64(o.ChainID),
		MinTipCap:          new(big.Int).Mul(big.NewInt(o.MinTipGwei), big.NewInt(1_000_000_000)),
		GasLimitMultiplier: o.GasMult,
		MaxCallGas:         o.MaxCallGas,
		PollInterval:       o.PollInterval,
		FinalityDepth:      o.FinalityDepth,
		Logger:             log,
	})
}

// openStores opens the journal and the proof claim table on the same backend.
func (s *Stack) openStores(ctx context.Context, o Options) error {
	if normalize(o.JournalDriver) == DriverMemory {
		s.Journal = journal.NewMemoryStore(time.Now)
		s.Claims = proofclaim.NewMemoryStore(time.Now)
		return nil
	}
	pool, err := pgxpool.New(ctx, o.PostgresDSN)
	if err != nil {
		return fmt.Errorf("stack: init pgx pool: %w", err)
	}
	s.closers = append(s.closers, pool.Close)

	js, err := journalpg.New(pool)
	if err != nil {
		return err
	}
	if err := js.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("stack: ensure journal schema: %w", err)
	}
	cs, err := claimpg.New(pool)
	if err != nil {
		return err
	}
	if err := cs.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("stack: ensure claim schema: %w", err)
	}
	s.Journal, s.Claims = js, cs
	return nil
}

func openArchive(ctx context.Context, o Options) (*archive.Archive, error) {
	switch normalize(o.ArchiveDriver) {
	case DriverMemory:
		return archive.New(archive.NewMemoryBackend())
	case DriverS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("stack: load aws config: %w", err)
		}
		backend, err := archive.NewS3Backend(awss3.NewFromConfig(awsCfg), o.ArchiveBucket, o.ArchivePrefix, 0)
		if err != nil {
			return nil, err
		}
		return archive.New(backend)
	default:
		return nil, nil
	}
}

// Close releases pools opened by Build, newest first.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
