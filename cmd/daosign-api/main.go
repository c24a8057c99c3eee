package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DAOsign/daosign-go/internal/httpapi"
	"github.com/DAOsign/daosign-go/internal/secrets"
	"github.com/DAOsign/daosign-go/internal/stack"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	var opts stack.Options
	opts.Register(flag.CommandLine)
	var (
		listenAddr   = flag.String("listen", "127.0.0.1:8080", "HTTP listen address")
		authTokenRef = flag.String("auth-token", "DAOSIGN_API_AUTH_TOKEN", "env var or secret id holding the bearer auth token (required)")
		maxBodyBytes = flag.Int64("max-body-bytes", 1<<20, "maximum request body size")
		maxWait      = flag.Duration("max-wait", 10*time.Minute, "server-side bound on one request")
		logLevel     = flag.String("log-level", "info", "log level: debug|info|warn|error")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: --log-level: %v\n", err)
		os.Exit(2)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if *maxBodyBytes <= 0 || *maxWait < time.Second {
		fmt.Fprintln(os.Stderr, "error: --max-body-bytes must be > 0 and --max-wait must be >= 1s")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := secrets.New(ctx, opts.SecretsDriver)
	if err != nil {
		log.Error("init secrets provider", "err", err)
		os.Exit(2)
	}
	authToken, err := provider.Get(ctx, *authTokenRef)
	if err != nil {
		log.Error("load auth token", "err", err, "ref", *authTokenRef)
		os.Exit(2)
	}

	st, err := stack.Build(ctx, opts, log)
	if err != nil {
		log.Error("init stack", "err", err)
		os.Exit(2)
	}
	defer st.Close()

	handler := httpapi.NewHandler(st.Service, st.Client, httpapi.Config{
		AuthToken:      authToken,
		MaxBodyBytes:   *maxBodyBytes,
		MaxWaitSeconds: int(maxWait.Seconds()),
		Metrics:        promhttp.HandlerFor(st.Registry, promhttp.HandlerOpts{}),
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      *maxWait + time.Minute,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening",
			"addr", srv.Addr,
			"chain_id", opts.ChainID,
			"contract", st.Client.ContractAddress(),
			"signers", st.Service.Signers(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown", "signal", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
