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
	"strings"
	"syscall"
	"time"

	"github.com/DAOsign/daosign-go/internal/proofworker"
	"github.com/DAOsign/daosign-go/internal/queue"
	"github.com/DAOsign/daosign-go/internal/stack"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	var opts stack.Options
	opts.Register(flag.CommandLine)
	var (
		inputTopic   = flag.String("input-topic", "daosign.proof-requests.v1", "proof request input topic")
		resultTopic  = flag.String("result-topic", "daosign.proof-results.v1", "finalized proof output topic")
		failureTopic = flag.String("failure-topic", "daosign.proof-failures.v1", "failed proof output topic")

		maxInflight = flag.Int("max-inflight-requests", 8, "maximum concurrent proof submissions")
		ratePerSec  = flag.Float64("rate", 0, "maximum proof submissions started per second; 0 disables")
		burst       = flag.Int("burst", 1, "rate limiter burst")

		queueDriver   = flag.String("queue-driver", queue.DriverKafka, "queue driver: kafka|stdio")
		queueBrokers  = flag.String("queue-brokers", "", "comma-separated queue brokers (required for kafka)")
		queueGroup    = flag.String("queue-group", "daosign-worker", "queue consumer group")
		queueTLS      = flag.Bool("queue-tls", false, "use TLS to the kafka brokers")
		maxLineBytes  = flag.Int("max-line-bytes", 1<<20, "max stdin line bytes for stdio driver")
		queueMaxBytes = flag.Int("queue-max-bytes", 10<<20, "max kafka message size to consume")
		ackTimeout    = flag.Duration("queue-ack-timeout", 5*time.Second, "queue message ack timeout")

		metricsAddr = flag.String("metrics-listen", "", "serve /metrics on this address when set")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if *maxInflight <= 0 || *maxLineBytes <= 0 || *queueMaxBytes <= 0 {
		fmt.Fprintln(os.Stderr, "error: --max-inflight-requests, --max-line-bytes, and --queue-max-bytes must be > 0")
		os.Exit(2)
	}
	if *ackTimeout <= 0 || *ratePerSec < 0 {
		fmt.Fprintln(os.Stderr, "error: --queue-ack-timeout must be > 0 and --rate must be >= 0")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := stack.Build(ctx, opts, log)
	if err != nil {
		log.Error("init stack", "err", err)
		os.Exit(2)
	}
	defer st.Close()

	consumer, err := queue.NewConsumer(ctx, queue.ConsumerConfig{
		Driver:        *queueDriver,
		Brokers:       queue.SplitCommaList(*queueBrokers),
		Group:         *queueGroup,
		Topics:        []string{*inputTopic},
		KafkaMaxBytes: *queueMaxBytes,
		TLS:           *queueTLS,
		MaxLineBytes:  *maxLineBytes,
	})
	if err != nil {
		log.Error("init queue consumer", "err", err)
		os.Exit(2)
	}
	defer func() { _ = consumer.Close() }()

	producer, err := queue.NewProducer(queue.ProducerConfig{
		Driver:  *queueDriver,
		Brokers: queue.SplitCommaList(*queueBrokers),
		TLS:     *queueTLS,
	})
	if err != nil {
		log.Error("init queue producer", "err", err)
		os.Exit(2)
	}
	defer func() { _ = producer.Close() }()

	worker, err := proofworker.New(proofworker.Config{
		InputTopic:    *inputTopic,
		ResultTopic:   *resultTopic,
		FailureTopic:  *failureTopic,
		MaxInflight:   *maxInflight,
		AckTimeout:    *ackTimeout,
		RatePerSecond: *ratePerSec,
		Burst:         *burst,
	}, st.Service, consumer, producer, st.Metrics, log)
	if err != nil {
		log.Error("init proof worker", "err", err)
		os.Exit(2)
	}

	log.Info("daosign-worker started",
		"chain_id", opts.ChainID,
		"contract", st.Client.ContractAddress(),
		"signers", st.Service.Signers(),
		"input_topic", *inputTopic,
		"result_topic", *resultTopic,
		"failure_topic", *failureTopic,
		"max_inflight_requests", *maxInflight,
		"rate", *ratePerSec,
		"request_timeout", opts.RequestTimeout.String(),
	)

	// The metrics server stops once the worker returns, including on stdio EOF.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return worker.Run(gctx)
	})
	if addr := strings.TrimSpace(*metricsAddr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.HandlerFor(st.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("daosign-worker exited with error", "err", err)
		os.Exit(1)
	}
}
