// Package proofworker consumes queued proof requests, stores each proof and publishes the
// outcome to a result or failure topic.
package proofworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DAOsign/daosign-go/internal/proofservice"
	"github.com/DAOsign/daosign-go/internal/queue"
	"github.com/DAOsign/daosign-go/internal/submitter"
	"golang.org/x/time/rate"
)

var ErrInvalidConfig = errors.New("proofworker: invalid config")

const (
	// ResultMalformed labels requests that could not be decoded.
	ResultMalformed = "malformed"

	// CodeUnprocessed marks a failure event for a request the service could not process at all,
	// such as an unavailable archive. The request may be enqueued again.
	CodeUnprocessed = "unprocessed"
)

type Processor interface {
	Process(ctx context.Context, req proofservice.Request) (proofservice.Outcome, error)
}

// Counter receives one result label per handled request. *metrics.Metrics satisfies it.
type Counter interface {
	Request(result string)
}

type Config struct {
	InputTopic   string
	ResultTopic  string
	FailureTopic string

	MaxInflight int
	AckTimeout  time.Duration

	// RatePerSecond caps how many requests start per second; 0 disables the limit.
	RatePerSecond float64
	Burst         int
}

type Worker struct {
	cfg Config

	service  Processor
	consumer queue.Consumer
	producer queue.Producer
	limiter  *rate.Limiter
	counter  Counter
	log      *slog.Logger

	inflight     atomic.Int64
	successCount atomic.Uint64
	failureCount atomic.Uint64
}

func New(cfg Config, service Processor, consumer queue.Consumer, producer queue.Producer, counter Counter, log *slog.Logger) (*Worker, error) {
	if service == nil || consumer == nil || producer == nil {
		return nil, fmt.Errorf("%w: nil dependency", ErrInvalidConfig)
	}
	if cfg.InputTopic == "" || cfg.ResultTopic == "" || cfg.FailureTopic == "" {
		return nil, fmt.Errorf("%w: input/result/failure topics are required", ErrInvalidConfig)
	}
	if cfg.RatePerSecond < 0 {
		return nil, fmt.Errorf("%w: rate must be >= 0", ErrInvalidConfig)
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 1
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		if cfg.Burst <= 0 {
			cfg.Burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		cfg:      cfg,
		service:  service,
		consumer: consumer,
		producer: producer,
		limiter:  limiter,
		counter:  counter,
		log:      log,
	}, nil
}

// Run handles messages until ctx is done or the consumer closes, then waits for in-flight
// requests. It returns the first publish or consume error seen.
func (w *Worker) Run(ctx context.Context) error {
	sem := make(chan struct{}, w.cfg.MaxInflight)
	var wg sync.WaitGroup

	msgCh := w.consumer.Messages()
	errCh := w.consumer.Errors()

	var firstErr error
	var firstErrMu sync.Mutex
	setFirstErr := func(err error) {
		if err == nil {
			return
		}
		firstErrMu.Lock()
		defer firstErrMu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return firstErr
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				w.log.Error("proof-worker queue consume error", "err", err)
				setFirstErr(err)
			}
		case msg, ok := <-msgCh:
			if !ok {
				wg.Wait()
				return firstErr
			}
			if err := w.limiter.Wait(ctx); err != nil {
				wg.Wait()
				return firstErr
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(qmsg queue.Message) {
				defer wg.Done()
				defer func() { <-sem }()

				w.inflight.Add(1)
				defer w.inflight.Add(-1)
				if err := w.handleMessage(ctx, qmsg); err != nil {
					setFirstErr(err)
					w.log.Error("proof-worker handle message", "err", err)
				}
			}(msg)
		}
	}
}

// handleMessage acks every message whose outcome was published, including a retryable
// CodeUnprocessed failure when the service returned an error. A message is left unacked only when
// publishing fails. Kafka commits are cumulative, so a later commit can still move past it.
func (w *Worker) handleMessage(ctx context.Context, msg queue.Message) error {
	req, err := proofservice.DecodeRequest(msg.Value)
	if err != nil {
		out := proofservice.Outcome{
			Status:       proofservice.StatusFailed,
			ErrorCode:    submitter.CodeInvalidPayload,
			ErrorMessage: err.Error(),
		}
		if perr := w.publish(ctx, w.cfg.FailureTopic, msg.Key, out); perr != nil {
			return perr
		}
		w.record(msg.Timestamp, ResultMalformed, false)
		ackMessage(msg, w.cfg.AckTimeout, w.log)
		return nil
	}

	out, err := w.service.Process(ctx, req)
	if err != nil {
		w.log.Error("proof-worker process", "kind", req.Kind.String(), "err", err)
		out = proofservice.Outcome{
			Status:       proofservice.StatusFailed,
			Kind:         req.Kind.String(),
			Signer:       req.Signer,
			Retryable:    true,
			ErrorCode:    CodeUnprocessed,
			ErrorMessage: err.Error(),
		}
	}

	key := msg.Key
	if out.ProofCID != "" {
		key = []byte(out.ProofCID)
	}
	switch out.Status {
	case proofservice.StatusFinalized:
		if err := w.publish(ctx, w.cfg.ResultTopic, key, out); err != nil {
			return err
		}
		w.record(msg.Timestamp, string(out.Status), true)
	default:
		w.log.Error(
			"proof-worker submission failed",
			"kind", out.Kind,
			"proof_cid", out.ProofCID,
			"error_code", out.ErrorCode,
			"retryable", out.Retryable,
			"message", out.ErrorMessage,
		)
		if err := w.publish(ctx, w.cfg.FailureTopic, key, out); err != nil {
			return err
		}
		w.record(msg.Timestamp, out.ErrorCode, false)
	}

	ackMessage(msg, w.cfg.AckTimeout, w.log)
	return nil
}

func (w *Worker) publish(ctx context.Context, topic string, key []byte, out proofservice.Outcome) error {
	payload, err := proofservice.EncodeOutcome(out)
	if err != nil {
		return err
	}
	headers := map[string]string{"status": string(out.Status)}
	if out.Kind != "" {
		headers["kind"] = out.Kind
	}
	return w.producer.Publish(ctx, topic, queue.Record{Key: key, Value: payload, Headers: headers})
}

func (w *Worker) record(ts time.Time, result string, success bool) {
	if success {
		w.successCount.Add(1)
	} else {
		w.failureCount.Add(1)
	}
	if w.counter != nil {
		w.counter.Request(result)
	}

	lagSeconds := float64(0)
	if !ts.IsZero() {
		if lag := time.Since(ts); lag > 0 {
			lagSeconds = lag.Seconds()
		}
	}
	w.log.Info("proof-worker metrics",
		"queue_lag_seconds", lagSeconds,
		"in_flight_requests", w.inflight.Load(),
		"success_count", w.successCount.Load(),
		"failure_count", w.failureCount.Load(),
		"result", result,
	)
}

func ackMessage(msg queue.Message, timeout time.Duration, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := msg.Ack(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("proof-worker ack message", "err", err)
	}
}
