// Package queue moves proof requests and outcome events over Kafka, or over line-delimited
// stdin/stdout for local runs.
package queue

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"
)

const (
	DriverKafka = "kafka"
	DriverStdio = "stdio"
)

const envKafkaTLS = "DAOSIGN_QUEUE_KAFKA_TLS"

var (
	ErrInvalidConfig = errors.New("queue: invalid config")
	ErrMissingTopic  = errors.New("queue: topic is required")
)

// Message is a record delivered to a consumer.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	// Timestamp is the producer timestamp (Kafka) or local receive time (stdio).
	Timestamp time.Time

	ackFn func(context.Context) error
}

// Ack commits the message's offset. It is a no-op for drivers without offsets.
func (m Message) Ack(ctx context.Context) error {
	if m.ackFn == nil {
		return nil
	}
	return m.ackFn(ctx)
}

// Record is what a producer publishes. Records sharing a Key keep their relative order.
type Record struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type Consumer interface {
	Messages() <-chan Message
	Errors() <-chan error
	Close() error
}

type Producer interface {
	Publish(ctx context.Context, topic string, rec Record) error
	Close() error
}

type ConsumerConfig struct {
	Driver string

	// Kafka fields.
	Brokers       []string
	Group         string
	Topics        []string
	KafkaMinBytes int
	KafkaMaxBytes int
	// TLS enables TLS to the brokers. DAOSIGN_QUEUE_KAFKA_TLS also enables it.
	TLS bool

	// Stdio fields. Messages take the first entry of Topics as their topic.
	Reader       io.Reader
	MaxLineBytes int
}

type ProducerConfig struct {
	Driver string

	// Kafka fields.
	Brokers      []string
	BatchTimeout time.Duration
	TLS          bool

	// Stdio fields.
	Writer io.Writer
}

func NewConsumer(ctx context.Context, cfg ConsumerConfig) (Consumer, error) {
	switch normalizeDriver(cfg.Driver) {
	case DriverKafka:
		return newKafkaConsumer(ctx, cfg)
	case DriverStdio:
		return newStdioConsumer(ctx, cfg), nil
	default:
		return nil, unsupportedDriver(cfg.Driver)
	}
}

func NewProducer(cfg ProducerConfig) (Producer, error) {
	switch normalizeDriver(cfg.Driver) {
	case DriverKafka:
		return newKafkaProducer(cfg)
	case DriverStdio:
		return newStdioProducer(cfg), nil
	default:
		return nil, unsupportedDriver(cfg.Driver)
	}
}

func unsupportedDriver(d string) error {
	return &configError{msg: "unsupported driver " + strings.TrimSpace(d)}
}

type configError struct{ msg string }

func (e *configError) Error() string { return ErrInvalidConfig.Error() + ": " + e.msg }
func (e *configError) Unwrap() error { return ErrInvalidConfig }

func normalizeDriver(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return DriverKafka
	}
	return v
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// SplitCommaList splits a flag value such as "b1:9092, b2:9092".
func SplitCommaList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return normalizeList(strings.Split(s, ","))
}

func kafkaTLSEnabled(explicit bool) bool {
	if explicit {
		return true
	}
	switch strings.TrimSpace(strings.ToLower(os.Getenv(envKafkaTLS))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
