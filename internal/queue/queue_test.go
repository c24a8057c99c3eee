package queue

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestNewConsumerValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  ConsumerConfig
	}{
		{name: "unsupported driver", cfg: ConsumerConfig{Driver: "sqs"}},
		{name: "kafka missing brokers", cfg: ConsumerConfig{Driver: DriverKafka, Group: "daosign", Topics: []string{"proof-requests"}}},
		{name: "kafka missing group", cfg: ConsumerConfig{Driver: DriverKafka, Brokers: []string{"127.0.0.1:9092"}, Topics: []string{"proof-requests"}}},
		{name: "kafka missing topics", cfg: ConsumerConfig{Driver: DriverKafka, Brokers: []string{"127.0.0.1:9092"}, Group: "daosign"}},
		{name: "kafka inverted byte bounds", cfg: ConsumerConfig{Driver: DriverKafka, Brokers: []string{"127.0.0.1:9092"}, Group: "daosign", Topics: []string{"t"}, KafkaMinBytes: 10, KafkaMaxBytes: 5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			c, err := NewConsumer(ctx, tc.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if c != nil {
				t.Fatalf("expected nil consumer on error")
			}
		})
	}
}

func TestNewProducerValidation(t *testing.T) {
	t.Parallel()

	for _, cfg := range []ProducerConfig{{Driver: "sqs"}, {Driver: DriverKafka}} {
		p, err := NewProducer(cfg)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%+v: expected ErrInvalidConfig, got %v", cfg, err)
		}
		if p != nil {
			t.Fatalf("expected nil producer on error")
		}
	}
}

func TestStdioConsumerReadsLinesWithTopic(t *testing.T) {
	t.Parallel()

	in := strings.NewReader("first\n\n  \nsecond\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := NewConsumer(ctx, ConsumerConfig{
		Driver:       DriverStdio,
		Topics:       []string{"proof-requests"},
		Reader:       in,
		MaxLineBytes: 1024,
	})
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	defer func() { _ = c.Close() }()

	var got []Message
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case m, ok := <-c.Messages():
			if !ok {
				t.Fatalf("messages channel closed early")
			}
			got = append(got, m)
			if err := m.Ack(context.Background()); err != nil {
				t.Fatalf("Ack: %v", err)
			}
		case err := <-c.Errors():
			if err != nil {
				t.Fatalf("consumer error: %v", err)
			}
		case <-deadline:
			t.Fatalf("timeout waiting for lines")
		}
	}

	if string(got[0].Value) != "first" || string(got[1].Value) != "second" {
		t.Fatalf("unexpected lines: %q, %q", got[0].Value, got[1].Value)
	}
	if got[0].Topic != "proof-requests" {
		t.Fatalf("topic: got %q", got[0].Topic)
	}
}

func TestStdioProducerPublishesLineDelimitedValues(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p, err := NewProducer(ProducerConfig{Driver: DriverStdio, Writer: &out})
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	defer func() { _ = p.Close() }()

	rec := Record{Key: []byte("cid"), Value: []byte(`{"status":"finalized"}`), Headers: map[string]string{"kind": "agreement"}}
	if err := p.Publish(context.Background(), "proof-results", rec); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got, want := out.String(), "{\"status\":\"finalized\"}\n"; got != want {
		t.Fatalf("output mismatch: got %q want %q", got, want)
	}
	if err := p.Publish(context.Background(), " ", rec); !errors.Is(err, ErrMissingTopic) {
		t.Fatalf("expected ErrMissingTopic, got %v", err)
	}
}

func TestKafkaHeadersRoundTrip(t *testing.T) {
	t.Parallel()

	in := map[string]string{"kind": "authority", "proof-cid": "bafy"}
	got := headersFromKafka(headersToKafka(in))
	if len(got) != 2 || got["kind"] != "authority" || got["proof-cid"] != "bafy" {
		t.Fatalf("headers: %+v", got)
	}
	if headersToKafka(nil) != nil || headersFromKafka([]kafka.Header{}) != nil {
		t.Fatalf("expected nil for empty headers")
	}
}

func TestKafkaTLSEnabled(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  bool
	}{
		{name: "unset", value: "", want: false},
		{name: "false", value: "false", want: false},
		{name: "true", value: "true", want: true},
		{name: "one", value: "1", want: true},
		{name: "case and space", value: "  TrUe  ", want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(envKafkaTLS, tc.value)
			if got := kafkaTLSEnabled(false); got != tc.want {
				t.Fatalf("kafkaTLSEnabled(%q) = %t, want %t", tc.value, got, tc.want)
			}
			if !kafkaTLSEnabled(true) {
				t.Fatalf("explicit TLS must win")
			}
		})
	}
}

func TestStopOnFetchError(t *testing.T) {
	t.Parallel()

	if !stopOnFetchError(context.Canceled) {
		t.Fatalf("context.Canceled must stop the consumer")
	}
	if stopOnFetchError(io.EOF) || stopOnFetchError(context.DeadlineExceeded) {
		t.Fatalf("transient errors must not stop the consumer")
	}
}

func TestSplitCommaList(t *testing.T) {
	t.Parallel()

	got := SplitCommaList(" b1:9092, ,b2:9092 ")
	if len(got) != 2 || got[0] != "b1:9092" || got[1] != "b2:9092" {
		t.Fatalf("SplitCommaList: %#v", got)
	}
	if SplitCommaList("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}
