// Command daosign-enqueue publishes proof requests for daosign-worker.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/DAOsign/daosign-go/internal/proofservice"
	"github.com/DAOsign/daosign-go/internal/queue"
)

type stringListFlag []string

func (f *stringListFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(*f, ",")
}

func (f *stringListFlag) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return errors.New("value must not be empty")
	}
	*f = append(*f, v)
	return nil
}

func main() {
	if err := runMain(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runMain(args []string, stdin io.Reader, stdout io.Writer) error {
	var proofFiles stringListFlag
	fs := flag.NewFlagSet("daosign-enqueue", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	queueDriver := fs.String("queue-driver", queue.DriverKafka, "queue driver: kafka|stdio")
	queueBrokers := fs.String("queue-brokers", "", "comma-separated queue brokers (required for kafka)")
	queueTLS := fs.Bool("queue-tls", false, "use TLS to the kafka brokers")
	topic := fs.String("topic", "daosign.proof-requests.v1", "proof request topic")
	kindFlag := fs.String("kind", "", "proof kind: authority|signature|agreement (required)")
	signer := fs.String("signer", "", "signer address; the worker's default when empty")
	proof := fs.String("proof", "", "inline proof document")
	fs.Var(&proofFiles, "proof-file", "proof document path (repeatable)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*topic) == "" {
		return errors.New("--topic is required")
	}
	kind, err := proofmsg.ParseKind(*kindFlag)
	if err != nil {
		return fmt.Errorf("--kind: %w", err)
	}

	docs, err := loadProofs(strings.TrimSpace(*proof), proofFiles, stdin)
	if err != nil {
		return err
	}
	records := make([]queue.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := buildRecord(kind, strings.TrimSpace(*signer), doc)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	producer, err := queue.NewProducer(queue.ProducerConfig{
		Driver:  *queueDriver,
		Brokers: queue.SplitCommaList(*queueBrokers),
		TLS:     *queueTLS,
		Writer:  stdout,
	})
	if err != nil {
		return err
	}
	defer func() { _ = producer.Close() }()

	ctx := context.Background()
	for _, rec := range records {
		if err := producer.Publish(ctx, *topic, rec); err != nil {
			return err
		}
	}
	return nil
}

// buildRecord decodes doc so malformed proofs are rejected before they reach the queue, and keys
// the record by proof CID.
func buildRecord(kind proofmsg.Kind, signer string, doc []byte) (queue.Record, error) {
	p, err := proofmsg.DecodeProof(kind, doc)
	if err != nil {
		return queue.Record{}, err
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, doc); err != nil {
		return queue.Record{}, fmt.Errorf("compact proof: %w", err)
	}
	value, err := json.Marshal(proofservice.Request{
		Kind:   kind,
		Signer: signer,
		Proof:  compact.Bytes(),
	})
	if err != nil {
		return queue.Record{}, fmt.Errorf("marshal request: %w", err)
	}
	return queue.Record{
		Key:     []byte(p.CID()),
		Value:   value,
		Headers: map[string]string{"kind": kind.String()},
	}, nil
}

func loadProofs(inline string, files []string, stdin io.Reader) ([][]byte, error) {
	docs := make([][]byte, 0, len(files)+1)
	if inline != "" {
		docs = append(docs, []byte(inline))
	}
	for _, filePath := range files {
		b, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read proof file %q: %w", filePath, err)
		}
		docs = append(docs, b)
	}
	if len(docs) > 0 {
		return docs, nil
	}
	if stdin == nil {
		return nil, errors.New("proof is required via --proof, --proof-file, or stdin")
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin proof: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, errors.New("proof is required via --proof, --proof-file, or stdin")
	}
	return [][]byte{b}, nil
}
