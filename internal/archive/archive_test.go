package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/ipfs/go-cid"
)

const testCIDv0 = "QmY7Yh4UquoXHLPFo2XbhXkhBvFoPwmQUSa92pxnxjQuPU"

// testCIDv1 is the base32 CIDv1 spelling of testCIDv0.
var testCIDv1 = func() string {
	c := cid.MustParse(testCIDv0)
	return cid.NewCidV1(c.Type(), c.Hash()).String()
}()

func mustSignaturePayload(t *testing.T, proofCID string) proofmsg.SignaturePayload {
	t.Helper()
	p, err := proofmsg.BuildSignature(proofmsg.SignatureProof{
		Message: proofmsg.SignatureMessage{
			SignerAddress: "0x5678",
			AuthorityCID:  "authorityCID",
			Timestamp:     1234567890,
			Metadata:      "metadata",
		},
		ProofCID:  proofCID,
		Signature: "0x0123",
	})
	if err != nil {
		t.Fatalf("BuildSignature: %v", err)
	}
	return p
}

func TestCanonicalProofCID(t *testing.T) {
	t.Parallel()

	v0, err := CanonicalProofCID(testCIDv0)
	if err != nil {
		t.Fatalf("CanonicalProofCID v0: %v", err)
	}
	v1, err := CanonicalProofCID(testCIDv1)
	if err != nil {
		t.Fatalf("CanonicalProofCID v1: %v", err)
	}
	if v0 != v1 || v0 != testCIDv1 {
		t.Fatalf("v0 and v1 spellings differ: %q vs %q", v0, v1)
	}
	if !strings.HasPrefix(v0, "bafy") {
		t.Fatalf("expected base32 dag-pb cidv1, got %q", v0)
	}

	raw, err := CanonicalProofCID("proofCID123")
	if err != nil {
		t.Fatalf("CanonicalProofCID raw: %v", err)
	}
	c, err := cid.Decode(raw)
	if err != nil {
		t.Fatalf("fallback is not a cid: %v", err)
	}
	if c.Version() != 1 || c.Type() != cid.Raw {
		t.Fatalf("fallback cid: version=%d codec=%d", c.Version(), c.Type())
	}

	if _, err := CanonicalProofCID("  "); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	got, err := Key(proofmsg.KindAgreement, testCIDv0)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if want := "proofs/agreement/" + testCIDv1 + ".json"; got != want {
		t.Fatalf("key: got %q want %q", got, want)
	}
	if _, err := Key(proofmsg.Kind(0), testCIDv0); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestArchive_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, err := New(NewMemoryBackend())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload := mustSignaturePayload(t, testCIDv1)

	entry, err := a.Put(ctx, payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if entry.Kind != proofmsg.KindSignature || entry.ProofCID != testCIDv1 || entry.Size == 0 {
		t.Fatalf("entry: %+v", entry)
	}

	ok, err := a.Exists(ctx, proofmsg.KindSignature, testCIDv0)
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}

	got, data, err := a.Get(ctx, proofmsg.KindSignature, testCIDv1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ContentCID != entry.ContentCID || got.Key != entry.Key {
		t.Fatalf("entry mismatch: got %+v want %+v", got, entry)
	}
	var decoded proofmsg.SignaturePayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Message.Name != proofmsg.SignatureName || decoded.ProofCid != testCIDv1 {
		t.Fatalf("decoded payload: %+v", decoded)
	}

	if _, _, err := a.Get(ctx, proofmsg.KindAuthority, testCIDv1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArchive_GetDetectsTampering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := NewMemoryBackend()
	a, _ := New(backend)
	entry, err := a.Put(ctx, mustSignaturePayload(t, "proofCID123"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, meta, _ := backend.Get(ctx, entry.Key)
	if err := backend.Put(ctx, entry.Key, []byte(`{"tampered":true}`), meta); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, _, err := a.Get(ctx, proofmsg.KindSignature, "proofCID123"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestS3Backend_PutGetExists(t *testing.T) {
	t.Parallel()

	var stored []byte
	var storedMeta map[string]string
	client := &fakeS3Client{}
	client.putFn = func(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		if got, want := aws.ToString(in.Bucket), "daosign-proofs"; got != want {
			t.Fatalf("bucket mismatch: got %q want %q", got, want)
		}
		if !strings.HasPrefix(aws.ToString(in.Key), "mainnet/proofs/signature/") {
			t.Fatalf("key mismatch: got %q", aws.ToString(in.Key))
		}
		if got, want := aws.ToString(in.ContentType), "application/json"; got != want {
			t.Fatalf("content type mismatch: got %q want %q", got, want)
		}
		b, err := io.ReadAll(in.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		stored = b
		storedMeta = in.Metadata
		return &s3.PutObjectOutput{}, nil
	}
	client.getFn = func(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return &s3.GetObjectOutput{
			Body:     io.NopCloser(strings.NewReader(string(stored))),
			Metadata: storedMeta,
		}, nil
	}

	backend, err := NewS3Backend(client, "daosign-proofs", "/mainnet/", 0)
	if err != nil {
		t.Fatalf("NewS3Backend: %v", err)
	}
	a, _ := New(backend)

	entry, err := a.Put(context.Background(), mustSignaturePayload(t, testCIDv1))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if storedMeta[metaContentCID] != entry.ContentCID || storedMeta[metaKind] != "signature" {
		t.Fatalf("metadata: %+v", storedMeta)
	}
	if _, _, err := a.Get(context.Background(), proofmsg.KindSignature, testCIDv1); err != nil {
		t.Fatalf("Get: %v", err)
	}
	ok, err := a.Exists(context.Background(), proofmsg.KindSignature, testCIDv1)
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
}

func TestS3Backend_MapsNotFoundAndLimitsSize(t *testing.T) {
	t.Parallel()

	client := &fakeS3Client{
		getFn: func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return nil, fakeAPIError{code: "NoSuchKey", msg: "missing"}
		},
		headFn: func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			return nil, fakeAPIError{code: "NotFound", msg: "missing"}
		},
	}
	backend, err := NewS3Backend(client, "daosign-proofs", "", 8)
	if err != nil {
		t.Fatalf("NewS3Backend: %v", err)
	}

	if _, _, err := backend.Get(context.Background(), "proofs/x.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ok, err := backend.Exists(context.Background(), "proofs/x.json")
	if err != nil || ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}

	client.getFn = func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("this payload is too large"))}, nil
	}
	if _, _, err := backend.Get(context.Background(), "proofs/x.json"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestNewS3Backend_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewS3Backend(&fakeS3Client{}, " ", "", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("missing bucket: expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewS3Backend(nil, "bucket", "", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("missing client: expected ErrInvalidConfig, got %v", err)
	}
	if _, err := New(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil backend: expected ErrInvalidConfig, got %v", err)
	}
}

type fakeS3Client struct {
	putFn  func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	getFn  func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	headFn func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

func (f *fakeS3Client) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putFn == nil {
		return &s3.PutObjectOutput{}, nil
	}
	return f.putFn(ctx, in, opts...)
}

func (f *fakeS3Client) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getFn == nil {
		return nil, errors.New("unexpected GetObject call")
	}
	return f.getFn(ctx, in, opts...)
}

func (f *fakeS3Client) HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headFn == nil {
		return &s3.HeadObjectOutput{}, nil
	}
	return f.headFn(ctx, in, opts...)
}

type fakeAPIError struct {
	code string
	msg  string
}

func (f fakeAPIError) ErrorCode() string             { return f.code }
func (f fakeAPIError) ErrorMessage() string          { return f.msg }
func (f fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }
func (f fakeAPIError) Error() string                 { return f.code + ": " + f.msg }
