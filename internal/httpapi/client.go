package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/DAOsign/daosign-go/internal/proofmsg"
)

var ErrInvalidClientConfig = errors.New("httpapi: invalid client config")

// StatusError is returned for non-200 responses. Code is the "error" field of the body, or the
// HTTP status text when the body has none.
type StatusError struct {
	StatusCode int
	Code       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpapi: status %d: %s", e.StatusCode, e.Code)
}

type ClientOption func(*Client) error

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("%w: nil http client", ErrInvalidClientConfig)
		}
		c.hc = hc
		return nil
	}
}

func WithMaxResponseBytes(n int64) ClientOption {
	return func(c *Client) error {
		if n <= 0 {
			return fmt.Errorf("%w: max response bytes must be > 0", ErrInvalidClientConfig)
		}
		c.maxRespBytes = n
		return nil
	}
}

type Client struct {
	baseURL      *url.URL
	authToken    string
	hc           *http.Client
	maxRespBytes int64
}

func NewClient(baseURL string, authToken string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: missing base url", ErrInvalidClientConfig)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", ErrInvalidClientConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidClientConfig, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidClientConfig)
	}

	c := &Client{
		baseURL:      u,
		authToken:    authToken,
		hc:           &http.Client{Timeout: 10 * time.Minute},
		maxRespBytes: 1 << 20, // 1 MiB
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// StoreProof posts a proof document. On a failed outcome the decoded response is returned
// together with a *StatusError.
func (c *Client) StoreProof(ctx context.Context, kind proofmsg.Kind, signer string, proof []byte) (ProofResponse, error) {
	if !kind.Valid() {
		return ProofResponse{}, fmt.Errorf("%w: unknown proof kind %d", proofmsg.ErrInvalidProof, uint8(kind))
	}
	query := url.Values{}
	if s := strings.TrimSpace(signer); s != "" {
		query.Set("signer", s)
	}

	var out ProofResponse
	status, body, err := c.do(ctx, http.MethodPost, "/v1/proofs/"+kind.String(), query, proof)
	if err != nil {
		return ProofResponse{}, err
	}
	if jerr := json.Unmarshal(body, &out); jerr != nil && status == http.StatusOK {
		return ProofResponse{}, fmt.Errorf("httpapi: unmarshal response: %w", jerr)
	}
	if status != http.StatusOK {
		return out, statusError(status, body)
	}
	return out, nil
}

func (c *Client) Balance(ctx context.Context, address string) (BalanceResponse, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return BalanceResponse{}, fmt.Errorf("httpapi: missing address")
	}
	status, body, err := c.do(ctx, http.MethodGet, "/v1/balances/"+url.PathEscape(address), nil, nil)
	if err != nil {
		return BalanceResponse{}, err
	}
	if status != http.StatusOK {
		return BalanceResponse{}, statusError(status, body)
	}
	var out BalanceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return BalanceResponse{}, fmt.Errorf("httpapi: unmarshal response: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, route string, query url.Values, payload []byte) (int, []byte, error) {
	if c == nil || c.baseURL == nil || c.hc == nil {
		return 0, nil, fmt.Errorf("%w: nil client", ErrInvalidClientConfig)
	}

	u := *c.baseURL
	u.Path = joinPath(u.Path, route)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	r, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("httpapi: build request: %w", err)
	}
	if payload != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		r.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.hc.Do(r)
	if err != nil {
		return 0, nil, fmt.Errorf("httpapi: http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := readAllLimited(resp.Body, c.maxRespBytes)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func statusError(status int, body []byte) error {
	code := http.StatusText(status)
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		code = er.Error
	}
	return &StatusError{StatusCode: status, Code: code}
}

func joinPath(basePath string, suffix string) string {
	if basePath == "" {
		basePath = "/"
	}
	return path.Join(basePath, suffix)
}

func readAllLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("httpapi: read response: %w", err)
	}
	if int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("httpapi: response too large")
	}
	return b, nil
}
