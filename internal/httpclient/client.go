package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mati/keyload/internal/config"
)

// RequestIDHeader carries a fresh UUID on every request.
const RequestIDHeader = "X-Request-Id"

// KeyPayload is the check-or-create request body.
type KeyPayload struct {
	KeyValue      string `json:"keyValue"`
	AccountNumber string `json:"accountNumber"`
	OwnerDocument string `json:"ownerDocument"`
	EntityCode    string `json:"entityCode"`
}

// PayloadBuilder builds one POST request per iteration.
type PayloadBuilder struct {
	target   string
	headers  http.Header
	payload  config.PayloadConfig
	fixedKey string

	mu  sync.Mutex
	rng *rand.Rand
}

func NewPayloadBuilder(cfg *config.Config) (*PayloadBuilder, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	target := strings.TrimSpace(cfg.TargetURL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	headers := http.Header{}
	for key, value := range cfg.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}

	seed := uint64(cfg.Seed)
	if cfg.Seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &PayloadBuilder{
		target:   target,
		headers:  headers,
		payload:  cfg.Payload,
		fixedKey: strings.TrimSpace(cfg.Payload.FixedKey),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Key returns the keyValue of iteration index: prefix, index and nine random digits,
// or the fixed key when one is set.
func (b *PayloadBuilder) Key(index int64) string {
	if b.fixedKey != "" {
		return b.fixedKey
	}
	b.mu.Lock()
	n := b.rng.IntN(1_000_000_000)
	b.mu.Unlock()
	return b.payload.KeyPrefix + strconv.FormatInt(index, 10) + "_" + fmt.Sprintf("%09d", n)
}

func (b *PayloadBuilder) Payload(index int64) KeyPayload {
	return KeyPayload{
		KeyValue:      b.Key(index),
		AccountNumber: b.payload.AccountNumber,
		OwnerDocument: b.payload.OwnerDocument,
		EntityCode:    b.payload.EntityCode,
	}
}

// Build returns the request for iteration index together with its keyValue.
func (b *PayloadBuilder) Build(ctx context.Context, index int64) (*http.Request, string, error) {
	if b == nil {
		return nil, "", errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload := b.Payload(index)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.target, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}

	req.Header = make(http.Header, len(b.headers)+3)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// Configured headers replace the defaults above.
	for key, values := range b.headers {
		req.Header[key] = append([]string(nil), values...)
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}

	return req, payload.KeyValue, nil
}

// NewClient returns a client tuned for many concurrent requests to one host.
// maxConns bounds idle connections kept per host; it should match the worker cap.
func NewClient(timeout time.Duration, maxConns int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if maxConns < 32 {
		maxConns = 32
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxConns,
		MaxIdleConnsPerHost:   maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
