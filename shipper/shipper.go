// Package shipper implements the Shipper: it sends a built Report to the
// remote usage-ingestion endpoint over HTTPS, classifying the outcome into a
// small error taxonomy and retrying transient failures with exponential
// backoff.
package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"go.hive.dev/agent/common"
	"go.hive.dev/agent/report"
)

// Sentinel errors for the Shipper's outcome classification (spec §4.4/§7).
var (
	// ErrUnauthorized is returned for a 401 response. Permanent: never
	// retried within a single send.
	ErrUnauthorized = errors.New("shipper: unauthorized (401)")
	// ErrForbidden is returned for a 403 response. Permanent.
	ErrForbidden = errors.New("shipper: forbidden (403)")
	// ErrRateLimited is returned for a 429 response. Transient: retried
	// per policy.
	ErrRateLimited = errors.New("shipper: rate limited (429)")
)

// UnknownError wraps any other non-success outcome: 5xx and transport
// failures are transient (retried), other 4xx are permanent.
type UnknownError struct {
	StatusCode int
	Message    string
}

func (e *UnknownError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("shipper: unknown error: %s", e.Message)
	}
	return fmt.Sprintf("shipper: unknown error (%d): %s", e.StatusCode, e.Message)
}

// Config configures a Shipper.
type Config struct {
	Endpoint   string
	Token      string
	UserAgent  string
	MaxRetries uint64
	HTTPClient *http.Client
}

// Shipper sends built reports to the usage-ingestion endpoint.
type Shipper struct {
	endpoint   string
	token      string
	userAgent  string
	maxRetries uint64
	httpClient *http.Client
	logger     *common.ContextLogger
}

// New creates a Shipper from cfg. A nil cfg.HTTPClient falls back to
// http.DefaultClient; cfg.MaxRetries of 0 falls back to 3.
func New(cfg Config, logger *common.ContextLogger) *Shipper {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	if logger == nil {
		logger = common.AgentLogger("shipper")
	}
	return &Shipper{
		endpoint:   cfg.Endpoint,
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		maxRetries: maxRetries,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Send ships r to the configured endpoint. It retries transient failures
// (429, 5xx, transport errors) with exponential backoff, making at most
// MaxRetries retries after the first attempt; permanent classifications (401, 403, other 4xx)
// return immediately without a retry.
func (s *Shipper) Send(ctx context.Context, r report.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return &UnknownError{Message: err.Error()}
	}

	var policy backoff.BackOff = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries)
	policy = backoff.WithContext(policy, ctx)

	return backoff.Retry(func() error {
		return s.sendOnce(ctx, body)
	}, policy)
}

func (s *Shipper) sendOnce(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(&UnknownError{Message: err.Error()})
	}

	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-Usage-API-Version", "2")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Length", fmt.Sprintf("%d", len(body)))
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &UnknownError{Message: err.Error()}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return backoff.Permanent(ErrUnauthorized)
	case http.StatusForbidden:
		return backoff.Permanent(ErrForbidden)
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}

	respBody, _ := io.ReadAll(resp.Body)
	unknownErr := &UnknownError{StatusCode: resp.StatusCode, Message: string(respBody)}
	if resp.StatusCode >= 500 {
		return unknownErr
	}
	return backoff.Permanent(unknownErr)
}
