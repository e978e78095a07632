// Package fetcher implements the Supergraph Fetcher: it polls a
// content-delivery endpoint for the latest supergraph document using
// conditional-GET (ETag / If-None-Match) semantics, failing over across a
// prioritized list of mirror endpoints, each fronted by its own circuit
// breaker.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.hive.dev/agent/breaker"
	"go.hive.dev/agent/common"
)

// Sentinel errors surfaced to the caller (spec §7: fetcher errors are always
// surfaced, never swallowed — the host decides when to retry the poll).
var (
	ErrMissingEndpoints = errors.New("fetcher: at least one endpoint is required")
	ErrMissingKey       = errors.New("fetcher: CDN key is required")
)

// mirror is one configured endpoint with its dedicated circuit breaker.
type mirror struct {
	url     string
	breaker *breaker.Breaker
}

// Fetcher obtains the latest supergraph document from one of several mirror
// endpoints. It is safe for concurrent use: the shared etag slot is
// protected by a read-write lock, and breakers are independently
// thread-safe.
type Fetcher struct {
	mirrors    []mirror
	key        string
	userAgent  string
	httpClient *http.Client
	logger     *common.ContextLogger

	etagMu sync.RWMutex
	etag   string
}

// Config configures a Fetcher.
type Config struct {
	// Endpoints are tried in registration order on every fetch.
	Endpoints []string
	// Key is the CDN access token, sent as X-Hive-CDN-Key. Its value is
	// never logged verbatim; common.MaskSecret is applied wherever it
	// appears in log output.
	Key        string
	UserAgent  string
	HTTPClient *http.Client
	Breaker    func(name string) breaker.Config
}

// New creates a Fetcher from cfg. Each endpoint is normalized by appending
// "/supergraph" unless it already ends with that suffix (handling
// trailing-slash variants), matching the CDN's routing convention.
func New(cfg Config, logger *common.ContextLogger) (*Fetcher, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, ErrMissingEndpoints
	}
	if cfg.Key == "" {
		return nil, ErrMissingKey
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = common.AgentLogger("supergraph-fetcher")
	}
	breakerConfig := cfg.Breaker
	if breakerConfig == nil {
		breakerConfig = breaker.DefaultConfig
	}

	mirrors := make([]mirror, 0, len(cfg.Endpoints))
	for _, endpoint := range cfg.Endpoints {
		mirrors = append(mirrors, mirror{
			url:     normalizeEndpoint(endpoint),
			breaker: breaker.New(breakerConfig(endpoint)),
		})
	}

	return &Fetcher{
		mirrors:    mirrors,
		key:        cfg.Key,
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func normalizeEndpoint(endpoint string) string {
	if strings.HasSuffix(endpoint, "/supergraph") {
		return endpoint
	}
	if strings.HasSuffix(endpoint, "/") {
		return endpoint + "supergraph"
	}
	return endpoint + "/supergraph"
}

// Fetch tries each mirror in order, returning the first success. It returns
// ("", nil) when the server reports the cached copy is unchanged (304). If
// every mirror fails, it returns the most recently observed error.
//
// Call this from a dedicated goroutine for a cooperative/"async" host, or
// from a blocking poll loop for a "sync" host — the call itself is always
// blocking; Go's single concurrency model makes separate sync/async
// fetcher types unnecessary.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	var lastErr error

	for _, m := range f.mirrors {
		body, changed, err := f.fetchFromMirror(ctx, m)
		if err == nil {
			if !changed {
				return "", nil
			}
			return body, nil
		}

		if errors.Is(err, breaker.ErrRejected) {
			f.logger.WithField("endpoint", m.url).Debug("mirror rejected by circuit breaker, trying next")
		} else {
			f.logger.WithFields(map[string]interface{}{
				"endpoint": m.url,
				"error":    err.Error(),
			}).Warn("mirror fetch failed, trying next")
		}
		lastErr = err
	}

	return "", lastErr
}

func (f *Fetcher) fetchFromMirror(ctx context.Context, m mirror) (body string, changed bool, err error) {
	result, execErr := m.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return f.doRequest(ctx, m.url)
	})
	if execErr != nil {
		return "", false, execErr
	}
	outcome := result.(mirrorResult)
	return outcome.body, outcome.changed, nil
}

type mirrorResult struct {
	body    string
	changed bool
}

func (f *Fetcher) doRequest(ctx context.Context, url string) (mirrorResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return mirrorResult{}, fmt.Errorf("fetcher: building request: %w", err)
	}

	req.Header.Set("X-Hive-CDN-Key", f.key)
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if etag := f.currentEtag(); etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	f.logger.WithFields(map[string]interface{}{
		"endpoint": url,
		"key":      common.MaskSecret(f.key),
	}).Debug("fetching supergraph document")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return mirrorResult{}, fmt.Errorf("fetcher: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		// The etag slot is left intact on 304: the cached copy is still
		// current, so there is nothing new to remember.
		return mirrorResult{changed: false}, nil
	}

	f.updateEtag(resp.Header.Get("ETag"))

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return mirrorResult{}, fmt.Errorf("fetcher: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return mirrorResult{}, fmt.Errorf("fetcher: reading response body: %w", err)
	}

	return mirrorResult{body: string(respBody), changed: true}, nil
}

func (f *Fetcher) currentEtag() string {
	f.etagMu.RLock()
	defer f.etagMu.RUnlock()
	return f.etag
}

// updateEtag is last-writer-wins: whichever mirror responds most recently
// sets the agent-wide etag slot, including clearing it when a response
// carries no ETag header.
func (f *Fetcher) updateEtag(etag string) {
	f.etagMu.Lock()
	defer f.etagMu.Unlock()
	f.etag = etag
}
