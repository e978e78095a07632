package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.hive.dev/agent/common"
)

// PersistedDocumentResolver resolves a persisted-document id to its stored
// operation text. This is the out-of-scope collaborator spec.md §1 treats as
// a black box; PersistedDocumentCache below is one concrete implementation
// of it, supplementing spec.md from the original CDN-backed cache
// (original_source/.../persisted_documents.rs) that this module's core does
// not otherwise need.
type PersistedDocumentResolver interface {
	Resolve(ctx context.Context, documentID string) (string, error)
}

// ErrPersistedDocumentNotFound is returned when the CDN answers a document
// request with any non-2xx status (404, but also 401, 5xx and so on).
var ErrPersistedDocumentNotFound = errors.New("fetcher: persisted document not found")

// PersistedDocumentCache resolves persisted-document ids against a CDN
// endpoint, with a simple in-memory cache so repeated operations do not
// repeatedly hit the network.
type PersistedDocumentCache struct {
	client    *http.Client
	endpoint  string
	key       string
	userAgent string
	logger    *common.ContextLogger

	mu    sync.RWMutex
	cache map[string]string
}

// PersistedDocumentCacheConfig configures a PersistedDocumentCache.
type PersistedDocumentCacheConfig struct {
	Endpoint   string
	Key        string
	UserAgent  string
	HTTPClient *http.Client
}

// NewPersistedDocumentCache creates a cache-backed resolver.
func NewPersistedDocumentCache(cfg PersistedDocumentCacheConfig, logger *common.ContextLogger) (*PersistedDocumentCache, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("fetcher: persisted document cache: %w", ErrMissingEndpoints)
	}
	if cfg.Key == "" {
		return nil, ErrMissingKey
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = common.AgentLogger("persisted-documents")
	}
	return &PersistedDocumentCache{
		client:    httpClient,
		endpoint:  cfg.Endpoint,
		key:       cfg.Key,
		userAgent: cfg.UserAgent,
		logger:    logger,
		cache:     make(map[string]string),
	}, nil
}

// Resolve returns the document's cached text, fetching it from the CDN on a
// cache miss and populating the cache for subsequent lookups.
func (c *PersistedDocumentCache) Resolve(ctx context.Context, documentID string) (string, error) {
	if cached, ok := c.lookup(documentID); ok {
		c.logger.WithField("document_id", documentID).Debug("persisted document found in cache")
		return cached, nil
	}

	c.logger.WithField("document_id", documentID).Debug("persisted document not found in cache, fetching from CDN")

	cdnDocumentID := strings.ReplaceAll(documentID, "~", "/")
	url := fmt.Sprintf("%s/apps/%s", c.endpoint, cdnDocumentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetcher: building persisted document request: %w", err)
	}
	req.Header.Set("X-Hive-CDN-Key", c.key)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithError(err).Warn("failed to fetch persisted document from CDN")
		return "", fmt.Errorf("fetcher: fetching persisted document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", ErrPersistedDocumentNotFound
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetcher: reading persisted document response: %w", err)
	}

	document := string(body)
	c.store(documentID, document)

	return document, nil
}

func (c *PersistedDocumentCache) lookup(documentID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	document, ok := c.cache[documentID]
	return document, ok
}

func (c *PersistedDocumentCache) store(documentID, document string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[documentID] = document
}
