// Package agent implements the Usage Agent: it owns the Buffer, the
// Operation Processor (via the Report Builder), and the Shipper, exposing
// the add_report front door plus the periodic and size-triggered flushers.
package agent

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/ast"

	"go.hive.dev/agent/buffer"
	"go.hive.dev/agent/common"
	"go.hive.dev/agent/operation"
	"go.hive.dev/agent/report"
	"go.hive.dev/agent/shipper"
	"go.hive.dev/agent/version"
	"go.hive.dev/agent/worker"
)

// Configuration errors, raised at construction time (spec §7: configuration
// errors are always surfaced; callers must fail to start).
var (
	ErrMissingToken    = errors.New("agent: token is required")
	ErrMissingEndpoint = errors.New("agent: endpoint is required")
	ErrMissingTargetID = errors.New("agent: target_id is required for this token")
	ErrInvalidTargetID = errors.New("agent: target_id is not a valid slug or UUID")
)

const (
	// DefaultEndpoint is the hosted Hive Console usage-ingestion endpoint.
	DefaultEndpoint = "https://app.graphql-hive.com/usage"

	// legacyTokenPrefix identifies legacy organization access tokens, for
	// which a target_id is optional rather than required. Tokens prefixed
	// hvu1/ or hvp1/, and any other token, are non-legacy and require one.
	legacyTokenPrefix = "hvo1/"
)

var targetIDSlugRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+/[A-Za-z0-9_-]+/[A-Za-z0-9_-]+$`)

// Agent owns the Buffer/Processor/Shipper chain and exposes the host-facing
// operations defined by spec §4.5.
type Agent struct {
	buffer     *buffer.Buffer[report.ExecutionReport]
	builder    *report.Builder
	shipper    *shipper.Shipper
	bufferSize int
	logger     *common.ContextLogger
	scheduler  *worker.IntervalScheduler
}

// AddReport appends r to the Buffer. If the post-push size reaches the
// configured buffer size, a flush is scheduled asynchronously; the call
// itself never blocks on network I/O.
func (a *Agent) AddReport(r report.ExecutionReport) {
	size := a.buffer.Push(r)
	if size >= a.bufferSize {
		worker.Go(a.logger, func() {
			a.Flush(context.Background())
		})
	}
}

// Flush drains the Buffer, builds a Report, and ships it. It is safe under
// concurrent invocation: Buffer.Drain is atomic, so a racing flush simply
// sees nothing to do. Shipping failures are logged, never returned — per
// spec §7 the ingestion hot path never surfaces a shipping error to the
// caller.
func (a *Agent) Flush(ctx context.Context) {
	reports := a.buffer.Drain()
	if len(reports) == 0 {
		return
	}

	built := a.builder.Build(reports)
	if built.Size == 0 {
		return
	}

	if err := a.shipper.Send(ctx, built); err != nil {
		a.logger.WithError(err).Error("failed to ship usage report")
		return
	}

	a.logger.WithField("operations", built.Size).Debug("reported operations")
}

// StartFlushInterval begins a ticker that calls Flush every flush_interval
// until ctx is cancelled. Cancellation breaks the loop without a final
// flush; callers that need one must call Flush explicitly beforehand.
func (a *Agent) StartFlushInterval(ctx context.Context) {
	a.scheduler.Start(ctx)
}

// StopFlushInterval stops the interval ticker started by StartFlushInterval.
func (a *Agent) StopFlushInterval() {
	a.scheduler.Stop()
}

// Builder constructs an Agent from options, applying the defaults from
// spec §6 and validating the endpoint-resolution rule from spec §4.5.
type Builder struct {
	token             string
	endpoint          string
	targetID          string
	bufferSize        int
	connectTimeout    time.Duration
	requestTimeout    time.Duration
	acceptInvalidCert bool
	flushInterval     time.Duration
	maxRetries        uint64
	userAgent         string
	pinnedSchema      *ast.Schema
	httpClient        *http.Client
	logger            *common.ContextLogger
}

// NewBuilder creates a Builder seeded with spec-mandated defaults:
// buffer_size=1000, connect_timeout=5s, request_timeout=15s,
// accept_invalid_certs=false, flush_interval=5s, max_retries=3.
func NewBuilder() *Builder {
	return &Builder{
		endpoint:       DefaultEndpoint,
		bufferSize:     1000,
		connectTimeout: 5 * time.Second,
		requestTimeout: 15 * time.Second,
		flushInterval:  5 * time.Second,
		maxRetries:     3,
	}
}

// Token sets the registry access token used for authorization.
func (b *Builder) Token(token string) *Builder {
	b.token = token
	return b
}

// Endpoint overrides the usage-ingestion endpoint. Empty values are ignored,
// leaving the default in place.
func (b *Builder) Endpoint(endpoint string) *Builder {
	if endpoint != "" {
		b.endpoint = endpoint
	}
	return b
}

// TargetID sets the target id appended to the endpoint for non-legacy
// tokens (required) or optionally for legacy hvo1/ tokens.
func (b *Builder) TargetID(targetID string) *Builder {
	b.targetID = targetID
	return b
}

// BufferSize sets the post-push queue length that triggers an asynchronous
// flush.
func (b *Builder) BufferSize(size int) *Builder {
	b.bufferSize = size
	return b
}

// ConnectTimeout sets the connect-phase timeout for the shipping HTTP client.
func (b *Builder) ConnectTimeout(d time.Duration) *Builder {
	b.connectTimeout = d
	return b
}

// RequestTimeout sets the overall request timeout for the shipping HTTP
// client.
func (b *Builder) RequestTimeout(d time.Duration) *Builder {
	b.requestTimeout = d
	return b
}

// AcceptInvalidCerts disables TLS certificate verification for the shipping
// HTTP client. Defaults to false.
func (b *Builder) AcceptInvalidCerts(v bool) *Builder {
	b.acceptInvalidCert = v
	return b
}

// FlushInterval sets the period of the periodic flusher.
func (b *Builder) FlushInterval(d time.Duration) *Builder {
	b.flushInterval = d
	return b
}

// MaxRetries sets the maximum shipping retry attempts.
func (b *Builder) MaxRetries(n uint64) *Builder {
	b.maxRetries = n
	return b
}

// UserAgent overrides the User-Agent header sent with every shipment.
func (b *Builder) UserAgent(ua string) *Builder {
	b.userAgent = ua
	return b
}

// PinnedSchema sets the schema used for every ExecutionReport that does not
// carry its own.
func (b *Builder) PinnedSchema(schema *ast.Schema) *Builder {
	b.pinnedSchema = schema
	return b
}

// Logger overrides the structured logger used by the agent and its
// dependents.
func (b *Builder) Logger(logger *common.ContextLogger) *Builder {
	b.logger = logger
	return b
}

// HTTPClient overrides the HTTP client used for shipping reports. When not
// set, Build constructs one from ConnectTimeout/RequestTimeout/AcceptInvalidCerts.
func (b *Builder) HTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// Build validates options and constructs the Agent, or returns a
// configuration error.
func (b *Builder) Build() (*Agent, error) {
	if b.token == "" {
		return nil, ErrMissingToken
	}
	if b.endpoint == "" {
		return nil, ErrMissingEndpoint
	}

	endpoint, err := resolveEndpoint(b.endpoint, b.token, b.targetID)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = common.AgentLogger("usage-agent")
	}

	userAgent := b.userAgent
	if userAgent == "" {
		userAgent = version.DefaultUserAgent()
	}

	processor := operation.New()
	reportBuilder := report.NewBuilder(processor, b.pinnedSchema, logger)

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: b.requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: b.connectTimeout}).DialContext,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: b.acceptInvalidCert,
				},
			},
		}
	}

	ship := shipper.New(shipper.Config{
		Endpoint:   endpoint,
		Token:      b.token,
		UserAgent:  userAgent,
		MaxRetries: b.maxRetries,
		HTTPClient: httpClient,
	}, logger)

	a := &Agent{
		buffer:     buffer.New[report.ExecutionReport](),
		builder:    reportBuilder,
		shipper:    ship,
		bufferSize: b.bufferSize,
		logger:     logger,
	}
	a.scheduler = worker.NewIntervalScheduler(b.flushInterval, func(ctx context.Context) {
		a.Flush(ctx)
	}, logger)

	return a, nil
}

// resolveEndpoint implements the token-prefix endpoint-resolution rule from
// spec §4.5: a legacy hvo1/-prefixed token MAY carry a target_id, appended
// to the endpoint path when present; any other token (including hvu1/,
// hvp1/, and unrecognized prefixes) REQUIRES a target_id.
func resolveEndpoint(endpoint, token, targetID string) (string, error) {
	if isLegacyToken(token) {
		if targetID == "" {
			return endpoint, nil
		}
		validated, err := validateTargetID(targetID)
		if err != nil {
			return "", err
		}
		return endpoint + "/" + validated, nil
	}

	if targetID == "" {
		return "", ErrMissingTargetID
	}
	validated, err := validateTargetID(targetID)
	if err != nil {
		return "", err
	}
	return endpoint + "/" + validated, nil
}

func isLegacyToken(token string) bool {
	return len(token) >= len(legacyTokenPrefix) && token[:len(legacyTokenPrefix)] == legacyTokenPrefix
}

func validateTargetID(targetID string) (string, error) {
	if targetIDSlugRegex.MatchString(targetID) {
		return targetID, nil
	}
	if _, err := uuid.Parse(targetID); err == nil {
		return targetID, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTargetID, targetID)
}
