// Package report implements the report builder: it folds a drained batch of
// execution reports through an operation processor into a single
// deduplicated wire-format report ready for the shipper.
package report

import (
	"errors"

	"github.com/vektah/gqlparser/v2/ast"

	"go.hive.dev/agent/common"
	"go.hive.dev/agent/operation"
)

// ExecutionReport is an immutable record of one operation's outcome, as
// produced by the host at operation completion and owned by the Buffer until
// drained.
type ExecutionReport struct {
	// Schema is a shared reference to a parsed schema document. It may be
	// nil when a single schema is pinned at agent construction instead.
	Schema *ast.Schema

	OperationBody string
	OperationName string

	ClientName    string
	ClientVersion string

	TimestampMS uint64
	DurationNS  uint64
	OK          bool
	Errors      uint

	PersistedDocumentHash string
}

// Report is the wire artifact sent to the usage-report ingestion endpoint.
type Report struct {
	Size       int                         `json:"size"`
	Map        map[string]OperationMapEntry `json:"map"`
	Operations []Operation                 `json:"operations"`
}

// OperationMapEntry is the deduplicated record for one distinct canonical
// operation form, keyed by its hash in Report.Map.
type OperationMapEntry struct {
	Operation     string   `json:"operation"`
	OperationName string   `json:"operationName,omitempty"`
	Fields        []string `json:"fields"`
}

// Operation is one per-execution entry referencing a Report.Map key.
type Operation struct {
	OperationMapKey       string    `json:"operationMapKey"`
	Timestamp             uint64    `json:"timestamp"`
	Execution             Execution `json:"execution"`
	Metadata              *Metadata `json:"metadata,omitempty"`
	PersistedDocumentHash string    `json:"persistedDocumentHash,omitempty"`
}

// Execution summarizes one operation's outcome.
type Execution struct {
	OK          bool   `json:"ok"`
	Duration    uint64 `json:"duration"`
	ErrorsTotal uint   `json:"errorsTotal"`
}

// Metadata carries optional client identification. It is omitted entirely
// when client name and version are both absent.
type Metadata struct {
	Client *ClientInfo `json:"client,omitempty"`
}

// ClientInfo identifies the calling client, if known.
type ClientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// Builder folds drained batches of ExecutionReport into a Report, using an
// operation.Processor to normalize and hash each one.
type Builder struct {
	processor    *operation.Processor
	pinnedSchema *ast.Schema
	logger       *common.ContextLogger
}

// NewBuilder creates a Report Builder. pinnedSchema is used for every
// ExecutionReport that does not carry its own Schema; it may be nil when
// every report is expected to carry one.
func NewBuilder(processor *operation.Processor, pinnedSchema *ast.Schema, logger *common.ContextLogger) *Builder {
	if processor == nil {
		processor = operation.New()
	}
	if logger == nil {
		logger = common.AgentLogger("report-builder")
	}
	return &Builder{processor: processor, pinnedSchema: pinnedSchema, logger: logger}
}

// Build folds reports, in order, into a single Report. Parse/validation
// errors drop only the offending report (logged at warn); introspection-only
// bodies are dropped silently at debug level. Neither ever fails the batch.
func (b *Builder) Build(reports []ExecutionReport) Report {
	result := Report{
		Map:        make(map[string]OperationMapEntry),
		Operations: make([]Operation, 0, len(reports)),
	}

	for _, r := range reports {
		schema := r.Schema
		if schema == nil {
			schema = b.pinnedSchema
		}

		normalized, err := b.processor.Process(r.OperationBody, r.OperationName, schema)
		if err != nil {
			if errors.Is(err, operation.ErrSkip) {
				b.logger.Debug("dropping operation (phase: processing): probably introspection query")
				continue
			}
			name := r.OperationName
			if name == "" {
				name = "anonymous"
			}
			b.logger.WithFields(map[string]interface{}{
				"operation_name": name,
				"error":          err.Error(),
			}).Warn("dropping operation (phase: processing)")
			continue
		}

		var metadata *Metadata
		if r.ClientName != "" || r.ClientVersion != "" {
			metadata = &Metadata{Client: &ClientInfo{Name: r.ClientName, Version: r.ClientVersion}}
		}

		result.Operations = append(result.Operations, Operation{
			OperationMapKey: normalized.Hash,
			Timestamp:       r.TimestampMS,
			Execution: Execution{
				OK:          r.OK,
				Duration:    r.DurationNS,
				ErrorsTotal: r.Errors,
			},
			Metadata:              metadata,
			PersistedDocumentHash: r.PersistedDocumentHash,
		})

		if _, exists := result.Map[normalized.Hash]; !exists {
			result.Map[normalized.Hash] = OperationMapEntry{
				Operation:     normalized.Operation,
				OperationName: r.OperationName,
				Fields:        normalized.Coordinates,
			}
		}

		result.Size++
	}

	return result
}
