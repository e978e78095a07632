// Package operation implements the operation processor: it takes a raw
// GraphQL operation body and a parsed schema and produces a normalized,
// stably-hashed representation suitable for deduplication in a usage report,
// or signals that the operation should be skipped (introspection-only) or
// rejected (parse/validation failure).
package operation

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// ErrSkip is returned by Process when the operation is meaningless for usage
// reporting purposes — currently, an operation whose every top-level
// selection targets the introspection root. Callers should treat it the same
// way io.EOF is treated: a normal, expected outcome rather than a failure.
var ErrSkip = errors.New("operation: skip (introspection-only)")

// introspectionFields are the meta-fields that make an operation
// introspection-only when they are the only top-level selections.
var introspectionFields = map[string]bool{
	"__schema":   true,
	"__type":     true,
	"__typename": true,
}

// literalMask replaces a literal argument value so that operations differing
// only by literal constants hash identically.
const literalMask = "<mask>"

// NormalizedOperation is the Processor's output for one body+schema pair.
type NormalizedOperation struct {
	// Operation is the canonical textual form used as the hashing input.
	Operation string
	// Hash is a stable, collision-resistant digest of Operation.
	Hash string
	// Coordinates is the sorted, de-duplicated list of schema-qualified
	// field/argument coordinates the operation touches.
	Coordinates []string
	// Name is the operation's own name, or "" if anonymous.
	Name string
}

// Processor normalizes operation bodies against a schema. It is pure over
// its inputs and holds no state visible to callers.
type Processor struct{}

// New creates an Operation Processor.
func New() *Processor {
	return &Processor{}
}

// LoadSchema parses a GraphQL SDL document into a schema usable by Process.
// It is a thin convenience wrapper, usable for example on the SDL text
// returned by the Supergraph Fetcher; hosts that already hold a parsed
// *ast.Schema can pass it to Process directly.
func LoadSchema(sdl string) (*ast.Schema, error) {
	return gqlparser.LoadSchema(&ast.Source{Name: "schema", Input: sdl})
}

// Process normalizes body against schema, selecting the operation named
// operationName when the document defines more than one. It returns
// ErrSkip for introspection-only bodies, and a non-nil error for parse,
// selection, or validation failures.
func (p *Processor) Process(body, operationName string, schema *ast.Schema) (*NormalizedOperation, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "operation", Input: body})
	if err != nil {
		return nil, fmt.Errorf("operation: parse failed: %w", err)
	}

	op, err := selectOperation(doc, operationName)
	if err != nil {
		return nil, err
	}

	if schema != nil {
		if errs := validator.Validate(schema, doc); len(errs) > 0 {
			return nil, fmt.Errorf("operation: validation failed: %w", errs)
		}
	}

	if isIntrospectionOnly(op.SelectionSet) {
		return nil, ErrSkip
	}

	var sb strings.Builder
	writeOperation(&sb, op)
	canonical := sb.String()

	sum := sha256.Sum256([]byte(canonical))

	return &NormalizedOperation{
		Operation:   canonical,
		Hash:        hex.EncodeToString(sum[:]),
		Coordinates: coordinatesOf(op.SelectionSet),
		Name:        op.Name,
	}, nil
}

func selectOperation(doc *ast.QueryDocument, operationName string) (*ast.OperationDefinition, error) {
	if len(doc.Operations) == 0 {
		return nil, fmt.Errorf("operation: document defines no operations")
	}
	if operationName != "" {
		for _, op := range doc.Operations {
			if op.Name == operationName {
				return op, nil
			}
		}
		return nil, fmt.Errorf("operation: no operation named %q in document", operationName)
	}
	if len(doc.Operations) == 1 {
		return doc.Operations[0], nil
	}
	return nil, fmt.Errorf("operation: document defines multiple operations and none was selected")
}

func isIntrospectionOnly(selectionSet ast.SelectionSet) bool {
	if len(selectionSet) == 0 {
		return false
	}
	for _, sel := range selectionSet {
		field, ok := sel.(*ast.Field)
		if !ok || !introspectionFields[field.Name] {
			return false
		}
	}
	return true
}

// coordinatesOf walks a selection set collecting Type.field and
// Type.field.argument coordinates, sorted and de-duplicated.
func coordinatesOf(selectionSet ast.SelectionSet) []string {
	seen := make(map[string]bool)
	var coords []string
	var walk func(ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				parent := "Unknown"
				if s.ObjectDefinition != nil {
					parent = s.ObjectDefinition.Name
				}
				fieldCoord := parent + "." + s.Name
				if !seen[fieldCoord] {
					seen[fieldCoord] = true
					coords = append(coords, fieldCoord)
				}
				for _, arg := range s.Arguments {
					argCoord := fieldCoord + "." + arg.Name
					if !seen[argCoord] {
						seen[argCoord] = true
						coords = append(coords, argCoord)
					}
				}
				walk(s.SelectionSet)
			case *ast.InlineFragment:
				walk(s.SelectionSet)
			case *ast.FragmentSpread:
				if s.Definition != nil {
					walk(s.Definition.SelectionSet)
				}
			}
		}
	}
	walk(selectionSet)
	sort.Strings(coords)
	return coords
}

// writeOperation renders a deterministic canonical form of op: operation
// type and name, then the selection set with fields sorted by response key
// and literal argument values masked.
func writeOperation(sb *strings.Builder, op *ast.OperationDefinition) {
	sb.WriteString(string(op.Operation))
	if op.Name != "" {
		sb.WriteString(" ")
		sb.WriteString(op.Name)
	}
	writeSelectionSet(sb, op.SelectionSet)
}

func writeSelectionSet(sb *strings.Builder, set ast.SelectionSet) {
	if len(set) == 0 {
		return
	}

	rendered := make([]string, 0, len(set))
	for _, sel := range set {
		var inner strings.Builder
		writeSelection(&inner, sel)
		rendered = append(rendered, inner.String())
	}
	sort.Strings(rendered)

	sb.WriteString("{")
	sb.WriteString(strings.Join(rendered, ","))
	sb.WriteString("}")
}

func writeSelection(sb *strings.Builder, sel ast.Selection) {
	switch s := sel.(type) {
	case *ast.Field:
		key := s.Name
		if s.Alias != "" && s.Alias != s.Name {
			key = s.Alias + ":" + s.Name
		}
		sb.WriteString(key)
		writeArguments(sb, s.Arguments)
		writeSelectionSet(sb, s.SelectionSet)
	case *ast.InlineFragment:
		sb.WriteString("...on ")
		if s.TypeCondition != "" {
			sb.WriteString(s.TypeCondition)
		}
		writeSelectionSet(sb, s.SelectionSet)
	case *ast.FragmentSpread:
		sb.WriteString("...")
		sb.WriteString(s.Name)
	}
}

func writeArguments(sb *strings.Builder, args ast.ArgumentList) {
	if len(args) == 0 {
		return
	}

	sorted := make([]*ast.Argument, len(args))
	copy(sorted, args)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	sb.WriteString("(")
	for i, arg := range sorted {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(arg.Name)
		sb.WriteString(":")
		writeValue(sb, arg.Value)
	}
	sb.WriteString(")")
}

func writeValue(sb *strings.Builder, v *ast.Value) {
	if v == nil {
		return
	}
	switch v.Kind {
	case ast.Variable:
		sb.WriteString("$")
		sb.WriteString(v.Raw)
	case ast.ListValue:
		sb.WriteString("[")
		for i, child := range v.Children {
			if i > 0 {
				sb.WriteString(",")
			}
			writeValue(sb, child.Value)
		}
		sb.WriteString("]")
	case ast.ObjectValue:
		sorted := make(ast.ChildValueList, len(v.Children))
		copy(sorted, v.Children)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		sb.WriteString("{")
		for i, child := range sorted {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(child.Name)
			sb.WriteString(":")
			writeValue(sb, child.Value)
		}
		sb.WriteString("}")
	case ast.NullValue:
		sb.WriteString("null")
	default:
		// Scalar/enum literal: mask so that distinct literal constants
		// hash identically, per the usage-reporting contract.
		sb.WriteString(literalMask)
	}
}

