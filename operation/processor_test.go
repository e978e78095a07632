package operation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchema = `
type Query {
	me: User
}

type User {
	id: ID!
	name: String!
}
`

func TestProcessIdenticalBodiesHashEqual(t *testing.T) {
	schema, err := LoadSchema(testSchema)
	require.NoError(t, err)

	p := New()

	a, err := p.Process("{ me { id } }", "", schema)
	require.NoError(t, err)

	b, err := p.Process("{ me { id } }", "", schema)
	require.NoError(t, err)

	require.Equal(t, a.Hash, b.Hash)
}

func TestProcessDifferentSelectionsHashDifferently(t *testing.T) {
	schema, err := LoadSchema(testSchema)
	require.NoError(t, err)

	p := New()

	a, err := p.Process("{ me { id } }", "", schema)
	require.NoError(t, err)

	b, err := p.Process("{ me { name } }", "", schema)
	require.NoError(t, err)

	require.NotEqual(t, a.Hash, b.Hash)
}

func TestProcessIntrospectionOnlyIsSkipped(t *testing.T) {
	schema, err := LoadSchema(testSchema)
	require.NoError(t, err)

	p := New()

	_, err = p.Process("{ __schema { types { name } } }", "", schema)
	require.True(t, errors.Is(err, ErrSkip))
}

func TestProcessCoordinatesIncludeParentType(t *testing.T) {
	schema, err := LoadSchema(testSchema)
	require.NoError(t, err)

	p := New()

	result, err := p.Process("{ me { id name } }", "", schema)
	require.NoError(t, err)
	require.Contains(t, result.Coordinates, "User.id")
	require.Contains(t, result.Coordinates, "User.name")
	require.Contains(t, result.Coordinates, "Query.me")
}

func TestProcessLiteralArgumentsAreMasked(t *testing.T) {
	schema, err := LoadSchema(`
type Query {
	user(id: Int!): String
}
`)
	require.NoError(t, err)

	p := New()

	a, err := p.Process("{ user(id: 1) }", "", schema)
	require.NoError(t, err)

	b, err := p.Process("{ user(id: 2) }", "", schema)
	require.NoError(t, err)

	require.Equal(t, a.Hash, b.Hash)
}

func TestProcessInvalidOperationReturnsError(t *testing.T) {
	schema, err := LoadSchema(testSchema)
	require.NoError(t, err)

	p := New()

	_, err = p.Process("{ nonexistentField }", "", schema)
	require.Error(t, err)
}
