package sparql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidIRIError(t *testing.T) {
	err := error(&InvalidIRIError{Value: 42, Position: "subject", Reason: "not a string"})

	assert.EqualError(t, err, `invalid subject IRI "42": not a string`)
	assert.ErrorIs(t, err, ErrInvalidIRI)
	assert.NotErrorIs(t, err, ErrInvalidInput)

	var iriErr *InvalidIRIError
	require.ErrorAs(t, fmt.Errorf("prepare: %w", err), &iriErr)
	assert.Equal(t, "subject", iriErr.Position)
}

func TestInvalidInputError(t *testing.T) {
	err := InputErrorf("no triple position given for %q", "ex:a")

	assert.EqualError(t, err, `invalid input: no triple position given for "ex:a"`)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInvalidQueryError(t *testing.T) {
	cause := errors.New("expected '}'")
	err := error(&InvalidQueryError{Query: "ASK {", Err: cause})

	assert.EqualError(t, err, "invalid SPARQL query: expected '}'")
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.ErrorIs(t, err, cause)

	upd := &InvalidQueryError{Update: true}
	assert.EqualError(t, upd, "invalid SPARQL update")
	assert.ErrorIs(t, upd, ErrInvalidQuery)
}
