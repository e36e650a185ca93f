package orchestrate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.temporal.io/api/serviceerror"
)

func TestMapNotFound(t *testing.T) {
	err := mapNotFound("int-1", serviceerror.NewNotFound("workflow not found"))
	assert.ErrorIs(t, err, ErrInstanceNotFound)
	assert.Contains(t, err.Error(), "int-1")
}

func TestMapNotFoundPassesThroughOtherErrors(t *testing.T) {
	original := errors.New("connection refused")
	err := mapNotFound("int-1", original)
	assert.Equal(t, original, err)
	assert.False(t, errors.Is(err, ErrInstanceNotFound))
}

func TestMapNotFoundWrapped(t *testing.T) {
	wrapped := fmt.Errorf("signal failed: %w", serviceerror.NewNotFound("gone"))
	assert.ErrorIs(t, mapNotFound("int-1", wrapped), ErrInstanceNotFound)
}
