package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := Conflict("name %q already in use", "bob")
	wrapped := fmt.Errorf("join: %w", err)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, `name "bob" already in use`, PublicMessage(wrapped))
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := Internal(cause, "insert lobby")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal server error", PublicMessage(err))
	assert.Nil(t, Internal(nil, "noop"))
}

func TestInternalKeepsClassified(t *testing.T) {
	err := NotFound("lobby not found")
	assert.Same(t, err, Internal(err, "get lobby"))
}

func TestUnclassifiedIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "exhausted", KindExhausted.String())
}
