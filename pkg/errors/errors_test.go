package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	detailed := WithDetails(ErrResourceExhausted, "wheel exhausted", map[string]any{"resourceId": "wheel"})
	wrapped := fmt.Errorf("allocate: %w", detailed)

	assert.True(t, errors.Is(wrapped, ErrResourceExhausted))
	assert.False(t, errors.Is(wrapped, ErrProtectedDeletion))
	assert.Equal(t, "resource capacity exhausted", ErrResourceExhausted.Message)
	assert.Nil(t, ErrResourceExhausted.Details)
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	appErr := FromError(fmt.Errorf("load: %w", Clone(ErrNotFound, "session not found")))
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, "session not found", appErr.Message)

	internal := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, internal.Code)
	assert.ErrorIs(t, internal, sql.ErrConnDone)
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(cause, ErrNotReady.Code, ErrNotReady.Status, "database unreachable")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, "database unreachable: dial tcp: refused", err.Error())
}
