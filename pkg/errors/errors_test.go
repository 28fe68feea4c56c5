package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessageFormatting(t *testing.T) {
	err := NewPolicyViolationError("plan allows 1 destination")
	assert.Equal(t, "POLICY_VIOLATION: plan allows 1 destination", err.Error())

	wrapped := WrapError(fmt.Errorf("dial tcp: refused"), ErrCodeConnectionFailed, "twitch unreachable", http.StatusBadGateway)
	assert.Contains(t, wrapped.Error(), "CONNECTION_FAILED")
	assert.Contains(t, wrapped.Error(), "caused by")
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := WrapError(cause, ErrCodeInternal, "something failed", http.StatusInternalServerError)
	assert.Equal(t, cause, err.Unwrap())
}

func TestWithContext(t *testing.T) {
	err := NewInvalidStateError("pipeline not initialized").
		WithContext("status", "idle").
		WithContext("user_id", "u1")

	assert.Equal(t, "idle", err.Context["status"])
	assert.Equal(t, "u1", err.Context["user_id"])
}

func TestGetAppErrorUnwrapsChain(t *testing.T) {
	app := NewPolicyViolationError("cloud hours exhausted")
	wrapped := fmt.Errorf("validate request: %w", app)

	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodePolicyViolation, got.Code)
	assert.Equal(t, http.StatusForbidden, got.HTTPStatus)
}

func TestGetAppErrorReturnsNilForPlainErrors(t *testing.T) {
	assert.Nil(t, GetAppError(fmt.Errorf("plain")))
	assert.Nil(t, GetAppError(nil))
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewInvalidInputError("x").HTTPStatus)
	assert.Equal(t, http.StatusNotFound, NewNotFoundError("destination").HTTPStatus)
	assert.Equal(t, http.StatusForbidden, NewPolicyViolationError("x").HTTPStatus)
	assert.Equal(t, http.StatusConflict, NewInvalidStateError("x").HTTPStatus)
	assert.Equal(t, http.StatusBadGateway, NewConnectionFailedError("x").HTTPStatus)
	assert.Equal(t, http.StatusTooManyRequests, NewRateLimitError().HTTPStatus)
}
