package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusCode_MapsEveryKind(t *testing.T) {
	cases := map[Kind]int{
		Unauthenticated: http.StatusUnauthorized,
		Forbidden:       http.StatusForbidden,
		Locked:          http.StatusForbidden,
		Validation:      http.StatusBadRequest,
		Conflict:        http.StatusConflict,
		NotFound:        http.StatusNotFound,
		RateLimited:     http.StatusTooManyRequests,
		Busy:            http.StatusServiceUnavailable,
		Internal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, StatusCode(kind), "kind %s", kind)
	}
}

func TestStatusCode_UnknownKindDefaultsToInternal(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, StatusCode(Kind("bogus")))
}

func TestWrap_CapturesUnderlyingErrorInDetailsOnly(t *testing.T) {
	underlying := errors.New("disk full")
	ae := Wrap(Internal, "", "could not save", underlying)

	require.Equal(t, "disk full", ae.Details)
	require.Contains(t, ae.Error(), "disk full")

	resp := ae.ToResponse()
	require.Equal(t, "could not save", resp.Message)
	require.NotContains(t, resp.Message, "disk full")
}

func TestAs_PassesThroughExistingAppError(t *testing.T) {
	original := NewValidation("bad_input", "invalid")
	require.Same(t, original, As(original))
}

func TestAs_WrapsPlainErrorAsInternal(t *testing.T) {
	ae := As(errors.New("boom"))
	require.Equal(t, Internal, ae.Kind)
	require.Equal(t, "boom", ae.Details)
}

func TestAs_NilReturnsNil(t *testing.T) {
	require.Nil(t, As(nil))
}

func TestNewNotFound_IncludesResourceName(t *testing.T) {
	ae := NewNotFound("package")
	require.Equal(t, NotFound, ae.Kind)
	require.Equal(t, "package not found", ae.Message)
}
