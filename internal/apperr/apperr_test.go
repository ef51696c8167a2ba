package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindConflict:        http.StatusBadRequest,
		KindUnauthenticated: http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindUploadFailed:    http.StatusBadGateway,
		KindTimeout:         http.StatusGatewayTimeout,
		KindInternal:        http.StatusInternalServerError,
	}
	for k, want := range cases {
		require.Equal(t, want, k.Status(), k.String())
	}
}

func TestWrap_DeadlineBecomesTimeout(t *testing.T) {
	err := Wrap(KindUploadFailed, "x", fmt.Errorf("put object: %w", context.DeadlineExceeded))
	require.Equal(t, KindTimeout, err.Kind)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("signup: %w", Conflict("taken"))
	require.Equal(t, KindConflict, KindOf(wrapped))
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
}
