package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/typerace/internal/errors"
)

func TestConvert(t *testing.T) {
	cause := stderrors.New("connection refused")

	tests := map[string]struct {
		err      error
		wantCode errors.Code
		wantHTTP int
	}{
		"unknown error should become internal": {
			err:      cause,
			wantCode: errors.CodeInternal,
			wantHTTP: http.StatusInternalServerError,
		},
		"wrapped typed error should keep its code": {
			err:      fmt.Errorf("start test: %w", errors.New(errors.CodeInvalidArgument)),
			wantCode: errors.CodeInvalidArgument,
			wantHTTP: http.StatusBadRequest,
		},
		"unavailable should map to 503": {
			err:      errors.New(errors.CodeUnavailable, errors.WithCause(cause)),
			wantCode: errors.CodeUnavailable,
			wantHTTP: http.StatusServiceUnavailable,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			e := errors.Convert(tt.err)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantHTTP, e.HTTPStatusCode())
		})
	}
}

func TestError_Options(t *testing.T) {
	cause := stderrors.New("boom")
	e := errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("connection %s is closed", "c1"),
		errors.WithCause(cause),
	)

	require.ErrorIs(t, e, cause)
	assert.Equal(t, "connection c1 is closed", e.Message)
	assert.True(t, errors.HasCode(fmt.Errorf("wrap: %w", e), errors.CodeFailedPrecondition))
	assert.False(t, errors.HasCode(cause, errors.CodeFailedPrecondition))
	assert.ErrorIs(t, e, errors.New(errors.CodeFailedPrecondition))

	st, ok := status.FromError(e)
	require.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
}
