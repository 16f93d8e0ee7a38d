package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrJobRunning", ErrJobRunning},
		{"ErrNoJob", ErrNoJob},
		{"ErrEmbeddingUnavailable", ErrEmbeddingUnavailable},
		{"ErrLLMUnavailable", ErrLLMUnavailable},
		{"ErrServiceUnreachable", ErrServiceUnreachable},
		{"ErrModelNotFound", ErrModelNotFound},
		{"ErrWorkerCrashed", ErrWorkerCrashed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	err := WrapError(CodeModelNotFound, "model \"x\" not installed", errors.New("404"))

	assert.True(t, errors.Is(err, ErrModelNotFound))
	assert.False(t, errors.Is(err, ErrServiceUnreachable))

	wrapped := fmt.Errorf("embedding chunk 3: %w", err)
	assert.True(t, errors.Is(wrapped, ErrModelNotFound))
	assert.Equal(t, CodeModelNotFound, CodeOf(wrapped))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(CodeServiceUnreachable, "dial", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "SERVICE_UNREACHABLE")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestError_NoCause(t *testing.T) {
	err := NewError(CodeIndexCancelled, "stopped")
	assert.Equal(t, "[INDEX_CANCELLED] stopped", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeAskCancelled, CodeOf(ErrAskCancelled))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrServiceUnreachable, true},
		{ErrRequestTimeout, true},
		{ErrModelNotFound, false},
		{ErrNonLocalEndpointRejected, false},
		{errors.New("other"), false},
		{nil, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Retryable(tt.err), "%v", tt.err)
	}
}
