package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	powermem "github.com/oceanbase/powermem/pkg/core"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "ErrNotFound",
			err:      powermem.ErrNotFound,
			expected: "memory not found",
		},
		{
			name:     "ErrInvalidConfig",
			err:      powermem.ErrInvalidConfig,
			expected: "invalid configuration",
		},
		{
			name:     "ErrConnectionFailed",
			err:      powermem.ErrConnectionFailed,
			expected: "connection failed",
		},
		{
			name:     "ErrEmbedderUnavailable",
			err:      powermem.ErrEmbedderUnavailable,
			expected: "embedder unavailable",
		},
		{
			name:     "ErrLLMUnavailable",
			err:      powermem.ErrLLMUnavailable,
			expected: "llm unavailable",
		},
		{
			name:     "ErrStoreWriteFailed",
			err:      powermem.ErrStoreWriteFailed,
			expected: "store write failed",
		},
		{
			name:     "ErrSubStoreNotActive",
			err:      powermem.ErrSubStoreNotActive,
			expected: "sub-store not active",
		},
		{
			name:     "ErrMigrationInProgress",
			err:      powermem.ErrMigrationInProgress,
			expected: "migration already in progress",
		},
		{
			name:     "ErrValidation",
			err:      powermem.ErrValidation,
			expected: "validation failed",
		},
		{
			name:     "ErrUnauthorized",
			err:      powermem.ErrUnauthorized,
			expected: "scope does not permit access",
		},
		{
			name:     "ErrDuplicateMemory",
			err:      powermem.ErrDuplicateMemory,
			expected: "duplicate memory detected",
		},
		{
			name:     "ErrLLMOperation",
			err:      powermem.ErrLLMOperation,
			expected: "llm operation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestMemoryErrorWrapsSentinel(t *testing.T) {
	wrapped := powermem.NewMemoryError("Search", powermem.ErrStoreUnavailable)
	assert.True(t, errors.Is(wrapped, powermem.ErrStoreUnavailable))
	assert.False(t, errors.Is(wrapped, powermem.ErrLLMUnavailable))
}

func TestMemoryError(t *testing.T) {
	originalErr := errors.New("original error")
	memErr := powermem.NewMemoryError("test_operation", originalErr)

	assert.Error(t, memErr)
	assert.Contains(t, memErr.Error(), "test_operation")
	assert.Contains(t, memErr.Error(), "original error")

	// Verify MemoryError structure
	var target *powermem.MemoryError
	if errors.As(memErr, &target) {
		assert.Equal(t, "test_operation", target.Op)
		assert.Equal(t, originalErr, target.Err)
	}
}

func TestMemoryErrorUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	memErr := powermem.NewMemoryError("test_operation", originalErr)

	unwrapped := errors.Unwrap(memErr)
	assert.Equal(t, originalErr, unwrapped)
}

func TestIsMemoryError(t *testing.T) {
	originalErr := errors.New("original error")
	memErr := powermem.NewMemoryError("test_operation", originalErr)

	var target *powermem.MemoryError
	assert.True(t, errors.As(memErr, &target))
	assert.Equal(t, "test_operation", target.Op)
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	var dims error = &powermem.DimensionMismatchError{Want: 1536, Got: 8}
	assert.True(t, errors.Is(dims, powermem.ErrValidation))
	assert.Contains(t, dims.Error(), "1536")

	var notActive error = &powermem.SubStoreNotActiveError{Name: "working"}
	assert.True(t, errors.Is(notActive, powermem.ErrSubStoreNotActive))
	assert.Contains(t, notActive.Error(), "working")

	var migrating error = &powermem.MigrationInProgressError{Name: "episodic"}
	assert.True(t, errors.Is(migrating, powermem.ErrMigrationInProgress))
	assert.Contains(t, migrating.Error(), "episodic")
}
