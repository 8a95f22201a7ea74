package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "with field",
			err:      NewValidationError("min_funding_apy", "must be positive"),
			expected: "min_funding_apy: must be positive",
		},
		{
			name:     "without field",
			err:      &ValidationError{Message: "bad input"},
			expected: "bad input",
		},
		{
			name:     "formatted",
			err:      NewValidationErrorf("markets", "need at least %d markets", 1),
			expected: "markets: need at least 1 markets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestValidationError_As(t *testing.T) {
	err := NewValidationError("check_interval_ms", "must be positive")

	var validationErr *ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "check_interval_ms", validationErr.Field)
}
