package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"jobmate/matching-service/internal/apperr"
)

func TestNotFoundf_WrapsSentinel(t *testing.T) {
	err := apperr.NotFoundf("job %s", "j-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "job j-1: not found", err.Error())
}

func TestComputationError_Unwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("runForJob: %w", &apperr.ComputationError{JobID: "j-1", Err: cause})

	assert.True(t, apperr.IsComputation(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "job j-1")
}

func TestIsValidation(t *testing.T) {
	assert.True(t, apperr.IsValidation(fmt.Errorf("create: %w", apperr.Invalid("groupId is required"))))
	assert.False(t, apperr.IsValidation(apperr.ErrNotFound))
}
