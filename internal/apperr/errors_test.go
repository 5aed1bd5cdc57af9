package apperr_test

import (
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/apperr"
)

func TestIsMatchesByCode(t *testing.T) {
	err := apperr.NotFound("location lib-1 not found")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NotErrorIs(t, err, apperr.ErrUnregistered)

	wrapped := fmt.Errorf("resolve: %w", err)
	assert.ErrorIs(t, wrapped, apperr.ErrNotFound)
}

func TestTooFarError(t *testing.T) {
	err := errors.Wrap(apperr.TooFar(200.4, 50, "Main Library"), "check in")

	assert.ErrorIs(t, err, apperr.ErrTooFar)
	var tf *apperr.TooFarError
	require.ErrorAs(t, err, &tf)
	assert.InDelta(t, 200.4, tf.DistanceMeters, 1e-9)
	assert.Equal(t, 50, tf.AllowedRadius)
	assert.Equal(t, "Main Library", tf.LocationName)
	assert.Equal(t, apperr.CodeTooFar, apperr.CodeOf(err))
	assert.Contains(t, apperr.MessageOf(err), "200m away")
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Code
	}{
		{"nil", nil, ""},
		{"sentinel", apperr.ErrReplayDetected, apperr.CodeReplayDetected},
		{"wrapped", errors.Wrap(apperr.ErrExpired, "consume"), apperr.CodeExpired},
		{"foreign", errors.New("boom"), apperr.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.CodeOf(tt.err))
		})
	}
}

func TestMessageOfHidesInternalCause(t *testing.T) {
	err := apperr.Internal("insert entry", errors.New("pq: connection reset"))
	assert.Equal(t, "internal error", apperr.MessageOf(err))
	assert.Equal(t, "student already has a registered credential", apperr.MessageOf(apperr.ErrAlreadyRegistered))
}

func TestVerificationFamily(t *testing.T) {
	assert.True(t, apperr.CodeReplayDetected.Verification())
	assert.True(t, apperr.CodeExpired.Verification())
	assert.False(t, apperr.CodeTooFar.Verification())
	assert.False(t, apperr.CodeUnregistered.Verification())
}

func TestValidation(t *testing.T) {
	type input struct {
		Name   string `validate:"required"`
		Radius int    `validate:"gt=0"`
	}
	v := validator.New()

	err := apperr.Validation(v.Struct(input{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Contains(t, err.Error(), "field 'Name' is required")
	assert.Contains(t, err.Error(), "field 'Radius' must be greater than 0")

	assert.NoError(t, apperr.Validation(v.Struct(input{Name: "Hall", Radius: 10})))
}
