package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesKindChain(t *testing.T) {
	err := WrapError("coaching", "Generate", ErrUnknownRoutine, "no advice for gym", nil)

	assert.True(t, errors.Is(err, ErrUnknownRoutine))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrCandidateUnavailable))
	assert.True(t, IsNotFound(err))

	wrapped := fmt.Errorf("get advice: %w", err)
	assert.True(t, errors.Is(wrapped, ErrUnknownRoutine))
}

func TestDomainError_SameKindDifferentTaxonomy(t *testing.T) {
	canceled := WrapError("coaching", "Generate", ErrCanceled, "canceled", context.Canceled)

	assert.True(t, errors.Is(canceled, context.Canceled))
	assert.True(t, errors.Is(canceled, ErrCanceled))
	assert.False(t, errors.Is(canceled, ErrSuperseded))
}

func TestDomainError_Error(t *testing.T) {
	err := WrapError("buddy", "Connect", ErrCandidateUnavailable, "candidate 2 is offline", nil)
	assert.Equal(t, "buddy.Connect: candidate 2 is offline", err.Error())

	inner := errors.New("boom")
	err = WrapError("streak", "Save", ErrInvalidState, "save failed", inner)
	assert.Equal(t, "streak.Save: save failed: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestClassification(t *testing.T) {
	warn := WrapError("streak", "Adjust", ErrInvalidRange, "clamped", nil)
	assert.True(t, IsWarning(warn))
	assert.True(t, IsValidation(warn))

	assert.False(t, IsWarning(ErrValidation))
	assert.True(t, IsValidation(ErrInvalidInput))
	assert.False(t, IsValidation(ErrNotFound))
}
