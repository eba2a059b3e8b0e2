package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct error", func(t *testing.T) {
		err := New(CodeValidation, "bad envelope")
		assert.True(t, HasCode(err, CodeValidation))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("service: %w", New(CodeNotFound, "application not found"))
		assert.True(t, HasCode(err, CodeNotFound))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to load application")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load application: connection reset", err.Error())
	assert.Nil(t, Wrap(nil, CodeInternal, "unused"))
}

func TestErrorIsComparesCodeAndMessage(t *testing.T) {
	err := fmt.Errorf("ctx: %w", New(CodeConflict, "certificate already issued"))

	require.ErrorIs(t, err, New(CodeConflict, "certificate already issued"))
	assert.NotErrorIs(t, err, New(CodeConflict, "other"))
	assert.NotErrorIs(t, err, New(CodeNotFound, "certificate already issued"))
}
