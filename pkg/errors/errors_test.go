package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Kinds(t *testing.T) {
	input := NewValidationError("co_aqi", "must be a finite number", "abc")
	assert.True(t, Is(input, ErrInvalidInput))
	assert.False(t, Is(input, ErrConfig))
	assert.Contains(t, input.Error(), "co_aqi")

	cfg := NewConfigError("stats[1].scale", "must be non-zero", 0.0)
	assert.True(t, Is(cfg, ErrConfig))
	assert.False(t, Is(cfg, ErrInvalidInput))
}

func TestMultiError_Unwrap(t *testing.T) {
	var m MultiError
	assert.Nil(t, m.ToError())

	m.Add(nil)
	m.Add(NewConfigError("categories", "duplicate label", "Brazil"))
	m.Add(New("other"))

	err := m.ToError()
	assert.Error(t, err)
	assert.True(t, Is(err, ErrConfig))
	assert.Contains(t, err.Error(), "multiple errors (2)")

	var verr *ValidationError
	assert.True(t, As(err, &verr))
	assert.Equal(t, "categories", verr.Field)
}

func TestMark(t *testing.T) {
	assert.Nil(t, Mark(nil, ErrLoad))

	base := New("file not found")
	marked := Mark(base, ErrLoad)
	assert.True(t, Is(marked, ErrLoad))
	assert.True(t, Is(marked, base))

	// already marked errors are returned untouched
	assert.Equal(t, marked, Mark(marked, ErrLoad))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ctx"))
	err := Wrapf(ErrNotReady, "mode %s", "classify")
	assert.True(t, Is(err, ErrNotReady))
	assert.Equal(t, "mode classify: model not ready", err.Error())
}
