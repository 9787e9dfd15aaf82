package oops

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	base := errors.New("connection reset")
	err := New(base, "failed to upload %s", "a.jpg")

	assert.Equal(t, "failed to upload a.jpg: connection reset", err.Error())
	assert.True(t, errors.Is(err, base))

	var oopsErr *Error
	if assert.True(t, errors.As(err, &oopsErr)) {
		if assert.NotEmpty(t, oopsErr.Stack) {
			assert.True(t, strings.HasSuffix(oopsErr.Stack[0].Function, "TestNew"), oopsErr.Stack[0].Function)
		}
	}
}

func TestNewWithoutWrapped(t *testing.T) {
	assert.Equal(t, "no rows", New(nil, "no rows").Error())
}

func TestStackMarshaler(t *testing.T) {
	assert.Nil(t, ZerologStackMarshaler(errors.New("plain")))
	assert.NotNil(t, ZerologStackMarshaler(New(nil, "traced")))
}
