package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/stretchr/testify/assert"
)

type ownerMismatch struct{}

func (err *ownerMismatch) Error() string {
	return "product belongs to another vendor"
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "jpg", OrDefault("", "jpg"))
	assert.Equal(t, "png", OrDefault("png", "jpg"))
	assert.Equal(t, 400, OrDefault(0, 400))
}

func TestMust(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		Must(error(nil))
	})
	t.Run("non-nil error", func(t *testing.T) {
		assert.Panics(t, func() {
			Must(error(&ownerMismatch{}))
		})
	})
	t.Run("nil typed pointer", func(t *testing.T) {
		var err *ownerMismatch
		Must(err)
	})
	t.Run("value passthrough", func(t *testing.T) {
		f := func() (int, error) { return 42, nil }
		assert.Equal(t, 42, Must1(f()))
	})
}

var sentinelError = errors.New("sentinel")

func TestRecoverPanicAsError(t *testing.T) {
	t.Run("no panic, error", func(t *testing.T) {
		f := func() (err error) {
			defer RecoverPanicAsError(&err)
			return sentinelError
		}
		assert.True(t, errors.Is(f(), sentinelError))
	})
	t.Run("panic, no error", func(t *testing.T) {
		f := func() (err error) {
			defer RecoverPanicAsError(&err)
			panic("blerp")
		}
		err := f()
		var asOops *oops.Error
		assert.ErrorContains(t, err, "blerp")
		assert.True(t, errors.As(err, &asOops))
	})
	t.Run("panic, error", func(t *testing.T) {
		f := func() (err error) {
			defer RecoverPanicAsError(&err)
			err = sentinelError
			panic("blerp")
		}
		err := f()
		assert.ErrorContains(t, err, "blerp")
		assert.ErrorContains(t, err, "sentinel")
		assert.True(t, errors.Is(err, sentinelError))
	})
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ErrSleepInterrupted, SleepContext(ctx, time.Hour))
	assert.Nil(t, SleepContext(context.Background(), time.Millisecond))
}
