package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AldoManuel/juchifood/src/oops"
)

// Returns the provided value, or a default value if the input was zero.
func OrDefault[T comparable](v T, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func Must[E error](err E) {
	var zero E
	if any(err) != any(zero) {
		panic(err)
	}
}

func Must1[T any, E error](v T, err E) T {
	Must(err)
	return v
}

/*
Recover a panic and convert it to a returned error. Call it like so:

	func MyFunc() (err error) {
		defer utils.RecoverPanicAsError(&err)
	}

If an error was already set, it stays in the chain and the panic value is
folded into the message.
*/
func RecoverPanicAsError(err *error) {
	if r := recover(); r != nil {
		if *err != nil {
			*err = oops.New(*err, "panic recovered as error (panic value: %v)", r)
			return
		}

		var recoveredErr error
		if rerr, ok := r.(error); ok {
			recoveredErr = rerr
		} else {
			recoveredErr = fmt.Errorf("panic with value: %v", r)
		}
		*err = oops.New(recoveredErr, "panic recovered as error")
	}
}

var ErrSleepInterrupted = errors.New("sleep interrupted by context cancellation")

func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ErrSleepInterrupted
	case <-timer.C:
		return nil
	}
}
