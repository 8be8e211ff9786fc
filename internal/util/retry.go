package util

import (
	"context"
	"time"

	"github.com/juju/errors"
)

// Retry calls fn up to attempts times, waiting backoff between calls. Usage
// errors (errors.NotValid) are returned at once since repeating cannot fix
// them.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = fn(i)
		if err == nil || errors.Is(err, errors.NotValid) || i == attempts {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
