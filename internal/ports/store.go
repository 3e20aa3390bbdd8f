package ports

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound signals a plain miss: the key is absent, the store is fine.
var ErrNotFound = errors.New("key not found")

// TransientError wraps connectivity and timeout failures against the durable
// store. These are the only failures the circuit breaker counts.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is a connectivity-class store failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Store is the minimal key-value contract both the durable store and the
// local fallback implement. Get returns ErrNotFound on miss. Keys matches a
// glob pattern (Redis MATCH dialect; `*` crosses the `:` delimiter).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
}
