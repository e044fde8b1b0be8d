package chain

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// ErrUnavailable marks an RPC endpoint that refused the connection. It is an
// expected condition when no local development node is running.
var ErrUnavailable = errors.New("chain rpc unavailable")

// Classify wraps err with ErrUnavailable when the endpoint refused the
// connection and returns other errors unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionRefused(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// IsConnectionRefused reports whether err was caused by a refused TCP
// connection.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}
