package errors

import "errors"

var (
	// ErrLockLost is returned when a distributed lock expired or was taken
	// over before its holder released it.
	ErrLockLost         = errors.New("lock lost")
	// ErrCircuitOpen is returned by a Breaker while its backend is
	// considered unhealthy.
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	// ErrConnectionClosed is returned by a bus that was closed.
	ErrConnectionClosed = errors.New("connection closed")
)
