// Package natsutil classifies NATS errors for the transport and group layers.
package natsutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/cwsmith/redev/types"
)

// IsConnectivityError checks if an error is caused by connectivity issues.
//
// This includes NATS timeouts, connection refused, disconnections, etc.
//
// Kept in internal/natsutil to avoid importing NATS dependencies in types/ package.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if error indicates connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// Wrap tags a NATS error with types.ErrTransport and the failed operation.
//
// Connectivity failures are called out in the message, since a stalled or
// unreachable server is the most common cause of a setup hanging or aborting.
//
// Parameters:
//   - op: Operation description, e.g. "put rendezvous.header"
//   - err: NATS error (nil returns nil)
//
// Returns:
//   - error: Wrapped error matching both types.ErrTransport and err
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConnectivityError(err) {
		return fmt.Errorf("%w: %s: NATS connectivity: %w", types.ErrTransport, op, err)
	}

	return fmt.Errorf("%w: %s: %w", types.ErrTransport, op, err)
}
