package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the redev library.
//
// Every failure surfaced by a partition, the transport or the coupler wraps one
// of these, so callers can branch with errors.Is() regardless of how much
// context was added on the way up. External errors (NATS, codec) are wrapped
// with fmt.Errorf("%s: %w", msg, err) and tagged with ErrTransport.
var (
	// ErrConfiguration is returned for invalid construction parameters such as a
	// dimensionality outside [1,3], mismatched sequence lengths or empty arrays.
	ErrConfiguration = errors.New("configuration error")

	// ErrVersionMismatch is returned when the rendezvous and participant build
	// identifiers differ.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrTransport is returned when a staged transport or collective operation
	// fails: missing variable, unexpected block count, I/O or decode failure.
	ErrTransport = errors.New("transport error")

	// ErrUnknownKey is returned when a classification id has no owner.
	ErrUnknownKey = errors.New("unknown key")

	// ErrMalformedPartition is returned when partition arrays are inconsistent,
	// e.g. a cut array whose length is not one less than a power-of-two leaf count.
	ErrMalformedPartition = errors.New("malformed partition")
)

// Coupler errors - Public API errors returned by the setup orchestrator.
var (
	// ErrInvalidConfig is returned when the coupler configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNilDependency is returned when a required collaborator is nil.
	ErrNilDependency = errors.New("required dependency is nil")

	// ErrAlreadySetup is returned when Setup is called more than once.
	ErrAlreadySetup = errors.New("setup already performed")
)

// VersionMismatchError carries both build identifiers of a failed handshake.
type VersionMismatchError struct {
	Local  string
	Remote string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch: local build %q, rendezvous build %q", e.Local, e.Remote)
}

// Unwrap returns ErrVersionMismatch.
func (e *VersionMismatchError) Unwrap() error {
	return ErrVersionMismatch
}

// Setup stages reported by StageError.
const (
	StageOpen           = "open"
	StageVersionCheck   = "version check"
	StagePartitionWrite = "partition write"
	StagePartitionRead  = "partition read"
	StageBroadcast      = "broadcast"
	StageClose          = "close"
)

// StageError identifies which setup stage failed and why.
//
// Example:
//
//	var se *types.StageError
//	if errors.As(err, &se) {
//	    log.Fatalf("setup failed during %s: %v", se.Stage, se.Err)
//	}
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("redev setup failed during %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StageError) Unwrap() error {
	return e.Err
}
