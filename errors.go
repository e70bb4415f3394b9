package redev

import "github.com/cwsmith/redev/types"

// Sentinel errors, re-exported from the types package.
var (
	ErrConfiguration      = types.ErrConfiguration
	ErrVersionMismatch    = types.ErrVersionMismatch
	ErrTransport          = types.ErrTransport
	ErrUnknownKey         = types.ErrUnknownKey
	ErrMalformedPartition = types.ErrMalformedPartition
	ErrInvalidConfig      = types.ErrInvalidConfig
	ErrNilDependency      = types.ErrNilDependency
	ErrAlreadySetup       = types.ErrAlreadySetup
)

// Structured errors returned by Setup.
type (
	VersionMismatchError = types.VersionMismatchError
	StageError           = types.StageError
)
