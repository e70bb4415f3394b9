package types

import "context"

// Mode is the access mode of a staged dataset.
type Mode int

const (
	// ModeRead opens a dataset for read-many access.
	ModeRead Mode = iota

	// ModeWrite opens a dataset for write-once access.
	ModeWrite
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Kind is the element type of a staged variable.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt32
	KindInt64
	KindUint64
	KindFloat64
	KindComplex128
	KindString
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat64:
		return "float64"
	case KindComplex128:
		return "complex128"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// Variable describes a typed variable defined in a step.
type Variable struct {
	Name  string
	Kind  Kind
	Count int
}

// BlockInfo describes one contiguous block written for a variable.
//
// Each writer rank contributes at most one block per variable per step, so
// the block ID is the writer's rank.
type BlockInfo struct {
	BlockID int
	Count   int
}

// Engine is an open staged dataset session.
//
// Steps are the synchronization primitive between the two applications: a
// reader's BeginStep blocks until every writer rank has ended the matching
// step. Within a step, writes are buffered until EndStep and reads are
// deferred until PerformGets.
//
// Engines are used from a single goroutine (one per rank) and are not safe
// for concurrent use.
type Engine interface {
	// Mode returns the access mode the dataset was opened with.
	Mode() Mode

	// CurrentStep returns the step in progress, or the last ended step.
	CurrentStep() int64

	// BeginStep starts the next step.
	BeginStep(ctx context.Context) error

	// EndStep ends the current step, publishing buffered blocks in write mode.
	EndStep(ctx context.Context) error

	// DefineVariable declares a typed variable with count elements (write mode).
	DefineVariable(name string, kind Kind, count int) error

	// InquireVariable looks up a variable. In read mode the lookup covers the
	// variables committed by the writers for the current step.
	InquireVariable(name string) (Variable, bool)

	// PutBlock buffers an encoded payload for a defined variable.
	PutBlock(name string, kind Kind, count int, payload []byte) error

	// BlocksInfo lists the blocks available for a variable in the current step.
	BlocksInfo(name string) ([]BlockInfo, error)

	// SetBlockSelection selects the block a subsequent GetBlock reads.
	SetBlockSelection(name string, blockID int) error

	// GetBlock schedules a deferred read of the selected block. decode is
	// invoked with the decoded payload during PerformGets.
	GetBlock(name string, kind Kind, decode func(payload []byte) error) error

	// PerformGets executes all deferred reads.
	PerformGets(ctx context.Context) error

	// Close releases the session. No further steps may be taken.
	Close(ctx context.Context) error
}

// Transport opens staged datasets.
type Transport interface {
	// Open opens the named dataset.
	//
	// The call is collective over group: every rank opens its own session.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - name: Dataset identifier shared by both applications
	//   - mode: ModeWrite on the rendezvous side, ModeRead on participants
	//   - group: Local process group
	//
	// Returns:
	//   - Engine: Open session
	//   - error: ErrTransport on failure
	Open(ctx context.Context, name string, mode Mode, group Group) (Engine, error)
}
