package redev

import "github.com/cwsmith/redev/types"

// Re-export types from the types package.
//
// Internal packages depend on types without depending on the root package,
// while users get redev.State, redev.Partition and so on.
type (
	State     = types.State
	Role      = types.Role
	Mode      = types.Mode
	Kind      = types.Kind
	Variable  = types.Variable
	BlockInfo = types.BlockInfo
)

// Re-export interfaces from the types package for convenience.
type (
	Partition        = types.Partition
	Digester         = types.Digester
	Engine           = types.Engine
	Transport        = types.Transport
	Group            = types.Group
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Router is a partition answering key → rank lookups.
type Router[K any] = types.Router[K]

// Re-export State constants from the types package.
const (
	StateCreated            = types.StateCreated
	StateVersionChecked     = types.StateVersionChecked
	StatePartitionExchanged = types.StatePartitionExchanged
	StateReady              = types.StateReady
	StateFailed             = types.StateFailed
)

// Re-export Role constants from the types package.
const (
	RoleParticipant = types.RoleParticipant
	RoleRendezvous  = types.RoleRendezvous
)

// VarBuildID is the staged variable carrying the rendezvous build identifier.
const VarBuildID = "build-id"
