package types

// State represents the coupler setup state.
//
// States follow a strict progression, driven once per run by Setup():
//
//	StateCreated → StateVersionChecked → StatePartitionExchanged → StateReady
//
// Any failure moves the coupler to StateFailed. Ready and Failed are terminal.
type State int

const (
	// StateCreated is the initial state before Setup is called.
	StateCreated State = iota

	// StateVersionChecked indicates the build identifier handshake completed.
	StateVersionChecked

	// StatePartitionExchanged indicates rank 0 wrote or read the partition.
	StatePartitionExchanged

	// StateReady indicates every local rank holds the partition.
	StateReady

	// StateFailed indicates setup aborted. No recovery is attempted.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateVersionChecked:
		return "VersionChecked"
	case StatePartitionExchanged:
		return "PartitionExchanged"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Role selects which side of the rendezvous a process group plays.
type Role int

const (
	// RoleParticipant consumes the published partition.
	RoleParticipant Role = iota

	// RoleRendezvous owns and publishes the authoritative partition.
	RoleRendezvous
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RoleParticipant:
		return "participant"
	case RoleRendezvous:
		return "rendezvous"
	default:
		return "unknown"
	}
}

// Mode returns the transport access mode used by the role.
func (r Role) Mode() Mode {
	if r == RoleRendezvous {
		return ModeWrite
	}

	return ModeRead
}
