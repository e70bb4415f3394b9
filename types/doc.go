// Package types provides core type definitions and interfaces for the redev library.
//
// This package contains shared types that are used across multiple packages in the
// redev library. By keeping these types in a separate package, we avoid import cycles
// between the root redev package, the partition variants and the transport and
// collective implementations.
//
// Key types:
//   - Partition, Router: Partition capability set and key lookup
//   - Group: Collective process group (rank, size, broadcast)
//   - Transport, Engine: Staged snapshot transport
//   - State, Role, Mode, Kind: Enumerations
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
