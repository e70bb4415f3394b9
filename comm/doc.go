// Package comm provides collective process groups and the typed broadcast
// primitive built on them.
//
// A group is a fixed set of ranks 0..Size()-1 that issue collectives in the
// same order. Two implementations are provided:
//
//   - Local: in-process members sharing a hub, one goroutine per rank
//   - NATS: one OS process per rank, broadcasts carried by a JetStream KV bucket
//
// The typed primitive Broadcast[T] moves a fixed-length buffer of int32,
// int64, uint64, float64 or complex128 from a root rank to all ranks:
//
//	world := comm.NewLocalWorld(4)
//	// on every rank r:
//	cuts := make([]float64, 3)
//	err := comm.Broadcast(ctx, world[r], 0, cuts)
//
// Groups are borrowed by their users: neither the coupler nor the partitions
// ever close a group.
package comm
