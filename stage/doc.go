// Package stage implements a staged snapshot transport over a key-value store.
//
// A writer application opens a named dataset, and in each step it defines
// typed variables and puts one block per variable per rank. EndStep publishes
// the blocks, then a commit manifest for the rank. A reader application opens
// the same dataset. Its BeginStep waits until every writer rank has committed
// the step, and its gets are deferred until PerformGets or EndStep.
//
// Key layout in the store:
//
//	{dataset}.header                          {writers, generation}
//	{dataset}.{gen}.{step}.var.{name}.{rank}  block record
//	{dataset}.{gen}.{step}.commit.{rank}      commit manifest
//
// Block records are MessagePack maps carrying the element kind and count, the
// writer rank, an xxh3 checksum of the uncompressed payload, and the payload,
// optionally lz4-compressed.
//
// Two stores are provided: MemoryStore for coupling within a single process,
// and NATSStore backed by a JetStream KV bucket for coupling across processes.
//
// Example:
//
//	tr := stage.NewTransport(stage.NewMemoryStore(), stage.WithCompression(true))
//	eng, err := tr.Open(ctx, "rendezvous", types.ModeWrite, group)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	_ = eng.BeginStep(ctx)
//	_ = eng.DefineVariable("cuts", types.KindFloat64, len(cuts))
//	_ = stage.Put(eng, "cuts", cuts)
//	_ = eng.EndStep(ctx)
package stage
