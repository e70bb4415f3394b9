// Package partition provides the two partition variants exchanged at rendezvous.
//
// RCB is a recursive coordinate bisection tree: N leaf ranks (N a power of two)
// and N-1 cut values stored as a complete binary tree in 1-based order, so
// logical node i lives at cuts[i-1] and its children are 2i and 2i+1. The
// axis compared at depth d is d mod dim.
//
// Class maps geometric model classification ids to owning ranks by exact match.
//
// Both variants serialize themselves into a staged transport step, read
// themselves back from one, and replicate themselves across a process group:
//
//	// rendezvous side, rank 0
//	ptn, _ := partition.NewRCB(2, []int32{0, 1, 2, 3}, []float64{0, 0.5, 0.75})
//	_ = ptn.Write(ctx, eng)
//
//	// participant side, every rank
//	ptn, _ := partition.NewRCB(2, nil, nil)
//	if group.Rank() == 0 {
//	    _ = ptn.Read(ctx, eng)
//	}
//	_ = ptn.Broadcast(ctx, group, 0)
//	rank, _ := ptn.RankForKey([]float64{0.1, 0.1}) // 2
//
// Partitions are not safe for concurrent mutation; after setup they are
// read-only and may be shared freely.
package partition

// Variable names shared by both applications.
const (
	VarRanks    = "ranks"
	VarCuts     = "cuts"
	VarClassIDs = "class-ids"
)
