// Package redev couples two independently launched parallel applications
// through a one-shot rendezvous setup.
//
// One application (the rendezvous side) owns a domain partition: a recursive
// coordinate bisection tree or a classification id → rank map. The other
// application (the participant side) needs an identical copy to route data
// to the right ranks. Setup runs a version handshake over a staged transport,
// has rank 0 of each side write or read the partition, and broadcasts the
// result to every rank of the local process group.
//
// # Quick Start
//
// Rendezvous side, every rank:
//
//	ptn, _ := partition.NewRCB(2, []int32{0, 1, 2, 3}, []float64{0, 0.5, 0.75})
//	c, err := redev.NewCoupler(&cfg, group, transport, ptn, redev.RoleRendezvous)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := c.Setup(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Participant side, every rank:
//
//	ptn, _ := partition.NewRCB(2, nil, nil)
//	c, _ := redev.NewCoupler(&cfg, group, transport, ptn, redev.RoleParticipant)
//	if err := c.Setup(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	rank, _ := ptn.RankForKey([]float64{0.1, 0.1})
//
// # Architecture
//
// The coupler progresses through a state machine, exactly once:
//
//	Created → VersionChecked → PartitionExchanged → Ready
//
// Any failure moves it to Failed and Setup returns a *StageError naming the
// stage (open, version check, partition write/read, broadcast, close). There
// is no retry: setup is a fail-fast bring-up protocol.
//
// Collaborators are interfaces from the types package: a Group (package comm
// provides in-process and NATS implementations), a Transport (package stage,
// over memory or a JetStream KV bucket) and a Partition (package partition).
//
// See cmd/redev-setup for a complete two-process driver.
package redev
