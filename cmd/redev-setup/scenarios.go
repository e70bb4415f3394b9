package main

import (
	"context"
	"fmt"

	"github.com/cwsmith/redev"
	"github.com/cwsmith/redev/internal/logging"
	"github.com/cwsmith/redev/partition"
	"github.com/cwsmith/redev/types"
)

// scenario is one partition exchange run by both applications.
type scenario struct {
	name string

	// owned is the rendezvous application's partition.
	owned func() (redev.Partition, error)

	// empty is the participant application's partition before the exchange.
	empty func() (redev.Partition, error)

	// verify checks the participant's partition after the exchange.
	verify func(redev.Partition) error
}

var scenarios = []scenario{
	{
		name: "rcb",
		owned: func() (redev.Partition, error) {
			// Root cut at x=0, then y=0.5 on the low side and y=0.75 on the high side.
			return partition.NewRCB(2, []int32{0, 1, 2, 3}, []float64{0, 0.5, 0.75})
		},
		empty: func() (redev.Partition, error) {
			return partition.NewRCB(2, nil, nil)
		},
		verify: func(p redev.Partition) error {
			rcb, ok := p.(*partition.RCB)
			if !ok {
				return fmt.Errorf("unexpected partition %T", p)
			}

			return expectRanks(map[[2]float64]int32{
				{-0.5, 0.1}: 0,
				{-0.5, 0.9}: 1,
				{0.1, 0.1}:  2,
				{0.1, 0.9}:  3,
			}, func(k [2]float64) (int32, error) { return rcb.RankForKey(k[:]) })
		},
	},
	{
		name: "class",
		owned: func() (redev.Partition, error) {
			return partition.NewClass([]int32{0, 1, 2, 3}, []int32{2, 1, 0, 3})
		},
		empty: func() (redev.Partition, error) {
			return partition.NewClass(nil, nil)
		},
		verify: func(p redev.Partition) error {
			class, ok := p.(*partition.Class)
			if !ok {
				return fmt.Errorf("unexpected partition %T", p)
			}

			return expectRanks(map[int32]int32{0: 2, 1: 1, 2: 0, 3: 3}, class.RankForKey)
		},
	},
}

func expectRanks[K comparable](want map[K]int32, lookup func(K) (int32, error)) error {
	for key, rank := range want {
		got, err := lookup(key)
		if err != nil {
			return fmt.Errorf("lookup %v: %w", key, err)
		}
		if got != rank {
			return fmt.Errorf("key %v routed to rank %d, expected %d", key, got, rank)
		}
	}

	return nil
}

// datasetName gives every scenario of a run its own dataset, so a reader
// never picks up the previous scenario's records.
func datasetName(base, group, scenario string) string {
	return fmt.Sprintf("%s-%s-%s", base, group, scenario)
}

func runScenarios(
	ctx context.Context,
	role redev.Role,
	s settings,
	group types.Group,
	transport redev.Transport,
	collector types.MetricsCollector,
	base types.Logger,
) error {
	logger := logging.WithFields(base, "rank", s.rank, "role", role.String())

	for _, sc := range scenarios {
		build := sc.empty
		if role == redev.RoleRendezvous {
			build = sc.owned
		}
		ptn, err := build()
		if err != nil {
			return fmt.Errorf("%s scenario: %w", sc.name, err)
		}

		cfg := s.cfg
		cfg.Dataset = datasetName(s.cfg.Dataset, s.group, sc.name)

		c, err := redev.NewCoupler(&cfg, group, transport, ptn, role,
			redev.WithLogger(base),
			redev.WithMetrics(collector),
		)
		if err != nil {
			return fmt.Errorf("%s scenario: %w", sc.name, err)
		}
		if err := c.Setup(ctx); err != nil {
			return fmt.Errorf("%s scenario: %w", sc.name, err)
		}

		if role == redev.RoleParticipant {
			if err := sc.verify(ptn); err != nil {
				return fmt.Errorf("%s scenario: %w", sc.name, err)
			}
		}
		logger.Info("scenario complete", "scenario", sc.name, "dataset", cfg.Dataset)
	}

	return nil
}
