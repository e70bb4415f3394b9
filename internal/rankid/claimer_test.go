package rankid

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	redevtest "github.com/cwsmith/redev/testing"
	"github.com/cwsmith/redev/types"
)

func TestClaimer_Sequential(t *testing.T) {
	_, nc := redevtest.StartEmbeddedNATS(t)
	kv := redevtest.CreateJetStreamKV(t, nc, "rank-seq")

	for want := range 3 {
		c := NewClaimer(kv, "app", 3, nil)
		require.Equal(t, -1, c.Rank())

		rank, err := c.Claim(t.Context())
		require.NoError(t, err)
		require.Equal(t, want, rank)
		require.Equal(t, want, c.Rank())

		// A second claim keeps the first rank.
		again, err := c.Claim(t.Context())
		require.NoError(t, err)
		require.Equal(t, want, again)
	}

	_, err := NewClaimer(kv, "app", 3, nil).Claim(t.Context())
	require.ErrorIs(t, err, ErrNoAvailableRank)

	// Another group name has its own ranks.
	rank, err := NewClaimer(kv, "other", 3, nil).Claim(t.Context())
	require.NoError(t, err)
	require.Equal(t, 0, rank)
}

func TestClaimer_Concurrent(t *testing.T) {
	ns, _ := redevtest.StartEmbeddedNATS(t)

	const size = 5
	ranks := make([]int, size)
	errs := make([]error, size)

	var wg sync.WaitGroup
	for i := range size {
		conn, err := redevtest.Connect(t, ns)
		require.NoError(t, err)
		if i == 0 {
			redevtest.CreateJetStreamKV(t, conn, "rank-concurrent")
		}
		kv := redevtest.OpenJetStreamKV(t, conn, "rank-concurrent")

		wg.Add(1)
		go func() {
			defer wg.Done()
			ranks[i], errs[i] = NewClaimer(kv, "app", size, nil).Claim(t.Context())
		}()
	}
	wg.Wait()

	seen := make(map[int]bool, size)
	for i, err := range errs {
		require.NoError(t, err, "process %d", i)
		require.False(t, seen[ranks[i]], "rank %d claimed twice", ranks[i])
		seen[ranks[i]] = true
	}
	require.Len(t, seen, size)
}

func TestClaimer_Cancelled(t *testing.T) {
	_, nc := redevtest.StartEmbeddedNATS(t)
	kv := redevtest.CreateJetStreamKV(t, nc, "rank-cancel")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := NewClaimer(kv, "app", 2, nil).Claim(ctx)
	require.ErrorIs(t, err, types.ErrTransport)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClaimer_Reserve(t *testing.T) {
	_, nc := redevtest.StartEmbeddedNATS(t)
	kv := redevtest.CreateJetStreamKV(t, nc, "rank-reserve")

	c := NewClaimer(kv, "app", 3, nil)
	require.NoError(t, c.Reserve(t.Context(), 1))
	require.Equal(t, 1, c.Rank())
	require.NoError(t, c.Reserve(t.Context(), 1), "reserving the held rank again is a no-op")
	require.ErrorIs(t, c.Reserve(t.Context(), 2), types.ErrConfiguration)

	// A second launch of the same rank under the same name.
	err := NewClaimer(kv, "app", 3, nil).Reserve(t.Context(), 1)
	require.ErrorIs(t, err, ErrRankTaken)

	require.ErrorIs(t, NewClaimer(kv, "app", 3, nil).Reserve(t.Context(), 3), types.ErrConfiguration)

	// Claiming skips the reserved rank.
	rank, err := NewClaimer(kv, "app", 3, nil).Claim(t.Context())
	require.NoError(t, err)
	require.Equal(t, 0, rank)
	rank, err = NewClaimer(kv, "app", 3, nil).Claim(t.Context())
	require.NoError(t, err)
	require.Equal(t, 2, rank)
}
