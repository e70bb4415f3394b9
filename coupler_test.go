package redev

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cwsmith/redev/comm"
	"github.com/cwsmith/redev/internal/metrics"
	"github.com/cwsmith/redev/partition"
	"github.com/cwsmith/redev/stage"
	redevtest "github.com/cwsmith/redev/testing"
	"github.com/cwsmith/redev/types"
)

// side describes one application of a coupled run.
type side struct {
	role    Role
	world   []types.Group
	buildID string
	newPtn  func(rank int) Partition
	opts    []Option

	// configure adjusts the test config of every rank of the side.
	configure func(*Config)
}

func localWorld(size int) []types.Group {
	members := comm.NewLocalWorld(size)
	out := make([]types.Group, len(members))
	for i, m := range members {
		out[i] = m
	}

	return out
}

// couple runs both sides concurrently and returns per-rank setup errors and partitions.
func couple(t *testing.T, tr Transport, sides ...side) ([][]error, [][]Partition, [][]*Coupler) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	errs := make([][]error, len(sides))
	ptns := make([][]Partition, len(sides))
	couplers := make([][]*Coupler, len(sides))

	var wg sync.WaitGroup
	for s, sd := range sides {
		errs[s] = make([]error, len(sd.world))
		ptns[s] = make([]Partition, len(sd.world))
		couplers[s] = make([]*Coupler, len(sd.world))

		for r, g := range sd.world {
			wg.Add(1)
			go func() {
				defer wg.Done()

				cfg := TestConfig()
				if sd.configure != nil {
					sd.configure(&cfg)
				}
				ptn := sd.newPtn(r)
				opts := append([]Option{
					WithBuildID(sd.buildID),
					WithLogger(redevtest.NewTestLogger(t)),
				}, sd.opts...)

				c, err := NewCoupler(&cfg, g, tr, ptn, sd.role, opts...)
				if err != nil {
					errs[s][r] = err
					return
				}
				ptns[s][r], couplers[s][r] = ptn, c
				errs[s][r] = c.Setup(ctx)
			}()
		}
	}
	wg.Wait()

	return errs, ptns, couplers
}

func rcbSide(role Role, size int, buildID string) side {
	return side{
		role:    role,
		world:   localWorld(size),
		buildID: buildID,
		newPtn: func(int) Partition {
			if role == RoleRendezvous {
				p, _ := partition.NewRCB(2, []int32{0, 1, 2, 3}, []float64{0, 0.5, 0.75})
				return p
			}
			p, _ := partition.NewRCB(2, nil, nil)

			return p
		},
	}
}

func TestCoupler_SpatialScenario(t *testing.T) {
	tr := stage.NewTransport(stage.NewMemoryStore())
	errs, ptns, couplers := couple(t, tr,
		rcbSide(RoleRendezvous, 2, "abc123"),
		rcbSide(RoleParticipant, 3, "abc123"),
	)

	for s := range errs {
		for r, err := range errs[s] {
			require.NoError(t, err, "side %d rank %d", s, r)
			require.Equal(t, StateReady, couplers[s][r].State())
		}
	}

	want := ptns[0][0].(*partition.RCB)
	for r, p := range ptns[1] {
		got := p.(*partition.RCB)
		require.Equal(t, want.Digest(), got.Digest(), "participant rank %d", r)

		rank, err := got.RankForKey([]float64{0.1, 0.1})
		require.NoError(t, err)
		require.Equal(t, int32(2), rank, "participant rank %d", r)
	}
}

func TestCoupler_ClassScenario(t *testing.T) {
	tr := stage.NewTransport(stage.NewMemoryStore(), stage.WithCompression(true))
	newClass := func(role Role) func(int) Partition {
		return func(int) Partition {
			if role == RoleRendezvous {
				p, _ := partition.NewClass([]int32{0, 1, 2, 3}, []int32{2, 1, 0, 3})
				return p
			}
			p, _ := partition.NewClass(nil, nil)

			return p
		}
	}

	errs, ptns, _ := couple(t, tr,
		side{role: RoleRendezvous, world: localWorld(1), buildID: "abc123", newPtn: newClass(RoleRendezvous)},
		side{role: RoleParticipant, world: localWorld(2), buildID: "abc123", newPtn: newClass(RoleParticipant)},
	)
	for s := range errs {
		for r, err := range errs[s] {
			require.NoError(t, err, "side %d rank %d", s, r)
		}
	}

	for r, p := range ptns[1] {
		got := p.(*partition.Class)

		rank, err := got.RankForKey(0)
		require.NoError(t, err)
		require.Equal(t, int32(2), rank, "participant rank %d", r)

		rank, err = got.RankForKey(3)
		require.NoError(t, err)
		require.Equal(t, int32(3), rank, "participant rank %d", r)
	}
}

func TestCoupler_VersionMismatch(t *testing.T) {
	tr := stage.NewTransport(stage.NewMemoryStore())
	errs, ptns, couplers := couple(t, tr,
		rcbSide(RoleRendezvous, 1, "abc123"),
		rcbSide(RoleParticipant, 2, "def456"),
	)

	require.NoError(t, errs[0][0])

	for r, err := range errs[1] {
		require.ErrorIs(t, err, ErrVersionMismatch, "rank %d", r)
		require.True(t, IsVersionMismatch(err))

		var se *StageError
		require.ErrorAs(t, err, &se)
		require.Equal(t, types.StageVersionCheck, se.Stage)

		var vm *VersionMismatchError
		require.ErrorAs(t, err, &vm)
		require.Equal(t, "def456", vm.Local)
		require.Equal(t, "abc123", vm.Remote)

		require.Equal(t, StateFailed, couplers[1][r].State())
		require.Empty(t, ptns[1][r].OwnedRanks(), "no partition data after a failed handshake")
	}
}

func TestCoupler_MissingBuildIDSkipsCheck(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	tr := stage.NewTransport(stage.NewMemoryStore())

	// A rendezvous side that predates versioning: empty first step.
	w, err := tr.Open(ctx, DatasetName, types.ModeWrite, localWorld(1)[0])
	require.NoError(t, err)
	require.NoError(t, w.BeginStep(ctx))
	require.NoError(t, w.EndStep(ctx))
	require.NoError(t, w.BeginStep(ctx))
	src, _ := partition.NewRCB(2, []int32{0, 1, 2, 3}, []float64{0, 0.5, 0.75})
	require.NoError(t, src.Write(ctx, w))
	require.NoError(t, w.Close(ctx))

	errs, ptns, _ := couple(t, tr, rcbSide(RoleParticipant, 2, "def456"))
	for r, err := range errs[0] {
		require.NoError(t, err, "rank %d", r)
		require.Equal(t, src.Digest(), ptns[0][r].(*partition.RCB).Digest())
	}
}

func TestCoupler_SetupTimeout(t *testing.T) {
	tr := stage.NewTransport(stage.NewMemoryStore())
	cfg := DefaultConfig()
	cfg.SetupTimeout = 50 * time.Millisecond

	ptn, _ := partition.NewRCB(2, nil, nil)
	c, err := NewCoupler(&cfg, localWorld(1)[0], tr, ptn, RoleParticipant)
	require.NoError(t, err)

	err = c.Setup(t.Context())
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, types.StageOpen, se.Stage)
	require.Equal(t, StateFailed, c.State())
}

func TestCoupler_AlreadySetup(t *testing.T) {
	tr := stage.NewTransport(stage.NewMemoryStore())
	cfg := TestConfig()
	ptn, _ := partition.NewClass([]int32{0}, []int32{7})

	c, err := NewCoupler(&cfg, localWorld(1)[0], tr, ptn, RoleRendezvous, WithBuildID("abc123"))
	require.NoError(t, err)
	require.Equal(t, "abc123", c.BuildID())
	require.Equal(t, RoleRendezvous, c.Role())
	require.Equal(t, StateCreated, c.State())

	require.NoError(t, c.Setup(t.Context()))
	require.Equal(t, StateReady, c.State())
	require.ErrorIs(t, c.Setup(t.Context()), ErrAlreadySetup)
	require.Equal(t, StateReady, c.State())
}

func TestCoupler_WriteFailure(t *testing.T) {
	tr := stage.NewTransport(stage.NewMemoryStore())
	cfg := TestConfig()
	empty, _ := partition.NewRCB(2, nil, nil)

	c, err := NewCoupler(&cfg, localWorld(1)[0], tr, empty, RoleRendezvous)
	require.NoError(t, err)

	err = c.Setup(t.Context())
	require.ErrorIs(t, err, ErrConfiguration)

	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, types.StagePartitionWrite, se.Stage)
	require.Equal(t, StateFailed, c.State())
}

// rawRCB publishes ranks and cuts exactly as given, without checking the tree.
type rawRCB struct {
	ranks []int32
	cuts  []float64
}

func (p *rawRCB) OwnedRanks() []int32 { return p.ranks }

func (p *rawRCB) Write(_ context.Context, eng Engine) error {
	if err := eng.DefineVariable(partition.VarRanks, types.KindInt32, len(p.ranks)); err != nil {
		return err
	}
	if err := eng.DefineVariable(partition.VarCuts, types.KindFloat64, len(p.cuts)); err != nil {
		return err
	}
	if err := stage.Put(eng, partition.VarRanks, p.ranks); err != nil {
		return err
	}

	return stage.Put(eng, partition.VarCuts, p.cuts)
}

func (p *rawRCB) Read(context.Context, Engine) error { return nil }

func (p *rawRCB) Broadcast(context.Context, Group, int) error { return nil }

// requireEveryRankFails checks that a participant world gave up in stage
// without waiting for a deadline: rank 0 with cause, the others with ErrTransport.
func requireEveryRankFails(t *testing.T, errs []error, couplers []*Coupler, stageName string, cause error) {
	t.Helper()

	for r, err := range errs {
		require.Error(t, err, "rank %d", r)
		require.NotErrorIs(t, err, context.DeadlineExceeded, "rank %d", r)

		var se *StageError
		require.ErrorAs(t, err, &se, "rank %d", r)
		require.Equal(t, stageName, se.Stage, "rank %d", r)

		if r == 0 {
			require.ErrorIs(t, err, cause)
		} else {
			require.ErrorIs(t, err, ErrTransport, "rank %d", r)
			require.Contains(t, err.Error(), "rank 0 failed")
		}
		require.Equal(t, StateFailed, couplers[r].State(), "rank %d", r)
	}
}

func TestCoupler_MalformedPartitionFailsEveryRank(t *testing.T) {
	tr := stage.NewTransport(stage.NewMemoryStore())

	// Four cuts for four leaves: one too many for a complete tree.
	rdv := side{
		role:    RoleRendezvous,
		world:   localWorld(1),
		buildID: "abc123",
		newPtn: func(int) Partition {
			return &rawRCB{ranks: []int32{0, 1, 2, 3}, cuts: []float64{0, 0.5, 0.75, 0.25}}
		},
	}
	part := rcbSide(RoleParticipant, 3, "abc123")
	part.configure = func(cfg *Config) { cfg.SetupTimeout = 0 }

	errs, ptns, couplers := couple(t, tr, rdv, part)
	require.NoError(t, errs[0][0])

	requireEveryRankFails(t, errs[1], couplers[1], types.StagePartitionRead, ErrMalformedPartition)
	for r, p := range ptns[1] {
		require.Empty(t, p.OwnedRanks(), "rank %d", r)
	}
}

func TestCoupler_VersionReadFailsEveryRank(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	tr := stage.NewTransport(stage.NewMemoryStore())

	// A build id published with the wrong element kind.
	w, err := tr.Open(ctx, DatasetName, types.ModeWrite, localWorld(1)[0])
	require.NoError(t, err)
	require.NoError(t, w.BeginStep(ctx))
	require.NoError(t, w.DefineVariable(VarBuildID, types.KindInt64, 1))
	require.NoError(t, stage.Put(w, VarBuildID, []int64{42}))
	require.NoError(t, w.EndStep(ctx))
	require.NoError(t, w.Close(ctx))

	part := rcbSide(RoleParticipant, 3, "abc123")
	part.configure = func(cfg *Config) { cfg.SetupTimeout = 0 }

	errs, _, couplers := couple(t, tr, part)
	requireEveryRankFails(t, errs[0], couplers[0], types.StageVersionCheck, ErrTransport)
}

func TestNewCoupler_Validation(t *testing.T) {
	tr := stage.NewTransport(stage.NewMemoryStore())
	g := localWorld(1)[0]
	ptn, _ := partition.NewClass(nil, nil)
	cfg := DefaultConfig()

	_, err := NewCoupler(nil, g, tr, ptn, RoleRendezvous)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCoupler(&cfg, nil, tr, ptn, RoleRendezvous)
	require.ErrorIs(t, err, ErrNilDependency)

	_, err = NewCoupler(&cfg, g, nil, ptn, RoleRendezvous)
	require.ErrorIs(t, err, ErrNilDependency)

	_, err = NewCoupler(&cfg, g, tr, nil, RoleRendezvous)
	require.ErrorIs(t, err, ErrNilDependency)

	_, err = NewCoupler(&cfg, g, tr, ptn, Role(9))
	require.ErrorIs(t, err, ErrInvalidConfig)

	bad := Config{Dataset: "a.b"}
	_, err = NewCoupler(&bad, g, tr, ptn, RoleRendezvous)
	require.ErrorIs(t, err, ErrInvalidConfig)

	partial := Config{}
	c, err := NewCoupler(&partial, g, tr, ptn, RoleParticipant)
	require.NoError(t, err)
	require.Equal(t, DatasetName, partial.Dataset, "defaults are filled in place")
	require.NotEmpty(t, c.BuildID())
}

// recordingMetrics captures setup metrics.
type recordingMetrics struct {
	*metrics.NopMetrics

	mu      sync.Mutex
	stages  map[string]bool
	results []bool
}

func (m *recordingMetrics) RecordStageDuration(stage string, _ float64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage] = success
}

func (m *recordingMetrics) RecordSetupResult(_ string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, success)
}

func TestCoupler_HooksAndMetrics(t *testing.T) {
	tr := stage.NewTransport(stage.NewMemoryStore())
	rec := &recordingMetrics{NopMetrics: metrics.NewNop(), stages: map[string]bool{}}

	var mu sync.Mutex
	var transitions []State
	hookErr := errors.New("hook failure is logged, not returned")
	h := &Hooks{
		OnStateChanged: func(_ context.Context, _, to State) error {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, to)

			return hookErr
		},
	}

	rdv := rcbSide(RoleRendezvous, 1, "abc123")
	rdv.opts = []Option{WithHooks(h), WithMetrics(rec)}
	errs, _, _ := couple(t, tr, rdv)
	require.NoError(t, errs[0][0])

	require.Equal(t, []State{StateVersionChecked, StatePartitionExchanged, StateReady}, transitions)
	require.Equal(t, []bool{true}, rec.results)
	for _, name := range []string{
		types.StageOpen, types.StageVersionCheck, types.StagePartitionWrite, types.StageBroadcast, types.StageClose,
	} {
		require.True(t, rec.stages[name], "stage %s", name)
	}
}

func TestCoupler_ErrorHook(t *testing.T) {
	tr := stage.NewTransport(stage.NewMemoryStore())

	var got error
	h := &Hooks{
		OnError: func(_ context.Context, err error) error {
			got = err
			return nil
		},
	}

	rdv := rcbSide(RoleRendezvous, 1, "abc123")
	part := rcbSide(RoleParticipant, 1, "def456")
	part.opts = []Option{WithHooks(h)}

	errs, _, _ := couple(t, tr, rdv, part)
	require.ErrorIs(t, errs[1][0], ErrVersionMismatch)
	require.ErrorIs(t, got, ErrVersionMismatch)
}

func TestIsValidTransition(t *testing.T) {
	require.True(t, isValidTransition(StateCreated, StateVersionChecked))
	require.True(t, isValidTransition(StateCreated, StateFailed))
	require.True(t, isValidTransition(StatePartitionExchanged, StateReady))
	require.False(t, isValidTransition(StateCreated, StateReady))
	require.False(t, isValidTransition(StateReady, StateFailed))
	require.False(t, isValidTransition(StateFailed, StateCreated))
}
