package redev

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cwsmith/redev/comm"
	"github.com/cwsmith/redev/internal/hooks"
	"github.com/cwsmith/redev/internal/logging"
	"github.com/cwsmith/redev/internal/metrics"
	"github.com/cwsmith/redev/stage"
	"github.com/cwsmith/redev/types"
	"github.com/cwsmith/redev/version"
)

// Coupler drives the rendezvous setup of one rank.
//
// Every rank of both applications creates one Coupler and calls Setup once.
// The Coupler borrows its group and partition; it owns only the transport
// session it opens inside Setup.
//
// Thread Safety:
//   - State is safe for concurrent use
//   - Setup runs on the caller's goroutine; a second call returns ErrAlreadySetup
type Coupler struct {
	cfg       Config
	group     Group
	transport Transport
	partition Partition
	role      Role
	buildID   string

	hooks   Hooks
	metrics MetricsCollector
	logger  Logger

	state     atomic.Int32 // State
	started   atomic.Bool
	enteredAt time.Time // when the current state was entered, touched only by Setup
}

// NewCoupler creates a coupler for the calling rank.
//
// Parameters:
//   - cfg: Configuration (defaults are filled in place)
//   - group: Local process group, borrowed
//   - transport: Staged transport shared with the other application
//   - ptn: Partition, populated on the rendezvous side and empty on the participant side
//   - role: RoleRendezvous or RoleParticipant
//   - opts: Optional configuration (hooks, metrics, logger, build id)
//
// Returns:
//   - *Coupler: Coupler in StateCreated
//   - error: ErrInvalidConfig or ErrNilDependency
//
// Example:
//
//	cfg := redev.DefaultConfig()
//	tr := stage.NewTransport(stage.NewMemoryStore())
//	c, err := redev.NewCoupler(&cfg, group, tr, ptn, redev.RoleRendezvous)
func NewCoupler(cfg *Config, group Group, transport Transport, ptn Partition, role Role, opts ...Option) (*Coupler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if group == nil {
		return nil, fmt.Errorf("%w: process group", ErrNilDependency)
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: transport", ErrNilDependency)
	}
	if ptn == nil {
		return nil, fmt.Errorf("%w: partition", ErrNilDependency)
	}
	if role != RoleRendezvous && role != RoleParticipant {
		return nil, fmt.Errorf("%w: unknown role %d", ErrInvalidConfig, role)
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &couplerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	var hooksInstance Hooks
	if options.hooks != nil {
		hooksInstance = *options.hooks
	}

	buildID := options.buildID
	if buildID == "" {
		buildID = version.Get()
	}

	c := &Coupler{
		cfg:       *cfg,
		group:     group,
		transport: transport,
		partition: ptn,
		role:      role,
		buildID:   buildID,
		hooks:     hooks.Fill(hooksInstance),
		metrics:   metricsCollector,
		logger:    logging.WithFields(options.logger, "rank", group.Rank(), "role", role.String()),
		enteredAt: time.Now(),
	}
	c.state.Store(int32(StateCreated))

	if group.Rank() == 0 {
		c.logger.Info("coupler created", "build_id", buildID, "dataset", c.cfg.Dataset, "ranks", group.Size())
	}

	return c, nil
}

// State returns the current setup state.
func (c *Coupler) State() State {
	return State(c.state.Load())
}

// Role returns the coupler's role.
func (c *Coupler) Role() Role {
	return c.role
}

// BuildID returns the local build identifier.
func (c *Coupler) BuildID() string {
	return c.buildID
}

// Setup runs the rendezvous setup collectively with every other rank.
//
// It blocks until the partition is replicated on every local rank, the
// context is done, or a stage fails. The transport session is opened and
// closed within the call.
//
// Parameters:
//   - ctx: Context for cancellation; Config.SetupTimeout further bounds it
//
// Returns:
//   - error: nil once Ready; ErrAlreadySetup on a second call; otherwise a
//     *StageError wrapping the cause (VersionMismatchError, ErrTransport, ...)
func (c *Coupler) Setup(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadySetup
	}

	if c.cfg.SetupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SetupTimeout)
		defer cancel()
	}

	start := time.Now()
	err := c.setup(ctx)
	c.metrics.RecordSetupResult(c.role.String(), err == nil)

	if err != nil {
		c.logger.Error("setup failed", "error", err, "elapsed", time.Since(start))
		c.transitionState(ctx, c.State(), StateFailed)
		if hookErr := c.hooks.OnError(ctx, err); hookErr != nil {
			c.logger.Warn("error hook failed", "error", hookErr)
		}

		return err
	}

	c.transitionState(ctx, StatePartitionExchanged, StateReady)
	c.logger.Info("setup complete", "elapsed", time.Since(start))

	return nil
}

func (c *Coupler) setup(ctx context.Context) (err error) {
	var eng Engine
	err = c.runStage(types.StageOpen, func() error {
		var openErr error
		eng, openErr = c.transport.Open(ctx, c.cfg.Dataset, c.role.Mode(), c.group)

		return openErr
	})
	if err != nil {
		return err
	}

	defer func() {
		closeErr := c.runStage(types.StageClose, func() error { return eng.Close(ctx) })
		if err == nil {
			err = closeErr
		} else if closeErr != nil {
			c.logger.Warn("session close failed after setup error", "error", closeErr)
		}
	}()

	if err := c.runStage(types.StageVersionCheck, func() error { return c.checkVersion(ctx, eng) }); err != nil {
		return err
	}
	c.transitionState(ctx, StateCreated, StateVersionChecked)

	exchange := types.StagePartitionRead
	if c.role == RoleRendezvous {
		exchange = types.StagePartitionWrite
	}
	if err := c.runStage(exchange, func() error { return c.exchangePartition(ctx, eng, exchange) }); err != nil {
		return err
	}
	c.transitionState(ctx, StateVersionChecked, StatePartitionExchanged)

	if err := c.runStage(types.StageBroadcast, func() error { return c.partition.Broadcast(ctx, c.group, 0) }); err != nil {
		return err
	}
	if d, ok := c.partition.(Digester); ok {
		c.logger.Debug("partition replicated", "digest", fmt.Sprintf("%016x", d.Digest()))
	}

	return nil
}

// runStage times fn and wraps its error with the stage name.
func (c *Coupler) runStage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.metrics.RecordStageDuration(name, time.Since(start).Seconds(), err == nil)

	if err != nil {
		return &StageError{Stage: name, Err: err}
	}
	c.logger.Debug("stage complete", "stage", name, "duration", time.Since(start))

	return nil
}

// checkVersion runs the handshake step.
//
// Rendezvous rank 0 publishes its build id. Participant rank 0 reads it if
// present and shares it with the other participant ranks, so every rank
// reaches the same verdict.
func (c *Coupler) checkVersion(ctx context.Context, eng Engine) error {
	remote, err := c.versionStep(ctx, eng)
	if err := c.agree(ctx, types.StageVersionCheck, err); err != nil {
		return err
	}
	if c.role == RoleRendezvous {
		return nil
	}

	remote, err = comm.BroadcastString(ctx, c.group, 0, remote)
	if err != nil {
		return err
	}

	if remote == "" {
		if c.group.Rank() == 0 {
			c.logger.Warn("rendezvous side published no build id, skipping version check")
		}

		return nil
	}
	if remote != c.buildID {
		return &VersionMismatchError{Local: c.buildID, Remote: remote}
	}

	return nil
}

// versionStep does this rank's I/O for the handshake step and returns the
// remote build id read by participant rank 0.
func (c *Coupler) versionStep(ctx context.Context, eng Engine) (string, error) {
	if err := eng.BeginStep(ctx); err != nil {
		return "", err
	}

	if c.role == RoleRendezvous {
		if err := eng.DefineVariable(VarBuildID, types.KindString, 1); err != nil {
			return "", err
		}
		if c.group.Rank() == 0 {
			if err := stage.PutString(eng, VarBuildID, c.buildID); err != nil {
				return "", err
			}
		}

		return "", eng.EndStep(ctx)
	}

	var remote string
	if c.group.Rank() == 0 {
		if _, ok := eng.InquireVariable(VarBuildID); ok {
			if err := stage.GetString(eng, VarBuildID, &remote); err != nil {
				return "", err
			}
			if err := eng.PerformGets(ctx); err != nil {
				return "", err
			}
		}
	}

	return remote, eng.EndStep(ctx)
}

// exchangePartition runs the partition step; only rank 0 does I/O.
func (c *Coupler) exchangePartition(ctx context.Context, eng Engine, stageName string) error {
	return c.agree(ctx, stageName, c.partitionStep(ctx, eng))
}

func (c *Coupler) partitionStep(ctx context.Context, eng Engine) error {
	if err := eng.BeginStep(ctx); err != nil {
		return err
	}

	if c.group.Rank() == 0 {
		var err error
		if c.role == RoleRendezvous {
			err = c.partition.Write(ctx, eng)
		} else {
			err = c.partition.Read(ctx, eng)
		}
		if err != nil {
			return err
		}
	}

	return eng.EndStep(ctx)
}

// agree shares rank 0's outcome of a stage with every local rank.
//
// Rank 0 is the only rank doing transport I/O, so without this the other
// ranks would block in the next collective after rank 0 gave up. Every rank
// takes part, whatever its local outcome, and returns its own error first.
func (c *Coupler) agree(ctx context.Context, stageName string, local error) error {
	status := []int64{0}
	if c.group.Rank() == 0 && local != nil {
		status[0] = 1
	}

	if err := comm.Broadcast(ctx, c.group, 0, status); err != nil && local == nil {
		return err
	}
	if local != nil {
		return local
	}
	if status[0] != 0 {
		return fmt.Errorf("%w: rank 0 failed during %s", ErrTransport, stageName)
	}

	return nil
}

// transitionState validates and applies a state change, then notifies
// metrics and hooks synchronously.
func (c *Coupler) transitionState(ctx context.Context, from, to State) {
	if !isValidTransition(from, to) {
		c.logger.Error("invalid state transition attempted", "from", from.String(), "to", to.String())
		return
	}
	if !c.state.CompareAndSwap(int32(from), int32(to)) { //nolint:gosec // State values are controlled enum
		c.logger.Error("state changed concurrently", "expected", from.String(), "actual", c.State().String())
		return
	}

	now := time.Now()
	c.metrics.RecordStateTransition(from, to, now.Sub(c.enteredAt).Seconds())
	c.enteredAt = now

	c.logger.Info("state transition", "from", from.String(), "to", to.String())

	if err := c.hooks.OnStateChanged(ctx, from, to); err != nil {
		c.logger.Warn("state change hook error", "from", from.String(), "to", to.String(), "error", err)
	}
}

// isValidTransition checks if a state transition is allowed.
func isValidTransition(from, to State) bool {
	validTransitions := map[State][]State{
		StateCreated:            {StateVersionChecked, StateFailed},
		StateVersionChecked:     {StatePartitionExchanged, StateFailed},
		StatePartitionExchanged: {StateReady, StateFailed},
		StateReady:              {}, // Terminal
		StateFailed:             {}, // Terminal
	}

	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// IsVersionMismatch reports whether err carries a build identifier mismatch.
func IsVersionMismatch(err error) bool {
	return errors.Is(err, ErrVersionMismatch)
}
