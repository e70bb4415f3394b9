package stage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/cwsmith/redev/comm"
	"github.com/cwsmith/redev/internal/logging"
	"github.com/cwsmith/redev/internal/metrics"
	"github.com/cwsmith/redev/types"
)

// namePattern restricts dataset and variable names to single key tokens.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Transport opens staged datasets in a Store.
type Transport struct {
	store    Store
	logger   types.Logger
	metrics  types.MetricsCollector
	compress bool
	now      func() time.Time
}

// Compile-time assertion that Transport implements types.Transport.
var _ types.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the transport logger.
func WithLogger(logger types.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector for store latency and block sizes.
func WithMetrics(m types.MetricsCollector) Option {
	return func(t *Transport) {
		if m != nil {
			t.metrics = m
		}
	}
}

// WithCompression enables lz4 compression of block payloads on write.
//
// Readers detect compression per block, so the two sides need not agree.
func WithCompression(enabled bool) Option {
	return func(t *Transport) {
		t.compress = enabled
	}
}

// NewTransport creates a transport over store.
//
// Parameters:
//   - store: Key-value backend shared by both applications
//   - opts: Optional configuration
//
// Returns:
//   - *Transport: Transport ready to open datasets
func NewTransport(store Store, opts ...Option) *Transport {
	t := &Transport{
		store:   store,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.store = instrumented{Store: store, metrics: t.metrics}

	return t
}

// Open opens the named dataset on the calling rank.
//
// In write mode the call is collective over group: rank 0 purges whatever a
// previous session left under the dataset, writes a fresh header, and
// broadcasts the new generation to the other writer ranks. In read mode each
// rank waits independently for the header.
func (t *Transport) Open(ctx context.Context, name string, mode types.Mode, group types.Group) (types.Engine, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid dataset name %q", types.ErrConfiguration, name)
	}
	if group == nil {
		return nil, fmt.Errorf("%w: group is required", types.ErrNilDependency)
	}

	e := &engine{
		t:     t,
		name:  name,
		mode:  mode,
		rank:  group.Rank(),
		step:  -1,
		defs:  make(map[string]types.Variable),
		puts:  make(map[string]*block),
		vars:  make(map[string]types.Variable),
		infos: make(map[string][]types.BlockInfo),
		sel:   make(map[string]int),
	}

	switch mode {
	case types.ModeWrite:
		if err := t.openWriter(ctx, e, group); err != nil {
			return nil, err
		}
	case types.ModeRead:
		if err := t.openReader(ctx, e); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %d", types.ErrConfiguration, mode)
	}

	t.logger.Debug("dataset opened",
		"dataset", name, "mode", mode.String(), "rank", e.rank,
		"writers", e.writers, "generation", e.gen)

	return e, nil
}

func (t *Transport) openWriter(ctx context.Context, e *engine, group types.Group) error {
	gen := []uint64{0}
	if group.Rank() == 0 {
		if err := t.store.Purge(ctx, e.name+"."); err != nil {
			return fmt.Errorf("%w: purge dataset %s: %w", types.ErrTransport, e.name, err)
		}

		gen[0] = uint64(t.now().UnixNano()) //nolint:gosec // wall clock is positive
		h := header{Writers: group.Size(), Generation: gen[0]}
		if err := t.store.Put(ctx, e.headerKey(), h.MarshalMsg(nil)); err != nil {
			return fmt.Errorf("%w: write header of %s: %w", types.ErrTransport, e.name, err)
		}
	}

	// Non-zero ranks must not commit before rank 0 has purged.
	if err := comm.Broadcast(ctx, group, 0, gen); err != nil {
		return fmt.Errorf("open %s: %w", e.name, err)
	}

	e.writers, e.gen = group.Size(), gen[0]

	return nil
}

func (t *Transport) openReader(ctx context.Context, e *engine) error {
	raw, err := t.store.Wait(ctx, e.headerKey())
	if err != nil {
		return fmt.Errorf("%w: wait for header of %s: %w", types.ErrTransport, e.name, err)
	}

	var h header
	if _, err := h.UnmarshalMsg(raw); err != nil {
		return fmt.Errorf("%w: decode header of %s: %w", types.ErrTransport, e.name, err)
	}
	if h.Writers < 1 {
		return fmt.Errorf("%w: header of %s names %d writers", types.ErrTransport, e.name, h.Writers)
	}

	e.writers, e.gen = h.Writers, h.Generation

	return nil
}
