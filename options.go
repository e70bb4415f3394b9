package redev

// Option configures a Coupler with optional dependencies.
type Option func(*couplerOptions)

// couplerOptions holds optional Coupler configuration.
type couplerOptions struct {
	hooks   *Hooks
	metrics MetricsCollector
	logger  Logger
	buildID string
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewCoupler
//
// Example:
//
//	hooks := &redev.Hooks{
//	    OnError: func(ctx context.Context, err error) error {
//	        alert(err)
//	        return nil
//	    },
//	}
//	c, err := redev.NewCoupler(&cfg, group, tr, ptn, redev.RoleParticipant, redev.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *couplerOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Example:
//
//	c, err := redev.NewCoupler(&cfg, group, tr, ptn, role,
//	    redev.WithMetrics(metrics.NewPrometheus(nil, "redev")))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *couplerOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewCoupler
func WithLogger(logger Logger) Option {
	return func(o *couplerOptions) {
		o.logger = logger
	}
}

// WithBuildID overrides the local build identifier used in the version handshake.
//
// Defaults to version.Get().
func WithBuildID(id string) Option {
	return func(o *couplerOptions) {
		o.buildID = id
	}
}
