// Command redev-setup couples two applications through a rendezvous setup.
//
// Launch every rank of the rendezvous application with argument 1 and every
// rank of the participant application with argument 0. Each process finds
// its rank and the size of its application through the environment:
//
//	NATS_URL            NATS server shared by both applications
//	REDEV_RANK          rank within the application (claimed from NATS if unset)
//	REDEV_SIZE          ranks in the application (default 1)
//	REDEV_GROUP         coupled run name, required and unique per run (a job id)
//	REDEV_CONFIG        optional YAML configuration file
//	REDEV_METRICS_ADDR  optional Prometheus /metrics listen address
//
// Every rank reserves its rank under REDEV_GROUP before joining, so a name
// reused while the buckets still hold the earlier run fails immediately.
//
// Both applications run two scenarios in sequence: a 2-d spatial partition
// and a classification partition. The participant verifies what it received.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/cwsmith/redev"
	"github.com/cwsmith/redev/comm"
	"github.com/cwsmith/redev/internal/kvutil"
	"github.com/cwsmith/redev/internal/logging"
	"github.com/cwsmith/redev/internal/metrics"
	"github.com/cwsmith/redev/internal/natsutil"
	"github.com/cwsmith/redev/internal/rankid"
	"github.com/cwsmith/redev/stage"
	"github.com/cwsmith/redev/types"
	"github.com/cwsmith/redev/version"
)

const (
	appName = "redev-setup"

	helpTemplate = `NAME:
	{{ .Name }} - {{ .Usage }}

USAGE:
	{{ .Name }} 1|0

ARGUMENTS:
	1  run as the rendezvous application
	0  run as the participant application

ENVIRONMENT:
	REDEV_GROUP (required, unique per coupled run)
	NATS_URL, REDEV_RANK, REDEV_SIZE, REDEV_CONFIG, REDEV_METRICS_ADDR
`
)

var groupPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// lookupEnv matches os.LookupEnv.
type lookupEnv func(key string) (string, bool)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(ctx, os.LookupEnv, os.Stdout, os.Stderr).Run(os.Args); err != nil {
		// ExitCoder errors have already exited through cli.OsExiter.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, env lookupEnv, stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "couple two applications through a rendezvous partition exchange"
	app.Version = version.Get()
	app.Writer = stdout
	app.ErrWriter = stderr
	app.CustomAppHelpTemplate = helpTemplate

	// No flags and no help subcommand: exactly one positional argument.
	app.HideHelp = true
	app.HideVersion = true

	app.Action = func(c *cli.Context) error {
		return appMain(ctx, c, env)
	}

	return app
}

func appMain(ctx context.Context, c *cli.Context, env lookupEnv) error {
	role, ok := parseRole(c)
	if !ok {
		_ = cli.ShowAppHelp(c)
		return cli.NewExitError(fmt.Sprintf("%s: expected exactly one argument, 1 (rendezvous) or 0 (participant)", appName), 1)
	}

	st, err := loadSettings(env)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("%s: %v", appName, err), 1)
	}

	base := logging.NewText(c.App.ErrWriter, slog.LevelInfo)

	if err := run(ctx, role, st, base); err != nil {
		base.Error("rendezvous setup failed", "role", role.String(), "error", err)
		return cli.NewExitError(fmt.Sprintf("%s: %v", appName, err), 1)
	}

	return nil
}

func parseRole(c *cli.Context) (redev.Role, bool) {
	if c.NArg() != 1 {
		return 0, false
	}

	switch c.Args().First() {
	case "1":
		return redev.RoleRendezvous, true
	case "0":
		return redev.RoleParticipant, true
	default:
		return 0, false
	}
}

// settings is the process environment of one rank.
type settings struct {
	cfg         redev.Config
	rank        int
	size        int
	group       string
	metricsAddr string

	// claimRank is set when REDEV_RANK is absent; rank is then claimed
	// from the group bucket after connecting.
	claimRank bool
}

func loadSettings(env lookupEnv) (settings, error) {
	s := settings{cfg: redev.DefaultConfig(), size: 1}

	if path, ok := env("REDEV_CONFIG"); ok && path != "" {
		cfg, err := redev.LoadConfig(path)
		if err != nil {
			return s, err
		}
		s.cfg = cfg
	}
	if url, ok := env("NATS_URL"); ok && url != "" {
		s.cfg.NATS.URL = url
	}
	if s.cfg.NATS.URL == "" {
		s.cfg.NATS.URL = nats.DefaultURL
	}

	var err error
	if v, ok := env("REDEV_RANK"); !ok || v == "" {
		s.claimRank = true
	} else if s.rank, err = intEnv(env, "REDEV_RANK", 0); err != nil {
		return s, err
	}
	if s.size, err = intEnv(env, "REDEV_SIZE", 1); err != nil {
		return s, err
	}
	if s.size < 1 || s.rank < 0 || s.rank >= s.size {
		return s, fmt.Errorf("%w: rank %d outside application of size %d", redev.ErrInvalidConfig, s.rank, s.size)
	}

	s.group, _ = env("REDEV_GROUP")
	if s.group == "" {
		return s, fmt.Errorf("%w: REDEV_GROUP is required; use a name unique to this coupled run", redev.ErrInvalidConfig)
	}
	if !groupPattern.MatchString(s.group) {
		return s, fmt.Errorf("%w: REDEV_GROUP=%q may only contain letters, digits, '-' and '_'", redev.ErrInvalidConfig, s.group)
	}
	s.metricsAddr, _ = env("REDEV_METRICS_ADDR")

	return s, nil
}

func intEnv(env lookupEnv, key string, def int) (int, error) {
	v, ok := env(key)
	if !ok || v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", redev.ErrInvalidConfig, key, v)
	}

	return n, nil
}

// run connects to NATS, serves metrics if requested, and runs both scenarios.
func run(ctx context.Context, role redev.Role, s settings, base types.Logger) error {
	nc, err := nats.Connect(s.cfg.NATS.URL, nats.Name(appName+"-"+role.String()))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", s.cfg.NATS.URL, err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}

	store, err := stage.OpenNATSStore(ctx, js, s.cfg.NATS.DatasetBucket, s.cfg.NATS.BucketTTL)
	if err != nil {
		return err
	}
	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:  s.cfg.NATS.GroupBucket,
		History: 1,
		TTL:     s.cfg.NATS.BucketTTL,
	}, 5)
	if err != nil {
		return natsutil.Wrap("open group bucket", err)
	}

	name := s.group + "-" + role.String()
	claimer := rankid.NewClaimer(kv, name, s.size, logging.WithFields(base, "role", role.String()))
	if s.claimRank {
		if s.rank, err = claimer.Claim(ctx); err != nil {
			return err
		}
	} else if err := claimer.Reserve(ctx, s.rank); err != nil {
		return err
	}
	logger := logging.WithFields(base, "rank", s.rank, "role", role.String())

	group, err := comm.NewNATS(kv, name, s.rank, s.size)
	if err != nil {
		return err
	}

	var collector types.MetricsCollector = metrics.NewNop()
	eg, egCtx := errgroup.WithContext(ctx)
	var srv *http.Server
	if s.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.NewPrometheus(reg, "redev")
		srv = &http.Server{
			Addr:              s.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		eg.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}

			return nil
		})
	}

	transport := stage.NewTransport(store,
		stage.WithLogger(logger),
		stage.WithMetrics(collector),
		stage.WithCompression(s.cfg.Compression),
	)

	eg.Go(func() error {
		if srv != nil {
			defer func() { _ = srv.Shutdown(context.WithoutCancel(egCtx)) }()
		}

		return runScenarios(egCtx, role, s, group, transport, collector, base)
	})

	return eg.Wait()
}
