// internal/daemon/runner.go
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rovshanmuradov/pumpcurve/internal/api"
	"github.com/rovshanmuradov/pumpcurve/internal/config"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/events"
	"github.com/rovshanmuradov/pumpcurve/internal/ledger"
	"github.com/rovshanmuradov/pumpcurve/internal/lifecycle"
	"github.com/rovshanmuradov/pumpcurve/internal/registry"
	"github.com/rovshanmuradov/pumpcurve/internal/utils/logger"
	"github.com/rovshanmuradov/pumpcurve/internal/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	storeOpenTimeout = 30 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Runner owns the long-lived components of the daemon.
type Runner struct {
	cfg    *config.Config
	logger *logger.Logger

	store    ledger.Store
	db       *ledger.DB
	bus      *events.Bus
	registry *prometheus.Registry
	metrics  *metrics.Collector
	ctrl     *lifecycle.Controller
}

func NewRunner(cfg *config.Config, log *logger.Logger) *Runner {
	return &Runner{cfg: cfg, logger: log}
}

// Controller is available after Initialize.
func (r *Runner) Controller() *lifecycle.Controller {
	return r.ctrl
}

// Initialize opens the ledger, wires the controller and applies the
// bootstrap protocol parameters and genesis allocation.
func (r *Runner) Initialize(ctx context.Context) error {
	defer r.logger.TrackPerformance("daemon.initialize")()

	programID, err := r.cfg.ProgramKey()
	if err != nil {
		return err
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	r.store = store

	r.db, err = ledger.NewDB(store, r.logger.Logger, ledger.WithMaxAttempts(r.cfg.Commit.MaxAttempts))
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	r.registry = prometheus.NewRegistry()
	r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.metrics = metrics.NewCollector(r.registry)

	r.bus = events.NewBus(r.logger.Logger, r.cfg.Events.BufferSize)
	r.bus.SubscribeFunc(events.All, r.logEvent)

	r.ctrl, err = lifecycle.NewController(lifecycle.ControllerConfig{
		ProgramID:                programID,
		DB:                       r.db,
		Assets:                   registry.NewLedgerRegistry(r.logger.Logger),
		Metadata:                 registry.LedgerMetadata{},
		Bus:                      r.bus,
		Metrics:                  r.metrics,
		Logger:                   r.logger.Logger,
		WithdrawRequiresComplete: r.cfg.WithdrawRequiresComplete,
	})
	if err != nil {
		return err
	}

	return r.bootstrap(ctx)
}

// openStore retries while another process still holds the pebble lock.
func (r *Runner) openStore(ctx context.Context) (ledger.Store, error) {
	opts := ledger.PebbleOptions{InMemory: r.cfg.Store.InMemory, CacheSize: r.cfg.Store.CacheSize}
	if !opts.InMemory {
		if err := os.MkdirAll(filepath.Dir(r.cfg.Store.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	notify := func(err error, d time.Duration) {
		r.logger.Warn("Store open failed, retrying", zap.Error(err), zap.Duration("backoff", d))
	}
	open := func() (ledger.Store, error) {
		return ledger.OpenPebble(r.cfg.Store.Path, opts, r.logger.Logger)
	}

	return backoff.Retry(ctx, open,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(storeOpenTimeout),
		backoff.WithNotify(notify))
}

// bootstrap initializes the protocol under the configured authority and
// applies the configured parameters when they differ from the stored ones.
func (r *Runner) bootstrap(ctx context.Context) error {
	authority, err := r.cfg.AuthorityKey()
	if err != nil {
		return err
	}

	err = r.ctrl.Initialize(ctx, authority)
	switch {
	case errors.Is(err, curve.ErrAlreadyInitialized):
		r.logger.Debug("Protocol already initialized")
	case err != nil:
		return fmt.Errorf("failed to initialize protocol: %w", err)
	}

	if err := r.applyGenesis(ctx, authority); err != nil {
		return err
	}

	if !r.cfg.Protocol.Bootstrap {
		return nil
	}
	params, err := r.cfg.Protocol.ToParams()
	if err != nil {
		return err
	}

	current, err := r.ctrl.Config(ctx)
	if err != nil {
		return err
	}
	wanted := *current
	wanted.Apply(params)
	if wanted == *current {
		r.logger.Debug("Protocol parameters unchanged")
		return nil
	}

	if err := r.ctrl.SetParams(ctx, authority, params); err != nil {
		return fmt.Errorf("failed to apply protocol parameters: %w", err)
	}
	return nil
}

// applyGenesis credits the configured balances unless a previous start
// already did.
func (r *Runner) applyGenesis(ctx context.Context, authority solana.PublicKey) error {
	if len(r.cfg.Genesis) == 0 {
		return nil
	}
	allocs := make([]lifecycle.Allocation, 0, len(r.cfg.Genesis))
	for _, g := range r.cfg.Genesis {
		owner, err := g.OwnerKey()
		if err != nil {
			return err
		}
		allocs = append(allocs, lifecycle.Allocation{Owner: owner, Lamports: g.Lamports})
	}

	err := r.ctrl.Genesis(ctx, authority, allocs)
	switch {
	case errors.Is(err, curve.ErrAlreadyInitialized):
		r.logger.Debug("Genesis allocation already applied")
	case err != nil:
		return fmt.Errorf("failed to apply genesis allocation: %w", err)
	}
	return nil
}

func (r *Runner) logEvent(_ context.Context, rec events.Record) error {
	r.logger.Info("Event committed",
		zap.Uint64("seq", rec.Seq),
		zap.String("type", string(rec.Event.Type())),
		zap.Time("time", rec.Event.Timestamp()))
	return nil
}

// Run serves the JSON-RPC API and metrics until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if addr := r.cfg.API.ListenAddr; addr != "" {
		mux, err := api.NewMux(api.NewJSONRPCServer(r.ctrl, r.logger.Logger))
		if err != nil {
			return fmt.Errorf("failed to register api: %w", err)
		}
		r.serve(ctx, g, "API", addr, mux)
	}
	if addr := r.cfg.Metrics.ListenAddr; addr != "" {
		r.serve(ctx, g, "Metrics", addr, promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	r.logger.Info("Daemon running", zap.Uint64("last_seq", r.db.LastSeq()))
	return g.Wait()
}

// serve runs an HTTP server in g and shuts it down when ctx ends.
func (r *Runner) serve(ctx context.Context, g *errgroup.Group, name, addr string, h http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		r.logger.Info(name+" endpoint listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// Shutdown drains the event bus and closes the ledger.
func (r *Runner) Shutdown() error {
	r.logger.Info("Daemon shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if r.bus != nil {
		errs = append(errs, r.bus.Shutdown(ctx))
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	errs = append(errs, r.logger.Sync())
	return errors.Join(errs...)
}
