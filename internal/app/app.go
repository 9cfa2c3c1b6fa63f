package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"VaultLedger/internal/config"
	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/ingestion"
	"VaultLedger/internal/keeper"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/projection"
	"VaultLedger/internal/query"
	"VaultLedger/internal/server"
	"VaultLedger/internal/store/memory"
	"VaultLedger/internal/store/pebble"
	"VaultLedger/internal/store/postgres"
	"VaultLedger/internal/transfer"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger}
}

// OpenDB opens and pings the Postgres event-log database.
func (a *App) OpenDB(ctx context.Context) (*sql.DB, error) {
	pg := a.Config.Store.Postgres
	if pg.DSN == "" {
		return nil, errors.New("store.postgres.dsn is not configured")
	}
	db, err := sql.Open("postgres", pg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(pg.MaxOpenConns)
	db.SetMaxIdleConns(pg.MaxIdleConns)
	db.SetConnMaxLifetime(pg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// Migrator returns a migrator over the configured database. The caller
// closes the returned db.
func (a *App) Migrator(ctx context.Context) (*persistence.Migrator, *sql.DB, error) {
	db, err := a.OpenDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	return persistence.NewMigrator(db, persistence.MigrationSource(a.Config.Store.Postgres.MigrationsPath), a.Logger), db, nil
}

// openStore selects the record store for the configured backend.
func (a *App) openStore(db *sql.DB) (vault.Store, func(), error) {
	switch a.Config.Store.Backend {
	case config.BackendPostgres:
		return postgres.New(db), func() {}, nil
	case config.BackendPebble:
		st, err := pebble.Open(a.Config.Store.Pebble.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				a.Logger.Error().Err(err).Msg("close pebble store")
			}
		}, nil
	default:
		return memory.New(), func() {}, nil
	}
}

// Run executes the long-running vault service until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := a.Config
	logger := a.Logger.With().Str("component", "app").Logger()
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := observability.NewHealthChecker()

	// --- Postgres (event log, optional record store) ---
	var db *sql.DB
	if cfg.EventLogEnabled() {
		var err error
		if db, err = a.OpenDB(ctx); err != nil {
			return err
		}
		defer db.Close()
		logger.Info().Msg("postgres connected")
		healthChecker.AddCheck("postgres", db.PingContext)

		if cfg.Store.Postgres.AutoMigrate {
			if err := persistence.NewMigrator(db, persistence.MigrationSource(cfg.Store.Postgres.MigrationsPath), a.Logger).Up(ctx); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
	} else {
		logger.Warn().Msg("store.postgres.dsn not configured; event log persistence disabled")
	}

	store, closeStore, err := a.openStore(db)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	defer closeStore()

	// --- Transfer service stand-in ---
	book := transfer.NewBook()
	seeds, err := cfg.SeedBalances()
	if err != nil {
		return err
	}
	if err := book.Seed(ctx, seeds); err != nil {
		return fmt.Errorf("seed transfer book: %w", err)
	}
	validator := transfer.NewInvariantValidator(book)

	clock := vault.SystemClock{}
	engine := vault.NewEngine(store, book, clock, a.Logger)

	// --- Recovery: resume the chain and warm dedup from the event log ---
	opts := core.Options{
		LRUCapacity: cfg.Vault.IdempotencyLRUCapacity,
		Metrics:     metrics,
		Logger:      a.Logger,
	}
	var warmKeys []string
	var persistChan chan *event.EventEnvelope
	if db != nil {
		reader := persistence.NewEventLogReader(db)
		tip, err := reader.LoadChainTip(ctx)
		if err != nil {
			return fmt.Errorf("load chain tip: %w", err)
		}
		if tip != nil {
			opts.StartSequence = tip.Sequence + 1
			opts.ChainTip = &tip.StateHash
			logger.Info().Int64("sequence", tip.Sequence).Msg("resuming event chain")
		} else {
			logger.Info().Msg("empty event log, starting at genesis")
		}
		if warmKeys, err = reader.RecentIdempotencyKeys(ctx, cfg.Vault.IdempotencyLRUCapacity); err != nil {
			return fmt.Errorf("load idempotency keys: %w", err)
		}
		opts.DBChecker = persistence.NewPostgresIdempotencyChecker(db)

		persistChan = make(chan *event.EventEnvelope, cfg.Channels.PersistBuffer)
		opts.Persist = persistChan
	}

	// --- NATS ---
	var publishChan chan *event.EventEnvelope
	var js jetstream.JetStream
	var publisher *ingestion.OutboundPublisher
	if cfg.NATS.Enabled {
		var nc *nats.Conn
		nc, js, err = ingestion.ConnectNATS(cfg.NATS.URL, a.Logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		healthChecker.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats status %s", nc.Status())
			}
			return nil
		})

		if err := ingestion.EnsureStreams(ctx, js, a.Logger); err != nil {
			return fmt.Errorf("ensure NATS streams: %w", err)
		}

		publishChan = make(chan *event.EventEnvelope, cfg.Channels.PublishBuffer)
		opts.Publish = publishChan
		publisher = ingestion.NewOutboundPublisher(js, publishChan, metrics, a.Logger)
	}

	svc, err := core.NewService(engine, opts)
	if err != nil {
		return err
	}
	if len(warmKeys) > 0 {
		svc.WarmIdempotency(warmKeys)
		logger.Info().Int("keys", len(warmKeys)).Msg("warmed idempotency cache")
	}
	if o, err := svc.Oracle(ctx); err == nil {
		metrics.OracleRate.Set(float64(o.Rate))
	} else if !errors.Is(err, vault.ErrNotFound) {
		return fmt.Errorf("read oracle: %w", err)
	}

	var subscriber *ingestion.CommandSubscriber
	if js != nil {
		subscriber = ingestion.NewCommandSubscriber(js, svc, cfg.Vault.AllowClockOverride, metrics, a.Logger)
		if err := subscriber.Subscribe(ctx); err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
	}

	// The gateway reaches the core through the same gRPC surface as external
	// clients.
	var gatewayConn *grpc.ClientConn
	if cfg.Server.HTTPAddr != "" {
		if gatewayConn, err = server.Dial(loopback(cfg.Server.GRPCAddr)); err != nil {
			return err
		}
		defer gatewayConn.Close()
	}
	var keeperAdmin uuid.UUID
	if cfg.Keeper.Embedded {
		if keeperAdmin, err = cfg.KeeperAdmin(); err != nil {
			return err
		}
	}

	// --- Background workers drain after the servers stop ---
	workers, workerCtx := errgroup.WithContext(context.Background())
	if persistChan != nil {
		pw := persistence.NewPersistenceWorker(db, persistChan, cfg.Channels.PersistBatchSize, cfg.Channels.PersistFlushAfter, metrics, a.Logger)
		workers.Go(func() error { return pw.Run(workerCtx) })
	}
	if publisher != nil {
		workers.Go(func() error { return publisher.Run(workerCtx) })
	}

	// --- Servers ---
	qs := query.NewQueryService(svc, clock)
	grpcServer := server.NewGRPCServer(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, &server.ServerDeps{
		Vault:         server.NewVaultService(svc, qs, cfg.Vault.AllowClockOverride),
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        a.Logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return grpcServer.StartGRPC(gctx) })

	if gatewayConn != nil {
		g.Go(func() error { return grpcServer.StartHTTPGateway(gctx, server.NewClient(gatewayConn)) })
	}
	if cfg.Server.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Server.MetricsAddr, logger) })
	}
	if cfg.Keeper.Embedded {
		k := keeper.New(svc, keeperAdmin, cfg.Keeper.RequestTimeout, metrics, a.Logger)
		sched := keeper.NewScheduler(a.keeperOptions(), a.Logger)
		g.Go(func() error { return k.Run(gctx, sched) })
	}
	if db != nil && cfg.Projection.Enabled {
		pw := projection.NewProjectionWorker(db, persistence.NewEventLogReader(db), cfg.Projection.Interval, cfg.Projection.BatchSize, metrics, a.Logger)
		g.Go(func() error { return pw.Run(gctx) })
	}
	g.Go(func() error { return watchSupply(gctx, validator, logger) })

	healthChecker.SetReady(true)
	grpcServer.SetServing(true)
	logger.Info().
		Str("backend", cfg.Store.Backend).
		Int64("sequence", svc.Sequence()).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("http", cfg.Server.HTTPAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Msg("vaultledger ready")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server failed, shutting down")
	}

	// --- Graceful shutdown: no more producers, drain the pipeline ---
	healthChecker.SetReady(false)
	if subscriber != nil {
		subscriber.Stop()
	}
	if persistChan != nil {
		close(persistChan)
	}
	if publishChan != nil {
		close(publishChan)
	}
	if werr := workers.Wait(); werr != nil {
		logger.Error().Err(werr).Msg("worker drain failed")
		if err == nil || errors.Is(err, context.Canceled) {
			err = werr
		}
	}
	if verr := validator.ValidateSupply(); verr != nil {
		logger.Error().Err(verr).Msg("supply invariant violated at shutdown")
	}

	logger.Info().Int64("sequence", svc.Sequence()).Msg("vaultledger shutdown complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// keeperOptions maps keeper configuration onto scheduler options.
func (a *App) keeperOptions() keeper.Options {
	return keeper.Options{
		Interval:     a.Config.Keeper.Interval,
		AlignToStart: a.Config.Keeper.AlignToStart,
		StartupDelay: a.Config.Keeper.StartupDelay,
	}
}

// loopback rewrites a listen address such as ":9090" into a dialable one.
func loopback(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// watchSupply re-checks the transfer book supply invariant once a minute.
func watchSupply(ctx context.Context, v *transfer.InvariantValidator, logger zerolog.Logger) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := v.ValidateSupply(); err != nil {
				logger.Error().Err(err).Msg("supply invariant violated")
			}
		}
	}
}
