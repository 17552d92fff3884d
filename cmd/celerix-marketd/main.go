package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/celerix-dev/celerix-market/internal/api"
	"github.com/celerix-dev/celerix-market/internal/config"
	"github.com/celerix-dev/celerix-market/internal/engine"
	"github.com/celerix-dev/celerix-market/internal/identity"
	"github.com/celerix-dev/celerix-market/internal/logger"
	"github.com/celerix-dev/celerix-market/internal/metrics"
	"github.com/celerix-dev/celerix-market/internal/music"
	"github.com/celerix-dev/celerix-market/internal/orchestrator"
	"github.com/celerix-dev/celerix-market/internal/seed"
	"github.com/celerix-dev/celerix-market/internal/server"
	"github.com/celerix-dev/celerix-market/internal/storage/sqljournal"
	"github.com/celerix-dev/celerix-market/internal/textgen"
	"github.com/celerix-dev/celerix-market/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Stack().Err(err).Msg("daemon stopped")
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	journal, err := openJournal(ctx, cfg.Storage, log)
	if err != nil {
		return errors.Wrap(err, "open journal")
	}

	collector := metrics.New()
	opts := []engine.Option{engine.WithObserver(collector), engine.WithLogger(log)}
	var ledger *engine.MemLedger
	if journal == nil {
		ledger = engine.NewMemLedger(opts...)
	} else {
		ledger, err = engine.Open(ctx, journal, opts...)
		if err != nil {
			journal.Close()
			return errors.Wrap(err, "open ledger")
		}
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close ledger")
		}
	}()

	seedFile, err := seed.Load(cfg.Storage.SeedPath)
	if err != nil {
		return errors.Wrap(err, "load seed")
	}
	if cfg.Storage.SeedOnEmpty && ledger.Len() == 0 {
		if err := seed.Apply(ctx, ledger, seedFile, log); err != nil {
			return errors.Wrap(err, "apply seed")
		}
	}
	log.Info().
		Str("driver", cfg.Storage.Driver).
		Int("works", ledger.Len()).
		Int("agents", len(seedFile.Agents)).
		Msg("ledger ready")

	agents := identity.NewDirectory(seedFile.Agents)
	gen, err := textgen.New(cfg.TextGen, log)
	if err != nil {
		return errors.Wrap(err, "text generator")
	}
	flows := orchestrator.New(ledger, agents, gen,
		orchestrator.WithMusic(music.NewClient(cfg.Music, log)),
		orchestrator.WithMusicDuration(cfg.Music.DefaultDuration),
		orchestrator.WithMetrics(collector),
		orchestrator.WithLogger(log),
	)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(&api.Handler{Ledger: ledger, Agents: agents, Flows: flows}, api.RouterConfig{
		CORSOrigin: cfg.Server.CORSOrigin,
		RateLimit:  cfg.RateLimit,
		Metrics:    collector.Handler(),
		Log:        log,
	})
	// flows run on the request context, so they end with the daemon
	httpSrv := &http.Server{
		Addr:        ":" + cfg.Server.HTTPPort,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	tcp := server.NewRouter(ledger, log)
	tcp.SetMaxConns(cfg.Server.MaxConns)
	if !cfg.Server.DisableTLS {
		cert, err := vault.GenerateSelfSignedCert(cfg.Server.TLSHosts...)
		if err != nil {
			return errors.Wrap(err, "generate TLS certificate")
		}
		tcp.SetCertificate(cert)
	} else {
		log.Warn().Msg("TLS disabled for the TCP listener")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		return errors.Wrap(tcp.Listen(cfg.Server.TCPPort), "tcp server")
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tcp.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop TCP server")
		}
		return errors.Wrap(httpSrv.Shutdown(shutdownCtx), "http shutdown")
	})
	return g.Wait()
}

// openJournal returns the journal for the configured driver, or nil for the
// memory driver.
func openJournal(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (engine.Journal, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn().Msg("memory storage: records are lost on exit")
		return nil, nil
	case config.DriverFile:
		return engine.NewFileJournal(cfg.DataDir, log)
	case config.DriverSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return sqljournal.Open(ctx, sqljournal.DriverSQLite, cfg.SQLiteDSN(), log)
	case config.DriverPostgres:
		return sqljournal.Open(ctx, sqljournal.DriverPostgres, cfg.DSN, log)
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
