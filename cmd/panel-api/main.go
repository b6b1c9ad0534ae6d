package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/api"
	"github.com/edvin/panel/internal/catalog"
	"github.com/edvin/panel/internal/certs"
	"github.com/edvin/panel/internal/config"
	"github.com/edvin/panel/internal/configfile"
	"github.com/edvin/panel/internal/cron"
	"github.com/edvin/panel/internal/crypto"
	"github.com/edvin/panel/internal/db"
	"github.com/edvin/panel/internal/deploy"
	"github.com/edvin/panel/internal/engine"
	"github.com/edvin/panel/internal/firewall"
	"github.com/edvin/panel/internal/hostexec"
	"github.com/edvin/panel/internal/installer"
	"github.com/edvin/panel/internal/logging"
	"github.com/edvin/panel/internal/metrics"
	"github.com/edvin/panel/internal/ops"
	"github.com/edvin/panel/internal/registry"
	"github.com/edvin/panel/internal/store"
	"github.com/edvin/panel/internal/supervisor"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]api.Check{}

	var st store.Store
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set; certificates, cron jobs and firewall rules are kept in memory")
		st = store.NewMemory()
	} else {
		if *migrateFlag {
			logger.Info().Msg("running database migrations")
			if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
				logger.Fatal().Err(err).Msg("migration failed")
			}
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		metrics.RegisterPgxPoolMetrics(pool)
		checks["database"] = pool.Ping
		pg := store.NewPostgres(pool)
		if cfg.SecretKey != "" {
			key, err := crypto.ParseKey(cfg.SecretKey)
			if err != nil {
				logger.Fatal().Err(err).Msg("invalid SECRET_KEY")
			}
			pg.WithSecretKey(key)
		} else {
			logger.Warn().Msg("SECRET_KEY not set; certificate private keys are stored unsealed")
		}
		st = pg
	}

	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		if cat, err = catalog.Load(cfg.CatalogFile); err != nil {
			logger.Fatal().Err(err).Str("file", cfg.CatalogFile).Msg("failed to load catalog")
		}
	}
	reg, err := registry.New(cat)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid catalog")
	}
	if cfg.ConfigFiles {
		reg.UseConfigFiles(configfile.Host{})
	}

	feed := activity.NewFeed(st, logger)
	runner := hostexec.NewExecRunner(logger)
	tracker := ops.NewTracker(logger, cfg.WorkerPoolSize)

	sup := supervisor.New(reg, supervisor.NewSystemd(runner, logger), feed, logger, cfg.ReconcileInterval)
	inst := installer.New(reg, installer.NewApt(runner, logger), installer.NewPHPExtensions(runner, logger), tracker, sup, feed, logger)
	if err := inst.Detect(ctx); err != nil {
		logger.Warn().Err(err).Msg("package detection incomplete")
	}

	docker, err := engine.NewDocker(cfg.DockerHost, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create docker client")
	}
	defer docker.Close()
	eng := engine.New(docker, reg, feed, logger)
	checks["docker"] = eng.Ping

	deployer := deploy.New(deploy.NewTemplates(cat.Templates), docker, reg, tracker, feed, deploy.HostMemory, logger)

	issuer := certs.NewACMEIssuer(cfg.ACMEDirectoryURL, cfg.ACMEWebroot, logger)
	certMgr := certs.NewManager(st, issuer, tracker, feed, logger, certs.Options{
		CertDir:      cfg.CertDir,
		DefaultEmail: cfg.ACMEEmail,
	})

	cronEngine := cron.New(st, cron.NewHostExecutor(runner, &http.Client{Timeout: cron.DefaultRunTimeout}), feed, logger, cfg.CronWorkers)

	var fwRunner hostexec.Runner
	if cfg.FirewallApply {
		fwRunner = runner
	}
	fw := firewall.New(st, feed, fwRunner, logger)

	go sup.RunLoop(ctx)
	go certMgr.RunRenewLoop(ctx, cfg.RenewInterval)
	go cronEngine.RunLoop(ctx)

	srv := api.NewServer(logger, api.Services{
		Registry:   reg,
		Supervisor: sup,
		Installer:  inst,
		Tracker:    tracker,
		Engine:     eng,
		Deployer:   deployer,
		Certs:      certMgr,
		Cron:       cronEngine,
		Firewall:   fw,
		Feed:       feed,
	}, checks, cfg)

	tlsConfig, err := cfg.ServerTLS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure TLS")
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		TLSConfig:    tlsConfig,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Bool("tls", tlsConfig != nil).Msg("starting panel API server")
		var err error
		if tlsConfig != nil {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsListenAddr != "" {
		metricsServer = metrics.NewServer(cfg.MetricsListenAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	shutdown(shutdownCtx, logger, httpServer, metricsServer)

	cancel()
	if err := tracker.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("operations still running at shutdown")
	}
	cronEngine.Wait()
}

func shutdown(ctx context.Context, logger zerolog.Logger, servers ...*http.Server) {
	for _, s := range servers {
		if s == nil {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", s.Addr).Msg("server shutdown")
		}
	}
}
