package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"ansregistry/internal/ca"
	"ansregistry/internal/challenge"
	"ansregistry/internal/platform/config"
	"ansregistry/internal/platform/httpserver"
	"ansregistry/internal/platform/logger"
	"ansregistry/internal/registration"
	reghandler "ansregistry/internal/registration/handler"
	regmetrics "ansregistry/internal/registration/metrics"
	"ansregistry/internal/registry/store"
	"ansregistry/internal/translog"
	loghandler "ansregistry/internal/translog/handler"
	httptransport "ansregistry/internal/transport/http"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authority := ca.New(cfg.CADir, log)
	if err := authority.Initialize(ctx); err != nil {
		log.Error("certificate authority initialization failed", "error", err)
		os.Exit(1)
	}

	var (
		agents     store.AgentStore
		challenges store.ChallengeStore
		logStore   translog.Store
		txRunner   registration.StoreTx
	)
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, running on in-memory stores")
		memAgents := store.NewInMemoryAgentStore()
		memChallenges := store.NewInMemoryChallengeStore()
		memLog := translog.NewMemoryStore()
		agents = memAgents
		challenges = memChallenges
		logStore = memLog
		txRunner = store.NewMemoryTx(memAgents, memChallenges, memLog)
	} else {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("database open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if _, err := db.ExecContext(ctx, store.Schema); err != nil {
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		agents = store.NewPostgresAgentStore(db)
		challenges = store.NewPostgresChallengeStore(db)
		logStore = translog.NewPostgresStore(db)
		txRunner = newRegistryPostgresTx(db)
	}

	transparency := translog.New(logStore)
	service := registration.NewService(registration.Config{
		Agents:     agents,
		Challenges: challenge.NewManager(challenges, challenge.WithTTL(cfg.ChallengeTTL)),
		CA:         authority,
		DNS: registration.NewDNSValidator(registration.DNSValidatorConfig{
			Timeout:   cfg.DNSTimeout,
			Attempts:  cfg.DNSAttempts,
			RetryWait: cfg.DNSRetryWait,
		}, log),
		Log:     transparency,
		Tx:      txRunner,
		Logger:  log,
		Metrics: regmetrics.New(),
	})

	router := httptransport.NewRouter(httptransport.Config{
		Logger:        log,
		CAFingerprint: authority.Fingerprint(),
		Handlers: []httptransport.Registrar{
			reghandler.New(service, log),
			loghandler.New(transparency, log),
		},
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting ans-registry",
			"addr", cfg.Addr,
			"ca_fingerprint", authority.Fingerprint(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
