// Command server is the mailroom core's entry point: it loads
// configuration, opens the embedded store, starts the write queue,
// and serves the HTTP API until told to shut down.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bpsong/mailroom/internal/audit"
	"github.com/bpsong/mailroom/internal/config"
	"github.com/bpsong/mailroom/internal/httpapi"
	"github.com/bpsong/mailroom/internal/identity"
	"github.com/bpsong/mailroom/internal/logger"
	"github.com/bpsong/mailroom/internal/packages"
	"github.com/bpsong/mailroom/internal/settings"
	"github.com/bpsong/mailroom/internal/store"
	"github.com/bpsong/mailroom/internal/writequeue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.LogLevel, cfg.AppEnv != config.Production)
	log := logger.GetLogger()

	log.Info().Str("database_path", cfg.DatabasePath).Msg("opening store")
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		log.Fatal().Err(err).Msg("failed to create upload directory")
	}

	queue := writequeue.New(st)
	queueCtx, cancelQueue := context.WithCancel(context.Background())
	go queue.Run(queueCtx)

	auditSink := audit.New(queue)

	policy := identity.DefaultPolicy()
	policy.Argon2TimeCost = cfg.Argon2TimeCost
	policy.Argon2MemoryCostKiB = cfg.Argon2MemoryCostKiB
	policy.Argon2Parallelism = cfg.Argon2Parallelism
	policy.PasswordMinLength = cfg.PasswordMinLength
	policy.PasswordHistory = cfg.PasswordHistoryCount
	policy.MaxFailedLogins = cfg.MaxFailedLogins
	policy.LockoutDuration = cfg.AccountLockoutDuration
	policy.SessionTTL = cfg.SessionTimeout
	policy.MaxConcurrentSess = cfg.MaxConcurrentSessions

	identitySvc := identity.New(st, queue, auditSink, policy)
	packagesCore := packages.New(st, queue, auditSink, cfg.UploadDir)
	settingsStore := settings.New(st, queue, auditSink)

	router := httpapi.NewRouter(httpapi.Deps{
		Config:    cfg,
		Store:     st,
		Queue:     queue,
		Identity:  identitySvc,
		Audit:     auditSink,
		Packages:  packagesCore,
		Settings:  settingsStore,
		StartedAt: time.Now(),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler: router,

		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", string(cfg.AppEnv)).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server forced to shut down")
	}

	queue.Shutdown(shutdownCtx)
	cancelQueue()

	log.Info().Msg("shutdown complete")
}
