// Package main starts the FinKeeper reference finance service: it sets up
// configuration, logging, the PostgreSQL connection, repositories, services
// and handlers, and serves HTTP or HTTPS.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/FinKeeper/internal/config"
	"github.com/atinyakov/FinKeeper/internal/db"
	"github.com/atinyakov/FinKeeper/internal/logger"
	"github.com/atinyakov/FinKeeper/internal/repository"
	"github.com/atinyakov/FinKeeper/internal/server/handler/http"
	"github.com/atinyakov/FinKeeper/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command-line and environment configuration.
	options, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(2)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	// Purge expired sessions in the background.
	db.StartSessionCleaner(ctx, postgresDB, options.CleanupInterval, zapLogger.Named("cleaner"))

	// Initialize repositories for accounts and finance data.
	authRepo := repository.NewPostgresAuthRepository(postgresDB)
	financeRepo := repository.NewPostgresFinanceRepository(postgresDB)

	// Initialize business-logic services.
	authService := service.NewAuthService(authRepo, options.SessionTTL)
	financeService := service.NewFinanceService(financeRepo)

	// Create HTTP handlers for auth and finance endpoints.
	authHandler := &http.AuthHandler{AuthService: authService, Logger: zapLogger}
	financeHandler := &http.FinanceHandler{FinanceService: financeService, Logger: zapLogger}

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, financeHandler, authService, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("shutdown", zap.Error(err))
		}
	}()

	if options.TLSCert != "" && options.TLSKey != "" {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}
