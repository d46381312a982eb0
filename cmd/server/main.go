package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/api"
	"chat-relay/auth"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	readScope, err := config.ReadScope()
	if err != nil {
		return exitConfig, err
	}

	logger := internal.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & Domain Services
	messageRepository := repositories.NewMessageRepository(db, logger, lo.ToPtr(config.HistoryPageLimit))
	userRepository := repositories.NewUserRepository(db)
	tokenManager := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(userRepository, tokenManager)

	// 4. Delivery Engine & Presence
	monitor := observability.NewMonitor()
	registry := runtime.NewRegistry()
	runtime.NewPresence(logger, registry)
	delivery := runtime.NewDelivery(logger, messageRepository, userRepository, registry, monitor, readScope)

	// 5. Supervision
	sup := workers.NewSupervisor(logger).
		Add(workers.NewTelemetryWorker(logger, config.TelemetryInterval, monitor, registry))

	// 6. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	// 7. HTTP Server Setup
	router := api.NewRouter(api.Routes{
		Auth:      api.NewAuthHandler(logger, authService, userRepository),
		Messages:  api.NewMessageHandler(logger, messageRepository, userRepository),
		Uploads:   api.NewUploadHandler(logger, userRepository, config.UploadDir, config.MaxUploadBytes),
		WS:        api.NewWSHandler(logger, tokenManager, registry, delivery, userRepository, monitor, config.AuthTimeout, config.SendBufferSize, config.WriteTimeout),
		Health:    api.NewHealthHandler(monitor, registry),
		Verifier:  tokenManager,
		Users:     userRepository,
		UploadDir: config.UploadDir,
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Use an error channel to capture ListenAndServe issues asynchronously.
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting relay server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 9. Final Cleanup (Graceful Shutdown)
	// In-flight requests get a grace period, then the listener closes and the
	// delivery channels drain as their sessions end.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Forcing server close", "error", err)
		_ = server.Close()
	}

	// Shutdown does not wait for hijacked websocket connections. Close them
	// through the registry and let their sessions deregister before the
	// deferred badger close pulls the store from under them.
	registry.CloseAll(websocket.CloseGoingAway, "server shutting down")
	drainDeadline := time.Now().Add(2 * time.Second)
	for len(registry.OnlineIDs()) > 0 && time.Now().Before(drainDeadline) {
		time.Sleep(50 * time.Millisecond)
	}

	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
