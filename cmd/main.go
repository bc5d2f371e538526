/*
Package main is the entry point for the pairchat server.

It loads configuration (with .env support), initializes the global logging
system, opens the persistence store, sets up the HTTP server hosting the
WebSocket endpoint, and handles operating system interrupt signals so shutdown
closes every session and flushes the store.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pairchat/internal/app/chat"
	"pairchat/internal/app/store"
	"pairchat/internal/configs"
	"pairchat/internal/handler"
	"pairchat/internal/pkg/logx"
)

func main() {
	// Load .env when present, then configuration from environment variables
	_ = godotenv.Load()

	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("store_backend", cfg.StoreBackend).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("login_max_attempts", cfg.LoginMaxAttempts).
		Dur("auth_timeout", cfg.AuthTimeout).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the persistence store. A corrupt document is fatal unless salvage
	// mode is enabled.
	st, err := openStore(cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open persistence store")
	}

	// Initialize the session layer
	service := chat.NewService(st)
	registry := chat.NewRegistry()

	// Setup HTTP server and routes
	deps := &handler.AppDeps{
		Service:  service,
		Registry: registry,
		Config:   cfg,
	}
	router := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("pairchat server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	registry.Shutdown()

	if err := service.Flush(shutdownCtx); err != nil {
		logx.Error(err, "Failed to flush store during shutdown")
	}

	if err := st.Close(); err != nil {
		logx.Error(err, "Failed to close store")
	}

	logx.Info("Server gracefully stopped.")
}

// openStore builds the configured store backend.
func openStore(cfg *configs.AppConfig) (store.Store, error) {
	switch cfg.StoreBackend {
	case configs.StoreBackendPostgres:
		return store.OpenPostgres(cfg.DatabaseDSN)
	default:
		return store.OpenJSONFile(cfg.UsersFile, cfg.RoomsFile, cfg.StoreSalvage)
	}
}
