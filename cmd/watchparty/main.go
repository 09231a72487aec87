package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mantonx/watchparty/internal/config"
	"github.com/mantonx/watchparty/internal/database"
	"github.com/mantonx/watchparty/internal/logger"
	"github.com/mantonx/watchparty/internal/modules/modulemanager"
	"github.com/mantonx/watchparty/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("WATCHPARTY_CONFIG"), "path to config file")
	flag.Parse()

	if err := config.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	logger.Setup(cfg.Logging.Level, cfg.Logging.JSON)
	log := logger.Named("main")

	if err := database.Initialize(&cfg.Database); err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	router, err := server.SetupRouter(cfg)
	if err != nil {
		log.Error("failed to set up server", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting watchparty server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	modulemanager.ShutdownAll(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("server stopped")
}
