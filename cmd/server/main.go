// @title           Barcode Server API
// @version         1.0
// @description     Barcode and receipt image tracking with live change events.
// @BasePath        /api
// @schemes         http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"barcode-server/internal/api"
	"barcode-server/internal/config"
	"barcode-server/internal/database"
	"barcode-server/internal/logger"
	"barcode-server/internal/storage"
	"barcode-server/internal/websocket"

	_ "barcode-server/docs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logg.Sync()

	if cfg.JWT.Secret == "" {
		logg.Fatalw("jwt.secret is not set (JWT_SECRET)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.DB, logg)
	if err != nil {
		logg.Fatalw("failed to open store", "driver", cfg.DB.Driver, "error", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logg.Errorw("failed to close store", "error", err)
		}
	}()

	localStorage, err := storage.NewLocalStorage(cfg.Storage.Path)
	if err != nil {
		logg.Fatalw("failed to initialize upload storage", "path", cfg.Storage.Path, "error", err)
	}
	logg.Infow("uploads will be stored on disk", "path", cfg.Storage.Path)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	wsHub := websocket.NewHub(logg)
	go wsHub.Run(hubCtx)

	server := api.NewServer(cfg, store, localStorage, wsHub, logg)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logg.Infow("starting server", "addr", cfg.Server.Addr, "db_driver", cfg.DB.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Errorw("server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logg.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Errorw("graceful shutdown failed", "error", err)
	}
	stopHub()
}
