package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bihua-university/melodex/internal/base"
	"github.com/bihua-university/melodex/internal/library"
)

func main() {
	base.InitConfig()
	cfg := base.Config

	log, err := base.NewLogger(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := library.Open(cfg.DBDriver, cfg.DSN, log.Named("library"))
	if err != nil {
		log.Fatal("open library", zap.Error(err))
	}
	defer store.Close()

	app, err := NewApp(cfg, store, log)
	if err != nil {
		log.Fatal("init app", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		app.worker.Run(ctx)
	}()

	srv := &http.Server{Addr: cfg.Addr, Handler: app.Router()}
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	app.worker.Stop()
	<-workerDone
}
