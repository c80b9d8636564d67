package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/draftroom-io/floorplan/internal/bootstrap"
	"github.com/draftroom-io/floorplan/internal/config"
	"github.com/draftroom-io/floorplan/internal/infra/cache"
	"github.com/draftroom-io/floorplan/internal/infra/db"
	"github.com/draftroom-io/floorplan/internal/infra/storage"
	"github.com/draftroom-io/floorplan/internal/modules/handler"
	"github.com/draftroom-io/floorplan/internal/router"
	"github.com/draftroom-io/floorplan/internal/telemetry"
)

func main() {
	inj := bootstrap.BuildContainer()

	cfg := do.MustInvoke[*config.Config](inj)
	log := do.MustInvoke[*zap.Logger](inj)
	defer func() { _ = log.Sync() }()

	if tp, err := telemetry.SetupTracing(cfg); err != nil {
		log.Fatal("setup tracing", zap.Error(err))
	} else if tp != nil {
		if err := db.RegisterOpenTelemetryPlugin(do.MustInvoke[*gorm.DB](inj)); err != nil {
			log.Warn("register gorm tracing", zap.Error(err))
		}
		if err := cache.RegisterOpenTelemetryPlugin(do.MustInvoke[*redis.Client](inj)); err != nil {
			log.Warn("register redis tracing", zap.Error(err))
		}
	}

	r := router.NewRouter(router.RouterDeps{
		Config:           cfg,
		Log:              log,
		Store:            do.MustInvoke[*storage.Store](inj),
		DrawingHandler:   do.MustInvoke[*handler.DrawingHandler](inj),
		FloorPlanHandler: do.MustInvoke[*handler.FloorPlanHandler](inj),
		ExportHandler:    do.MustInvoke[*handler.ExportHandler](inj),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: r,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	if err := telemetry.Shutdown(ctx); err != nil {
		log.Error("tracing shutdown", zap.Error(err))
	}
	if err := inj.Shutdown(); err != nil {
		log.Error("container shutdown", zap.Error(err))
	}
}
