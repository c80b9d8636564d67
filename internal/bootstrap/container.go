package bootstrap

import (
	"crypto/tls"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/draftroom-io/floorplan/internal/config"
	"github.com/draftroom-io/floorplan/internal/infra/cache"
	"github.com/draftroom-io/floorplan/internal/infra/db"
	"github.com/draftroom-io/floorplan/internal/infra/logger"
	mq "github.com/draftroom-io/floorplan/internal/infra/queue"
	"github.com/draftroom-io/floorplan/internal/infra/storage"
	"github.com/draftroom-io/floorplan/internal/modules/handler"
	"github.com/draftroom-io/floorplan/internal/modules/model"
	"github.com/draftroom-io/floorplan/internal/modules/repo"
	"github.com/draftroom-io/floorplan/internal/modules/service"
	"github.com/draftroom-io/floorplan/internal/pkg/session"
)

func BuildContainer() *do.Injector {
	inj := do.New()

	// config
	do.Provide(inj, func(i *do.Injector) (*config.Config, error) {
		return config.Load()
	})

	// logger
	do.Provide(inj, func(i *do.Injector) (*zap.Logger, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return logger.New(cfg.Log.Level)
	})

	// DB
	do.Provide(inj, func(i *do.Injector) (*gorm.DB, error) {
		cfg := do.MustInvoke[*config.Config](i)
		d, err := db.New(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := d.AutoMigrate(
				&model.FloorPlan{},
				&model.ProjectDxfLink{},
			); err != nil {
				return nil, err
			}
		}
		return d, nil
	})

	// Redis
	do.Provide(inj, func(i *do.Injector) (*redis.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return cache.New(cfg)
	})

	// Asset storage
	do.Provide(inj, func(i *do.Injector) (*storage.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return storage.New(cfg.Storage.Root)
	})

	// Session store
	do.Provide(inj, func(i *do.Injector) (*session.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		rdb := do.MustInvoke[*redis.Client](i)
		return session.NewStore(rdb, cfg.Session.UploadTTL, cfg.Session.PreviewTTL), nil
	})

	// RabbitMQ DialFunc for connection and reconnection
	do.Provide(inj, func(i *do.Injector) (mq.DialFunc, error) {
		cfg := do.MustInvoke[*config.Config](i)

		dialFn := func() (*amqp.Connection, error) {
			useTLS := cfg.RabbitMQ.EnableTLS || strings.HasPrefix(cfg.RabbitMQ.URL, "amqps://")
			if useTLS {
				tlsConfig := &tls.Config{
					MinVersion: tls.VersionTLS12,
				}
				url := cfg.RabbitMQ.URL
				if strings.HasPrefix(url, "amqp://") {
					url = strings.Replace(url, "amqp://", "amqps://", 1)
				}
				return amqp.DialTLS(url, tlsConfig)
			}
			return amqp.Dial(cfg.RabbitMQ.URL)
		}
		return dialFn, nil
	})

	// Domain events, optional: no broker URL means no publisher
	do.Provide(inj, func(i *do.Injector) (service.EventPublisher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.RabbitMQ.URL == "" {
			return nil, nil
		}
		dialFn := do.MustInvoke[mq.DialFunc](i)
		conn, err := dialFn()
		if err != nil {
			return nil, err
		}
		log := do.MustInvoke[*zap.Logger](i)
		return mq.NewPublisher(conn, log, cfg)
	})

	// Repo
	do.Provide(inj, func(i *do.Injector) (repo.FloorPlanRepo, error) {
		return repo.NewFloorPlanRepo(do.MustInvoke[*gorm.DB](i)), nil
	})

	// Service
	do.Provide(inj, func(i *do.Injector) (service.FloorPlanService, error) {
		return service.NewFloorPlanService(
			do.MustInvoke[repo.FloorPlanRepo](i),
			do.MustInvoke[*storage.Store](i),
			do.MustInvoke[*session.Store](i),
			do.MustInvoke[service.EventPublisher](i),
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.DrawingService, error) {
		return service.NewDrawingService(
			do.MustInvoke[*storage.Store](i),
			do.MustInvoke[*session.Store](i),
			do.MustInvoke[service.FloorPlanService](i),
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.ExportService, error) {
		return service.NewExportService(
			do.MustInvoke[repo.FloorPlanRepo](i),
			do.MustInvoke[*storage.Store](i),
			do.MustInvoke[service.EventPublisher](i),
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	// Handler
	do.Provide(inj, func(i *do.Injector) (*handler.DrawingHandler, error) {
		return handler.NewDrawingHandler(do.MustInvoke[service.DrawingService](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*handler.FloorPlanHandler, error) {
		return handler.NewFloorPlanHandler(do.MustInvoke[service.FloorPlanService](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*handler.ExportHandler, error) {
		return handler.NewExportHandler(do.MustInvoke[service.ExportService](i)), nil
	})

	return inj
}
