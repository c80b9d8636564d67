package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/draftroom-io/floorplan/internal/config"
	"github.com/draftroom-io/floorplan/internal/infra/storage"
	"github.com/draftroom-io/floorplan/internal/middleware"
	"github.com/draftroom-io/floorplan/internal/modules/handler"
	"github.com/draftroom-io/floorplan/internal/modules/serializer"
)

type RouterDeps struct {
	Config           *config.Config
	Log              *zap.Logger
	Store            *storage.Store
	DrawingHandler   *handler.DrawingHandler
	FloorPlanHandler *handler.FloorPlanHandler
	ExportHandler    *handler.ExportHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if d.Config.Telemetry.Enabled && d.Config.Telemetry.OtlpEndpoint != "" {
		r.Use(middleware.OtelTracing(d.Config.App.Name))
		r.Use(middleware.TraceID())
	}

	r.Use(middleware.ZapLogger(d.Log))

	// health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, serializer.Response{Msg: "ok"}) })

	// rendered previews, committed plans and exports are plain files under
	// the asset root
	r.Static("/assets", d.Store.Root())

	v1 := r.Group("/api/v1")
	{
		drawings := v1.Group("/drawings")
		{
			drawings.POST("/ingest", d.DrawingHandler.Ingest)
			drawings.POST("/process", d.DrawingHandler.Process)
		}

		v1.POST("/previews", d.DrawingHandler.Preview)

		floorPlans := v1.Group("/floor-plans")
		{
			floorPlans.POST("", d.FloorPlanHandler.Commit)
			floorPlans.POST("/link", d.FloorPlanHandler.Link)
			floorPlans.POST("/export", d.ExportHandler.Export)
			floorPlans.GET("/:plan_id", d.FloorPlanHandler.Get)
			floorPlans.DELETE("/:plan_id", d.FloorPlanHandler.Delete)
			floorPlans.GET("/:plan_id/exports", d.ExportHandler.ListExports)
		}

		v1.GET("/projects/:project_id/floor-plans", d.FloorPlanHandler.ListForProject)
		v1.GET("/exports/images/:image_id", d.ExportHandler.GetImage)
		v1.GET("/keywords/tree", d.FloorPlanHandler.KeywordTree)
	}
	return r
}
