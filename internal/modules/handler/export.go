package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/draftroom-io/floorplan/internal/modules/serializer"
	"github.com/draftroom-io/floorplan/internal/modules/service"
)

type ExportHandler struct {
	svc service.ExportService
}

func NewExportHandler(s service.ExportService) *ExportHandler {
	return &ExportHandler{svc: s}
}

type exportRequest struct {
	FloorID   string `json:"floor_id" binding:"required"`
	Floor     string `json:"floor" binding:"required"`
	ViewIndex *int   `json:"view_index" binding:"required"`
}

// Export godoc
//
//	@Summary		Export a committed view
//	@Description	Copy one view of a floor plan into its job output directory
//	@Tags			export
//	@Accept			json
//	@Produce		json
//	@Param			request	body	exportRequest	true	"View to export"
//	@Success		200	{object}	serializer.Response{data=service.ExportOutput}
//	@Router			/floor-plans/export [post]
func (h *ExportHandler) Export(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	out, err := h.svc.Export(c.Request.Context(), service.ExportInput{
		FloorID:   req.FloorID,
		Floor:     req.Floor,
		ViewIndex: *req.ViewIndex,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: out})
}

// ListExports godoc
//
//	@Summary		List a plan's exported images
//	@Tags			export
//	@Produce		json
//	@Param			plan_id	path	string	true	"Floor plan ID"
//	@Success		200	{object}	serializer.Response{data=[]string}
//	@Router			/floor-plans/{plan_id}/exports [get]
func (h *ExportHandler) ListExports(c *gin.Context) {
	names, err := h.svc.ListExports(c.Request.Context(), c.Param("plan_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: names})
}

// GetImage godoc
//
//	@Summary		Fetch an exported image
//	@Tags			export
//	@Produce		image/png
//	@Param			image_id	path	string	true	"Exported image name without extension"
//	@Success		200	{file}	binary
//	@Router			/exports/images/{image_id} [get]
func (h *ExportHandler) GetImage(c *gin.Context) {
	img, err := h.svc.GetExportedImage(c.Request.Context(), c.Param("image_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.Data(http.StatusOK, img.MIME, img.Data)
}
