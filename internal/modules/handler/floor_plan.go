package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/draftroom-io/floorplan/internal/modules/serializer"
	"github.com/draftroom-io/floorplan/internal/modules/service"
)

type FloorPlanHandler struct {
	svc service.FloorPlanService
}

func NewFloorPlanHandler(s service.FloorPlanService) *FloorPlanHandler {
	return &FloorPlanHandler{svc: s}
}

type commitRequest struct {
	PreviewID     string   `json:"preview_id" binding:"required"`
	ProjectID     string   `json:"project_id"`
	SelectedPaths []string `json:"selected_paths" binding:"required,min=1"`
}

// Commit godoc
//
//	@Summary		Commit a preview selection
//	@Description	Consume the preview session and persist the selected views as a floor plan
//	@Tags			floor-plan
//	@Accept			json
//	@Produce		json
//	@Param			request	body	commitRequest	true	"Selection"
//	@Success		201	{object}	serializer.Response{data=model.FloorPlan}
//	@Router			/floor-plans [post]
func (h *FloorPlanHandler) Commit(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	paths := make([]string, 0, len(req.SelectedPaths))
	for _, p := range req.SelectedPaths {
		paths = append(paths, assetPath(p))
	}

	fp, err := h.svc.Commit(c.Request.Context(), service.CommitInput{
		PreviewID:     req.PreviewID,
		ProjectID:     req.ProjectID,
		SelectedPaths: paths,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, serializer.Response{Data: gin.H{"floor_plan_id": fp.ID, "floor_plan": fp}})
}

// Get godoc
//
//	@Summary		Get a floor plan
//	@Tags			floor-plan
//	@Produce		json
//	@Param			plan_id	path	string	true	"Floor plan ID"
//	@Success		200	{object}	serializer.Response{data=service.FloorPlanDetail}
//	@Router			/floor-plans/{plan_id} [get]
func (h *FloorPlanHandler) Get(c *gin.Context) {
	detail, err := h.svc.Get(c.Request.Context(), c.Param("plan_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: detail})
}

// Delete godoc
//
//	@Summary		Delete a floor plan
//	@Description	Remove the plan, its project links and its rendered assets
//	@Tags			floor-plan
//	@Produce		json
//	@Param			plan_id	path	string	true	"Floor plan ID"
//	@Success		200	{object}	serializer.Response{}
//	@Router			/floor-plans/{plan_id} [delete]
func (h *FloorPlanHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("plan_id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{})
}

type linkRequest struct {
	ProjectID   string `json:"project_id" binding:"required"`
	FloorPlanID string `json:"floor_plan_id" binding:"required"`
}

// Link godoc
//
//	@Summary		Link a floor plan to a project
//	@Description	Idempotent; relinking an existing pair is a no-op
//	@Tags			floor-plan
//	@Accept			json
//	@Produce		json
//	@Param			request	body	linkRequest	true	"Link"
//	@Success		200	{object}	serializer.Response{}
//	@Router			/floor-plans/link [post]
func (h *FloorPlanHandler) Link(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	if err := h.svc.Link(c.Request.Context(), req.ProjectID, req.FloorPlanID); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{})
}

// ListForProject godoc
//
//	@Summary		List a project's floor plans
//	@Tags			floor-plan
//	@Produce		json
//	@Param			project_id	path	string	true	"Project ID"
//	@Success		200	{object}	serializer.Response{data=[]service.FloorPlanDetail}
//	@Router			/projects/{project_id}/floor-plans [get]
func (h *FloorPlanHandler) ListForProject(c *gin.Context) {
	plans, err := h.svc.ListForProject(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: plans})
}

// KeywordTree godoc
//
//	@Summary		Keyword tree of saved plans
//	@Description	Single root node whose children are every committed image with keyword, filename and path
//	@Tags			floor-plan
//	@Produce		json
//	@Success		200	{object}	serializer.Response{data=service.KeywordTree}
//	@Router			/keywords/tree [get]
func (h *FloorPlanHandler) KeywordTree(c *gin.Context) {
	tree, err := h.svc.KeywordTree(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: tree})
}
