package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/draftroom-io/floorplan/internal/modules/serializer"
	"github.com/draftroom-io/floorplan/internal/modules/service"
)

type DrawingHandler struct {
	svc service.DrawingService
}

func NewDrawingHandler(s service.DrawingService) *DrawingHandler {
	return &DrawingHandler{svc: s}
}

// Ingest godoc
//
//	@Summary		Ingest drawings
//	@Description	Upload DXF drawings and get back the keyword inventories to preview from
//	@Tags			drawing
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			files					formData	file	true	"DXF drawing files"
//	@Param			keywords				formData	string	false	"Keyword allow-list"
//	@Param			blacklist				formData	string	false	"Keyword blacklist override"
//	@Param			excluded_layer_names	formData	string	false	"Layers to drop entirely"
//	@Success		200	{object}	serializer.Response{data=service.IngestOutput}
//	@Router			/drawings/ingest [post]
func (h *DrawingHandler) Ingest(c *gin.Context) {
	files, err := formFiles(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	out, err := h.svc.Ingest(c.Request.Context(), service.IngestInput{
		Files:              files,
		Keywords:           c.PostFormArray("keywords"),
		Blacklist:          formList(c, "blacklist"),
		ExcludedLayerNames: c.PostFormArray("excluded_layer_names"),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: out})
}

type previewRequest struct {
	TempID             string   `json:"temp_id" binding:"required"`
	Keywords           []string `json:"keywords" binding:"required,min=1"`
	DPI                float64  `json:"dpi"`
	Blacklist          []string `json:"blacklist"`
	ExcludedLayerNames []string `json:"excluded_layer_names"`
	EntityTypes        []string `json:"entity_types"`
}

type previewImage struct {
	Keyword string `json:"keyword"`
	Source  string `json:"source"`
	Path    string `json:"path"`
	URL     string `json:"url"`
}

type previewResponse struct {
	PreviewID   string               `json:"preview_id"`
	Images      []previewImage       `json:"images"`
	ImageURLs   []string             `json:"image_urls"`
	FailedViews []service.FailedView `json:"failed_views,omitempty"`
}

// Preview godoc
//
//	@Summary		Generate preview images
//	@Description	Render one image per view of every requested keyword and open a preview session
//	@Tags			drawing
//	@Accept			json
//	@Produce		json
//	@Param			request	body	previewRequest	true	"Preview request"
//	@Success		200	{object}	serializer.Response{data=previewResponse}
//	@Router			/previews [post]
func (h *DrawingHandler) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	out, err := h.svc.Preview(c.Request.Context(), service.PreviewInput{
		TempID:             req.TempID,
		Keywords:           req.Keywords,
		DPI:                req.DPI,
		Blacklist:          req.Blacklist,
		ExcludedLayerNames: req.ExcludedLayerNames,
		EntityTypes:        req.EntityTypes,
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	resp := previewResponse{PreviewID: out.PreviewID, FailedViews: out.FailedViews}
	for _, ref := range out.Images {
		resp.Images = append(resp.Images, previewImage{
			Keyword: ref.Keyword,
			Source:  ref.Source,
			Path:    ref.Path,
			URL:     assetURL(ref.Path),
		})
		resp.ImageURLs = append(resp.ImageURLs, assetURL(ref.Path))
	}
	c.JSON(http.StatusOK, serializer.Response{Data: resp})
}

// Process godoc
//
//	@Summary		Process drawings immediately
//	@Description	Parse, render and commit every matched view without a preview round
//	@Tags			drawing
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			files		formData	file	true	"DXF drawing files"
//	@Param			keywords	formData	string	false	"Keyword allow-list"
//	@Param			dpi			formData	number	false	"Raster resolution"
//	@Param			project_id	formData	string	false	"Project to link the plans to"
//	@Success		200	{object}	serializer.Response{data=service.ProcessOutput}
//	@Router			/drawings/process [post]
func (h *DrawingHandler) Process(c *gin.Context) {
	files, err := formFiles(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	var dpi float64
	if raw := c.PostForm("dpi"); raw != "" {
		dpi, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, serializer.ParamErr("bad dpi", err))
			return
		}
	}

	out, err := h.svc.ProcessImmediate(c.Request.Context(), service.ProcessInput{
		Files:              files,
		Keywords:           c.PostFormArray("keywords"),
		DPI:                dpi,
		Blacklist:          formList(c, "blacklist"),
		ExcludedLayerNames: c.PostFormArray("excluded_layer_names"),
		EntityTypes:        c.PostFormArray("entity_types"),
		ProjectID:          c.PostForm("project_id"),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: out})
}

func formFiles(c *gin.Context) ([]service.UploadFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	headers := form.File["files"]
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readFileHeader(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, service.UploadFile{Filename: fh.Filename, Data: data})
	}
	return files, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// formList distinguishes an absent field (nil, meaning use defaults) from a
// present-but-empty one (explicit empty override).
func formList(c *gin.Context, key string) []string {
	if _, ok := c.GetPostForm(key); !ok {
		return nil
	}
	vals := c.PostFormArray(key)
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
