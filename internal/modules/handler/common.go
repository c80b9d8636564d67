package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/draftroom-io/floorplan/internal/modules/serializer"
	"github.com/draftroom-io/floorplan/internal/modules/service"
)

const assetPrefix = "/assets/"

// respondErr maps the service error taxonomy onto HTTP statuses.
func respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidParameter), errors.Is(err, service.ErrMalformedDrawing):
		c.JSON(http.StatusBadRequest, serializer.ParamErr(err.Error(), err))
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrIndexOutOfRange):
		c.JSON(http.StatusNotFound, serializer.NotFoundErr(err.Error(), err))
	case errors.Is(err, service.ErrAlreadyConsumed):
		c.JSON(http.StatusConflict, serializer.ConflictErr(err.Error(), err))
	default:
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
	}
}

func assetURL(rel string) string {
	return assetPrefix + rel
}

// assetPath accepts either a bare storage path or the /assets/ URL the
// preview response handed out.
func assetPath(p string) string {
	return strings.TrimPrefix(p, assetPrefix)
}
