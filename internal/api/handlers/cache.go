package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/resolverd/internal/api/models"
)

// Cache godoc
// @Summary Answer cache state
// @Description Returns the number of cached answers, in-flight queries, and cached keys
// @Tags resolver
// @Produce json
// @Success 200 {object} models.CacheResponse
// @Security ApiKeyAuth
// @Router /cache [get]
func (h *Handler) Cache(c *gin.Context) {
	snap := h.res.Introspect()

	resp := models.CacheResponse{
		Size:     snap.CacheSize,
		InFlight: snap.InFlight,
		Entries:  make([]models.CacheEntryResponse, 0, len(snap.CacheKeys)),
	}
	for _, k := range snap.CacheKeys {
		resp.Entries = append(resp.Entries, models.CacheEntryResponse{Name: k.Name, QType: k.QType})
	}

	c.JSON(http.StatusOK, resp)
}
