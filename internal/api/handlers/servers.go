package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/resolverd/internal/api/models"
)

// Servers godoc
// @Summary Server pool state
// @Description Returns every configured upstream server and its current quarantine state
// @Tags resolver
// @Produce json
// @Success 200 {object} models.ServerPoolResponse
// @Security ApiKeyAuth
// @Router /servers [get]
func (h *Handler) Servers(c *gin.Context) {
	snap := h.res.Introspect()

	resp := models.ServerPoolResponse{Servers: make([]models.ServerEntryResponse, 0, len(snap.Servers))}
	for _, s := range snap.Servers {
		resp.Servers = append(resp.Servers, models.ServerEntryResponse{
			Addr:        s.Addr,
			Priority:    int(s.Priority),
			NoRspCount:  s.NoRspCount,
			Quarantined: s.Quarantined,
		})
	}

	c.JSON(http.StatusOK, resp)
}
