package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/resolverd/internal/api/models"
)

// Health godoc
// @Summary Health check
// @Description Returns API liveness status
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}
