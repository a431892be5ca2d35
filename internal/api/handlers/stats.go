package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jroosing/resolverd/internal/api/models"
)

// Stats godoc
// @Summary Resolver statistics
// @Description Returns process CPU/memory usage plus resolver query counters
// @Tags system
// @Produce json
// @Success 200 {object} models.ServerStatsResponse
// @Security ApiKeyAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	memStats := models.MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.FreeMB = float64(vmStat.Available) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := models.CPUStats{NumCPU: runtime.NumCPU()}
	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuStats.UsedPercent = cpuPercent[0]
		cpuStats.IdlePercent = 100.0 - cpuPercent[0]
	}

	snap := h.res.Stats()

	resp := models.ServerStatsResponse{
		NodeID:        h.nodeID,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		CPU:           cpuStats,
		Memory:        memStats,
		Resolver: models.ResolverStatsResponse{
			QueriesSubmitted:   snap.QueriesSubmitted,
			QueriesSent:        snap.QueriesSent,
			QueriesRetried:     snap.QueriesRetried,
			QueriesDelivered:   snap.QueriesDelivered,
			QueriesFailed:      snap.QueriesFailed,
			CacheHits:          snap.CacheHits,
			SendErrors:         snap.SendErrors,
			MalformedResponses: snap.MalformedResponses,
			ServersQuarantined: snap.ServersQuarantined,
		},
	}

	c.JSON(http.StatusOK, resp)
}
