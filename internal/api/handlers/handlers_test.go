package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/resolverd/internal/api/handlers"
	"github.com/jroosing/resolverd/internal/api/models"
	"github.com/jroosing/resolverd/internal/resolver"
)

func newTestHandler(t *testing.T) *handlers.Handler {
	t.Helper()

	cfg := resolver.DefaultConfig()
	cfg.Servers = []resolver.ServerConfig{{IP: "127.0.0.1", Port: 19053, Priority: 1}}
	require.NoError(t, cfg.Normalize())

	transport, err := resolver.NewUDPTransport("", nil)
	require.NoError(t, err)

	res, err := resolver.New(cfg, transport, resolver.NewWallTimerService(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { res.Close() })

	return handlers.New(res, "test-node", nil)
}

func setupTestRouter(h *handlers.Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
	api.GET("/servers", h.Servers)
	api.GET("/cache", h.Cache)

	return r
}

func TestHealth(t *testing.T) {
	r := setupTestRouter(newTestHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestStats(t *testing.T) {
	r := setupTestRouter(newTestHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ServerStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "test-node", resp.NodeID)
	assert.NotEmpty(t, resp.Uptime)
}

func TestServers(t *testing.T) {
	r := setupTestRouter(newTestHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ServerPoolResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Servers, 1)
	assert.Equal(t, "127.0.0.1:19053", resp.Servers[0].Addr)
	assert.False(t, resp.Servers[0].Quarantined)
}

func TestCache_EmptyByDefault(t *testing.T) {
	r := setupTestRouter(newTestHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.CacheResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Size)
	assert.Equal(t, 0, resp.InFlight)
}
