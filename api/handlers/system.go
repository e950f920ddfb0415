package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aieditor/backend/internal/agent"
	"github.com/aieditor/backend/internal/llm"
	"github.com/aieditor/backend/internal/session"
	"github.com/aieditor/backend/internal/ws"
)

// SystemHandler serves the informational endpoints.
type SystemHandler struct {
	router    *agent.Router
	registry  *llm.Registry
	store     *session.Store
	service   *ws.Service
	startedAt time.Time
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(router *agent.Router, registry *llm.Registry, store *session.Store, service *ws.Service) *SystemHandler {
	return &SystemHandler{
		router:    router,
		registry:  registry,
		store:     store,
		service:   service,
		startedAt: time.Now(),
	}
}

// ProvidersResponse is returned by the providers endpoint.
type ProvidersResponse struct {
	Providers map[string]llm.Info `json:"providers"`
	Default   string              `json:"default"`
}

// StatsResponse is returned by the stats endpoint.
type StatsResponse struct {
	ActiveSessions    int      `json:"active_sessions"`
	Connections       int      `json:"connections"`
	ConnectedSessions int      `json:"connected_sessions"`
	Agents            []string `json:"agents"`
	Providers         []string `json:"providers"`
	StartedAt         string   `json:"started_at"`
	Uptime            string   `json:"uptime"`
}

// Agents handles GET /api/v1/agents.
func (h *SystemHandler) Agents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.router.Status()})
}

// Providers handles GET /api/v1/llm/providers.
func (h *SystemHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, ProvidersResponse{
		Providers: h.registry.Describe(),
		Default:   h.registry.Default(),
	})
}

// Stats handles GET /api/v1/stats.
func (h *SystemHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{
		ActiveSessions:    h.store.Count(),
		Connections:       h.service.ConnectionCount(),
		ConnectedSessions: h.service.HubManager().SessionCount(),
		Agents:            h.router.Names(),
		Providers:         h.registry.AvailableNames(),
		StartedAt:         h.startedAt.Format(time.RFC3339),
		Uptime:            time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Health handles GET /api/v1/health.
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// RegisterRoutes registers the system routes on a Gin router group.
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/agents", h.Agents)
	rg.GET("/llm/providers", h.Providers)
	rg.GET("/stats", h.Stats)
	rg.GET("/health", h.Health)
}
