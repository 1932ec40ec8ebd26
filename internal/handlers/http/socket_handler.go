package http

import (
	"net/http"

	"borerelay/internal/core/services"
	"borerelay/internal/infrastructure/middleware"
	"borerelay/internal/infrastructure/relay"

	"github.com/gin-gonic/gin"
)

// RelayInspector is the read side of the relay server.
type RelayInspector interface {
	Status() relay.Status
	Peers() []relay.PeerInfo
}

type SocketHandler struct {
	relay RelayInspector
	stats *services.CommandStats
}

func NewSocketHandler(r RelayInspector, stats *services.CommandStats) *SocketHandler {
	return &SocketHandler{relay: r, stats: stats}
}

func (h *SocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	socket := rg.Group("/socket")
	{
		socket.GET("/status", h.Status)
		socket.GET("/peers", middleware.RequireManage(), h.Peers)
	}
}

func (h *SocketHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.relay.Status())
}

// Peers lists connected relay peers together with command delivery counts.
func (h *SocketHandler) Peers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"peers":    h.relay.Peers(),
		"commands": h.stats.Snapshot(),
	})
}
