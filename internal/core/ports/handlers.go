package ports

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouteRegistrar mounts a handler group on the authenticated /api router.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

type WebSocketHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}
