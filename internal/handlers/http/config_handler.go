package http

import (
	"net/http"

	"borerelay/internal/core/ports"
	"borerelay/internal/infrastructure/middleware"
	"borerelay/pkg/errors"

	"github.com/gin-gonic/gin"
)

type ConfigHandler struct {
	admin ports.AdminService
}

func NewConfigHandler(admin ports.AdminService) *ConfigHandler {
	return &ConfigHandler{admin: admin}
}

func (h *ConfigHandler) RegisterRoutes(rg *gin.RouterGroup) {
	cfg := rg.Group("/config")
	{
		cfg.GET("/can-manage", h.CanManage)
		cfg.POST("/reset-vip", middleware.RequireOwner(), h.ResetVip)
	}
}

// CanManage reports the caller's resolved permissions. Any token gets an
// answer, all false when it maps to no configured role.
func (h *ConfigHandler) CanManage(c *gin.Context) {
	perms, ok := middleware.Permissions(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError(middleware.MsgNotAuthenticated))
		return
	}
	c.JSON(http.StatusOK, perms)
}

func (h *ConfigHandler) ResetVip(c *gin.Context) {
	if err := h.admin.ResetAllVip(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	success(c)
}
