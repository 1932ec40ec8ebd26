package http

import (
	"net/http"

	"borerelay/internal/core/ports"
	"borerelay/internal/infrastructure/middleware"
	"borerelay/pkg/errors"
	"borerelay/pkg/validation"

	"github.com/gin-gonic/gin"
)

const (
	actionSet    = "set"
	actionRemove = "remove"
)

type PlayerHandler struct {
	admin ports.AdminService
}

func NewPlayerHandler(admin ports.AdminService) *PlayerHandler {
	useJSONFieldNames()
	return &PlayerHandler{admin: admin}
}

func (h *PlayerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	players := rg.Group("/players")
	{
		players.GET("", middleware.RequireStaff(), h.ListPlayers)
		players.GET("/:id", middleware.RequireStaff(), h.GetPlayer)
		players.POST("/:id/legend", middleware.RequireManage(), h.Legend)
		players.POST("/:id/mod", middleware.RequireManage(), h.Mod)
		players.PUT("/:id/password", middleware.RequireManage(), h.ChangePassword)
	}
}

func (h *PlayerHandler) ListPlayers(c *gin.Context) {
	q, ok := bindPage(c)
	if !ok {
		return
	}
	page, err := h.admin.ListPlayers(c.Request.Context(), q)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *PlayerHandler) GetPlayer(c *gin.Context) {
	id, ok := pathID(c, "player")
	if !ok {
		return
	}
	player, err := h.admin.GetPlayer(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"player": player})
}

type legendRequest struct {
	Action         string `json:"action" binding:"omitempty,oneof=set remove"`
	VipLevel       int    `json:"vipLevel"`
	ExpirationDate string `json:"expirationDate"`
}

// Legend grants or, with action "remove", revokes a player's legend tier.
func (h *PlayerHandler) Legend(c *gin.Context) {
	id, ok := pathID(c, "player")
	if !ok {
		return
	}
	var req legendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(bindError(err))
		return
	}

	ctx := c.Request.Context()
	if req.Action == actionRemove {
		if err := h.admin.RemoveLegend(ctx, id); err != nil {
			c.Error(err)
			return
		}
		success(c)
		return
	}

	expiresAt, err := validation.ParseTimestamp(req.ExpirationDate)
	if err != nil {
		c.Error(errors.NewValidationError([]errors.FieldError{{Field: "expirationDate", Message: err.Error()}}))
		return
	}
	if err := h.admin.SetLegend(ctx, id, req.VipLevel, expiresAt); err != nil {
		c.Error(err)
		return
	}
	success(c)
}

type modRequest struct {
	Action string `json:"action" binding:"omitempty,oneof=set remove"`
	Rooms  []int  `json:"rooms"`
}

// Mod grants moderator in the given rooms or, with action "remove", revokes it.
func (h *PlayerHandler) Mod(c *gin.Context) {
	id, ok := pathID(c, "player")
	if !ok {
		return
	}
	var req modRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(bindError(err))
		return
	}

	var err error
	if req.Action == actionRemove {
		err = h.admin.RemoveMod(c.Request.Context(), id)
	} else {
		err = h.admin.SetMod(c.Request.Context(), id, req.Rooms)
	}
	if err != nil {
		c.Error(err)
		return
	}
	success(c)
}

type passwordRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *PlayerHandler) ChangePassword(c *gin.Context) {
	id, ok := pathID(c, "player")
	if !ok {
		return
	}
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(bindError(err))
		return
	}
	if err := h.admin.ChangePassword(c.Request.Context(), id, req.Password); err != nil {
		c.Error(err)
		return
	}
	success(c)
}
