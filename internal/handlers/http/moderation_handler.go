package http

import (
	"net/http"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"
	"borerelay/internal/infrastructure/middleware"
	"borerelay/pkg/errors"
	"borerelay/pkg/validation"

	"github.com/gin-gonic/gin"
)

// ModerationHandler serves bans and mutes.
type ModerationHandler struct {
	admin ports.AdminService
}

func NewModerationHandler(admin ports.AdminService) *ModerationHandler {
	useJSONFieldNames()
	return &ModerationHandler{admin: admin}
}

func (h *ModerationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	bans := rg.Group("/bans")
	{
		bans.GET("", middleware.RequireStaff(), h.ListBans)
		bans.POST("", middleware.RequireManage(), h.CreateBan)
		bans.POST("/:id/unban", middleware.RequireManage(), h.Unban)
	}

	mutes := rg.Group("/mutes")
	{
		mutes.GET("", middleware.RequireStaff(), h.ListMutes)
		mutes.POST("", middleware.RequireManage(), h.CreateMute)
		mutes.POST("/:id/unmute", middleware.RequireManage(), h.Unmute)
	}
}

type sanctionRequest struct {
	Name   string `json:"name" binding:"required"`
	Reason string `json:"reason"`
	Conn   string `json:"conn"`
	IPv4   string `json:"ipv4"`
	Auth   string `json:"auth"`
	Time   string `json:"time"`
	Room   int    `json:"room" binding:"min=0"`
}

type banRequest struct {
	sanctionRequest
	BannedBy string `json:"bannedBy" binding:"max=64"`
}

type muteRequest struct {
	sanctionRequest
	MutedBy string `json:"mutedBy" binding:"max=64"`
}

func (r sanctionRequest) sanction() (domain.Sanction, error) {
	at, err := validation.ParseTimestamp(r.Time)
	if err != nil {
		return domain.Sanction{}, errors.NewValidationError([]errors.FieldError{{Field: "time", Message: err.Error()}})
	}
	return domain.Sanction{
		Name:   r.Name,
		Reason: r.Reason,
		Conn:   r.Conn,
		IPv4:   r.IPv4,
		Auth:   r.Auth,
		Time:   at,
		Room:   r.Room,
	}, nil
}

func (h *ModerationHandler) ListBans(c *gin.Context) {
	q, ok := bindPage(c)
	if !ok {
		return
	}
	page, err := h.admin.ListBans(c.Request.Context(), q)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *ModerationHandler) CreateBan(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(bindError(err))
		return
	}
	sanction, err := req.sanction()
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.admin.CreateBan(c.Request.Context(), domain.Ban{Sanction: sanction, BannedBy: req.BannedBy}); err != nil {
		c.Error(err)
		return
	}
	success(c)
}

func (h *ModerationHandler) Unban(c *gin.Context) {
	id, ok := pathID(c, "ban")
	if !ok {
		return
	}
	if err := h.admin.Unban(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}
	success(c)
}

func (h *ModerationHandler) ListMutes(c *gin.Context) {
	q, ok := bindPage(c)
	if !ok {
		return
	}
	page, err := h.admin.ListMutes(c.Request.Context(), q)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *ModerationHandler) CreateMute(c *gin.Context) {
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(bindError(err))
		return
	}
	sanction, err := req.sanction()
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.admin.CreateMute(c.Request.Context(), domain.Mute{Sanction: sanction, MutedBy: req.MutedBy}); err != nil {
		c.Error(err)
		return
	}
	success(c)
}

func (h *ModerationHandler) Unmute(c *gin.Context) {
	id, ok := pathID(c, "mute")
	if !ok {
		return
	}
	if err := h.admin.Unmute(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}
	success(c)
}
