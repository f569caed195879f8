package rest

import (
	"errors"
	"net/http"
	"strconv"

	mw "github.com/ft-transcendence/server/middleware"
	"github.com/ft-transcendence/server/presence"
	"github.com/ft-transcendence/server/social"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SocialHandler exposes the relation service over REST.
type SocialHandler struct {
	db  *gorm.DB
	svc *social.Service
	sm  *presence.SessionManager
}

// NewSocialHandler creates a new SocialHandler.
func NewSocialHandler(db *gorm.DB, svc *social.Service, sm *presence.SessionManager) *SocialHandler {
	return &SocialHandler{db: db, svc: svc, sm: sm}
}

// socialStatus maps relation-service error kinds to HTTP codes.
func socialStatus(err error) int {
	switch {
	case errors.Is(err, social.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, social.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, social.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *SocialHandler) fail(c *gin.Context, err error) {
	c.JSON(socialStatus(err), gin.H{"error": err.Error()})
}

type nickRequest struct {
	Nick string `json:"nick" binding:"required,min=2,max=30"`
}

// SendFriendRequest handles POST /api/social/friends/request.
func (h *SocialHandler) SendFriendRequest(c *gin.Context) {
	var req nickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := mw.GetUserEmail(c)
	if err := h.svc.SendFriendRequest(c.Request.Context(), email, req.Nick); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "request sent"})
}

// ListFriends handles GET /api/social/friends.
func (h *SocialHandler) ListFriends(c *gin.Context) {
	email := mw.GetUserEmail(c)
	user, err := h.svc.Directory().FindByEmail(c.Request.Context(), email)
	if err != nil {
		h.fail(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	view := social.BuildProfile(user, h.sm.StatusOf)
	c.JSON(http.StatusOK, gin.H{"friends": view.Friends, "blocked": view.Blocked})
}

// ListNotifications handles GET /api/social/notifications.
func (h *SocialHandler) ListNotifications(c *gin.Context) {
	email := mw.GetUserEmail(c)
	user, err := h.svc.Directory().FindByEmail(c.Request.Context(), email)
	if err != nil {
		h.fail(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	view := social.BuildProfile(user, nil)
	c.JSON(http.StatusOK, gin.H{"notifications": view.Notifications})
}

// AcceptFriend handles POST /api/social/notifications/:id/accept.
func (h *SocialHandler) AcceptFriend(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.svc.AcceptFriend(c.Request.Context(), mw.GetUserEmail(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "accepted"})
}

// BlockByNotification handles POST /api/social/notifications/:id/block.
func (h *SocialHandler) BlockByNotification(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.svc.BlockUserByNotification(c.Request.Context(), mw.GetUserEmail(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "blocked"})
}

// RejectNotification handles DELETE /api/social/notifications/:id.
// Popping an unknown id is still a 200; the queue is simply unchanged.
func (h *SocialHandler) RejectNotification(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.svc.PopNotification(c.Request.Context(), mw.GetUserEmail(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "dismissed"})
}

// RemoveFriend handles DELETE /api/social/friends/:nick.
func (h *SocialHandler) RemoveFriend(c *gin.Context) {
	if err := h.svc.RemoveFriend(c.Request.Context(), mw.GetUserEmail(c), c.Param("nick")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// AddBlocked handles POST /api/social/blocked.
func (h *SocialHandler) AddBlocked(c *gin.Context) {
	var req nickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.AddBlocked(c.Request.Context(), mw.GetUserEmail(c), req.Nick); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "blocked"})
}

// RemoveBlocked handles DELETE /api/social/blocked/:nick.
func (h *SocialHandler) RemoveBlocked(c *gin.Context) {
	if err := h.svc.RemoveBlocked(c.Request.Context(), mw.GetUserEmail(c), c.Param("nick")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unblocked"})
}
