package rest

import (
	"net/http"
	"strings"

	mw "github.com/ft-transcendence/server/middleware"
	"github.com/ft-transcendence/server/model"
	"github.com/ft-transcendence/server/presence"
	"github.com/ft-transcendence/server/social"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UserHandler handles profile REST endpoints.
type UserHandler struct {
	db  *gorm.DB
	dir *social.Directory
	sm  *presence.SessionManager
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB, dir *social.Directory, sm *presence.SessionManager) *UserHandler {
	return &UserHandler{db: db, dir: dir, sm: sm}
}

// Me handles GET /api/users/me.
// Returns the full profile projection of the signed-in user.
func (h *UserHandler) Me(c *gin.Context) {
	email := mw.GetUserEmail(c)
	user, err := h.dir.FindByEmail(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, social.BuildProfile(user, h.sm.StatusOf))
}

type updateRequest struct {
	Nick      string `json:"nick" binding:"omitempty,min=2,max=30"`
	FirstName string `json:"first_name" binding:"omitempty,max=50"`
	FullName  string `json:"full_name" binding:"omitempty,max=100"`
	AvatarURL string `json:"avatar_url" binding:"omitempty,max=255"`
}

// Update handles PATCH /api/users/me.
// A nickname already held by another user yields 409.
func (h *UserHandler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := mw.GetUserID(c)

	updates := map[string]interface{}{}
	if nick := strings.TrimSpace(req.Nick); nick != "" {
		var n int64
		if err := h.db.Model(&model.User{}).
			Where("nick = ? AND id <> ?", nick, userID).Count(&n).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if n > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "nickname already taken"})
			return
		}
		updates["nick"] = nick
	}
	if req.FirstName != "" {
		updates["first_name"] = req.FirstName
	}
	if req.FullName != "" {
		updates["full_name"] = req.FullName
	}
	if req.AvatarURL != "" {
		updates["avatar_url"] = req.AvatarURL
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	if err := h.db.Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// Card handles GET /api/users/:nick.
// Public user card: identity, match counters and live status.
func (h *UserHandler) Card(c *gin.Context) {
	nick := c.Param("nick")
	user, err := h.dir.FindByNick(c.Request.Context(), nick)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"nick":       user.Nick,
		"full_name":  user.FullName,
		"avatar_url": user.AvatarURL,
		"matches":    user.Matches,
		"wins":       user.Wins,
		"losses":     user.Losses,
		"status":     h.sm.StatusOf(user.Nick),
	})
}
