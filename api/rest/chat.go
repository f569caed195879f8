package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ft-transcendence/server/chat"
	mw "github.com/ft-transcendence/server/middleware"
	"github.com/gin-gonic/gin"
)

// ChatHandler exposes the chat service over REST.
type ChatHandler struct {
	svc *chat.Service
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

func chatStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrChatNotFound), errors.Is(err, chat.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrNotMember), errors.Is(err, chat.ErrNotAllowed),
		errors.Is(err, chat.ErrMuted), errors.Is(err, chat.ErrBanned),
		errors.Is(err, chat.ErrBlocked):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrChatFull), errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *ChatHandler) fail(c *gin.Context, err error) {
	c.JSON(chatStatus(err), gin.H{"error": err.Error()})
}

func chatID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, false
	}
	return id, true
}

// CreateDirect handles POST /api/chats/direct.
func (h *ChatHandler) CreateDirect(c *gin.Context) {
	var req struct {
		Nick string `json:"nick" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.svc.CreateDirect(c.Request.Context(), mw.GetUserID(c), req.Nick)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat_id": created.ID, "type": created.Type})
}

// CreateGroup handles POST /api/chats/group.
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name    string   `json:"name" binding:"required,min=1,max=60"`
		Members []string `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.svc.CreateGroup(c.Request.Context(), mw.GetUserID(c), req.Name, req.Members)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat_id": created.ID, "name": created.Name})
}

// Join handles POST /api/chats/:id/join.
func (h *ChatHandler) Join(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	if err := h.svc.Join(c.Request.Context(), id, mw.GetUserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "joined"})
}

// Leave handles POST /api/chats/:id/leave.
func (h *ChatHandler) Leave(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	if err := h.svc.Leave(c.Request.Context(), id, mw.GetUserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left"})
}

// Rename handles PATCH /api/chats/:id.
func (h *ChatHandler) Rename(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required,min=1,max=60"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Rename(c.Request.Context(), id, mw.GetUserID(c), req.Name); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "renamed"})
}

// moderation wraps the ban/mute/unmute/promote endpoints, which all
// take a target nickname.
func (h *ChatHandler) moderation(c *gin.Context, fn func(ctx *gin.Context, id int64, actor int64, nick string) error) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	var req struct {
		Nick string `json:"nick" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := fn(c, id, mw.GetUserID(c), req.Nick); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// Ban handles POST /api/chats/:id/ban.
func (h *ChatHandler) Ban(c *gin.Context) {
	h.moderation(c, func(ctx *gin.Context, id, actor int64, nick string) error {
		return h.svc.Ban(ctx.Request.Context(), id, actor, nick)
	})
}

// Mute handles POST /api/chats/:id/mute.
func (h *ChatHandler) Mute(c *gin.Context) {
	h.moderation(c, func(ctx *gin.Context, id, actor int64, nick string) error {
		return h.svc.Mute(ctx.Request.Context(), id, actor, nick)
	})
}

// Unmute handles POST /api/chats/:id/unmute.
func (h *ChatHandler) Unmute(c *gin.Context) {
	h.moderation(c, func(ctx *gin.Context, id, actor int64, nick string) error {
		return h.svc.Unmute(ctx.Request.Context(), id, actor, nick)
	})
}

// Promote handles POST /api/chats/:id/promote.
func (h *ChatHandler) Promote(c *gin.Context) {
	h.moderation(c, func(ctx *gin.Context, id, actor int64, nick string) error {
		return h.svc.Promote(ctx.Request.Context(), id, actor, nick)
	})
}

// SendMessage handles POST /api/chats/:id/messages.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.svc.SendMessage(c.Request.Context(), id, mw.GetUserID(c), req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message_id": msg.ID})
}

// History handles GET /api/chats/:id/messages?limit=50.
func (h *ChatHandler) History(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, err := h.svc.History(c.Request.Context(), id, mw.GetUserID(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
