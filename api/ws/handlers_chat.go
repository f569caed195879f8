package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ft-transcendence/server/chat"
	"github.com/ft-transcendence/server/presence"
	"go.uber.org/zap"
)

// ChatHandlers bundles the dependencies for chat WS message handlers.
type ChatHandlers struct {
	svc    *chat.Service
	logger *zap.Logger
}

// NewChatHandlers creates a new ChatHandlers.
func NewChatHandlers(svc *chat.Service, logger *zap.Logger) *ChatHandlers {
	return &ChatHandlers{svc: svc, logger: logger}
}

// RegisterHandlers registers the chat handlers on the given Router.
func (ch *ChatHandlers) RegisterHandlers(r *Router) {
	r.On("chat_join", ch.HandleJoin)
	r.On("chat_send", ch.HandleSend)
	r.On("chat_leave", ch.HandleLeave)
}

// ------------------------------------------------------------------ chat_join

type chatJoinReq struct {
	ChatID int64 `json:"chat_id"`
}

// HandleJoin replays the cached recent messages of a chat to the
// session. Membership itself is managed over REST.
func (ch *ChatHandlers) HandleJoin(ctx context.Context, s *presence.Session, raw json.RawMessage) error {
	var req chatJoinReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	if !ch.svc.IsMember(ctx, req.ChatID, s.UserID) {
		sendError(s, "not a chat member")
		return nil
	}
	ch.svc.SendCachedHistory(ctx, s, req.ChatID)
	return nil
}

// ------------------------------------------------------------------ chat_send

type chatSendReq struct {
	ChatID  int64  `json:"chat_id"`
	Content string `json:"content"`
}

// HandleSend persists and fans out a chat message.
func (ch *ChatHandlers) HandleSend(ctx context.Context, s *presence.Session, raw json.RawMessage) error {
	var req chatSendReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	_, err := ch.svc.SendMessage(ctx, req.ChatID, s.UserID, req.Content)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrChatNotFound),
		errors.Is(err, chat.ErrNotMember),
		errors.Is(err, chat.ErrMuted),
		errors.Is(err, chat.ErrBanned),
		errors.Is(err, chat.ErrBlocked),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrTooLong):
		sendError(s, err.Error())
		return nil
	default:
		return err
	}
}

// ------------------------------------------------------------------ chat_leave

// HandleLeave removes the session's user from a group chat.
func (ch *ChatHandlers) HandleLeave(ctx context.Context, s *presence.Session, raw json.RawMessage) error {
	var req chatJoinReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	err := ch.svc.Leave(ctx, req.ChatID, s.UserID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrChatNotFound),
		errors.Is(err, chat.ErrNotMember),
		errors.Is(err, chat.ErrNotAllowed):
		sendError(s, err.Error())
		return nil
	default:
		return err
	}
}
