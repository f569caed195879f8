package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ft-transcendence/server/presence"
	"go.uber.org/zap"
)

// StatusHandlers bundles the dependencies for presence WS handlers.
type StatusHandlers struct {
	sm     *presence.SessionManager
	logger *zap.Logger
}

// NewStatusHandlers creates a new StatusHandlers.
func NewStatusHandlers(sm *presence.SessionManager, logger *zap.Logger) *StatusHandlers {
	return &StatusHandlers{sm: sm, logger: logger}
}

// RegisterHandlers registers the presence handlers on the given Router.
func (sh *StatusHandlers) RegisterHandlers(r *Router) {
	r.On("ping", sh.HandlePing)
	r.On("status_online", sh.HandleStatusOnline)
	r.On("status_ingame", sh.HandleStatusInGame)
}

// ------------------------------------------------------------------ ping

type pingPayload struct {
	TS int64 `json:"ts"`
}

type pongPayload struct {
	ClientTS int64 `json:"client_ts"`
	ServerTS int64 `json:"server_ts"`
}

// HandlePing responds to client heartbeat pings.
func (sh *StatusHandlers) HandlePing(_ context.Context, s *presence.Session, raw json.RawMessage) error {
	var p pingPayload
	_ = json.Unmarshal(raw, &p)
	payload, _ := json.Marshal(pongPayload{ClientTS: p.TS, ServerTS: time.Now().UnixMilli()})
	s.Send(&presence.Packet{Type: "pong", Payload: payload})
	return nil
}

// ------------------------------------------------------------------ status

// HandleStatusOnline marks the session as online and broadcasts it.
func (sh *StatusHandlers) HandleStatusOnline(_ context.Context, s *presence.Session, _ json.RawMessage) error {
	return sh.setStatus(s, presence.StatusOnline)
}

// HandleStatusInGame marks the session as in a game and broadcasts it.
func (sh *StatusHandlers) HandleStatusInGame(_ context.Context, s *presence.Session, _ json.RawMessage) error {
	return sh.setStatus(s, presence.StatusInGame)
}

func (sh *StatusHandlers) setStatus(s *presence.Session, status string) error {
	if s.Status() == status {
		return nil
	}
	s.SetStatus(status)
	sh.sm.BroadcastStatus(s.Nick, status)
	sh.logger.Debug("status changed",
		zap.String("nick", s.Nick),
		zap.String("status", status))
	return nil
}

// sendError pushes an error packet to one session.
func sendError(s *presence.Session, msg string) {
	payload, _ := json.Marshal(map[string]string{"message": msg})
	s.Send(&presence.Packet{Type: "error", Payload: payload})
}
