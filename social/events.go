package social

import (
	"context"
	"encoding/json"

	"github.com/ft-transcendence/server/cache"
	"go.uber.org/zap"
)

// Event names pushed to connected clients of the affected users.
const (
	EventNotificationNew     = "notification_new"
	EventNotificationRemoved = "notification_removed"
	EventFriendNew           = "friend_new"
	EventFriendRemoved       = "friend_removed"
	EventBlockedNew          = "blocked_new"
	EventBlockedRemoved      = "blocked_removed"
)

// UserChannel is the pub/sub channel carrying events for one user.
// WebSocket and SSE sessions subscribe to it on connect.
func UserChannel(nick string) string {
	return "user:" + nick
}

// Event is the envelope published on user channels.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Events delivers real-time pushes after relation mutations commit.
// Delivery is best effort; a publish failure is logged, never returned.
type Events struct {
	ps  cache.PubSub
	log *zap.Logger
}

func NewEvents(ps cache.PubSub, log *zap.Logger) *Events {
	return &Events{ps: ps, log: log}
}

func (e *Events) Push(ctx context.Context, nick, event string, data any) {
	if e == nil || e.ps == nil {
		return
	}
	body, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		e.log.Warn("event marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := e.ps.Publish(ctx, UserChannel(nick), string(body)); err != nil {
		e.log.Warn("event publish failed",
			zap.String("event", event),
			zap.String("nick", nick),
			zap.Error(err))
	}
}
