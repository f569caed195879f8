package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ft-transcendence/server/cache"
	"github.com/ft-transcendence/server/config"
	mw "github.com/ft-transcendence/server/middleware"
	"github.com/ft-transcendence/server/presence"
	"github.com/ft-transcendence/server/social"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const readDeadline = 90 * time.Second

// Handler is the Gin handler for GET /ws.
type Handler struct {
	db       *gorm.DB
	cache    cache.Cache
	pubsub   cache.PubSub
	sec      config.SecurityConfig
	sm       *presence.SessionManager
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	db *gorm.DB,
	c cache.Cache,
	pubsub cache.PubSub,
	sec config.SecurityConfig,
	sm *presence.SessionManager,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		db:     db,
		cache:  c,
		pubsub: pubsub,
		sec:    sec,
		sm:     sm,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	// Validate JWT.
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	// Validate session cache.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.cache.Exists(ctx, "session:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	nick, err := h.nickOf(ctx, claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	// Upgrade to WebSocket.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := presence.NewSession(claims.UserID, nick, conn, h.logger)
	h.sm.Register(sess)
	h.sm.BroadcastStatus(nick, presence.StatusOnline)

	// Relay this user's pub/sub channel (friend requests, relation
	// changes) into the WS session for as long as it lives.
	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()
	go h.relayUserEvents(relayCtx, sess)

	// Blocks until the connection closes.
	h.readPump(sess)
}

// relayUserEvents forwards messages published on the user's channel to
// the WS session as packets.
func (h *Handler) relayUserEvents(ctx context.Context, s *presence.Session) {
	msgCh, unsub, err := h.pubsub.Subscribe(ctx, social.UserChannel(s.Nick))
	if err != nil {
		h.logger.Warn("user channel subscribe failed",
			zap.String("nick", s.Nick),
			zap.Error(err))
		return
	}
	defer unsub()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			var evt struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil || evt.Event == "" {
				continue
			}
			s.Send(&presence.Packet{Type: evt.Event, Payload: evt.Data})
		case <-s.Done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) nickOf(ctx context.Context, userID int64) (string, error) {
	var nick string
	err := h.db.WithContext(ctx).
		Table("users").
		Select("nick").
		Where("id = ?", userID).
		Scan(&nick).Error
	if err != nil {
		return "", err
	}
	if nick == "" {
		return "", gorm.ErrRecordNotFound
	}
	return nick, nil
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *presence.Session) {
	defer func() {
		h.handleDisconnect(s)
	}()

	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
	s.Conn.SetPongHandler(func(string) error {
		return s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("user_id", s.UserID),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
		h.router.Dispatch(s, raw)
	}
}

// handleDisconnect cleans up the session after the connection closes.
func (h *Handler) handleDisconnect(s *presence.Session) {
	s.Close()
	h.sm.Unregister(s)
	h.sm.BroadcastStatus(s.Nick, presence.StatusOffline)
	h.logger.Info("user disconnected",
		zap.Int64("user_id", s.UserID),
		zap.String("nick", s.Nick))
}
