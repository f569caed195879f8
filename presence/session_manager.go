package presence

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ft-transcendence/server/cache"
	"go.uber.org/zap"
)

// onlineSetKey is the cache set of nicks with a live session. With a
// Redis backend it is shared across replicas, so presence queries see
// sessions held by other nodes.
const onlineSetKey = "online_users"

// SessionManager maintains the registry of all connected Sessions.
// It is the source of truth for presence status.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session // userID → session
	cache    cache.Cache
	logger   *zap.Logger
}

// NewSessionManager creates a new SessionManager. A nil cache keeps
// presence purely in-process.
func NewSessionManager(c cache.Cache, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*Session),
		cache:    c,
		logger:   logger,
	}
}

func (sm *SessionManager) markOnline(nick string) {
	if sm.cache == nil || nick == "" {
		return
	}
	if err := sm.cache.SAdd(context.Background(), onlineSetKey, nick); err != nil {
		sm.logger.Warn("online set add failed", zap.Error(err))
	}
}

func (sm *SessionManager) markOffline(nick string) {
	if sm.cache == nil || nick == "" {
		return
	}
	if err := sm.cache.SRem(context.Background(), onlineSetKey, nick); err != nil {
		sm.logger.Warn("online set remove failed", zap.Error(err))
	}
}

// Register adds a session. If a previous session exists for the same user,
// it is closed first (handles duplicate login / reconnect).
func (sm *SessionManager) Register(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if old, ok := sm.sessions[s.UserID]; ok {
		old.Close()
		sm.logger.Info("duplicate session displaced",
			zap.Int64("user_id", s.UserID))
	}
	sm.sessions[s.UserID] = s
	sm.markOnline(s.Nick)
	sm.logger.Info("session registered",
		zap.Int64("user_id", s.UserID),
		zap.String("nick", s.Nick))
}

// Unregister removes the session for a user. A displaced session must not
// unregister its replacement, so the entry is only removed when it still
// points at s.
func (sm *SessionManager) Unregister(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if cur, ok := sm.sessions[s.UserID]; ok && cur == s {
		delete(sm.sessions, s.UserID)
		sm.markOffline(s.Nick)
		sm.logger.Info("session unregistered", zap.Int64("user_id", s.UserID))
	}
}

// Get returns the session for a user, or nil if not found.
func (sm *SessionManager) Get(userID int64) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[userID]
}

// GetByNick finds the session for a user by nickname (case-insensitive).
func (sm *SessionManager) GetByNick(nick string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	nickLower := strings.ToLower(nick)
	for _, s := range sm.sessions {
		if strings.ToLower(s.Nick) == nickLower {
			return s
		}
	}
	return nil
}

// IsOnline reports whether a user is currently connected.
func (sm *SessionManager) IsOnline(userID int64) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.sessions[userID]
	return ok
}

// StatusOf returns the presence status for a nickname. With no local
// session the shared online set is consulted, so users connected to
// another replica still show as online.
func (sm *SessionManager) StatusOf(nick string) string {
	if s := sm.GetByNick(nick); s != nil {
		return s.Status()
	}
	if sm.cache != nil {
		if ok, err := sm.cache.SIsMember(context.Background(), onlineSetKey, nick); err == nil && ok {
			return StatusOnline
		}
	}
	return StatusOffline
}

// OnlineNicks returns every nick in the shared online set. Under Redis
// this includes sessions held by other replicas; without a cache it
// falls back to the local registry.
func (sm *SessionManager) OnlineNicks() []string {
	if sm.cache != nil {
		nicks, err := sm.cache.SMembers(context.Background(), onlineSetKey)
		if err == nil {
			return nicks
		}
		sm.logger.Warn("online set read failed", zap.Error(err))
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	nicks := make([]string, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		nicks = append(nicks, s.Nick)
	}
	return nicks
}

// Count returns the number of currently connected sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// All returns a snapshot slice of all current sessions.
func (sm *SessionManager) All() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}

// BroadcastAll sends a raw pre-encoded packet to every connected session.
// Uses non-blocking send to prevent slow connections from blocking the broadcast.
func (sm *SessionManager) BroadcastAll(data []byte) {
	for _, s := range sm.All() {
		select {
		case s.SendChan <- data:
		default:
			// Channel full, drop packet for this session.
			sm.logger.Warn("broadcast dropped packet for slow client",
				zap.Int64("user_id", s.UserID))
		}
	}
}

// BroadcastToAll sends a packet to every connected session (typed version).
func (sm *SessionManager) BroadcastToAll(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		sm.logger.Error("failed to marshal broadcast packet", zap.Error(err))
		return
	}
	sm.BroadcastAll(data)
}

// BroadcastStatus tells every connected client that a user's presence
// status changed.
func (sm *SessionManager) BroadcastStatus(nick, status string) {
	type statusPayload struct {
		Nick   string `json:"nick"`
		Status string `json:"status"`
	}
	payload, _ := json.Marshal(statusPayload{Nick: nick, Status: status})
	sm.BroadcastToAll(&Packet{Type: "user_status", Payload: payload})
}

// Sweep drops registered sessions whose connection has already closed.
// Normal disconnects unregister themselves; this catches readers that
// died without running their cleanup.
func (sm *SessionManager) Sweep() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	n := 0
	for id, s := range sm.sessions {
		if s.IsClosed() {
			delete(sm.sessions, id)
			sm.markOffline(s.Nick)
			n++
		}
	}
	if n > 0 {
		sm.logger.Info("swept dead sessions", zap.Int("count", n))
	}
	return n
}

// CloseAll gracefully closes all connected sessions.
func (sm *SessionManager) CloseAll() {
	sessions := sm.All()
	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
		sm.markOffline(s.Nick)
	}

	// Wait for all sessions to close (with timeout)
	maxWait := 10 * time.Second
	start := time.Now()
	for time.Since(start) < maxWait {
		if sm.Count() == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
}
