package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apirest "github.com/ft-transcendence/server/api/rest"
	apisse "github.com/ft-transcendence/server/api/sse"
	apows "github.com/ft-transcendence/server/api/ws"
	"github.com/ft-transcendence/server/cache"
	"github.com/ft-transcendence/server/chat"
	"github.com/ft-transcendence/server/config"
	mw "github.com/ft-transcendence/server/middleware"
	"github.com/ft-transcendence/server/presence"
	"github.com/ft-transcendence/server/scheduler"
	"github.com/ft-transcendence/server/social"
	"github.com/ft-transcendence/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// TestServer wraps a real HTTP server with all subsystems wired together.
type TestServer struct {
	DB        *gorm.DB
	Cache     cache.Cache
	PubSub    cache.PubSub
	SM        *presence.SessionManager
	SocialSvc *social.Service
	ChatSvc   *chat.Service
	Server    *httptest.Server
	URL       string // http://127.0.0.1:<port>
	WSURL     string // ws://127.0.0.1:<port>/ws
	Sec       config.SecurityConfig
}

const testAdminKey = "integration-admin-key"

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}
	socialCfg := config.SocialConfig{
		MaxGroupMembers: 50,
		ChatHistory:     50,
		DefaultAvatar:   "userDefault.png",
	}

	// ---- Services ----
	sm := presence.NewSessionManager(c, logger)
	events := social.NewEvents(pubsub, logger)
	socialSvc := social.NewService(db, events, logger)
	chatSvc := chat.NewService(db, c, pubsub, sm, socialCfg, logger)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	apows.NewStatusHandlers(sm, logger).RegisterHandlers(wsRouter)
	apows.NewChatHandlers(chatSvc, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes (mirrors main.go) ----
	authH := apirest.NewAuthHandler(db, c, sec, nil, nil, logger)
	userH := apirest.NewUserHandler(db, socialSvc.Directory(), sm)
	socialH := apirest.NewSocialHandler(db, socialSvc, sm)
	chatH := apirest.NewChatHandler(chatSvc)
	lbH := apirest.NewLeaderboardHandler(db, c, logger)
	adminH := apirest.NewAdminHandler(db, sm, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.GET("/redirect", authH.OAuthRedirect)
		authG.GET("/callback", authH.OAuthCallback)
		authG.POST("/tfa/validate", authH.ValidateTFA)
		authG.POST("/logout", mw.Auth(sec, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(sec, c), authH.Refresh)
		authG.POST("/tfa/enable", mw.Auth(sec, c), authH.EnableTFA)
		authG.POST("/tfa/disable", mw.Auth(sec, c), authH.DisableTFA)

		usersG := api.Group("/users", mw.Auth(sec, c))
		usersG.GET("/me", userH.Me)
		usersG.PATCH("/me", userH.Update)
		usersG.GET("/:nick", userH.Card)

		socialG := api.Group("/social", mw.Auth(sec, c))
		socialG.POST("/friends/request", socialH.SendFriendRequest)
		socialG.GET("/friends", socialH.ListFriends)
		socialG.DELETE("/friends/:nick", socialH.RemoveFriend)
		socialG.GET("/notifications", socialH.ListNotifications)
		socialG.POST("/notifications/:id/accept", socialH.AcceptFriend)
		socialG.POST("/notifications/:id/block", socialH.BlockByNotification)
		socialG.DELETE("/notifications/:id", socialH.RejectNotification)
		socialG.POST("/blocked", socialH.AddBlocked)
		socialG.DELETE("/blocked/:nick", socialH.RemoveBlocked)

		chatsG := api.Group("/chats", mw.Auth(sec, c))
		chatsG.POST("/direct", chatH.CreateDirect)
		chatsG.POST("/group", chatH.CreateGroup)
		chatsG.POST("/:id/join", chatH.Join)
		chatsG.POST("/:id/leave", chatH.Leave)
		chatsG.PATCH("/:id", chatH.Rename)
		chatsG.POST("/:id/ban", chatH.Ban)
		chatsG.POST("/:id/mute", chatH.Mute)
		chatsG.POST("/:id/unmute", chatH.Unmute)
		chatsG.POST("/:id/promote", chatH.Promote)
		chatsG.POST("/:id/messages", chatH.SendMessage)
		chatsG.GET("/:id/messages", chatH.History)

		api.GET("/leaderboard", mw.Auth(sec, c), lbH.Top)
		api.POST("/matches", mw.Auth(sec, c), lbH.RecordMatch)

		adminG := api.Group("/admin", apirest.AdminAuth(testAdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/online", adminH.ListOnline)
		adminG.POST("/kick/:id", adminH.Kick)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.POST("/leaderboard/refresh", lbH.Refresh)
	}

	// ---- WebSocket & SSE ----
	wsH := apows.NewHandler(db, c, pubsub, sec, sm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)
	sseH := apisse.NewHandler(db, pubsub, c, sec, logger)
	r.GET("/sse", sseH.ServeSSE)

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL
	wsURL := "ws" + url[len("http"):] + "/ws"

	return &TestServer{
		DB:        db,
		Cache:     c,
		PubSub:    pubsub,
		SM:        sm,
		SocialSvc: socialSvc,
		ChatSvc:   chatSvc,
		Server:    server,
		URL:       url,
		WSURL:     wsURL,
		Sec:       sec,
	}
}

// Close shuts down the test server and connected sessions.
func (ts *TestServer) Close() {
	ts.SM.CloseAll()
	ts.Server.Close()
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("POST", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Delete sends a DELETE request with optional Bearer token.
func (ts *TestServer) Delete(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("DELETE", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Patch sends a PATCH request with JSON body and optional Bearer token.
func (ts *TestServer) Patch(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("PATCH", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON decodes a response body into target and closes it.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Login logs in (auto-registers on first call) and returns the token and user ID.
func (ts *TestServer) Login(t *testing.T, email, password string) (token string, userID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	token = result["token"].(string)
	userID = int64(result["user_id"].(float64))
	return
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// Uses a background readLoop so a timed-out Recv never corrupts the
// underlying connection.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	url := ts.WSURL + "?token=" + token
	dialer := websocket.Dialer{}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a JSON message packet to the WebSocket.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	pkt := map[string]interface{}{
		"seq":     seq,
		"type":    msgType,
		"payload": json.RawMessage(payloadJSON),
	}
	data, err := json.Marshal(pkt)
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// RecvAny reads one message with a timeout, returning an error instead
// of failing the test.
func (wc *WSClient) RecvAny(timeout time.Duration) (map[string]interface{}, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return nil, res.err
		}
		var pkt map[string]interface{}
		if err := json.Unmarshal(res.data, &pkt); err != nil {
			return nil, err
		}
		return pkt, nil
	case <-time.After(timeout):
		return nil, &timeoutError{}
	}
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "read timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// RecvType reads messages until one with the given type is found (within timeout).
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) map[string]interface{} {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pkt, err := wc.RecvAny(time.Until(deadline))
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if pkt["type"] == msgType {
			return pkt
		}
	}
	wc.t.Fatalf("timed out waiting for message type %q", msgType)
	return nil
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// PayloadMap extracts the payload from a received WS packet as a map.
func PayloadMap(t *testing.T, pkt map[string]interface{}) map[string]interface{} {
	t.Helper()
	p := pkt["payload"]
	if p == nil {
		return map[string]interface{}{}
	}
	switch v := p.(type) {
	case map[string]interface{}:
		return v
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	}
}

// --- Composite helpers ---

// LoginAndConnect logs a user in and opens a WS session.
func (ts *TestServer) LoginAndConnect(t *testing.T, email string) (string, int64, *WSClient) {
	t.Helper()
	token, userID := ts.Login(t, email, "hunter2-"+email)
	ws := ts.ConnectWS(t, token)
	// Small delay to let the session fully register.
	time.Sleep(50 * time.Millisecond)
	return token, userID, ws
}

var testCounter uint64

// UniqueEmail returns a unique email suitable for auto-registration.
func UniqueEmail(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s%d_%d@student.42.fr", prefix, time.Now().UnixNano()%100000, n)
}
