package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/ft-transcendence/server/api/rest"
	"github.com/ft-transcendence/server/chat"
	"github.com/ft-transcendence/server/config"
	mw "github.com/ft-transcendence/server/middleware"
	"github.com/ft-transcendence/server/model"
	"github.com/ft-transcendence/server/presence"
	"github.com/ft-transcendence/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newChatRouter(t *testing.T) (*gin.Engine, *gorm.DB, func(*model.User) string) {
	db, c, ps := setupDBAndCache(t)
	sm := presence.NewSessionManager(c, zap.NewNop())
	svc := chat.NewService(db, c, ps, sm, config.SocialConfig{MaxGroupMembers: 10, ChatHistory: 50}, zap.NewNop())
	h := rest.NewChatHandler(svc)

	r := gin.New()
	g := r.Group("/api/chats", mw.Auth(testSec, c))
	g.POST("/direct", h.CreateDirect)
	g.POST("/group", h.CreateGroup)
	g.POST("/:id/join", h.Join)
	g.POST("/:id/leave", h.Leave)
	g.PATCH("/:id", h.Rename)
	g.POST("/:id/ban", h.Ban)
	g.POST("/:id/mute", h.Mute)
	g.POST("/:id/unmute", h.Unmute)
	g.POST("/:id/promote", h.Promote)
	g.POST("/:id/messages", h.SendMessage)
	g.GET("/:id/messages", h.History)
	return r, db, func(u *model.User) string { return signIn(t, c, u) }
}

func TestCreateDirect_Endpoint(t *testing.T) {
	r, db, login := newChatRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	testutil.CreateUser(t, db, "bob")

	w := postJSON(r, "/api/chats/direct", map[string]string{"nick": "bob"}, bearer(login(a))...)
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	assert.Equal(t, model.ChatDirect, resp["type"])
	assert.NotZero(t, resp["chat_id"])
}

func TestCreateDirect_UnknownNick(t *testing.T) {
	r, db, login := newChatRouter(t)
	a := testutil.CreateUser(t, db, "alice")

	w := postJSON(r, "/api/chats/direct", map[string]string{"nick": "ghost"}, bearer(login(a))...)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGroupChat_MessageFlow(t *testing.T) {
	r, db, login := newChatRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")

	w := postJSON(r, "/api/chats/group", map[string]interface{}{
		"name": "pong crew", "members": []string{"bob"},
	}, bearer(login(a))...)
	require.Equal(t, http.StatusCreated, w.Code)
	id := int64(decode(t, w)["chat_id"].(float64))

	w2 := postJSON(r, fmt.Sprintf("/api/chats/%d/messages", id),
		map[string]string{"content": "first serve"}, bearer(login(b))...)
	require.Equal(t, http.StatusCreated, w2.Code)

	w3 := getJSON(r, fmt.Sprintf("/api/chats/%d/messages?limit=10", id), bearer(login(a))...)
	require.Equal(t, http.StatusOK, w3.Code)
	msgs := decode(t, w3)["messages"].([]interface{})
	require.Len(t, msgs, 1)
	assert.Equal(t, "first serve", msgs[0].(map[string]interface{})["content"])
}

func TestChatModeration_Endpoints(t *testing.T) {
	r, db, login := newChatRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")

	w := postJSON(r, "/api/chats/group", map[string]interface{}{
		"name": "crew", "members": []string{"bob"},
	}, bearer(login(a))...)
	id := int64(decode(t, w)["chat_id"].(float64))

	// A mutes B; B cannot send.
	w2 := postJSON(r, fmt.Sprintf("/api/chats/%d/mute", id), map[string]string{"nick": "bob"}, bearer(login(a))...)
	require.Equal(t, http.StatusOK, w2.Code)
	w3 := postJSON(r, fmt.Sprintf("/api/chats/%d/messages", id), map[string]string{"content": "hi"}, bearer(login(b))...)
	assert.Equal(t, http.StatusForbidden, w3.Code)

	// B cannot moderate.
	w4 := postJSON(r, fmt.Sprintf("/api/chats/%d/ban", id), map[string]string{"nick": "alice"}, bearer(login(b))...)
	assert.Equal(t, http.StatusForbidden, w4.Code)

	// Rename by owner.
	w5 := doJSON(r, http.MethodPatch, fmt.Sprintf("/api/chats/%d", id), map[string]string{"name": "new crew"}, bearer(login(a))...)
	assert.Equal(t, http.StatusOK, w5.Code)
}

func TestChat_LeaveAndJoin(t *testing.T) {
	r, db, login := newChatRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")
	c := testutil.CreateUser(t, db, "carol")

	w := postJSON(r, "/api/chats/group", map[string]interface{}{
		"name": "crew", "members": []string{"bob"},
	}, bearer(login(a))...)
	id := int64(decode(t, w)["chat_id"].(float64))

	w2 := postJSON(r, fmt.Sprintf("/api/chats/%d/join", id), nil, bearer(login(c))...)
	require.Equal(t, http.StatusOK, w2.Code)

	w3 := postJSON(r, fmt.Sprintf("/api/chats/%d/leave", id), nil, bearer(login(b))...)
	require.Equal(t, http.StatusOK, w3.Code)

	// B left, so history is forbidden for B now.
	w4 := getJSON(r, fmt.Sprintf("/api/chats/%d/messages", id), bearer(login(b))...)
	assert.Equal(t, http.StatusForbidden, w4.Code)
}

func TestChat_InvalidID(t *testing.T) {
	r, db, login := newChatRouter(t)
	a := testutil.CreateUser(t, db, "alice")

	w := postJSON(r, "/api/chats/notanumber/join", nil, bearer(login(a))...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w2 := postJSON(r, "/api/chats/99999/join", nil, bearer(login(a))...)
	assert.Equal(t, http.StatusNotFound, w2.Code)
}
