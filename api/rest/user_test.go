package rest_test

import (
	"net/http"
	"testing"

	"github.com/ft-transcendence/server/api/rest"
	mw "github.com/ft-transcendence/server/middleware"
	"github.com/ft-transcendence/server/model"
	"github.com/ft-transcendence/server/presence"
	"github.com/ft-transcendence/server/social"
	"github.com/ft-transcendence/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newUserRouter(t *testing.T) (*gin.Engine, *gorm.DB, *presence.SessionManager, func(*model.User) string) {
	db, c, _ := setupDBAndCache(t)
	sm := presence.NewSessionManager(c, zap.NewNop())
	h := rest.NewUserHandler(db, social.NewDirectory(db), sm)

	r := gin.New()
	authed := r.Group("", mw.Auth(testSec, c))
	authed.GET("/api/users/me", h.Me)
	authed.PATCH("/api/users/me", h.Update)
	authed.GET("/api/users/:nick", h.Card)
	return r, db, sm, func(u *model.User) string { return signIn(t, c, u) }
}

func TestMe_ReturnsProfile(t *testing.T) {
	r, db, _, login := newUserRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")
	seedFriendPair(t, db, a, b)

	w := getJSON(r, "/api/users/me", bearer(login(a))...)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, "alice", resp["nick"])
	friends := resp["friends"].([]interface{})
	require.Len(t, friends, 1)
	assert.Equal(t, "bob", friends[0].(map[string]interface{})["nick"])
}

func TestMe_RequiresAuth(t *testing.T) {
	r, _, _, _ := newUserRouter(t)
	w := getJSON(r, "/api/users/me")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdate_ChangesProfile(t *testing.T) {
	r, db, _, login := newUserRouter(t)
	a := testutil.CreateUser(t, db, "alice")

	w := doJSON(r, http.MethodPatch, "/api/users/me", map[string]string{
		"nick":      "wonderland",
		"full_name": "Alice Liddell",
	}, bearer(login(a))...)
	require.Equal(t, http.StatusOK, w.Code)

	var u model.User
	require.NoError(t, db.First(&u, a.ID).Error)
	assert.Equal(t, "wonderland", u.Nick)
	assert.Equal(t, "Alice Liddell", u.FullName)
}

func TestUpdate_DuplicateNickConflict(t *testing.T) {
	r, db, _, login := newUserRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	testutil.CreateUser(t, db, "bob")

	w := doJSON(r, http.MethodPatch, "/api/users/me", map[string]string{"nick": "bob"}, bearer(login(a))...)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdate_OwnNickIsNotAConflict(t *testing.T) {
	r, db, _, login := newUserRouter(t)
	a := testutil.CreateUser(t, db, "alice")

	w := doJSON(r, http.MethodPatch, "/api/users/me", map[string]string{"nick": "alice"}, bearer(login(a))...)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCard_PublicFields(t *testing.T) {
	r, db, sm, login := newUserRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")

	sess := &presence.Session{
		UserID: b.ID, Nick: b.Nick,
		SendChan: make(chan []byte, 1), Done: make(chan struct{}),
	}
	sess.SetStatus(presence.StatusInGame)
	sm.Register(sess)

	w := getJSON(r, "/api/users/bob", bearer(login(a))...)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, "bob", resp["nick"])
	assert.Equal(t, "0", resp["wins"])
	assert.Equal(t, presence.StatusInGame, resp["status"])

	w2 := getJSON(r, "/api/users/ghost", bearer(login(a))...)
	assert.Equal(t, http.StatusNotFound, w2.Code)
}
