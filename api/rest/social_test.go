package rest_test

import (
	"fmt"
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

func newSocialRouter(t *testing.T) (*gin.Engine, *gorm.DB, func(*model.User) string) {
	db, c, ps := setupDBAndCache(t)
	sm := presence.NewSessionManager(c, zap.NewNop())
	svc := social.NewService(db, social.NewEvents(ps, zap.NewNop()), zap.NewNop())
	h := rest.NewSocialHandler(db, svc, sm)

	r := gin.New()
	g := r.Group("/api/social", mw.Auth(testSec, c))
	g.GET("/friends", h.ListFriends)
	g.POST("/friends/request", h.SendFriendRequest)
	g.DELETE("/friends/:nick", h.RemoveFriend)
	g.GET("/notifications", h.ListNotifications)
	g.POST("/notifications/:id/accept", h.AcceptFriend)
	g.POST("/notifications/:id/block", h.BlockByNotification)
	g.DELETE("/notifications/:id", h.RejectNotification)
	g.POST("/blocked", h.AddBlocked)
	g.DELETE("/blocked/:nick", h.RemoveBlocked)
	return r, db, func(u *model.User) string { return signIn(t, c, u) }
}

func firstNotificationID(t *testing.T, db *gorm.DB, ownerID int64) int64 {
	t.Helper()
	var n model.Notification
	require.NoError(t, db.Where("owner_id = ?", ownerID).First(&n).Error)
	return n.ID
}

func TestFriendRequest_Lifecycle(t *testing.T) {
	r, db, login := newSocialRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")

	// A requests B.
	w := postJSON(r, "/api/social/friends/request", map[string]string{"nick": "bob"}, bearer(login(a))...)
	require.Equal(t, http.StatusCreated, w.Code)

	// B sees one notification.
	w2 := getJSON(r, "/api/social/notifications", bearer(login(b))...)
	require.Equal(t, http.StatusOK, w2.Code)
	notifs := decode(t, w2)["notifications"].([]interface{})
	require.Len(t, notifs, 1)
	assert.Equal(t, "alice", notifs[0].(map[string]interface{})["source_nick"])

	// B accepts; both friend lists update.
	id := firstNotificationID(t, db, b.ID)
	w3 := postJSON(r, fmt.Sprintf("/api/social/notifications/%d/accept", id), nil, bearer(login(b))...)
	require.Equal(t, http.StatusOK, w3.Code)

	w4 := getJSON(r, "/api/social/friends", bearer(login(a))...)
	friends := decode(t, w4)["friends"].([]interface{})
	require.Len(t, friends, 1)
	assert.Equal(t, "bob", friends[0].(map[string]interface{})["nick"])
}

func TestFriendRequest_ErrorMapping(t *testing.T) {
	r, db, login := newSocialRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	testutil.CreateUser(t, db, "bob")
	token := login(a)

	// Unknown target → 404.
	w := postJSON(r, "/api/social/friends/request", map[string]string{"nick": "ghost"}, bearer(token)...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Self-target → 400.
	w2 := postJSON(r, "/api/social/friends/request", map[string]string{"nick": "alice"}, bearer(token)...)
	assert.Equal(t, http.StatusBadRequest, w2.Code)

	// Duplicate request → 409.
	postJSON(r, "/api/social/friends/request", map[string]string{"nick": "bob"}, bearer(token)...)
	w3 := postJSON(r, "/api/social/friends/request", map[string]string{"nick": "bob"}, bearer(token)...)
	assert.Equal(t, http.StatusConflict, w3.Code)
}

func TestFriendRequest_BlockedIsSilent(t *testing.T) {
	r, db, login := newSocialRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")
	require.NoError(t, db.Create(&model.Relation{
		OwnerID: b.ID, Type: model.RelationBlocked, PassiveUserID: a.ID,
	}).Error)

	// Blocked sender still gets a 201; nothing was queued.
	w := postJSON(r, "/api/social/friends/request", map[string]string{"nick": "bob"}, bearer(login(a))...)
	require.Equal(t, http.StatusCreated, w.Code)

	var n int64
	require.NoError(t, db.Model(&model.Notification{}).Where("owner_id = ?", b.ID).Count(&n).Error)
	assert.EqualValues(t, 0, n)
}

func TestAcceptFriend_MissingNotification(t *testing.T) {
	r, db, login := newSocialRouter(t)
	b := testutil.CreateUser(t, db, "bob")

	w := postJSON(r, "/api/social/notifications/424242/accept", nil, bearer(login(b))...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRejectNotification_UnknownIDStillOK(t *testing.T) {
	r, db, login := newSocialRouter(t)
	b := testutil.CreateUser(t, db, "bob")

	w := doJSON(r, http.MethodDelete, "/api/social/notifications/999", nil, bearer(login(b))...)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBlockByNotification(t *testing.T) {
	r, db, login := newSocialRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")

	postJSON(r, "/api/social/friends/request", map[string]string{"nick": "bob"}, bearer(login(a))...)
	id := firstNotificationID(t, db, b.ID)

	w := postJSON(r, fmt.Sprintf("/api/social/notifications/%d/block", id), nil, bearer(login(b))...)
	require.Equal(t, http.StatusOK, w.Code)

	var n int64
	require.NoError(t, db.Model(&model.Relation{}).
		Where("owner_id = ? AND type = ?", b.ID, model.RelationBlocked).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestRemoveFriend_And_BlockRoundTrip(t *testing.T) {
	r, db, login := newSocialRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")
	seedFriendPair(t, db, a, b)
	token := login(a)

	// Blocking strips the friend pair.
	w := postJSON(r, "/api/social/blocked", map[string]string{"nick": "bob"}, bearer(token)...)
	require.Equal(t, http.StatusCreated, w.Code)

	var friends int64
	require.NoError(t, db.Model(&model.Relation{}).
		Where("type = ?", model.RelationFriend).Count(&friends).Error)
	assert.EqualValues(t, 0, friends)

	// Unblock clears A's block only.
	w2 := doJSON(r, http.MethodDelete, "/api/social/blocked/bob", nil, bearer(token)...)
	require.Equal(t, http.StatusOK, w2.Code)

	var blocks int64
	require.NoError(t, db.Model(&model.Relation{}).
		Where("type = ?", model.RelationBlocked).Count(&blocks).Error)
	assert.EqualValues(t, 0, blocks)
}

func TestRemoveFriend_Endpoint(t *testing.T) {
	r, db, login := newSocialRouter(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")
	seedFriendPair(t, db, a, b)

	w := doJSON(r, http.MethodDelete, "/api/social/friends/bob", nil, bearer(login(a))...)
	require.Equal(t, http.StatusOK, w.Code)

	var n int64
	require.NoError(t, db.Model(&model.Relation{}).Count(&n).Error)
	assert.EqualValues(t, 0, n)
}
