package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ft-transcendence/server/chat"
	"github.com/ft-transcendence/server/config"
	"github.com/ft-transcendence/server/model"
	"github.com/ft-transcendence/server/presence"
	"github.com/ft-transcendence/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newChatHandlers(t *testing.T) (*ChatHandlers, *chat.Service, *presence.SessionManager, *gorm.DB) {
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	sm := presence.NewSessionManager(c, zap.NewNop())
	svc := chat.NewService(db, c, ps, sm, config.SocialConfig{ChatHistory: 10}, zap.NewNop())
	return NewChatHandlers(svc, zap.NewNop()), svc, sm, db
}

func drainPacket(t *testing.T, s *presence.Session) *presence.Packet {
	t.Helper()
	select {
	case raw := <-s.SendChan:
		var pkt presence.Packet
		require.NoError(t, json.Unmarshal(raw, &pkt))
		return &pkt
	default:
		t.Fatal("no packet in send channel")
		return nil
	}
}

func TestHandleSend_FansOutToMembers(t *testing.T) {
	ch, svc, sm, db := newChatHandlers(t)
	a := testutil.CreateUser(t, db, "alice")
	testutil.CreateUser(t, db, "bob")

	created, err := svc.CreateDirect(context.Background(), a.ID, "bob")
	require.NoError(t, err)

	sa := newSession(a.ID, "alice")
	sm.Register(sa)

	raw, _ := json.Marshal(chatSendReq{ChatID: created.ID, Content: "hello"})
	require.NoError(t, ch.HandleSend(context.Background(), sa, raw))

	pkt := drainPacket(t, sa)
	assert.Equal(t, "chat_recv", pkt.Type)

	var count int64
	db.Model(&model.ChatMessage{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestHandleSend_NotMember(t *testing.T) {
	ch, svc, _, db := newChatHandlers(t)
	a := testutil.CreateUser(t, db, "alice")
	testutil.CreateUser(t, db, "bob")
	c := testutil.CreateUser(t, db, "carol")

	created, err := svc.CreateDirect(context.Background(), a.ID, "bob")
	require.NoError(t, err)

	sc := newSession(c.ID, "carol")
	raw, _ := json.Marshal(chatSendReq{ChatID: created.ID, Content: "hi"})
	require.NoError(t, ch.HandleSend(context.Background(), sc, raw))

	pkt := drainPacket(t, sc)
	assert.Equal(t, "error", pkt.Type)
}

func TestHandleJoin_ReplaysCachedHistory(t *testing.T) {
	ch, svc, sm, db := newChatHandlers(t)
	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bob")

	created, err := svc.CreateDirect(context.Background(), a.ID, "bob")
	require.NoError(t, err)

	sa := newSession(a.ID, "alice")
	sm.Register(sa)
	_, err = svc.SendMessage(context.Background(), created.ID, a.ID, "first")
	require.NoError(t, err)
	drainPacket(t, sa) // live fan-out copy

	sb := newSession(b.ID, "bob")
	raw, _ := json.Marshal(chatJoinReq{ChatID: created.ID})
	require.NoError(t, ch.HandleJoin(context.Background(), sb, raw))

	pkt := drainPacket(t, sb)
	assert.Equal(t, "chat_recv", pkt.Type)
}

func TestHandleJoin_NonMemberGetsError(t *testing.T) {
	ch, svc, _, db := newChatHandlers(t)
	a := testutil.CreateUser(t, db, "alice")
	testutil.CreateUser(t, db, "bob")
	c := testutil.CreateUser(t, db, "carol")

	created, err := svc.CreateDirect(context.Background(), a.ID, "bob")
	require.NoError(t, err)

	sc := newSession(c.ID, "carol")
	raw, _ := json.Marshal(chatJoinReq{ChatID: created.ID})
	require.NoError(t, ch.HandleJoin(context.Background(), sc, raw))

	pkt := drainPacket(t, sc)
	assert.Equal(t, "error", pkt.Type)
}
