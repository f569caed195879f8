package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ft-transcendence/server/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandlePing_SendsPong(t *testing.T) {
	sh := NewStatusHandlers(presence.NewSessionManager(nil, zap.NewNop()), zap.NewNop())
	s := newSession(1, "alice")

	raw, _ := json.Marshal(pingPayload{TS: 12345})
	require.NoError(t, sh.HandlePing(context.Background(), s, raw))

	pkt := drainPacket(t, s)
	assert.Equal(t, "pong", pkt.Type)
	var p pongPayload
	require.NoError(t, json.Unmarshal(pkt.Payload, &p))
	assert.Equal(t, int64(12345), p.ClientTS)
	assert.NotZero(t, p.ServerTS)
}

func TestHandleStatusInGame_Broadcasts(t *testing.T) {
	sm := presence.NewSessionManager(nil, zap.NewNop())
	sh := NewStatusHandlers(sm, zap.NewNop())

	alice := newSession(1, "alice")
	bob := newSession(2, "bob")
	sm.Register(alice)
	sm.Register(bob)

	require.NoError(t, sh.HandleStatusInGame(context.Background(), alice, nil))
	assert.Equal(t, presence.StatusInGame, alice.Status())

	pkt := drainPacket(t, bob)
	assert.Equal(t, "user_status", pkt.Type)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(pkt.Payload, &payload))
	assert.Equal(t, "alice", payload["nick"])
	assert.Equal(t, presence.StatusInGame, payload["status"])
}

func TestSetStatus_NoBroadcastWhenUnchanged(t *testing.T) {
	sm := presence.NewSessionManager(nil, zap.NewNop())
	sh := NewStatusHandlers(sm, zap.NewNop())

	alice := newSession(1, "alice")
	bob := newSession(2, "bob")
	alice.SetStatus(presence.StatusOnline)
	sm.Register(alice)
	sm.Register(bob)

	require.NoError(t, sh.HandleStatusOnline(context.Background(), alice, nil))
	select {
	case <-bob.SendChan:
		t.Fatal("unexpected broadcast for unchanged status")
	default:
	}
}
