package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresence_StatusBroadcast(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	_, _, wsA := ts.LoginAndConnect(t, UniqueEmail("presa"))
	defer wsA.Close()

	tokenB, _ := ts.Login(t, UniqueEmail("presb"), "secretpass")
	nickB := nickOf(t, ts, tokenB)

	// B connecting pushes an online broadcast to A.
	wsB := ts.ConnectWS(t, tokenB)
	pkt := wsA.RecvType("user_status", 3*time.Second)
	payload := PayloadMap(t, pkt)
	assert.Equal(t, nickB, payload["nick"])
	assert.Equal(t, "online", payload["status"])

	// B switching to ingame is broadcast too.
	wsB.Send("status_ingame", nil)
	pkt = wsA.RecvType("user_status", 3*time.Second)
	payload = PayloadMap(t, pkt)
	assert.Equal(t, nickB, payload["nick"])
	assert.Equal(t, "ingame", payload["status"])

	// Disconnecting pushes an offline broadcast.
	wsB.Close()
	deadline := time.Now().Add(3 * time.Second)
	for {
		pkt = wsA.RecvType("user_status", time.Until(deadline))
		payload = PayloadMap(t, pkt)
		if payload["nick"] == nickB && payload["status"] == "offline" {
			break
		}
	}
}

func TestPresence_PingPong(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	_, _, ws := ts.LoginAndConnect(t, UniqueEmail("ping"))
	defer ws.Close()

	ws.Send("ping", map[string]interface{}{"ts": 424242})
	pkt := ws.RecvType("pong", 3*time.Second)
	payload := PayloadMap(t, pkt)
	assert.Equal(t, float64(424242), payload["client_ts"])
}

func TestPresence_FriendRequestPushedOverWS(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	tokenA, _ := ts.Login(t, UniqueEmail("pusha"), "secretpass")
	tokenB, _, wsB := ts.LoginAndConnect(t, UniqueEmail("pushb"))
	defer wsB.Close()
	nickB := nickOf(t, ts, tokenB)

	resp := ts.PostJSON(t, "/api/social/friends/request", map[string]string{"nick": nickB}, tokenA)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	pkt := wsB.RecvType("notification_new", 3*time.Second)
	require.NotNil(t, pkt)
}

func TestWS_RejectsBadToken(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws?token=not-a-jwt")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
