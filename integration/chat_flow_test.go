package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatFlow_DirectOverWS(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	emailA := UniqueEmail("chata")
	emailB := UniqueEmail("chatb")
	tokenA, _, wsA := ts.LoginAndConnect(t, emailA)
	tokenB, _, wsB := ts.LoginAndConnect(t, emailB)
	defer wsA.Close()
	defer wsB.Close()

	nickB := nickOf(t, ts, tokenB)

	// A opens a direct chat with B over REST.
	resp := ts.PostJSON(t, "/api/chats/direct", map[string]string{"nick": nickB}, tokenA)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]interface{}
	ReadJSON(t, resp, &created)
	chatID := int64(created["chat_id"].(float64))

	// A sends over WS; both live sessions receive the fan-out.
	wsA.Send("chat_send", map[string]interface{}{"chat_id": chatID, "content": "hello bob"})

	pkt := wsB.RecvType("chat_recv", 3*time.Second)
	payload := PayloadMap(t, pkt)
	assert.Equal(t, "hello bob", payload["content"])
	assert.Equal(t, float64(chatID), payload["chat_id"])

	pktSelf := wsA.RecvType("chat_recv", 3*time.Second)
	assert.Equal(t, "hello bob", PayloadMap(t, pktSelf)["content"])

	// History over REST shows the stored message.
	resp = ts.Get(t, "/api/chats/"+itoa(chatID)+"/messages", tokenB)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hist struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	ReadJSON(t, resp, &hist)
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, "hello bob", hist.Messages[0].Content)
}

func TestChatFlow_JoinReplaysHistory(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	tokenA, _, wsA := ts.LoginAndConnect(t, UniqueEmail("grpa"))
	defer wsA.Close()
	tokenB, _ := ts.Login(t, UniqueEmail("grpb"), "secretpass")
	nickB := nickOf(t, ts, tokenB)

	resp := ts.PostJSON(t, "/api/chats/group", map[string]interface{}{
		"name": "lobby", "members": []string{nickB},
	}, tokenA)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]interface{}
	ReadJSON(t, resp, &created)
	chatID := int64(created["chat_id"].(float64))

	wsA.Send("chat_send", map[string]interface{}{"chat_id": chatID, "content": "backlog line"})
	wsA.RecvType("chat_recv", 3*time.Second)

	// B connects later and replays the cached history with chat_join.
	wsB := ts.ConnectWS(t, tokenB)
	defer wsB.Close()
	wsB.Send("chat_join", map[string]interface{}{"chat_id": chatID})

	pkt := wsB.RecvType("chat_recv", 3*time.Second)
	assert.Equal(t, "backlog line", PayloadMap(t, pkt)["content"])
}

func TestChatFlow_BlockedDirectMessageRejected(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	tokenA, nickA, tokenB, nickB := twoUsers(t, ts)

	resp := ts.PostJSON(t, "/api/chats/direct", map[string]string{"nick": nickB}, tokenA)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]interface{}
	ReadJSON(t, resp, &created)
	chatID := itoa(int64(created["chat_id"].(float64)))

	// B blocks A; A can no longer message the direct chat.
	resp = ts.PostJSON(t, "/api/social/blocked", map[string]string{"nick": nickA}, tokenB)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.PostJSON(t, "/api/chats/"+chatID+"/messages", map[string]string{"content": "hi"}, tokenA)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
