package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fairCaseServer/db"
	"fairCaseServer/events"
	"fairCaseServer/game"
	"fairCaseServer/state"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func newTestHub(t *testing.T) (*Hub, *state.Registry, *websocket.Conn) {
	t.Helper()

	roundLog, err := db.OpenBadgerRoundLog("")
	require.NoError(t, err)
	t.Cleanup(func() { roundLog.Close() })

	hub := NewHub()
	registry := state.NewRegistry(state.DefaultOptions(roundLog, hub))
	hub.SetRegistry(registry)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return hub, registry, conn
}

func roundEvent(sessionID string) events.RoundEvent {
	return events.RoundEvent{
		SessionID:   sessionID,
		Commitment:  "c",
		Nonce:       0,
		NextNonce:   1,
		OutcomeHash: "0f000000",
		Value:       0.05,
		Tier:        game.Rare,
		Icon:        game.Rare.Icon(),
	}
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: msgType, Data: raw}))
}

func next(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// collect reads n messages keyed by type; broadcast and direct replies may
// interleave
func collect(t *testing.T, conn *websocket.Conn, n int) map[string]received {
	t.Helper()
	out := make(map[string]received, n)
	for i := 0; i < n; i++ {
		msg := next(t, conn)
		out[msg.Type] = msg
	}
	return out
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub, _, conn := newTestHub(t)

	send(t, conn, "subscribe", channelData{Channel: "fairness"})
	assert.Equal(t, ReplySubscribed, next(t, conn).Type)
	assert.Equal(t, 1, hub.ClientCount())

	require.NoError(t, hub.RoundResolved(context.Background(), roundEvent("s-1")))

	msg := next(t, conn)
	assert.Equal(t, EventRoundResolved, msg.Type)
	assert.Contains(t, string(msg.Data), `"tier":"Rare"`)
}

func TestHub_InvalidChannel(t *testing.T) {
	_, _, conn := newTestHub(t)

	send(t, conn, "subscribe", channelData{Channel: "crash"})
	msg := next(t, conn)
	assert.Equal(t, ReplyError, msg.Type)
	assert.Equal(t, "invalid channel", msg.Error)
}

func TestHub_SessionIntents(t *testing.T) {
	_, registry, conn := newTestHub(t)

	session, err := registry.Create("ws-client")
	require.NoError(t, err)

	send(t, conn, "subscribe", channelData{Channel: SessionChannel(session.ID)})
	require.Equal(t, ReplySubscribed, next(t, conn).Type)

	// opening before a commitment exists is refused
	send(t, conn, "open", sessionData{SessionID: session.ID})
	msg := next(t, conn)
	assert.Equal(t, ReplyError, msg.Type)
	assert.Contains(t, msg.Error, game.ErrPreconditionViolated.Error())

	send(t, conn, "publish", sessionData{SessionID: session.ID})
	got := collect(t, conn, 2)
	require.Contains(t, got, ReplyPublished)
	require.Contains(t, got, EventCommitmentPublished)

	send(t, conn, "open", sessionData{SessionID: session.ID})
	got = collect(t, conn, 2)
	require.Contains(t, got, ReplyRound)
	require.Contains(t, got, EventRoundResolved)

	var round state.RoundResult
	require.NoError(t, json.Unmarshal(got[ReplyRound].Data, &round))
	assert.Equal(t, uint64(0), round.Outcome.Nonce)
	assert.Equal(t, uint64(1), round.NextNonce)

	send(t, conn, "reveal", sessionData{SessionID: session.ID})
	got = collect(t, conn, 2)
	require.Contains(t, got, ReplyRevealed)
	require.Contains(t, got, EventSeedRevealed)

	var rec db.RevealRecord
	require.NoError(t, json.Unmarshal(got[ReplyRevealed].Data, &rec))
	assert.Equal(t, game.Resolve(rec.ServerSeed, "ws-client", 0), round.Outcome.Hash)
}

func TestHub_UnknownSession(t *testing.T) {
	_, _, conn := newTestHub(t)

	send(t, conn, "publish", sessionData{SessionID: "missing"})
	msg := next(t, conn)
	assert.Equal(t, ReplyError, msg.Type)
	assert.Contains(t, msg.Error, state.ErrSessionNotFound.Error())
}

func TestHub_Verify(t *testing.T) {
	_, _, conn := newTestHub(t)

	transcript := game.Transcript{
		ServerSeed: "seedX",
		Commitment: "not-the-hash",
		ClientSeed: "clientY",
		Rounds:     []game.ClaimedRound{{Nonce: 0, OutcomeHash: game.Resolve("seedX", "clientY", 0)}},
	}
	send(t, conn, "verify", transcript)

	msg := next(t, conn)
	require.Equal(t, ReplyVerified, msg.Type)

	var out VerifyReply
	require.NoError(t, json.Unmarshal(msg.Data, &out))
	assert.False(t, out.Valid)
	assert.False(t, out.Report.CommitmentMatch)
	assert.Empty(t, out.Report.Mismatched)
	assert.Contains(t, out.Error, game.ErrCommitmentMismatch.Error())
}

func TestClientConnection_ReplyAfterClose(t *testing.T) {
	client := &ClientConnection{ID: "c1", Subscriptions: map[string]bool{}, Send: make(chan []byte, 1)}

	assert.True(t, client.trySend([]byte("a")))
	assert.False(t, client.trySend([]byte("b")), "buffer full")

	client.close()
	client.close()

	assert.NotPanics(t, func() {
		client.reply(ServerMessage{Type: ReplyError, Error: "late"})
	})
	assert.False(t, client.trySend([]byte("c")))

	got, ok := <-client.Send
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), got)
	_, ok = <-client.Send
	assert.False(t, ok)
}

func TestClientConnection_ConcurrentReplyAndClose(t *testing.T) {
	client := &ClientConnection{ID: "c2", Subscriptions: map[string]bool{}, Send: make(chan []byte, 64)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			client.reply(ServerMessage{Type: "pong"})
		}
	}()
	client.close()
	<-done

	for range client.Send {
	}
}
