package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/casino/internal/protocol"
	"github.com/lox/casino/poker"
)

// fakeServer answers each command frame with a scripted reply frame.
type fakeServer struct {
	mu       sync.Mutex
	replies  map[string]string
	received []string
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_ = conn.WriteMessage(websocket.TextMessage, []byte(protocol.Greeting))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		line := string(data)

		f.mu.Lock()
		f.received = append(f.received, line)
		reply, ok := f.replies[line]
		f.mu.Unlock()

		if !ok {
			reply = protocol.Err(protocol.CodeUnknownCommand)
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}

func (f *fakeServer) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func newTestClient(t *testing.T, replies map[string]string) (*Client, *fakeServer) {
	t.Helper()

	fake := &fakeServer{replies: replies}
	srv := httptest.NewServer(http.HandlerFunc(fake.handle))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, srv.URL, log.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, fake
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://localhost:5080", "ws://localhost:5080/ws"},
		{"https://casino.example.com", "wss://casino.example.com/ws"},
		{"ws://localhost:5080/ws", "ws://localhost:5080/ws"},
		{"localhost:5080", "ws://localhost:5080/ws"},
		{"ws://localhost:5080/custom", "ws://localhost:5080/custom"},
	}
	for _, tt := range tests {
		got, err := websocketURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := websocketURL("ftp://localhost")
	assert.Error(t, err)
}

func TestLoginAndTableCommands(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{
		"LOGIN alice secret":  "OK LOGIN",
		"CREATE_TABLE lounge": "OK CREATE_TABLE",
		"SET_READY":           "OK SET_READY",
		"PLAYER_ACTION CALL":  "OK PLAYER_ACTION",
		"SEND_CHAT hi there":  "OK SEND_CHAT",
		"LEAVE_TABLE":         "OK LEAVE_TABLE",
	})
	ctx := context.Background()

	require.NoError(t, c.Login(ctx, "alice", "secret"))
	assert.Equal(t, "alice", c.User())
	require.NoError(t, c.CreateTable(ctx, "lounge"))
	require.NoError(t, c.SetReady(ctx))
	require.NoError(t, c.Act(ctx, "CALL"))
	require.NoError(t, c.SendChat(ctx, "hi there"))
	require.NoError(t, c.LeaveTable(ctx))

	assert.Equal(t, []string{
		"LOGIN alice secret",
		"CREATE_TABLE lounge",
		"SET_READY",
		"PLAYER_ACTION CALL",
		"SEND_CHAT hi there",
		"LEAVE_TABLE",
	}, fake.commands())
}

func TestErrorReplies(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"LOGIN alice wrong": "ERR invalid_credentials",
		"JOIN_TABLE lounge": "OK CREATE_TABLE",
	})
	ctx := context.Background()

	err := c.Login(ctx, "alice", "wrong")
	var re *protocol.ReplyError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, protocol.CodeInvalidCredentials, re.Code)
	assert.Empty(t, c.User())

	err = c.JoinTable(ctx, "lounge")
	assert.ErrorIs(t, err, protocol.ErrUnexpectedOK)

	err = c.SetReady(ctx)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, protocol.CodeUnknownCommand, re.Code)
}

func TestPollState(t *testing.T) {
	reply := strings.Join([]string{
		"OK POLL_STATE 2 2 1",
		"PLAYER_CARDS AS AH",
		"COMMUNITY 2C 7D AD",
		"CURRENT_TURN bob",
		"PHASE Flop",
		"POT 40",
		"PLAYER_STATE alice 980 0 0",
		"PLAYER_STATE bob 980 0 0",
		"CHAT 7 Server bob is ready.",
	}, "\n")
	c, _ := newTestClient(t, map[string]string{"POLL_STATE": reply})

	st, err := c.PollState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.True(t, st.Started)
	assert.Equal(t, "AS AH", poker.FormatCards(st.Hole))
	assert.Len(t, st.Board, 3)
	assert.Equal(t, "bob", st.CurrentTurn)
	assert.Equal(t, 40, st.Pot)
	require.Len(t, st.Players, 2)
	assert.Equal(t, "alice", st.Players[0].Name)
	require.Len(t, st.Chat, 1)
	assert.Equal(t, int64(7), st.Chat[0].ID)
	assert.Equal(t, "bob is ready.", st.Chat[0].Text)
}

func TestHistory(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"HISTORY": "OK HISTORY|2026-01-02T03:04:05Z;lounge;20;AS AH;2C 7D AD 9S 3C",
	})

	entries, err := c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lounge", entries[0].Table)
	assert.Equal(t, 20, entries[0].Net)
	assert.Equal(t, "AS AH", entries[0].Hole)
}

func TestCloseIsIdempotent(t *testing.T) {
	c, _ := newTestClient(t, nil)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Do(context.Background(), "POLL_STATE")
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestDialRejectsUnexpectedGreeting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("HELLO"))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), srv.URL, log.New(io.Discard))
	assert.ErrorIs(t, err, protocol.ErrMalformed)
}
