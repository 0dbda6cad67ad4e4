package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/casino/internal/protocol"
	"github.com/lox/casino/internal/settlement"
	"github.com/lox/casino/internal/store"
	"github.com/lox/casino/internal/table"
	"github.com/lox/casino/poker"
)

// Heads-up deal: alice holds AS AH, bob 2C 7D, board AD KC 9S 4H 3C.
const fixedDeck = "AS AH 2C 7D AD KC 9S 4H 3C"

type harness struct {
	srv *Server
	db  *store.Store
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	return newHarnessWithTracker(t, cfg, nil)
}

// newHarnessWithTracker lets wrap intercept hand ends before they reach the
// store.
func newHarnessWithTracker(t *testing.T, cfg Config, wrap func(table.HandTracker) table.HandTracker) *harness {
	t.Helper()
	ctx := context.Background()
	logger := log.New(io.Discard)

	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "casino.db"), logger)
	require.NoError(t, err)

	// An unbuffered queue makes every settlement record inline.
	settler := settlement.New(db, settlement.Config{MaxAttempts: 1, QueueSize: 0}, logger)

	var tracker table.HandTracker = db
	if wrap != nil {
		tracker = wrap(db)
	}

	var (
		mu  sync.Mutex
		ids int
	)
	registry := table.NewRegistry(table.DefaultStakes(), logger,
		table.WithBalances(db),
		table.WithNotifier(db),
		table.WithHandTracker(tracker),
		table.WithSettlementSink(settler),
		table.WithDeckFactory(func() *poker.Deck {
			return poker.NewDeckFromCards(poker.MustParseCards(fixedDeck))
		}),
		table.WithHandIDs(func() string {
			mu.Lock()
			defer mu.Unlock()
			ids++
			return fmt.Sprintf("hand-%d", ids)
		}),
	)

	if cfg.DefaultChips == 0 {
		cfg.DefaultChips = 1000
	}
	h := &harness{srv: New(cfg, db, registry, settler, logger), db: db}
	t.Cleanup(func() {
		h.srv.shutdown()
		_ = db.Close()
	})
	return h
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// connect opens a session over an in-memory pipe.
func (h *harness) connect(t *testing.T) *client {
	t.Helper()
	srvSide, cliSide := net.Pipe()
	h.srv.serveConn(newTCPConn(srvSide))

	c := &client{t: t, conn: cliSide, r: bufio.NewReader(cliSide)}
	t.Cleanup(func() { _ = cliSide.Close() })
	require.Equal(t, protocol.Greeting, c.readLine())
	return c
}

func (c *client) write(line string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

func (c *client) readLine() string {
	c.t.Helper()
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\r\n")
}

func (c *client) do(line string) string {
	c.t.Helper()
	c.write(line)
	return c.readLine()
}

// lines sends cmd followed by an unknown command and returns every reply
// line that arrives before the unknown command's error.
func (c *client) lines(cmd string) []string {
	c.t.Helper()
	c.write(cmd + "\nNOOP")
	var out []string
	for {
		l := c.readLine()
		if l == protocol.Err(protocol.CodeUnknownCommand) {
			return out
		}
		out = append(out, l)
	}
}

func (c *client) poll() protocol.State {
	c.t.Helper()
	st, err := protocol.ParseState(c.lines("POLL_STATE"))
	require.NoError(c.t, err)
	return st
}

func (c *client) login(name string) {
	c.t.Helper()
	require.Equal(c.t, "OK REGISTER", c.do("REGISTER "+name+" pw"))
	require.Equal(c.t, "OK LOGIN", c.do("LOGIN "+name+" pw"))
}

func chatTexts(st protocol.State) []string {
	var out []string
	for _, c := range st.Chat {
		out = append(out, c.Text)
	}
	return out
}

func seatTwo(t *testing.T, h *harness) (*client, *client) {
	t.Helper()
	alice, bob := h.connect(t), h.connect(t)
	alice.login("alice")
	bob.login("bob")
	require.Equal(t, "OK CREATE_TABLE", alice.do("CREATE_TABLE main"))
	require.Equal(t, "OK JOIN_TABLE", bob.do("JOIN_TABLE main"))
	return alice, bob
}

func TestHeadsUpHandToShowdown(t *testing.T) {
	h := newHarness(t, Config{})
	alice, bob := seatTwo(t, h)

	require.Equal(t, "OK SET_READY", alice.do("SET_READY"))
	st := alice.poll()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Ready)
	assert.False(t, st.Started)
	assert.False(t, st.InHand())
	assert.Contains(t, chatTexts(st), "bob joined the table.")

	require.Equal(t, "OK SET_READY", bob.do("SET_READY"))
	st = alice.poll()
	assert.True(t, st.Started)
	assert.Equal(t, "AS AH", poker.FormatCards(st.Hole))
	assert.Empty(t, st.Board)
	assert.Equal(t, "Preflop", st.Phase)
	assert.Equal(t, "alice", st.CurrentTurn)
	assert.Equal(t, 30, st.Pot)
	assert.Equal(t, []protocol.PlayerState{
		{Name: "alice", Chips: 990, Bet: 10},
		{Name: "bob", Chips: 980, Bet: 20},
	}, st.Players)
	assert.Contains(t, chatTexts(st), "alice posts small blind 10, bob posts big blind 20.")

	assert.Equal(t, "ERR hand_in_progress", alice.do("SET_READY"))
	assert.Equal(t, "ERR not_your_turn", bob.do("PLAYER_ACTION CALL"))
	assert.Equal(t, "ERR must_call", alice.do("PLAYER_ACTION check"))
	assert.Equal(t, "ERR invalid_amount", alice.do("PLAYER_ACTION RAISE lots"))

	require.Equal(t, "OK PLAYER_ACTION", alice.do("PLAYER_ACTION CALL"))
	require.Equal(t, "OK PLAYER_ACTION", bob.do("PLAYER_ACTION CHECK"))

	st = bob.poll()
	assert.Equal(t, "2C 7D", poker.FormatCards(st.Hole), "each player sees only their own cards")
	assert.Equal(t, "AD KC 9S", poker.FormatCards(st.Board))
	assert.Equal(t, "Flop", st.Phase)
	assert.Equal(t, "bob", st.CurrentTurn)

	for range 3 {
		require.Equal(t, "OK PLAYER_ACTION", bob.do("PLAYER_ACTION CHECK"))
		require.Equal(t, "OK PLAYER_ACTION", alice.do("PLAYER_ACTION CHECK"))
	}

	st = alice.poll()
	assert.False(t, st.Started, "table is marked finished")
	assert.Zero(t, st.Ready, "ready flags are reset")
	assert.False(t, st.InHand())
	assert.Contains(t, chatTexts(st), "alice wins the pot of 40 with ThreeOfAKind.")

	ctx := context.Background()
	chips, err := h.db.ChipBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1020, chips)
	chips, err = h.db.ChipBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 980, chips)

	hist, err := protocol.ParseHistory(alice.do("HISTORY"))
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "main", hist[0].Table)
	assert.Equal(t, 20, hist[0].Net)
	assert.Equal(t, "AS AH", hist[0].Hole)
	assert.Equal(t, "AD KC 9S 4H 3C", hist[0].Board)

	assert.Equal(t, "ERR hand_not_started", alice.do("PLAYER_ACTION CHECK"))
}

func TestSecondHandRotatesButton(t *testing.T) {
	h := newHarness(t, Config{})
	alice, bob := seatTwo(t, h)

	require.Equal(t, "OK SET_READY", alice.do("SET_READY"))
	require.Equal(t, "OK SET_READY", bob.do("SET_READY"))
	require.Equal(t, "OK PLAYER_ACTION", alice.do("PLAYER_ACTION FOLD"))

	st := bob.poll()
	require.False(t, st.Started)

	require.Equal(t, "OK SET_READY", alice.do("SET_READY"))
	require.Equal(t, "OK SET_READY", bob.do("SET_READY"))

	st = bob.poll()
	require.True(t, st.InHand())
	assert.Equal(t, "bob", st.CurrentTurn, "bob holds the button and acts first heads-up")
	assert.Equal(t, []protocol.PlayerState{
		{Name: "alice", Chips: 970, Bet: 20},
		{Name: "bob", Chips: 1000, Bet: 10},
	}, st.Players, "stacks carry over from the previous hand")
}

// pausedTracker holds the first hand end inside HandOver until released.
type pausedTracker struct {
	next    table.HandTracker
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *pausedTracker) HandOver(ctx context.Context, name string) error {
	p.once.Do(func() {
		close(p.entered)
		<-p.release
	})
	return p.next.HandOver(ctx, name)
}

func TestReadyDuringHandEndWaitsForReset(t *testing.T) {
	paused := &pausedTracker{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarnessWithTracker(t, Config{}, func(next table.HandTracker) table.HandTracker {
		paused.next = next
		return paused
	})
	alice, bob := seatTwo(t, h)

	require.Equal(t, "OK SET_READY", alice.do("SET_READY"))
	require.Equal(t, "OK SET_READY", bob.do("SET_READY"))

	// alice's fold ends the hand; bob readies while the end is being
	// recorded, with last hand's flags still set in the database.
	alice.write("PLAYER_ACTION FOLD")
	<-paused.entered
	bob.write("SET_READY")
	time.Sleep(50 * time.Millisecond)
	close(paused.release)

	require.Equal(t, "OK PLAYER_ACTION", alice.readLine())
	require.Equal(t, "OK SET_READY", bob.readLine())

	st := bob.poll()
	assert.False(t, st.InHand(), "alice has not readied for the next hand")
	assert.False(t, st.Started)
	assert.Equal(t, 1, st.Ready)

	require.Equal(t, "OK SET_READY", alice.do("SET_READY"))
	st = bob.poll()
	assert.True(t, st.InHand())
	assert.True(t, st.Started)
}

func TestReadyAfterHandNeedsEveryone(t *testing.T) {
	h := newHarness(t, Config{})
	alice, bob := seatTwo(t, h)

	require.Equal(t, "OK SET_READY", alice.do("SET_READY"))
	require.Equal(t, "OK SET_READY", bob.do("SET_READY"))
	require.Equal(t, "OK PLAYER_ACTION", alice.do("PLAYER_ACTION FOLD"))

	require.Equal(t, "OK SET_READY", bob.do("SET_READY"))
	st := alice.poll()
	assert.False(t, st.InHand())
	assert.Equal(t, 1, st.Ready)
}

func TestDisconnectFoldsPlayer(t *testing.T) {
	h := newHarness(t, Config{})
	alice, bob := seatTwo(t, h)

	require.Equal(t, "OK SET_READY", alice.do("SET_READY"))
	require.Equal(t, "OK SET_READY", bob.do("SET_READY"))

	require.NoError(t, bob.conn.Close())

	ctx := context.Background()
	require.Eventually(t, func() bool {
		total, _, err := h.db.PlayerCounts(ctx, "main")
		return err == nil && total == 1
	}, 2*time.Second, 10*time.Millisecond)

	st := alice.poll()
	assert.False(t, st.Started)
	assert.Equal(t, 1, st.Total)
	texts := chatTexts(st)
	assert.Contains(t, texts, "bob leaves the table and folds.")
	assert.Contains(t, texts, "alice wins the pot of 30.")
	assert.Contains(t, texts, "bob left the table.")

	chips, err := h.db.ChipBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 980, chips, "forfeited blind stays in the pot")
	chips, err = h.db.ChipBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1020, chips)
}

func TestLeaveTableDuringHand(t *testing.T) {
	h := newHarness(t, Config{})
	alice, bob := seatTwo(t, h)

	require.Equal(t, "OK SET_READY", alice.do("SET_READY"))
	require.Equal(t, "OK SET_READY", bob.do("SET_READY"))

	require.Equal(t, "OK LEAVE_TABLE", alice.do("LEAVE_TABLE"))
	assert.Equal(t, "ERR not_at_table", alice.do("POLL_STATE"))

	st := bob.poll()
	assert.False(t, st.Started)
	assert.Equal(t, 1, st.Total)
	assert.Contains(t, chatTexts(st), "bob wins the pot of 30.")

	// alice can sit down again elsewhere.
	assert.Equal(t, "OK CREATE_TABLE", alice.do("CREATE_TABLE side"))
}

func TestSessionStateChecks(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.connect(t)

	assert.Equal(t, "ERR not_logged_in", c.do("POLL_STATE"))
	assert.Equal(t, "ERR not_logged_in", c.do("SET_READY"))
	assert.Equal(t, "ERR not_logged_in", c.do("CREATE_TABLE main"))
	assert.Equal(t, "ERR not_logged_in", c.do("HISTORY"))
	assert.Equal(t, "ERR not_logged_in", c.do("LEAVE_TABLE"))
	assert.Equal(t, "ERR unknown_command", c.do("DANCE"))
	assert.Equal(t, "ERR bad_format", c.do("LOGIN alice"))
	assert.Equal(t, "ERR invalid_credentials", c.do("LOGIN alice pw"))
	assert.Equal(t, "ERR invalid_name", c.do("REGISTER a|b pw"))

	c.login("alice")
	assert.Equal(t, "ERR already_logged_in", c.do("LOGIN alice pw"))
	assert.Equal(t, "ERR not_at_table", c.do("POLL_STATE"))
	assert.Equal(t, "ERR not_at_table", c.do("PLAYER_ACTION CALL"))
	assert.Equal(t, "ERR table_not_found", c.do("JOIN_TABLE nowhere"))
	assert.Equal(t, "ERR empty_table_name", c.do("CREATE_TABLE"))
	assert.Equal(t, "OK LEAVE_TABLE", c.do("LEAVE_TABLE"), "leaving without a table is a no-op")
	assert.Equal(t, "OK HISTORY", c.do("HISTORY"))

	require.Equal(t, "OK CREATE_TABLE", c.do("create_table main"))
	assert.Equal(t, "ERR already_at_table", c.do("CREATE_TABLE other"))
	assert.Equal(t, "ERR already_at_table", c.do("JOIN_TABLE main"))
	assert.Equal(t, "ERR empty_message", c.do("SEND_CHAT"))
	assert.Equal(t, "ERR empty_action", c.do("PLAYER_ACTION"))
	assert.Equal(t, "ERR unknown_action", c.do("PLAYER_ACTION JUMP"))
	assert.Equal(t, "ERR hand_not_started", c.do("PLAYER_ACTION CALL"))

	other := h.connect(t)
	other.login("bob")
	assert.Equal(t, "ERR table_exists", other.do("CREATE_TABLE MAIN"))

	third := h.connect(t)
	assert.Equal(t, "ERR user_exists", third.do("REGISTER bob pw"))
}

func TestChatIsDeliveredOnce(t *testing.T) {
	h := newHarness(t, Config{})
	alice, bob := seatTwo(t, h)

	require.Equal(t, "OK SEND_CHAT", alice.do("SEND_CHAT hello | world"))

	st := bob.poll()
	require.NotEmpty(t, st.Chat)
	last := st.Chat[len(st.Chat)-1]
	assert.Equal(t, "alice", last.Sender)
	assert.Equal(t, "hello | world", last.Text)

	assert.Empty(t, bob.poll().Chat, "already seen")
}

func TestQuitClosesConnection(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.connect(t)

	assert.Equal(t, "OK QUIT", c.do("QUIT"))
	_, err := c.r.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
}

func TestWebSocketSession(t *testing.T) {
	h := newHarness(t, Config{})
	ts := httptest.NewServer(http.HandlerFunc(h.srv.handleWebSocket))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() string {
		t.Helper()
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		return string(data)
	}
	send := func(line string) string {
		t.Helper()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(line)))
		return read()
	}

	assert.Equal(t, protocol.Greeting, read())
	assert.Equal(t, "OK REGISTER", send("REGISTER carol pw"))
	assert.Equal(t, "OK LOGIN", send("LOGIN carol pw"))
	assert.Equal(t, "OK CREATE_TABLE", send("CREATE_TABLE solo"))
	assert.Equal(t, "OK SET_READY", send("SET_READY"))

	// A single seated player is dealt a hand on their own.
	st, err := protocol.ParseState(strings.Split(send("POLL_STATE"), "\n"))
	require.NoError(t, err)
	assert.True(t, st.Started)
	assert.Equal(t, "carol", st.CurrentTurn)
	assert.Equal(t, "AS AH", poker.FormatCards(st.Hole))

	assert.Equal(t, "OK PLAYER_ACTION", send("PLAYER_ACTION CHECK"))
	st, err = protocol.ParseState(strings.Split(send("POLL_STATE"), "\n"))
	require.NoError(t, err)
	assert.False(t, st.Started)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, Config{})
	rec := httptest.NewRecorder()
	h.srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestServeAndShutdown(t *testing.T) {
	h := newHarness(t, Config{Address: "127.0.0.1:0", WSAddress: "127.0.0.1:0"})
	require.NoError(t, h.srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.srv.Serve(ctx) }()

	conn, err := net.Dial("tcp", h.srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)
	greeting, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, protocol.Greeting+"\n", greeting)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+h.srv.WSAddr().String()+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, protocol.Greeting, string(data))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = r.ReadString('\n')
	assert.Error(t, err, "sessions are closed on shutdown")
}
