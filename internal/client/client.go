package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/casino/internal/protocol"
)

// DefaultTimeout bounds a request whose context carries no deadline.
const DefaultTimeout = 10 * time.Second

// ErrClosed is returned by requests made after Close.
var ErrClosed = errors.New("client closed")

// Client speaks the line protocol over a WebSocket. Requests are serialised:
// each command frame is answered by exactly one response frame.
type Client struct {
	conn   *websocket.Conn
	logger *log.Logger

	mu     sync.Mutex
	closed bool
	user   string
}

// Dial connects to serverURL and consumes the greeting. http and https URLs
// are converted to ws and wss; an empty path becomes /ws.
func Dial(ctx context.Context, serverURL string, logger *log.Logger) (*Client, error) {
	u, err := websocketURL(serverURL)
	if err != nil {
		return nil, err
	}

	logger = logger.WithPrefix("client")
	logger.Info("Connecting to server", "url", u)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{conn: conn, logger: logger}

	greeting, err := c.readFrame(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	if len(greeting) == 0 || !strings.HasPrefix(greeting[0], "WELCOME") {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: greeting %q", protocol.ErrMalformed, strings.Join(greeting, "\n"))
	}

	logger.Info("Connected to server", "greeting", greeting[0])
	return c, nil
}

func websocketURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// User returns the name of the logged in account, if any.
func (c *Client) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Do sends one command line and returns the response lines.
func (c *Client) Do(ctx context.Context, line string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	deadline := deadlineOf(ctx)
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return nil, fmt.Errorf("send %q: %w", line, err)
	}
	c.logger.Debug("Sent command", "line", line)

	lines, err := c.readFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return lines, nil
}

func (c *Client) readFrame(ctx context.Context) ([]string, error) {
	_ = c.conn.SetReadDeadline(deadlineOf(ctx))
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return strings.Split(strings.TrimRight(string(data), "\n"), "\n"), nil
	}
}

func deadlineOf(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(DefaultTimeout)
}

// Send issues a request and checks that the first reply line acknowledges
// it. ERR replies come back as *protocol.ReplyError.
func (c *Client) Send(ctx context.Context, req protocol.Request) ([]string, error) {
	lines, err := c.Do(ctx, req.String())
	if err != nil {
		return nil, err
	}
	if _, err := protocol.Expect(lines[0], req.Command); err != nil {
		return lines, err
	}
	return lines, nil
}

func (c *Client) Login(ctx context.Context, user, password string) error {
	if _, err := c.Send(ctx, protocol.NewRequest(protocol.CmdLogin, user, password)); err != nil {
		return err
	}
	c.setUser(user)
	return nil
}

func (c *Client) Register(ctx context.Context, user, password string) error {
	if _, err := c.Send(ctx, protocol.NewRequest(protocol.CmdRegister, user, password)); err != nil {
		return err
	}
	c.setUser(user)
	return nil
}

func (c *Client) setUser(user string) {
	c.mu.Lock()
	c.user = user
	c.mu.Unlock()
}

func (c *Client) CreateTable(ctx context.Context, name string) error {
	_, err := c.Send(ctx, protocol.NewRequest(protocol.CmdCreateTable, name))
	return err
}

func (c *Client) JoinTable(ctx context.Context, name string) error {
	_, err := c.Send(ctx, protocol.NewRequest(protocol.CmdJoinTable, name))
	return err
}

func (c *Client) SetReady(ctx context.Context) error {
	_, err := c.Send(ctx, protocol.NewRequest(protocol.CmdSetReady))
	return err
}

func (c *Client) LeaveTable(ctx context.Context) error {
	_, err := c.Send(ctx, protocol.NewRequest(protocol.CmdLeaveTable))
	return err
}

func (c *Client) SendChat(ctx context.Context, text string) error {
	_, err := c.Send(ctx, protocol.NewRequest(protocol.CmdSendChat, text))
	return err
}

// Act submits a betting action such as "CALL" or "RAISE 80".
func (c *Client) Act(ctx context.Context, action string) error {
	_, err := c.Send(ctx, protocol.NewRequest(protocol.CmdPlayerAction, action))
	return err
}

// PollState fetches the table state and any chat not yet seen.
func (c *Client) PollState(ctx context.Context) (protocol.State, error) {
	lines, err := c.Do(ctx, protocol.NewRequest(protocol.CmdPollState).String())
	if err != nil {
		return protocol.State{}, err
	}
	if _, err := protocol.Expect(lines[0], protocol.CmdPollState); err != nil {
		return protocol.State{}, err
	}
	return protocol.ParseState(lines)
}

// History returns the caller's most recent settled hands.
func (c *Client) History(ctx context.Context) ([]protocol.HistoryEntry, error) {
	lines, err := c.Do(ctx, protocol.NewRequest(protocol.CmdHistory).String())
	if err != nil {
		return nil, err
	}
	return protocol.ParseHistory(lines[0])
}

// Close sends QUIT and closes the connection. It is safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	deadline := time.Now().Add(time.Second)
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.WriteMessage(websocket.TextMessage, []byte(protocol.CmdQuit))
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	c.logger.Info("Disconnected from server")
	return c.conn.Close()
}
