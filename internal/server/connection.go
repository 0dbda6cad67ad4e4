package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a reply to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum command size allowed from peer
	maxMessageSize = 8192
)

// lineConn carries the line protocol over some transport. ReadLine returns
// one command without its terminator; WriteLines sends one response.
type lineConn interface {
	ReadLine() (string, error)
	WriteLines(lines ...string) error
	Close() error
	RemoteAddr() string
}

// tcpConn frames commands with '\n'. A trailing '\r' is dropped.
type tcpConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	w       *bufio.Writer
}

func newTCPConn(conn net.Conn) *tcpConn {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 1024), maxMessageSize)
	return &tcpConn{conn: conn, scanner: sc, w: bufio.NewWriter(conn)}
}

func (c *tcpConn) ReadLine() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return c.scanner.Text(), nil
}

func (c *tcpConn) WriteLines(lines ...string) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	for _, l := range lines {
		if _, err := c.w.WriteString(l + "\n"); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

func (c *tcpConn) Close() error       { return c.conn.Close() }
func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// wsConn carries one command per text frame. A response is a single frame
// holding its lines joined by '\n'.
type wsConn struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{conn: conn, done: make(chan struct{})}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go c.pingLoop()
	return c
}

// pingLoop keeps idle clients alive. WriteControl may be called concurrently
// with the reply writer.
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) ReadLine() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return strings.TrimRight(string(data), "\r\n"), nil
		}
	}
}

func (c *wsConn) WriteLines(lines ...string) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(strings.Join(lines, "\n")))
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// isClosedErr reports errors that mean the peer went away rather than
// something worth logging.
func isClosedErr(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
