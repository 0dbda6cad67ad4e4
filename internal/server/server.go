package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/lox/casino/internal/auth"
	"github.com/lox/casino/internal/store"
	"github.com/lox/casino/internal/table"
)

// Store is the persistence the session layer drives. *store.Store
// implements it.
type Store interface {
	auth.UserStore

	CreateTable(ctx context.Context, name, owner string) error
	JoinTable(ctx context.Context, name, user string) error
	LeaveTable(ctx context.Context, name, user string) error
	SetReady(ctx context.Context, name, user string, ready bool) error
	PlayerCounts(ctx context.Context, name string) (total, ready int, err error)
	AllPlayersReady(ctx context.Context, name string) (bool, error)
	TablePlayers(ctx context.Context, name string) ([]string, error)
	MarkGameStarted(ctx context.Context, name string) error
	IsGameStarted(ctx context.Context, name string) (bool, error)
	ClearMemberships(ctx context.Context) error

	InsertChatMessage(ctx context.Context, table, sender, text string) (int64, error)
	ChatMessagesSince(ctx context.Context, table string, afterID int64) ([]store.ChatMessage, error)
	NotifyTable(ctx context.Context, table, text string) error

	HandHistory(ctx context.Context, user string, limit int) ([]store.HistoryEntry, error)
}

// Settler persists concluded hands in the background.
type Settler interface {
	Run(ctx context.Context) error
	Close()
}

// Config holds the listener addresses. An empty address disables that
// listener.
type Config struct {
	Address      string
	WSAddress    string
	DefaultChips int
}

// Option configures a Server.
type Option func(*Server)

// WithValidator replaces the store-backed credential check.
func WithValidator(v auth.Validator) Option {
	return func(s *Server) { s.validator = v }
}

// Server accepts line protocol connections over TCP and WebSocket
type Server struct {
	cfg       Config
	store     Store
	validator auth.Validator
	registry  *table.Registry
	settler   Settler
	logger    *log.Logger
	upgrader  websocket.Upgrader

	tcpLn   net.Listener
	wsLn    net.Listener
	httpSrv *http.Server

	mu       sync.Mutex
	ctx      context.Context
	conns    map[lineConn]struct{}
	closing  bool
	sessions sync.WaitGroup
}

// New creates a server. Listen and Serve, or Run, start it. The registry
// should report hand ends to the store through table.WithHandTracker so ready
// flags are cleared before the next hand can start.
func New(cfg Config, st Store, registry *table.Registry, settler Settler, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		validator: auth.NewStoreValidator(st),
		registry:  registry,
		settler:   settler,
		logger:    logger.WithPrefix("server"),
		upgrader: websocket.Upgrader{
			// Clients are terminal programs and bots, not browsers.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:   context.Background(),
		conns: make(map[lineConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the configured addresses.
func (s *Server) Listen() error {
	if s.cfg.Address != "" {
		ln, err := net.Listen("tcp", s.cfg.Address)
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
		}
		s.tcpLn = ln
	}
	if s.cfg.WSAddress != "" {
		ln, err := net.Listen("tcp", s.cfg.WSAddress)
		if err != nil {
			if s.tcpLn != nil {
				_ = s.tcpLn.Close()
			}
			return fmt.Errorf("listen %s: %w", s.cfg.WSAddress, err)
		}
		s.wsLn = ln

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.handleWebSocket)
		mux.HandleFunc("/health", s.handleHealth)
		s.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}
	return nil
}

// Addr returns the bound TCP address, or nil.
func (s *Server) Addr() net.Addr {
	if s.tcpLn == nil {
		return nil
	}
	return s.tcpLn.Addr()
}

// WSAddr returns the bound WebSocket address, or nil.
func (s *Server) WSAddr() net.Addr {
	if s.wsLn == nil {
		return nil
	}
	return s.wsLn.Addr()
}

// Run listens and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections on the listeners bound by Listen. When ctx is
// cancelled it stops accepting, closes every session (folding seated
// players out of running hands) and drains the settlement queue.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.store.ClearMemberships(ctx); err != nil {
		return fmt.Errorf("reset tables: %w", err)
	}

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.settler.Run(context.WithoutCancel(gctx))
	})

	if s.tcpLn != nil {
		s.logger.Info("Listening for line clients", "addr", s.tcpLn.Addr())
		g.Go(func() error { return s.acceptTCP(gctx) })
	}

	if s.httpSrv != nil {
		s.logger.Info("Listening for WebSocket clients", "addr", s.wsLn.Addr())
		g.Go(func() error {
			if err := s.httpSrv.Serve(s.wsLn); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	return g.Wait()
}

func (s *Server) acceptTCP(ctx context.Context) error {
	for {
		conn, err := s.tcpLn.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.serveConn(newTCPConn(conn))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}
	s.serveConn(newWSConn(conn))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}

// serveConn runs a session for conn on its own goroutine.
func (s *Server) serveConn(conn lineConn) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	ctx := s.ctx
	s.sessions.Add(1)
	total := len(s.conns)
	s.mu.Unlock()

	s.logger.Info("Client connected", "remote", conn.RemoteAddr(), "total", total)

	go func() {
		defer s.sessions.Done()
		newSession(s, conn).run(ctx)

		s.mu.Lock()
		delete(s.conns, conn)
		total := len(s.conns)
		s.mu.Unlock()
		s.logger.Info("Client disconnected", "remote", conn.RemoteAddr(), "total", total)
	}()
}

func (s *Server) shutdown() {
	s.logger.Info("Shutting down")

	s.mu.Lock()
	s.closing = true
	for conn := range s.conns {
		_ = conn.Close() // Ignore close errors during shutdown
	}
	s.mu.Unlock()

	if s.tcpLn != nil {
		_ = s.tcpLn.Close()
	}
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP shutdown", "error", err)
		}
		cancel()
	}

	// Sessions settle their seats before the queue is drained.
	s.sessions.Wait()
	s.settler.Close()
	s.logger.Info("Shutdown complete")
}
