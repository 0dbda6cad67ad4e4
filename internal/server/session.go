package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/lox/casino/internal/auth"
	"github.com/lox/casino/internal/protocol"
	"github.com/lox/casino/internal/store"
	"github.com/lox/casino/internal/table"
)

// sessionState is one of notAuthenticated, authenticated or atTable.
type sessionState interface {
	isSessionState()
}

type notAuthenticated struct{}

type authenticated struct {
	user string
}

type atTable struct {
	user     string
	table    string
	lastChat int64
}

func (notAuthenticated) isSessionState() {}
func (authenticated) isSessionState()    {}
func (*atTable) isSessionState()         {}

// session serves one connection. Its state is only touched by the goroutine
// running it.
type session struct {
	srv    *Server
	conn   lineConn
	logger *log.Logger
	state  sessionState
}

func newSession(srv *Server, conn lineConn) *session {
	return &session{
		srv:    srv,
		conn:   conn,
		logger: srv.logger.WithPrefix("session").With("remote", conn.RemoteAddr()),
		state:  notAuthenticated{},
	}
}

// run reads commands until the peer leaves or QUIT. Whatever the session
// holds at the end is released as if the player had left the table.
func (s *session) run(ctx context.Context) {
	defer func() {
		s.disconnect(context.WithoutCancel(ctx))
		_ = s.conn.Close()
	}()

	if err := s.conn.WriteLines(protocol.Greeting); err != nil {
		return
	}

	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			if !isClosedErr(err) {
				s.logger.Warn("Read failed", "error", err)
			}
			return
		}

		req, err := protocol.ParseRequest(line)
		if errors.Is(err, protocol.ErrEmptyLine) {
			continue
		}

		reply := s.handle(ctx, req)
		if err := s.conn.WriteLines(reply...); err != nil {
			if !isClosedErr(err) {
				s.logger.Warn("Write failed", "error", err)
			}
			return
		}
		if req.Command == protocol.CmdQuit {
			return
		}
	}
}

func (s *session) handle(ctx context.Context, req protocol.Request) []string {
	s.logger.Debug("Command", "command", req.Command, "user", s.userName())

	switch req.Command {
	case protocol.CmdLogin:
		return one(s.login(ctx, req))
	case protocol.CmdRegister:
		return one(s.register(ctx, req))
	case protocol.CmdCreateTable:
		return one(s.createTable(ctx, req))
	case protocol.CmdJoinTable:
		return one(s.joinTable(ctx, req))
	case protocol.CmdSetReady:
		return one(s.setReady(ctx))
	case protocol.CmdLeaveTable:
		return one(s.leaveTable(ctx))
	case protocol.CmdSendChat:
		return one(s.sendChat(ctx, req))
	case protocol.CmdPollState:
		return s.pollState(ctx)
	case protocol.CmdPlayerAction:
		return one(s.playerAction(ctx, req))
	case protocol.CmdHistory:
		return one(s.history(ctx))
	case protocol.CmdQuit:
		return one(protocol.OK(protocol.CmdQuit))
	default:
		return one(protocol.Err(protocol.CodeUnknownCommand))
	}
}

func one(line string) []string { return []string{line} }

func (s *session) userName() string {
	switch st := s.state.(type) {
	case authenticated:
		return st.user
	case *atTable:
		return st.user
	}
	return ""
}

func (s *session) login(ctx context.Context, req protocol.Request) string {
	if _, ok := s.state.(notAuthenticated); !ok {
		return protocol.Err(protocol.CodeAlreadyLoggedIn)
	}
	user, password, ok := strings.Cut(req.Args, " ")
	if !ok {
		return protocol.Err(protocol.CodeBadFormat)
	}

	id, err := s.srv.validator.Validate(ctx, user, strings.TrimSpace(password))
	if err != nil {
		return s.fail("Login failed", err, "user", user)
	}

	s.state = authenticated{user: id.Name}
	s.logger.Info("Player logged in", "user", id.Name)
	return protocol.OK(protocol.CmdLogin)
}

func (s *session) register(ctx context.Context, req protocol.Request) string {
	if _, ok := s.state.(notAuthenticated); !ok {
		return protocol.Err(protocol.CodeAlreadyLoggedIn)
	}
	user, password, ok := strings.Cut(req.Args, " ")
	if !ok {
		return protocol.Err(protocol.CodeBadFormat)
	}

	if err := auth.Register(ctx, s.srv.store, user, strings.TrimSpace(password), s.srv.cfg.DefaultChips); err != nil {
		return s.fail("Registration failed", err, "user", user)
	}
	s.logger.Info("Player registered", "user", user)
	return protocol.OK(protocol.CmdRegister)
}

func (s *session) createTable(ctx context.Context, req protocol.Request) string {
	user, code := s.needLobby()
	if code != "" {
		return protocol.Err(code)
	}
	name := req.Args
	if name == "" {
		return protocol.Err(protocol.CodeEmptyTableName)
	}
	if err := auth.ValidateName(name); err != nil {
		return protocol.Err(protocol.CodeInvalidName)
	}

	if err := s.srv.store.CreateTable(ctx, name, user); err != nil {
		return s.fail("Create table failed", err, "table", name)
	}
	s.state = &atTable{user: user, table: name}
	return protocol.OK(protocol.CmdCreateTable)
}

func (s *session) joinTable(ctx context.Context, req protocol.Request) string {
	user, code := s.needLobby()
	if code != "" {
		return protocol.Err(code)
	}
	name := req.Args
	if name == "" {
		return protocol.Err(protocol.CodeEmptyTableName)
	}

	if err := s.srv.store.JoinTable(ctx, name, user); err != nil {
		return s.fail("Join table failed", err, "table", name)
	}
	s.state = &atTable{user: user, table: name}
	s.narrate(ctx, name, fmt.Sprintf("%s joined the table.", user))
	return protocol.OK(protocol.CmdJoinTable)
}

// needLobby returns the user of an authenticated session that is not seated.
func (s *session) needLobby() (string, string) {
	switch st := s.state.(type) {
	case authenticated:
		return st.user, ""
	case *atTable:
		return "", protocol.CodeAlreadyAtTable
	default:
		return "", protocol.CodeNotLoggedIn
	}
}

// needTable returns the seat of a session at a table.
func (s *session) needTable() (*atTable, string) {
	switch st := s.state.(type) {
	case *atTable:
		return st, ""
	case authenticated:
		return nil, protocol.CodeNotAtTable
	default:
		return nil, protocol.CodeNotLoggedIn
	}
}

func (s *session) setReady(ctx context.Context) string {
	seat, code := s.needTable()
	if code != "" {
		return protocol.Err(code)
	}

	// The readiness check and the deal share the table lock with the end of
	// the previous hand, so stale ready flags are never seen here.
	_, err := s.srv.registry.StartHandWhenReady(ctx, seat.table, func(ctx context.Context) ([]string, error) {
		return s.readyUp(ctx, seat)
	})
	if err != nil {
		return s.fail("Set ready failed", err, "table", seat.table)
	}
	return protocol.OK(protocol.CmdSetReady)
}

// readyUp records the player as ready and, when everyone seated is, returns
// the players to deal in join order.
func (s *session) readyUp(ctx context.Context, seat *atTable) ([]string, error) {
	st := s.srv.store
	if err := st.SetReady(ctx, seat.table, seat.user, true); err != nil {
		return nil, err
	}
	s.narrate(ctx, seat.table, fmt.Sprintf("%s is ready.", seat.user))

	allReady, err := st.AllPlayersReady(ctx, seat.table)
	if err != nil || !allReady {
		return nil, err
	}
	players, err := st.TablePlayers(ctx, seat.table)
	if err != nil {
		return nil, err
	}
	if err := st.MarkGameStarted(ctx, seat.table); err != nil {
		return nil, err
	}
	s.narrate(ctx, seat.table, fmt.Sprintf("All players are ready at %s. The game begins.", seat.table))
	return players, nil
}

func (s *session) leaveTable(ctx context.Context) string {
	switch s.state.(type) {
	case notAuthenticated:
		return protocol.Err(protocol.CodeNotLoggedIn)
	case authenticated:
		return protocol.OK(protocol.CmdLeaveTable)
	}
	seat := s.state.(*atTable)
	s.releaseSeat(ctx, seat)
	s.state = authenticated{user: seat.user}
	return protocol.OK(protocol.CmdLeaveTable)
}

// releaseSeat folds the player out of any running hand and gives up their
// seat at the table.
func (s *session) releaseSeat(ctx context.Context, seat *atTable) {
	if _, err := s.srv.registry.PlayerLeft(ctx, seat.table, seat.user); err != nil {
		s.logger.Error("Leave during hand failed", "table", seat.table, "user", seat.user, "error", err)
	}

	s.narrate(ctx, seat.table, fmt.Sprintf("%s left the table.", seat.user))
	if err := s.srv.store.LeaveTable(ctx, seat.table, seat.user); err != nil {
		s.logger.Error("Failed to leave table", "table", seat.table, "user", seat.user, "error", err)
	}
	s.logger.Info("Player left table", "table", seat.table, "user", seat.user)
}

func (s *session) sendChat(ctx context.Context, req protocol.Request) string {
	seat, code := s.needTable()
	if code != "" {
		return protocol.Err(code)
	}
	if req.Args == "" {
		return protocol.Err(protocol.CodeEmptyMessage)
	}
	if _, err := s.srv.store.InsertChatMessage(ctx, seat.table, seat.user, req.Args); err != nil {
		return s.fail("Chat failed", err, "table", seat.table)
	}
	return protocol.OK(protocol.CmdSendChat)
}

func (s *session) pollState(ctx context.Context) []string {
	seat, code := s.needTable()
	if code != "" {
		return one(protocol.Err(code))
	}
	st := s.srv.store

	total, ready, err := st.PlayerCounts(ctx, seat.table)
	if err != nil {
		return one(s.fail("Poll failed", err, "table", seat.table))
	}
	started, err := st.IsGameStarted(ctx, seat.table)
	if err != nil {
		return one(s.fail("Poll failed", err, "table", seat.table))
	}
	msgs, err := st.ChatMessagesSince(ctx, seat.table, seat.lastChat)
	if err != nil {
		return one(s.fail("Poll failed", err, "table", seat.table))
	}

	chat := make([]protocol.ChatLine, len(msgs))
	for i, m := range msgs {
		chat[i] = protocol.ChatLine{ID: m.ID, Sender: m.Sender, Text: m.Text}
		seat.lastChat = m.ID
	}

	snap := s.srv.registry.Snapshot(seat.table, seat.user)
	return protocol.NewState(total, ready, started, snap, chat).Lines()
}

func (s *session) playerAction(ctx context.Context, req protocol.Request) string {
	seat, code := s.needTable()
	if code != "" {
		return protocol.Err(code)
	}
	action, err := table.ParseAction(req.Args)
	if err != nil {
		return protocol.Err(table.ReasonCode(err))
	}

	out, err := s.srv.registry.ApplyPlayerAction(ctx, seat.table, seat.user, action)
	if out.HandOver() {
		s.logger.Debug("Hand over", "table", seat.table, "aborted", out.Aborted)
	}
	if err != nil {
		if !table.IsRejection(err) {
			s.logger.Error("Action failed", "table", seat.table, "user", seat.user, "action", action, "error", err)
		}
		return protocol.Err(table.ReasonCode(err))
	}
	return protocol.OK(protocol.CmdPlayerAction)
}

func (s *session) history(ctx context.Context) string {
	user := s.userName()
	if user == "" {
		return protocol.Err(protocol.CodeNotLoggedIn)
	}
	rows, err := s.srv.store.HandHistory(ctx, user, protocol.MaxHistoryEntries)
	if err != nil {
		return s.fail("History failed", err, "user", user)
	}

	entries := make([]protocol.HistoryEntry, len(rows))
	for i, r := range rows {
		entries[i] = protocol.HistoryEntry{At: r.CreatedAt, Table: r.Table, Net: r.Net, Hole: r.Hole, Board: r.Board}
	}
	return protocol.FormatHistory(entries)
}

// disconnect releases the seat of a session that went away.
func (s *session) disconnect(ctx context.Context) {
	if seat, ok := s.state.(*atTable); ok {
		s.logger.Info("Player disconnected while seated", "table", seat.table, "user", seat.user)
		s.releaseSeat(ctx, seat)
	}
	s.state = notAuthenticated{}
}

func (s *session) narrate(ctx context.Context, name, text string) {
	if err := s.srv.store.NotifyTable(ctx, name, text); err != nil {
		s.logger.Warn("Failed to post table message", "table", name, "error", err)
	}
}

// fail maps err to its wire reply, logging anything that is not the
// player's fault.
func (s *session) fail(msg string, err error, keyvals ...any) string {
	code := errorCode(err)
	if code == table.InternalReasonCode || code == protocol.CodeUnavailable {
		s.logger.Error(msg, append(keyvals, "error", err)...)
	} else {
		s.logger.Debug(msg, append(keyvals, "reason", code)...)
	}
	return protocol.Err(code)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return protocol.CodeInvalidCredentials
	case errors.Is(err, auth.ErrInvalidName):
		return protocol.CodeInvalidName
	case errors.Is(err, auth.ErrUserExists):
		return protocol.CodeUserExists
	case errors.Is(err, auth.ErrUnavailable):
		return protocol.CodeUnavailable
	case errors.Is(err, store.ErrTableExists):
		return protocol.CodeTableExists
	case errors.Is(err, store.ErrTableNotFound):
		return protocol.CodeTableNotFound
	case errors.Is(err, store.ErrAlreadyJoined):
		return protocol.CodeAlreadyJoined
	}
	return table.ReasonCode(err)
}
