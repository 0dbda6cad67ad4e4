package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Greeting is the first line a server sends on a new connection.
const Greeting = "WELCOME CasinoServer 1.0"

// Command is a request keyword. Commands are case-insensitive on the wire.
type Command string

const (
	// Client -> Server
	CmdLogin        Command = "LOGIN"
	CmdRegister     Command = "REGISTER"
	CmdCreateTable  Command = "CREATE_TABLE"
	CmdJoinTable    Command = "JOIN_TABLE"
	CmdSetReady     Command = "SET_READY"
	CmdLeaveTable   Command = "LEAVE_TABLE"
	CmdSendChat     Command = "SEND_CHAT"
	CmdPollState    Command = "POLL_STATE"
	CmdPlayerAction Command = "PLAYER_ACTION"
	CmdHistory      Command = "HISTORY"
	CmdQuit         Command = "QUIT"
)

// Reason codes sent after ERR. Table rejections use the codes from the table
// package.
const (
	CodeUnknownCommand     = "unknown_command"
	CodeBadFormat          = "bad_format"
	CodeNotLoggedIn        = "not_logged_in"
	CodeAlreadyLoggedIn    = "already_logged_in"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidName        = "invalid_name"
	CodeUserExists         = "user_exists"
	CodeNotAtTable         = "not_at_table"
	CodeAlreadyAtTable     = "already_at_table"
	CodeEmptyTableName     = "empty_table_name"
	CodeTableExists        = "table_exists"
	CodeTableNotFound      = "table_not_found"
	CodeAlreadyJoined      = "already_joined"
	CodeEmptyMessage       = "empty_message"
	CodeUnavailable        = "server_unavailable"
)

var (
	ErrEmptyLine    = errors.New("empty line")
	ErrMalformed    = errors.New("malformed reply")
	ErrUnexpectedOK = errors.New("unexpected reply")
)

// Request is one client line split into its command and raw argument text.
type Request struct {
	Command Command
	Args    string
}

// Fields splits the arguments on whitespace.
func (r Request) Fields() []string {
	return strings.Fields(r.Args)
}

// String renders the request as a wire line without the terminator.
func (r Request) String() string {
	if r.Args == "" {
		return string(r.Command)
	}
	return string(r.Command) + " " + r.Args
}

// NewRequest builds a request from a command and its arguments.
func NewRequest(cmd Command, args ...string) Request {
	return Request{Command: cmd, Args: strings.Join(args, " ")}
}

// ParseRequest splits a wire line. The command keyword is upper-cased and the
// argument text is trimmed but otherwise kept verbatim.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Request{}, ErrEmptyLine
	}
	cmd, args, _ := strings.Cut(line, " ")
	return Request{
		Command: Command(strings.ToUpper(cmd)),
		Args:    strings.TrimSpace(args),
	}, nil
}

// OK is the success reply for cmd.
func OK(cmd Command) string {
	return "OK " + string(cmd)
}

// Err is the failure reply carrying code.
func Err(code string) string {
	return "ERR " + code
}

// Reply is a parsed OK or ERR line.
type Reply struct {
	OK      bool
	Command Command // set on OK
	Code    string  // set on ERR
	Rest    string  // text after the command keyword
}

// ReplyError is returned to clients when the server answers ERR.
type ReplyError struct {
	Code string
}

func (e *ReplyError) Error() string {
	return "server error: " + e.Code
}

// Err returns the reply as an error, or nil for OK replies.
func (r Reply) Err() error {
	if r.OK {
		return nil
	}
	return &ReplyError{Code: r.Code}
}

// ParseReply parses the first line of a server response.
func ParseReply(line string) (Reply, error) {
	line = strings.TrimSpace(line)
	status, rest, _ := strings.Cut(line, " ")
	switch strings.ToUpper(status) {
	case "OK":
		// HISTORY packs its entries after a '|' with no separating space.
		cmd, tail := rest, ""
		if i := strings.IndexAny(rest, " |"); i >= 0 {
			cmd, tail = rest[:i], rest[i:]
			if tail[0] == ' ' {
				tail = tail[1:]
			}
		}
		if cmd == "" {
			return Reply{}, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		return Reply{OK: true, Command: Command(strings.ToUpper(cmd)), Rest: tail}, nil
	case "ERR":
		code := strings.TrimSpace(rest)
		if code == "" {
			return Reply{}, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		return Reply{Code: code}, nil
	default:
		return Reply{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
}

// Expect parses line and checks that it acknowledges cmd. An ERR reply is
// returned as a *ReplyError.
func Expect(line string, cmd Command) (Reply, error) {
	r, err := ParseReply(line)
	if err != nil {
		return r, err
	}
	if err := r.Err(); err != nil {
		return r, err
	}
	if r.Command != cmd {
		return r, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedOK, cmd, r.Command)
	}
	return r, nil
}
