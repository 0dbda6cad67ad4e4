package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/lox/casino/internal/protocol"
	"github.com/lox/casino/poker"
)

// DefaultPollInterval is how often the table state is refreshed while seated.
const DefaultPollInterval = time.Second

const requestTimeout = 5 * time.Second

// narrator is the chat sender the server uses for table announcements.
const narrator = "Server"

// Requester sends one protocol line and returns the response lines.
// *client.Client satisfies it.
type Requester interface {
	Do(ctx context.Context, line string) ([]string, error)
}

// TUIModel is the Bubble Tea model for a seated or lobby player.
type TUIModel struct {
	client Requester
	user   string
	logger *log.Logger

	// UI components
	logViewport viewport.Model
	actionInput textinput.Model

	gameLog     []string
	quitting    bool
	focusedPane int // 0 = log, 1 = input

	// Table state, refreshed by polling
	seated       bool
	tableName    string
	state        protocol.State
	lastTurn     string
	pollInterval time.Duration

	// Dimensions
	width       int
	height      int
	initialized bool
}

// Option configures a TUIModel.
type Option func(*TUIModel)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(m *TUIModel) { m.pollInterval = d }
}

type replyMsg struct {
	request string
	lines   []string
	err     error
}

type stateMsg struct {
	state protocol.State
	err   error
}

type pollTickMsg time.Time

// NewTUIModel creates a model that sends commands through c on behalf of
// user, who must already be logged in.
func NewTUIModel(c Requester, user string, logger *log.Logger, opts ...Option) *TUIModel {
	// Sized properly when the first WindowSizeMsg arrives
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "create <table>, join <table>, ready, say <text>, history, quit"
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 100
	ti.PromptStyle = PromptStyle
	ti.TextStyle = InputStyle
	ti.Prompt = "> "

	m := &TUIModel{
		client:       c,
		user:         user,
		logger:       logger.WithPrefix("tui"),
		logViewport:  vp,
		actionInput:  ti,
		focusedPane:  1,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.AddLogEntry(HeaderStyle.Render(fmt.Sprintf(" Logged in as %s ", user)))
	return m
}

func (m *TUIModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.tick())
}

func (m *TUIModel) tick() tea.Cmd {
	return tea.Tick(m.pollInterval, func(t time.Time) tea.Msg { return pollTickMsg(t) })
}

// send issues line in the background and reports the reply as a replyMsg.
func (m *TUIModel) send(line string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		lines, err := m.client.Do(ctx, line)
		return replyMsg{request: line, lines: lines, err: err}
	}
}

func (m *TUIModel) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		lines, err := m.client.Do(ctx, string(protocol.CmdPollState))
		if err != nil {
			return stateMsg{err: err}
		}
		st, err := protocol.ParseState(lines)
		return stateMsg{state: st, err: err}
	}
}

func (m *TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logger.Debug("Updating dimensions", "width", m.width, "height", m.height)

	case pollTickMsg:
		if m.seated {
			cmds = append(cmds, m.poll())
		}
		cmds = append(cmds, m.tick())

	case stateMsg:
		m.handleState(msg)

	case replyMsg:
		if m.handleReply(msg) {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			if m.focusedPane == 0 {
				m.focusedPane = 1
				m.actionInput.Focus()
			} else {
				m.focusedPane = 0
				m.actionInput.Blur()
			}
		case "enter":
			if m.focusedPane == 1 {
				line, quit := TranslateInput(m.actionInput.Value())
				m.actionInput.SetValue("")
				if quit {
					m.quitting = true
					return m, tea.Quit
				}
				if line != "" {
					cmds = append(cmds, m.send(line))
				}
			}
		case "up", "k":
			if m.focusedPane == 0 {
				m.logViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.focusedPane == 0 {
				m.logViewport.ScrollDown(1)
			}
		case "pgup", "b":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageUp()
			}
		case "pgdown", "f":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageDown()
			}
		case "home", "g":
			if m.focusedPane == 0 {
				m.logViewport.GotoTop()
			}
		case "end", "G":
			if m.focusedPane == 0 {
				m.logViewport.GotoBottom()
			}
		}
	}

	var cmd tea.Cmd
	if m.focusedPane == 1 {
		m.actionInput, cmd = m.actionInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// TranslateInput turns what the player typed into a protocol line. Short
// forms such as "call" or "say hi" are expanded; anything else is sent as
// typed. quit is set for "quit" and "exit".
func TranslateInput(input string) (line string, quit bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}
	word, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(word) {
	case "quit", "exit":
		return "", true
	case "fold", "check", "call", "bet", "raise":
		return protocol.NewRequest(protocol.CmdPlayerAction, strings.ToUpper(input)).String(), false
	case "say", "chat":
		if rest == "" {
			return "", false
		}
		return protocol.NewRequest(protocol.CmdSendChat, rest).String(), false
	case "ready":
		return string(protocol.CmdSetReady), false
	case "leave":
		return string(protocol.CmdLeaveTable), false
	case "create":
		return protocol.NewRequest(protocol.CmdCreateTable, rest).String(), false
	case "join":
		return protocol.NewRequest(protocol.CmdJoinTable, rest).String(), false
	case "history":
		return string(protocol.CmdHistory), false
	case "state", "poll":
		return string(protocol.CmdPollState), false
	}
	return input, false
}

// handleReply logs the outcome of a command typed by the player. It returns
// true when the server acknowledged QUIT.
func (m *TUIModel) handleReply(msg replyMsg) bool {
	if msg.err != nil {
		m.AddLogEntry(ErrorStyle.Render("Error: " + msg.err.Error()))
		return false
	}
	if len(msg.lines) == 0 {
		return false
	}

	r, err := protocol.ParseReply(msg.lines[0])
	if err != nil {
		m.AddLogEntry(ErrorStyle.Render(msg.lines[0]))
		return false
	}
	if !r.OK {
		m.AddLogEntry(ErrorStyle.Render(describeError(r.Code)))
		if r.Code == protocol.CodeNotAtTable {
			m.leaveTable()
		}
		return false
	}

	req, _ := protocol.ParseRequest(msg.request)
	switch r.Command {
	case protocol.CmdCreateTable, protocol.CmdJoinTable:
		m.seated = true
		m.tableName = req.Args
		m.AddLogEntry(SuccessStyle.Render("Seated at " + req.Args))
		return false
	case protocol.CmdLeaveTable:
		m.AddLogEntry(SuccessStyle.Render("Left " + m.tableName))
		m.leaveTable()
		return false
	case protocol.CmdPollState:
		st, err := protocol.ParseState(msg.lines)
		m.handleState(stateMsg{state: st, err: err})
		return false
	case protocol.CmdHistory:
		m.showHistory(msg.lines[0])
		return false
	case protocol.CmdQuit:
		return true
	}

	m.AddLogEntry(InfoStyle.Render(msg.lines[0]))
	return false
}

func (m *TUIModel) leaveTable() {
	m.seated = false
	m.tableName = ""
	m.state = protocol.State{}
	m.lastTurn = ""
}

func (m *TUIModel) handleState(msg stateMsg) {
	if msg.err != nil {
		var re *protocol.ReplyError
		if errors.As(msg.err, &re) && re.Code == protocol.CodeNotAtTable {
			m.leaveTable()
			return
		}
		m.logger.Warn("Poll failed", "error", msg.err)
		return
	}

	m.state = msg.state
	for _, c := range msg.state.Chat {
		m.AddLogEntry(formatChat(c))
	}
	if msg.state.CurrentTurn == m.user && m.lastTurn != m.user {
		m.AddLogEntry(WarningStyle.Render(fmt.Sprintf("Your turn. Pot $%d.", msg.state.Pot)))
	}
	m.lastTurn = msg.state.CurrentTurn
}

func (m *TUIModel) showHistory(line string) {
	entries, err := protocol.ParseHistory(line)
	if err != nil {
		m.AddLogEntry(ErrorStyle.Render("Error: " + err.Error()))
		return
	}
	if len(entries) == 0 {
		m.AddLogEntry(InfoStyle.Render("No hands played yet."))
		return
	}
	m.AddLogEntry(HandInfoStyle.Render("Recent hands:"))
	for _, e := range entries {
		net := SuccessStyle.Render(fmt.Sprintf("%+d", e.Net))
		if e.Net < 0 {
			net = ErrorStyle.Render(fmt.Sprintf("%+d", e.Net))
		}
		m.AddLogEntry(fmt.Sprintf("  %s %-12s %s  [%s] [%s]",
			e.At.Local().Format("Jan 02 15:04"), e.Table, net, e.Hole, e.Board))
	}
}

func formatChat(c protocol.ChatLine) string {
	if c.Sender == narrator {
		return InfoStyle.Render("* " + c.Text)
	}
	return ChatSenderStyle.Render(c.Sender+": ") + c.Text
}

func describeError(code string) string {
	switch code {
	case protocol.CodeNotLoggedIn:
		return "You are not logged in."
	case protocol.CodeNotAtTable:
		return "You are not at a table."
	case protocol.CodeAlreadyAtTable:
		return "You are already at a table. Leave it first."
	case protocol.CodeTableExists:
		return "A table with that name already exists."
	case protocol.CodeTableNotFound:
		return "No table with that name."
	case protocol.CodeEmptyMessage:
		return "Say something."
	}
	return "Server refused: " + code
}

func (m *TUIModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	// Action pane (bottom, full width)
	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent)
	actionPane := pane(m.focusedPane != 0).
		Width(max(m.width-2, 1)).
		Height(max(actionHeight-2, 1)).
		Render(actionContent)

	// Sidebar pane (right of the log, same height)
	sidebarContent := m.renderSidebarPane()
	sidebarWidth := max(lipgloss.Width(sidebarContent), 28)
	paneHeight := max(m.height-actionHeight-4, 1)

	sidebarPane := pane(false).
		Width(sidebarWidth).
		Height(paneHeight).
		Render(sidebarContent)

	// Log pane fills the rest
	logWidth := max(m.width-sidebarWidth-4, 1)
	m.logViewport.Width = logWidth
	m.logViewport.Height = paneHeight
	m.logViewport.SetContent(m.renderLogPane())
	if !m.initialized && logWidth > 1 && paneHeight > 1 {
		m.logViewport.GotoBottom()
		m.initialized = true
	}

	logPane := pane(m.focusedPane == 0).
		Width(logWidth).
		Height(paneHeight).
		Render(m.logViewport.View())

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, topRow, actionPane)
}

func (m *TUIModel) renderLogPane() string {
	return strings.Join(m.gameLog, "\n")
}

func (m *TUIModel) renderSidebarPane() string {
	var content strings.Builder

	if !m.seated {
		content.WriteString(InfoStyle.Render("Not seated"))
		content.WriteString("\n\n")
		content.WriteString(InfoStyle.Render("create <table>\njoin <table>"))
		return content.String()
	}

	content.WriteString(HeaderStyle.Render(" " + m.tableName + " "))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("Players: %d (%d ready)\n\n", m.state.Total, m.state.Ready))

	if !m.state.InHand() {
		content.WriteString(InfoStyle.Render("Waiting for a hand"))
		return content.String()
	}

	content.WriteString(WarningStyle.Render(fmt.Sprintf("%s  Pot: $%d", m.state.Phase, m.state.Pot)))
	content.WriteString("\n")
	content.WriteString("Board: " + formatCards(m.state.Board) + "\n")
	content.WriteString("Hand:  " + formatCards(m.state.Hole) + "\n\n")

	for _, p := range m.state.Players {
		marker := "  "
		if p.Name == m.state.CurrentTurn {
			marker = "> "
		}
		line := fmt.Sprintf("%s%-10s $%-6d bet %d", marker, p.Name, p.Chips, p.Bet)
		switch {
		case p.Folded:
			line = InfoStyle.Render(line + " folded")
		case p.Name == m.state.CurrentTurn:
			line = ActionsStyle.Render(line)
		default:
			line = PlayerInfoStyle.Render(line)
		}
		content.WriteString(line + "\n")
	}

	return content.String()
}

func (m *TUIModel) myTurn() bool {
	return m.seated && m.state.InHand() && m.state.CurrentTurn == m.user
}

func (m *TUIModel) renderActionPane() string {
	var content strings.Builder

	switch {
	case m.myTurn():
		content.WriteString(HandInfoStyle.Render(
			fmt.Sprintf("Hand: %s  Pot: $%d", formatCards(m.state.Hole), m.state.Pot)))
		content.WriteString("\n")
		content.WriteString(ActionsStyle.Render("Actions: ") + strings.Join([]string{
			ErrorStyle.Render("[fold]"),
			SuccessStyle.Render("[check]"),
			SuccessStyle.Render("[call]"),
			WarningStyle.Render("[bet N]"),
			WarningStyle.Render("[raise N]"),
		}, " "))
		content.WriteString("\n")
		m.actionInput.Placeholder = "fold, check, call, bet 40, raise 80"
	case m.seated && m.state.InHand():
		content.WriteString(HandInfoStyle.Render("Waiting for " + m.state.CurrentTurn + "..."))
		content.WriteString("\n")
		m.actionInput.Placeholder = "say <text>, leave, quit"
	case m.seated:
		content.WriteString(HandInfoStyle.Render("Type 'ready' when you want to play."))
		content.WriteString("\n")
		m.actionInput.Placeholder = "ready, say <text>, leave, history, quit"
	default:
		m.actionInput.Placeholder = "create <table>, join <table>, history, quit"
	}

	content.WriteString(m.actionInput.View())
	content.WriteString("\n")

	help := "Tab to scroll log • Enter to submit • Ctrl+C to quit"
	if m.focusedPane == 0 {
		help = "Log focused: ↑↓ scroll, PgUp/PgDn half page, Home/End, Tab to input"
	}
	content.WriteString(InfoStyle.Render(help))

	return content.String()
}

// formatCards renders cards with suit colours.
func formatCards(cards []poker.Card) string {
	if len(cards) == 0 {
		return "[]"
	}
	formatted := make([]string, 0, len(cards))
	for _, card := range cards {
		if card.Suit.IsRed() {
			formatted = append(formatted, RedCardStyle.Render(card.String()))
		} else {
			formatted = append(formatted, BlackCardStyle.Render(card.String()))
		}
	}
	return "[" + strings.Join(formatted, " ") + "]"
}

// AddLogEntry appends to the log and scrolls to the bottom.
func (m *TUIModel) AddLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// Log returns the log entries written so far.
func (m *TUIModel) Log() []string {
	return append([]string(nil), m.gameLog...)
}
