package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorFocus = lipgloss.Color("#04B575")
	colorDim   = lipgloss.Color("#626262")
	colorText  = lipgloss.Color("#FAFAFA")
	colorFelt  = lipgloss.Color("#1E6F4B")
	colorGold  = lipgloss.Color("#FFD700")
	colorRed   = lipgloss.Color("#FF6B6B")
	colorMint  = lipgloss.Color("#96CEB4")
)

var (
	// Table name banner and the login line.
	HeaderStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorFelt).
			Bold(true)

	HandInfoStyle = lipgloss.NewStyle().
			Foreground(colorMint).
			Bold(true)

	ActionsStyle = lipgloss.NewStyle().
			Foreground(colorGold).
			Bold(true)

	// Hearts and diamonds.
	RedCardStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	// Clubs and spades. Light so they stay visible on dark terminals.
	BlackCardStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	PlayerInfoStyle = lipgloss.NewStyle().
			Foreground(colorText)

	ChatSenderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#74B9FF")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(colorMint).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFEAA7")).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	PromptStyle = lipgloss.NewStyle().Foreground(colorFocus).Bold(true)
	InputStyle  = lipgloss.NewStyle().Foreground(colorText)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)
)

// pane returns the bordered style for a pane, highlighted when focused.
func pane(focused bool) lipgloss.Style {
	if focused {
		return paneStyle.BorderForeground(colorFocus)
	}
	return paneStyle
}
