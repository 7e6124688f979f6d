package client

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/Tyrowin/linechat/internal/protocol"
)

type theme struct {
	banner  lipgloss.Style
	info    lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	prompt  lipgloss.Style
	accent  lipgloss.Style
	system  lipgloss.Style
	private lipgloss.Style
	self    lipgloss.Style
}

func newTheme(r *lipgloss.Renderer) theme {
	cyan := lipgloss.Color("#01cdfe")
	green := lipgloss.Color("#05ffa1")
	yellow := lipgloss.Color("#fffb96")
	red := lipgloss.Color("#ff5f5f")
	orange := lipgloss.Color("#ffa94d")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		banner:  r.NewStyle().Foreground(cyan).Bold(true),
		info:    r.NewStyle().Foreground(green),
		warn:    r.NewStyle().Foreground(yellow).Bold(true),
		err:     r.NewStyle().Foreground(red).Bold(true),
		prompt:  r.NewStyle().Foreground(green).Bold(true),
		accent:  r.NewStyle().Foreground(orange).Underline(true),
		system:  r.NewStyle().Foreground(cyan),
		private: r.NewStyle().Foreground(pink),
		self:    r.NewStyle().Foreground(muted),
	}
}

// Console writes styled output for the interactive client. Colors are only
// emitted when the destination is a terminal.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	theme theme
}

// NewConsole writes to w, styling output only when w is a terminal.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, theme: newTheme(lipgloss.NewRenderer(w))}
}

func (c *Console) println(style lipgloss.Style, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, style.Render(text))
}

func (c *Console) Banner(text string) { c.println(c.theme.banner, text) }
func (c *Console) Info(text string) { c.println(c.theme.info, text) }
func (c *Console) Warn(text string) { c.println(c.theme.warn, text) }
func (c *Console) Error(text string) { c.println(c.theme.err, text) }

// Hint prints "[Hit ENTER <what>]" above a prompt.
func (c *Console) Hint(what string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "[Hit %s %s]\n", c.theme.accent.Render("ENTER"), what)
}

// Prompt prints a question without a trailing newline.
func (c *Console) Prompt(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprint(c.w, c.theme.prompt.Render(text))
}

// Instructions explains the commands once the user has joined.
func (c *Console) Instructions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	accent := c.theme.accent.Render
	_, _ = fmt.Fprintf(c.w, "Type %s to send a private message.\n", accent("'/pm username message'"))
	_, _ = fmt.Fprintf(c.w, "Type a message and hit Enter to send. Type %s to quit.\n", accent(protocol.QuitSentinel))
	_, _ = fmt.Fprintf(c.w, "Type %s to see available commands.\n", accent(protocol.CommandHelp))
}

// Server prints a line received from the server, colored by its kind.
func (c *Console) Server(line string) {
	var style lipgloss.Style
	switch {
	case protocol.IsTerminal(line), strings.HasPrefix(line, protocol.ErrorPrefix):
		style = c.theme.err
	case strings.HasPrefix(line, protocol.SystemPrefix):
		style = c.theme.system
	case strings.HasPrefix(line, "[Private Message"):
		style = c.theme.private
	case strings.HasPrefix(line, protocol.SelfPrefix):
		style = c.theme.self
	default:
		c.mu.Lock()
		defer c.mu.Unlock()
		_, _ = fmt.Fprintln(c.w, line)
		return
	}
	c.println(style, line)
}
