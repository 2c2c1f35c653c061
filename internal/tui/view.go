package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F5C542"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	replyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	height := m.height
	if height <= 0 {
		height = 24
	}

	var b strings.Builder
	b.WriteString(m.renderHeader(width))
	b.WriteByte('\n')
	b.WriteString(dimStyle.Render(strings.Repeat("─", width)))
	b.WriteByte('\n')

	// header, two rules, input, help
	bodyHeight := height - 5
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	for _, l := range m.visibleLines(width, bodyHeight) {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	b.WriteString(dimStyle.Render(strings.Repeat("─", width)))
	b.WriteByte('\n')
	b.WriteString(m.renderInput(width))
	b.WriteByte('\n')
	b.WriteString(dimStyle.Render(runewidth.Truncate("enter send · ctrl+n end turn · ↑/↓ scroll · esc quit", width, "…")))
	return b.String()
}

func (m Model) renderHeader(width int) string {
	status := idleStyle.Render("idle")
	if m.quitting {
		status = busyStyle.Render("shutting down")
	} else if m.pending {
		frame := int(time.Since(m.startTime)/tickInterval) % len(spinnerFrames)
		status = busyStyle.Render(spinnerFrames[frame] + " waiting")
	}
	left := fmt.Sprintf("turnbridge · turn %d · sent %d · received %d", m.turn, m.submitted, m.received)
	left = runewidth.Truncate(left, max(width-lipgloss.Width(status)-2, 0), "…")
	return headerStyle.Render(left) + "  " + status
}

func (m Model) renderInput(width int) string {
	text := "> " + string(m.input)
	// Keep the tail visible while typing past the edge.
	for runewidth.StringWidth(text)+1 > width && len(text) > 0 {
		_, size := utf8.DecodeRuneInString(text)
		text = text[size:]
	}
	return promptStyle.Render(text) + "▌"
}

// visibleLines wraps the transcript to width and returns the window of
// height lines ending scroll lines above the bottom.
func (m Model) visibleLines(width, height int) []string {
	var wrapped []string
	for _, l := range m.lines {
		style := styleFor(l.style)
		for _, part := range strings.Split(runewidth.Wrap(l.text, width), "\n") {
			wrapped = append(wrapped, style.Render(runewidth.Truncate(part, width, "…")))
		}
	}

	end := len(wrapped) - m.scroll
	if end < 0 {
		end = 0
	}
	start := end - height
	if start < 0 {
		start = 0
	}
	out := wrapped[start:end]
	for len(out) < height {
		out = append(out, "")
	}
	return out
}

func styleFor(s lineStyle) lipgloss.Style {
	switch s {
	case stylePrompt:
		return promptStyle
	case styleReply:
		return replyStyle
	case styleError:
		return errorStyle
	default:
		return dimStyle
	}
}
