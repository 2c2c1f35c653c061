// Package tui is an interactive turn loop over a bridge session: type a
// prompt, end the turn, and watch replies arrive as the loop polls.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/HexSleeves/turnbridge/internal/job"
	"github.com/HexSleeves/turnbridge/internal/llm"
)

const (
	maxLines     = 500
	tickInterval = 250 * time.Millisecond
)

// Session is the part of a bridge session the loop drives.
type Session interface {
	QueryForTurnAsync(ctx context.Context, turn int, prompt, systemPrompt string) (*job.Job, error)
	HasResponse() bool
	GetResponse() (llm.Response, bool)
	Pending() bool
	Shutdown(ctx context.Context) error
}

type lineStyle int

const (
	styleInfo lineStyle = iota
	stylePrompt
	styleReply
	styleError
)

type line struct {
	text  string
	style lineStyle
}

// Model is the Bubble Tea model for the turn loop.
type Model struct {
	ctx          context.Context
	session      Session
	systemPrompt string

	turn      int
	input     []rune
	lines     []line
	pending   bool
	submitted int
	received  int
	startTime time.Time

	width    int
	height   int
	scroll   int // offset from bottom
	quitting bool
	err      error
}

// New creates a loop starting at turn 1.
func New(ctx context.Context, s Session, systemPrompt string) Model {
	return Model{
		ctx:          ctx,
		session:      s,
		systemPrompt: systemPrompt,
		turn:         1,
		startTime:    time.Now(),
	}
}

// Err returns the error Shutdown reported on quit, if any.
func (m Model) Err() error { return m.err }

// Turn returns the current turn number.
func (m Model) Turn() int { return m.turn }

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.WindowSize())
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			m.addLine("Waiting for the last query to finish...", styleInfo)
			return m, shutdownCmd(m.ctx, m.session)
		case tea.KeyEnter:
			prompt := strings.TrimSpace(string(m.input))
			if prompt == "" {
				return m, nil
			}
			m.input = m.input[:0]
			m.addLine(fmt.Sprintf("[%d] you: %s", m.turn, prompt), stylePrompt)
			m.submitted++
			m.pending = true
			m.scroll = 0
			return m, submitCmd(m.ctx, m.session, m.turn, prompt, m.systemPrompt)
		case tea.KeyCtrlN:
			m.turn++
			m.addLine(fmt.Sprintf("── turn %d ──", m.turn), styleInfo)
			m.scroll = 0
		case tea.KeyBackspace:
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
		case tea.KeySpace:
			m.input = append(m.input, ' ')
		case tea.KeyRunes:
			m.input = append(m.input, msg.Runes...)
		case tea.KeyUp:
			if m.scroll < len(m.lines)-1 {
				m.scroll++
			}
		case tea.KeyDown:
			if m.scroll > 0 {
				m.scroll--
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		if m.quitting {
			return m, nil
		}
		for m.session.HasResponse() {
			resp, ok := m.session.GetResponse()
			if !ok {
				break
			}
			m.addResponse(resp)
		}
		m.pending = m.session.Pending()
		return m, tickCmd()

	case SubmittedMsg:
		if msg.Err != nil {
			m.addLine(fmt.Sprintf("[%d] submit failed: %v", msg.Turn, msg.Err), styleError)
		}

	case ShutdownMsg:
		m.err = msg.Err
		return m, tea.Quit

	case LogMsg:
		m.addLine(msg.Text, styleInfo)
	}

	return m, nil
}

func submitCmd(ctx context.Context, s Session, turn int, prompt, systemPrompt string) tea.Cmd {
	return func() tea.Msg {
		j, err := s.QueryForTurnAsync(ctx, turn, prompt, systemPrompt)
		msg := SubmittedMsg{Turn: turn, Err: err}
		if j != nil {
			msg.JobID = j.ID
		}
		return msg
	}
}

func shutdownCmd(ctx context.Context, s Session) tea.Cmd {
	return func() tea.Msg {
		return ShutdownMsg{Err: s.Shutdown(ctx)}
	}
}

func (m *Model) addResponse(resp llm.Response) {
	m.received++
	style := styleReply
	if resp.IsError() {
		style = styleError
	}
	text := strings.TrimSpace(resp.String())
	if text == "" {
		text = "(empty reply)"
	}
	for _, l := range strings.Split(text, "\n") {
		m.addLine(l, style)
	}
	m.addLine("", styleInfo)
	m.scroll = 0
}

func (m *Model) addLine(text string, style lineStyle) {
	m.lines = append(m.lines, line{text: text, style: style})
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}
