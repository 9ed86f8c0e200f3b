// Package tui implements the terminal chat client as a bubbletea program.
// It is a pure protocol consumer: it dials the relay's WebSocket endpoint,
// logs in, and renders message, presence, history, and error envelopes.
package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/protocol"
)

// maxInputLen is the maximum number of runes allowed in the compose input.
const maxInputLen = 2000

var (
	statusStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	senderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	presenceStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	timeStyle     = lipgloss.NewStyle().Faint(true)
	promptStyle   = lipgloss.NewStyle().Bold(true)
)

type envelopeMsg protocol.Envelope

type disconnectedMsg struct{ err error }

// Model is the bubbletea model for one client session.
type Model struct {
	conn *websocket.Conn

	name   string
	room   string // active room, publishes go here
	status string

	lines []string
	input string

	incoming chan tea.Msg
	width    int
	height   int
	quitting bool
}

// Connect dials the relay, sends the login envelope, and returns a Model
// ready to run. The reader goroutine it starts feeds server envelopes into
// the program as messages.
func Connect(url, name string) (*Model, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	payload, err := protocol.Encode(protocol.Login(name))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send login: %w", err)
	}

	m := &Model{
		conn:     conn,
		name:     name,
		status:   "connecting…",
		incoming: make(chan tea.Msg, 64),
	}
	go m.readLoop()
	return m, nil
}

func (m *Model) readLoop() {
	for {
		_, raw, err := m.conn.ReadMessage()
		if err != nil {
			m.incoming <- disconnectedMsg{err: err}
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			// A frame we cannot decode is the server's problem, not fatal.
			continue
		}
		m.incoming <- envelopeMsg(env)
	}
}

func (m *Model) waitForServer() tea.Cmd {
	return func() tea.Msg {
		return <-m.incoming
	}
}

// Init starts listening for server envelopes.
func (m *Model) Init() tea.Cmd {
	return m.waitForServer()
}

// Update handles keystrokes and server envelopes.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case envelopeMsg:
		m.handleEnvelope(protocol.Envelope(msg))
		return m, m.waitForServer()

	case disconnectedMsg:
		if m.quitting {
			return m, tea.Quit
		}
		m.status = "disconnected"
		if msg.err != nil {
			m.appendLine(errorStyle.Render("connection closed: " + msg.err.Error()))
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c", "esc":
		return m.quit()
	case "enter":
		return m.submit()
	case "backspace":
		if len(m.input) > 0 {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}
		return m, nil
	default:
		s := key.String()
		if utf8.RuneCountInString(s) == 1 && utf8.RuneCountInString(m.input) < maxInputLen {
			m.input += s
		}
		return m, nil
	}
}

// submit interprets the compose line: /join, /leave, /quit commands, or a
// publish to the active room.
func (m *Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input)
	m.input = ""
	if text == "" {
		return m, nil
	}

	switch {
	case text == "/quit":
		return m.quit()

	case strings.HasPrefix(text, "/join "):
		room := strings.TrimSpace(strings.TrimPrefix(text, "/join "))
		if room != "" {
			m.send(protocol.Join(room))
			m.room = room
		}
		return m, nil

	case strings.HasPrefix(text, "/leave"):
		room := strings.TrimSpace(strings.TrimPrefix(text, "/leave"))
		if room == "" {
			room = m.room
		}
		if room != "" {
			m.send(protocol.Leave(room))
			if room == m.room {
				m.room = ""
			}
		}
		return m, nil

	case strings.HasPrefix(text, "/"):
		m.appendLine(errorStyle.Render("unknown command: " + text))
		return m, nil

	default:
		if m.room == "" {
			m.appendLine(errorStyle.Render("join a room first: /join <room>"))
			return m, nil
		}
		m.send(protocol.Publish(m.room, text))
		return m, nil
	}
}

func (m *Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	_ = m.conn.Close()
	return m, tea.Quit
}

func (m *Model) send(env protocol.Envelope) {
	payload, err := protocol.Encode(env)
	if err != nil {
		m.appendLine(errorStyle.Render("encode: " + err.Error()))
		return
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		m.appendLine(errorStyle.Render("send: " + err.Error()))
	}
}

func (m *Model) handleEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeMessage:
		m.appendLine(formatRecord(env.Room, protocol.Record{
			Sender:    env.Sender,
			Body:      env.Body,
			Timestamp: env.Timestamp,
		}))

	case protocol.TypePresence:
		if env.Room == "" {
			// Login ack.
			m.status = "logged in as " + env.Name
			return
		}
		m.appendLine(presenceStyle.Render(
			fmt.Sprintf("%s %s %s", env.Name, env.Event, env.Room)))

	case protocol.TypeHistory:
		m.appendLine(presenceStyle.Render(fmt.Sprintf(
			"— %s · members: %s —", env.Room, strings.Join(env.Members, ", "))))
		for _, rec := range env.Records {
			m.appendLine(formatRecord(env.Room, rec))
		}

	case protocol.TypeError:
		m.appendLine(errorStyle.Render(
			fmt.Sprintf("server error [%s]: %s", env.Code, env.Detail)))
	}
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	// Keep a generous scrollback without growing without bound.
	if len(m.lines) > 500 {
		m.lines = m.lines[len(m.lines)-500:]
	}
}

// View renders the status bar, the visible tail of the transcript, and the
// compose prompt.
func (m *Model) View() string {
	if m.quitting {
		return "bye\n"
	}

	var b strings.Builder

	status := m.status
	if m.room != "" {
		status += " · room: " + m.room
	}
	b.WriteString(statusStyle.Render(status))
	b.WriteString("\n\n")

	visible := m.lines
	if m.height > 6 && len(visible) > m.height-5 {
		visible = visible[len(visible)-(m.height-5):]
	}
	for _, line := range visible {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(promptStyle.Render(m.name + "> "))
	b.WriteString(m.input)
	return b.String()
}

func formatRecord(room string, rec protocol.Record) string {
	when := time.Unix(rec.Timestamp, 0).Format("15:04:05")
	return fmt.Sprintf("%s %s %s %s",
		timeStyle.Render(when),
		presenceStyle.Render("["+room+"]"),
		senderStyle.Render(rec.Sender+":"),
		rec.Body)
}
