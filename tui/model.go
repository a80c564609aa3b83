// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/smoothtalker/smoothtalker/config"
	"github.com/smoothtalker/smoothtalker/history"
	"github.com/smoothtalker/smoothtalker/talker"
)

// roomView is the rendered state of one open room.
type roomView struct {
	id        int
	name      string
	connected bool
	lines     []string
	users     []*talker.RoomUser
	unread    int
}

// historyLoadedMsg delivers the persisted transcript for a room.
type historyLoadedMsg struct {
	roomID int
	lines  []string
}

// submitFailedMsg reports an outbound message the session rejected.
type submitFailedMsg struct {
	err error
}

// Config holds the parameters for building the terminal UI model.
type Config struct {
	// Mux routes outbound actions to the owning sessions. Required.
	Mux *talker.SessionMultiplexer

	// Bridge is the observer wired into the multiplexer. Required.
	Bridge *Bridge

	// History, if set, persists and replays transcripts.
	History *history.Store

	// Options are the user's display settings.
	Options config.Options

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Model is the bubbletea model for the whole client: room tabs, the
// active room's transcript, an input line, and a status line. When no
// room has focus-worthy input (or on ctrl+o) a room selector overlay
// lists the discovered rooms.
type Model struct {
	mux     *talker.SessionMultiplexer
	bridge  *Bridge
	history *history.Store
	options config.Options
	logger  *slog.Logger

	rooms  []*roomView
	active int

	selecting     bool
	selectorRooms []talker.RoomInfo
	selectorIndex int

	input    textinput.Model
	viewport viewport.Model

	width  int
	height int
	ready  bool
	status string
}

// NewModel builds the initial model. The room selector opens
// immediately when no rooms are open yet.
func NewModel(cfg Config) Model {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	input := textinput.New()
	input.Placeholder = "say something..."
	input.Prompt = "> "
	input.Focus()

	return Model{
		mux:     cfg.Mux,
		bridge:  cfg.Bridge,
		history: cfg.History,
		options: cfg.Options,
		logger:  logger,
		input:   input,
		status:  "starting up...",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.waitForEvent(), textinput.Blink)
}

var (
	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("245"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("255")).Background(lipgloss.Color("62"))
	unreadTabStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("213"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	selectorStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")).Background(lipgloss.Color("62"))
	rosterStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("108"))
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chromeHeight := 4 // tab bar, roster line, input, status
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.input.Width = msg.Width - 4
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case roomConnectedMsg:
		room := m.ensureRoom(msg.roomID, msg.name)
		room.connected = true
		var cmds []tea.Cmd
		if m.history != nil && len(room.lines) == 0 {
			cmds = append(cmds, m.loadHistory(msg.roomID))
		}
		m.refreshViewport()
		cmds = append(cmds, m.bridge.waitForEvent())
		return m, tea.Batch(cmds...)

	case roomDisconnectedMsg:
		if room := m.room(msg.roomID); room != nil {
			room.connected = false
			room.lines = append(room.lines, systemStyle.Render("* disconnected"))
			m.refreshViewport()
		}
		return m, m.bridge.waitForEvent()

	case messageReceivedMsg:
		room := m.room(msg.roomID)
		var cmds []tea.Cmd
		if room != nil {
			room.lines = append(room.lines, m.formatMessage(msg.timestamp, msg.sender, msg.content))
			if !m.isActive(msg.roomID) {
				room.unread++
				if m.options.FlashWhenNotActive {
					m.status = fmt.Sprintf("new message in %s", room.name)
				}
			}
			m.refreshViewport()
		}
		if m.history != nil {
			cmds = append(cmds, m.appendHistory(msg))
		}
		cmds = append(cmds, m.bridge.waitForEvent())
		return m, tea.Batch(cmds...)

	case systemMessageMsg:
		if room := m.room(msg.roomID); room != nil {
			room.lines = append(room.lines, systemStyle.Render("* "+msg.text))
			m.refreshViewport()
		}
		return m, m.bridge.waitForEvent()

	case rosterUpdatedMsg:
		if room := m.room(msg.roomID); room != nil {
			room.users = msg.users
		}
		return m, m.bridge.waitForEvent()

	case userUpdatedMsg:
		// Roster entries are shared pointers; a fresh snapshot keeps
		// the sidebar ordering current after renames and idle flips.
		if room := m.room(msg.roomID); room != nil {
			if session := m.sessionFor(msg.roomID); session != nil {
				room.users = session.Users()
			}
		}
		return m, m.bridge.waitForEvent()

	case sessionErrorMsg:
		m.status = fmt.Sprintf("error: %v", msg.err)
		return m, m.bridge.waitForEvent()

	case statusMsg:
		m.status = msg.text
		return m, m.bridge.waitForEvent()

	case historyLoadedMsg:
		if room := m.room(msg.roomID); room != nil && len(msg.lines) > 0 {
			room.lines = append(append([]string{}, msg.lines...), room.lines...)
			m.refreshViewport()
		}
		return m, nil

	case submitFailedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("send failed: %v", msg.err)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.selecting {
		return m.handleSelectorKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "ctrl+o":
		m.selectorRooms = m.closedRooms()
		m.selectorIndex = 0
		m.selecting = true
		return m, nil

	case "ctrl+w":
		if room := m.activeRoom(); room != nil {
			m.mux.CloseRoom(room.id)
		}
		return m, nil

	case "tab", "shift+tab":
		if len(m.rooms) > 1 {
			if msg.String() == "tab" {
				m.active = (m.active + 1) % len(m.rooms)
			} else {
				m.active = (m.active + len(m.rooms) - 1) % len(m.rooms)
			}
			m.rooms[m.active].unread = 0
			m.refreshViewport()
		}
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "enter":
		text := m.input.Value()
		m.input.Reset()
		room := m.activeRoom()
		if room == nil || text == "" {
			return m, nil
		}
		roomID := room.id
		return m, func() tea.Msg {
			return submitFailedMsg{err: m.mux.SubmitMessage(roomID, text)}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSelectorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "ctrl+o":
		m.selecting = false
		return m, nil
	case "up", "k":
		if m.selectorIndex > 0 {
			m.selectorIndex--
		}
		return m, nil
	case "down", "j":
		if m.selectorIndex < len(m.selectorRooms)-1 {
			m.selectorIndex++
		}
		return m, nil
	case "enter":
		if m.selectorIndex >= len(m.selectorRooms) {
			return m, nil
		}
		roomID := m.selectorRooms[m.selectorIndex].ID
		m.selecting = false
		return m, func() tea.Msg {
			if err := m.mux.OpenRoom(context.Background(), roomID); err != nil {
				return sessionErrorMsg{roomID: roomID, err: err}
			}
			return nil
		}
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	if m.selecting {
		return m.selectorView()
	}

	var b strings.Builder
	b.WriteString(m.tabBar())
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	b.WriteString(m.rosterLine())
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	b.WriteByte('\n')
	b.WriteString(statusStyle.Render(m.status))
	return b.String()
}

func (m Model) tabBar() string {
	if len(m.rooms) == 0 {
		return tabStyle.Render("no rooms open — ctrl+o to join one")
	}
	var tabs []string
	for i, room := range m.rooms {
		label := room.name
		if !room.connected {
			label += " (offline)"
		}
		switch {
		case i == m.active:
			tabs = append(tabs, activeTabStyle.Render(label))
		case room.unread > 0:
			tabs = append(tabs, unreadTabStyle.Render(fmt.Sprintf("%s (%d)", label, room.unread)))
		default:
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) rosterLine() string {
	room := m.activeRoom()
	if room == nil {
		return ""
	}
	var names []string
	for _, user := range room.users {
		name := user.Name
		if user.Idle {
			name += " (idle)"
		}
		names = append(names, name)
	}
	return rosterStyle.Render("here: " + strings.Join(names, ", "))
}

func (m Model) selectorView() string {
	var b strings.Builder
	b.WriteString("join a room\n\n")
	if len(m.selectorRooms) == 0 {
		b.WriteString(statusStyle.Render("no rooms available — check your account configuration"))
	}
	for i, room := range m.selectorRooms {
		line := room.Name
		if i == m.selectorIndex {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("\n")
	b.WriteString(statusStyle.Render("enter: join   esc: cancel"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		selectorStyle.Render(b.String()))
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	room := m.activeRoom()
	if room == nil {
		m.viewport.SetContent("")
		return
	}
	m.viewport.SetContent(strings.Join(room.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) formatMessage(timestamp time.Time, sender, content string) string {
	if m.options.ShowTimestamps {
		return fmt.Sprintf("[%s] %s: %s", timestamp.Format("15:04"), sender, content)
	}
	return fmt.Sprintf("%s: %s", sender, content)
}

func (m *Model) ensureRoom(roomID int, name string) *roomView {
	if room := m.room(roomID); room != nil {
		return room
	}
	room := &roomView{id: roomID, name: name}
	m.rooms = append(m.rooms, room)
	if len(m.rooms) == 1 {
		m.active = 0
	}
	return room
}

func (m Model) room(roomID int) *roomView {
	for _, room := range m.rooms {
		if room.id == roomID {
			return room
		}
	}
	return nil
}

func (m Model) activeRoom() *roomView {
	if m.active < 0 || m.active >= len(m.rooms) {
		return nil
	}
	return m.rooms[m.active]
}

func (m Model) isActive(roomID int) bool {
	room := m.activeRoom()
	return room != nil && room.id == roomID
}

func (m Model) sessionFor(roomID int) *talker.RoomSession {
	for _, session := range m.mux.OpenSessions() {
		if session.ID() == roomID {
			return session
		}
	}
	return nil
}

// closedRooms returns the discovered rooms with no open view, for the
// selector overlay.
func (m Model) closedRooms() []talker.RoomInfo {
	var rooms []talker.RoomInfo
	for _, room := range m.mux.AvailableRooms() {
		if m.room(room.ID) == nil {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

func (m Model) loadHistory(roomID int) tea.Cmd {
	return func() tea.Msg {
		messages, err := m.history.Recent(context.Background(), roomID, 0)
		if err != nil {
			m.logger.Warn("transcript replay failed", "room_id", roomID, "error", err)
			return nil
		}
		lines := make([]string, 0, len(messages))
		for _, message := range messages {
			if message.Sender == "" {
				lines = append(lines, systemStyle.Render("* "+message.Content))
				continue
			}
			lines = append(lines, m.formatMessage(message.At, message.Sender, message.Content))
		}
		return historyLoadedMsg{roomID: roomID, lines: lines}
	}
}

func (m Model) appendHistory(msg messageReceivedMsg) tea.Cmd {
	return func() tea.Msg {
		err := m.history.Append(context.Background(), history.Message{
			RoomID:  msg.roomID,
			Sender:  msg.sender,
			Content: msg.content,
			At:      msg.timestamp,
		})
		if err != nil {
			m.logger.Warn("transcript append failed", "room_id", msg.roomID, "error", err)
		}
		return nil
	}
}
