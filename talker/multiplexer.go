// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// UIObserver is the display layer's view of everything happening
// across all accounts and rooms. Rooms are identified by id, never by
// position in any list.
type UIObserver interface {
	OnRoomConnected(roomID int, roomName string)
	OnRoomDisconnected(roomID int, roomName string)
	OnMessageReceived(roomID int, sender *RoomUser, content string, timestamp time.Time)
	OnRosterUpdated(roomID int, users []*RoomUser)
	OnUserUpdated(roomID int, user *RoomUser)
	OnSystemMessage(roomID int, text string, timestamp time.Time)
	OnError(roomID int, err error)
	OnStatus(text string)
}

// SessionMultiplexer aggregates the sessions of every configured
// account behind one observer and routes outbound messages back to
// the owning session. It is the single point the display layer talks
// to.
//
// All methods are safe for concurrent use.
type SessionMultiplexer struct {
	ui     UIObserver
	logger *slog.Logger

	mu          sync.Mutex
	directories []*AccountDirectory
}

// NewMultiplexer creates an empty multiplexer publishing to ui.
func NewMultiplexer(ui UIObserver, logger *slog.Logger) *SessionMultiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionMultiplexer{ui: ui, logger: logger}
}

// Observer returns the RoomObserver to wire into directories added to
// this multiplexer.
func (m *SessionMultiplexer) Observer() RoomObserver { return (*muxObserver)(m) }

// AddDirectory registers an account's directory. The directory must
// have been created with this multiplexer's Observer.
func (m *SessionMultiplexer) AddDirectory(directory *AccountDirectory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directories = append(m.directories, directory)
}

// Directories returns the registered directories.
func (m *SessionMultiplexer) Directories() []*AccountDirectory {
	m.mu.Lock()
	defer m.mu.Unlock()
	directories := make([]*AccountDirectory, len(m.directories))
	copy(directories, m.directories)
	return directories
}

// session finds the open session for roomID by linear lookup across
// every account's active sessions.
func (m *SessionMultiplexer) session(roomID int) *RoomSession {
	for _, directory := range m.Directories() {
		if session := directory.Session(roomID); session != nil {
			return session
		}
	}
	return nil
}

// SubmitMessage routes outbound text to the session owning roomID.
func (m *SessionMultiplexer) SubmitMessage(roomID int, text string) error {
	session := m.session(roomID)
	if session == nil {
		return fmt.Errorf("talker: no open session for room %d", roomID)
	}
	return session.SubmitMessage(text)
}

// OpenRoom opens roomID on whichever account discovered it.
func (m *SessionMultiplexer) OpenRoom(ctx context.Context, roomID int) error {
	for _, directory := range m.Directories() {
		for _, room := range directory.AvailableRooms() {
			if room.ID == roomID {
				return directory.OpenRoom(ctx, roomID)
			}
		}
	}
	return fmt.Errorf("talker: room %d not known to any account", roomID)
}

// CloseRoom closes roomID on whichever account holds it open.
func (m *SessionMultiplexer) CloseRoom(roomID int) {
	for _, directory := range m.Directories() {
		if directory.Session(roomID) != nil {
			directory.CloseRoom(roomID)
			return
		}
	}
}

// AvailableRooms returns every account's discovered rooms, flattened.
func (m *SessionMultiplexer) AvailableRooms() []RoomInfo {
	var rooms []RoomInfo
	for _, directory := range m.Directories() {
		rooms = append(rooms, directory.AvailableRooms()...)
	}
	return rooms
}

// OpenSessions returns every open session across all accounts.
func (m *SessionMultiplexer) OpenSessions() []*RoomSession {
	var sessions []*RoomSession
	for _, directory := range m.Directories() {
		sessions = append(sessions, directory.Sessions()...)
	}
	return sessions
}

// CloseAll logs out every open session on every account. The
// persisted open-rooms sets are kept so the rooms rejoin next run.
func (m *SessionMultiplexer) CloseAll() {
	for _, directory := range m.Directories() {
		directory.CloseAll()
	}
}

// muxObserver adapts session events to the UI-facing shape: rooms
// become ids, status lines get the room name prefixed.
type muxObserver SessionMultiplexer

func (o *muxObserver) OnConnected(room *RoomSession) {
	o.ui.OnRoomConnected(room.ID(), room.Name())
}

func (o *muxObserver) OnDisconnected(room *RoomSession) {
	o.ui.OnRoomDisconnected(room.ID(), room.Name())
}

func (o *muxObserver) OnMessage(room *RoomSession, sender *RoomUser, content string, timestamp time.Time) {
	o.ui.OnMessageReceived(room.ID(), sender, content, timestamp)
}

func (o *muxObserver) OnRosterUpdated(room *RoomSession) {
	o.ui.OnRosterUpdated(room.ID(), room.Users())
}

func (o *muxObserver) OnUserUpdated(room *RoomSession, user *RoomUser) {
	o.ui.OnUserUpdated(room.ID(), user)
}

func (o *muxObserver) OnSystemMessage(room *RoomSession, text string, timestamp time.Time) {
	o.ui.OnSystemMessage(room.ID(), text, timestamp)
}

func (o *muxObserver) OnSessionError(room *RoomSession, err error) {
	o.logger.Warn("session error", "room", room.Name(), "error", err)
	o.ui.OnError(room.ID(), err)
}

func (o *muxObserver) OnStatus(room *RoomSession, text string) {
	o.ui.OnStatus(fmt.Sprintf("%s: %s", room.Name(), text))
}
