// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smoothtalker/smoothtalker/talker"
)

// Event messages delivered into the bubbletea update loop. Each
// mirrors one multiplexer callback.
type (
	roomConnectedMsg struct {
		roomID int
		name   string
	}
	roomDisconnectedMsg struct {
		roomID int
		name   string
	}
	messageReceivedMsg struct {
		roomID    int
		sender    string
		content   string
		timestamp time.Time
	}
	rosterUpdatedMsg struct {
		roomID int
		users  []*talker.RoomUser
	}
	userUpdatedMsg struct {
		roomID int
		user   *talker.RoomUser
	}
	systemMessageMsg struct {
		roomID    int
		text      string
		timestamp time.Time
	}
	sessionErrorMsg struct {
		roomID int
		err    error
	}
	statusMsg struct {
		text string
	}
)

// Bridge carries multiplexer events from the session goroutines into
// the bubbletea message loop. The observer side pushes onto a buffered
// channel; the model side re-arms waitForEvent after consuming each
// message.
type Bridge struct {
	events chan tea.Msg
}

// NewBridge creates a bridge. It satisfies talker.UIObserver.
func NewBridge() *Bridge {
	// Generous buffer: a replay burst after reconnect can deliver
	// hundreds of frames before the first render.
	return &Bridge{events: make(chan tea.Msg, 1024)}
}

// waitForEvent blocks until the next session event arrives.
func (b *Bridge) waitForEvent() tea.Cmd {
	return func() tea.Msg { return <-b.events }
}

func (b *Bridge) OnRoomConnected(roomID int, roomName string) {
	b.events <- roomConnectedMsg{roomID: roomID, name: roomName}
}

func (b *Bridge) OnRoomDisconnected(roomID int, roomName string) {
	b.events <- roomDisconnectedMsg{roomID: roomID, name: roomName}
}

func (b *Bridge) OnMessageReceived(roomID int, sender *talker.RoomUser, content string, timestamp time.Time) {
	name := ""
	if sender != nil {
		name = sender.Name
	}
	b.events <- messageReceivedMsg{roomID: roomID, sender: name, content: content, timestamp: timestamp}
}

func (b *Bridge) OnRosterUpdated(roomID int, users []*talker.RoomUser) {
	b.events <- rosterUpdatedMsg{roomID: roomID, users: users}
}

func (b *Bridge) OnUserUpdated(roomID int, user *talker.RoomUser) {
	b.events <- userUpdatedMsg{roomID: roomID, user: user}
}

func (b *Bridge) OnSystemMessage(roomID int, text string, timestamp time.Time) {
	b.events <- systemMessageMsg{roomID: roomID, text: text, timestamp: timestamp}
}

func (b *Bridge) OnError(roomID int, err error) {
	b.events <- sessionErrorMsg{roomID: roomID, err: err}
}

func (b *Bridge) OnStatus(text string) {
	b.events <- statusMsg{text: text}
}
