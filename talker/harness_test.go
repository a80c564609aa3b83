// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smoothtalker/smoothtalker/lib/testutil"
	"github.com/smoothtalker/smoothtalker/talker"
)

const waitTimeout = 5 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// recordedMessage is one OnMessage delivery.
type recordedMessage struct {
	room    *talker.RoomSession
	sender  *talker.RoomUser
	content string
	at      time.Time
}

// recordingObserver captures every session callback on buffered
// channels for assertion with the testutil helpers.
type recordingObserver struct {
	connected     chan *talker.RoomSession
	disconnected  chan *talker.RoomSession
	messages      chan recordedMessage
	rosterUpdates chan *talker.RoomSession
	userUpdates   chan *talker.RoomUser
	system        chan string
	errs          chan error
	status        chan string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		connected:     make(chan *talker.RoomSession, 64),
		disconnected:  make(chan *talker.RoomSession, 64),
		messages:      make(chan recordedMessage, 64),
		rosterUpdates: make(chan *talker.RoomSession, 64),
		userUpdates:   make(chan *talker.RoomUser, 64),
		system:        make(chan string, 64),
		errs:          make(chan error, 64),
		status:        make(chan string, 64),
	}
}

func (o *recordingObserver) OnConnected(room *talker.RoomSession)    { o.connected <- room }
func (o *recordingObserver) OnDisconnected(room *talker.RoomSession) { o.disconnected <- room }

func (o *recordingObserver) OnMessage(room *talker.RoomSession, sender *talker.RoomUser, content string, at time.Time) {
	o.messages <- recordedMessage{room: room, sender: sender, content: content, at: at}
}

func (o *recordingObserver) OnRosterUpdated(room *talker.RoomSession) { o.rosterUpdates <- room }

func (o *recordingObserver) OnUserUpdated(room *talker.RoomSession, user *talker.RoomUser) {
	o.userUpdates <- user
}

func (o *recordingObserver) OnSystemMessage(room *talker.RoomSession, text string, at time.Time) {
	o.system <- text
}

func (o *recordingObserver) OnSessionError(room *talker.RoomSession, err error) { o.errs <- err }
func (o *recordingObserver) OnStatus(room *talker.RoomSession, text string)     { o.status <- text }

// memoryCursor is an in-memory CursorStore.
type memoryCursor struct {
	mu      sync.Mutex
	cursors map[int]string
}

func newMemoryCursor() *memoryCursor {
	return &memoryCursor{cursors: make(map[int]string)}
}

func (c *memoryCursor) LoadCursor(roomID int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors[roomID]
}

func (c *memoryCursor) SaveCursor(roomID int, lastEventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[roomID] = lastEventID
}

// wireServer plays the backend's side of one room socket. A reader
// goroutine splits inbound lines onto a channel, so client writes on
// the synchronous pipe never deadlock the test.
type wireServer struct {
	conn    net.Conn
	lines   chan string
	readErr chan error
}

func newWireServer(conn net.Conn) *wireServer {
	s := &wireServer{
		conn:    conn,
		lines:   make(chan string, 64),
		readErr: make(chan error, 1),
	}
	go func() {
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if trimmed := strings.TrimRight(line, "\r\n"); trimmed != "" {
				s.lines <- trimmed
			}
			if err != nil {
				s.readErr <- err
				return
			}
		}
	}()
	return s
}

// command waits for the next client line and decodes it.
func (s *wireServer) command(t *testing.T) map[string]any {
	t.Helper()
	line := testutil.RequireReceive(t, s.lines, waitTimeout, "waiting for client command")
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("client sent malformed command %q: %v", line, err)
	}
	return decoded
}

// send writes one frame to the client.
func (s *wireServer) send(t *testing.T, frame string) {
	t.Helper()
	if _, err := io.WriteString(s.conn, frame+"\r\n"); err != nil {
		t.Fatalf("writing frame to client: %v", err)
	}
}

// pipeDialer hands out a fixed net.Pipe end for single-session tests.
type pipeDialer struct {
	conn net.Conn
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.conn, nil
}

// autoDialer creates a fresh pipe per dial and publishes the server
// side, for tests that open sessions through a directory.
type autoDialer struct {
	dials   atomic.Int32
	servers chan *wireServer
}

func newAutoDialer() *autoDialer {
	return &autoDialer{servers: make(chan *wireServer, 16)}
}

func (d *autoDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.dials.Add(1)
	client, server := net.Pipe()
	d.servers <- newWireServer(server)
	return client, nil
}
