// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/smoothtalker/smoothtalker/lib/clock"
)

// DefaultAddress is the fixed backend host and port for room sockets.
const DefaultAddress = "talkerapp.com:8500"

// defaultKeepAliveInterval is the ping cadence the server expects
// from connected clients.
const defaultKeepAliveInterval = 20 * time.Second

// ConnectionState is the lifecycle position of a RoomSession. Within
// one connection attempt states only move forward; Disconnected is
// both the initial and the terminal state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateTLSHandshaking
	StateAuthenticating
	StateConnected
	StateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateTLSHandshaking:
		return "tls-handshaking"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// RoomObserver receives lifecycle and chat events from a RoomSession.
// Callbacks fire synchronously on the session's event goroutine (the
// read loop, except OnUserUpdated for avatar delivery, which arrives
// from the fetch goroutine). Implementations must return promptly and
// must not call back into the session from within a callback.
type RoomObserver interface {
	// OnConnected fires once per successful handshake, after the
	// server acknowledges authentication.
	OnConnected(room *RoomSession)

	// OnDisconnected fires exactly once per connection, for both
	// deliberate logout and transport failure.
	OnDisconnected(room *RoomSession)

	// OnMessage delivers a chat message with its content already
	// decoded to display text.
	OnMessage(room *RoomSession, sender *RoomUser, content string, timestamp time.Time)

	// OnRosterUpdated fires when entries were added to or removed
	// from the roster wholesale (users frame, leave).
	OnRosterUpdated(room *RoomSession)

	// OnUserUpdated fires when a single entry changed in place
	// (presence, join, avatar arrival).
	OnUserUpdated(room *RoomSession, user *RoomUser)

	// OnSystemMessage delivers informational room events such as
	// joins and leaves of other users.
	OnSystemMessage(room *RoomSession, text string, timestamp time.Time)

	// OnSessionError surfaces non-fatal server errors and the
	// communication errors that precede a teardown.
	OnSessionError(room *RoomSession, err error)

	// OnStatus delivers human-readable connection progress lines.
	OnStatus(room *RoomSession, text string)
}

// CursorStore persists the resumption cursor across reconnects and
// restarts.
type CursorStore interface {
	// LoadCursor returns the saved last-event-id for the room, or ""
	// if none is known.
	LoadCursor(roomID int) string

	// SaveCursor records the room's last-event-id.
	SaveCursor(roomID int, lastEventID string)
}

// NetDialer opens the raw TCP connection underneath the TLS layer.
// *net.Dialer satisfies it; tests inject a dialer returning one end
// of a net.Pipe.
type NetDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SessionConfig holds the parameters for creating a RoomSession.
// RoomName, Token, and Observer are required.
type SessionConfig struct {
	// RoomID is the server-assigned room id.
	RoomID int

	// RoomName is the room's display name, used in the connect
	// handshake. Not guaranteed unique across accounts.
	RoomName string

	// Token is the account credential sent in the connect handshake.
	Token string

	// Address is the backend host:port. Defaults to DefaultAddress.
	Address string

	// Dialer opens the TCP connection. Defaults to a plain net.Dialer.
	Dialer NetDialer

	// TLSConfig configures the secure channel. If nil, a config with
	// ServerName derived from Address is used.
	TLSConfig *tls.Config

	// InsecureNoTLS skips the TLS layer entirely and uses the dialed
	// connection as-is. Test hook; never set in production.
	InsecureNoTLS bool

	// HandshakeTimeout bounds dial plus TLS handshake plus the
	// authentication write. Zero applies no standalone timeout — only
	// the Join context and TCP-level timeouts bound the attempt.
	HandshakeTimeout time.Duration

	// KeepAliveInterval is the ping cadence while connected.
	// Defaults to 20 seconds.
	KeepAliveInterval time.Duration

	// Clock drives the keep-alive timer. Defaults to clock.Real().
	Clock clock.Clock

	// Cursor persists the last-event-id. If nil, resumption does not
	// survive the session object.
	Cursor CursorStore

	// Avatars fetches roster avatars. If nil, avatars are skipped.
	Avatars AvatarFetcher

	// Observer receives session events. Required.
	Observer RoomObserver

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// RoomSession owns one persistent connection to one chat room: the
// connection state machine, keep-alive timer, frame dispatch into the
// roster, and the resumption cursor.
//
// Join, Logout, and SubmitMessage are safe to call from any goroutine.
type RoomSession struct {
	id        int
	name      string
	token     string
	address   string
	dialer    NetDialer
	tlsConfig *tls.Config
	insecure  bool

	handshakeTimeout  time.Duration
	keepAliveInterval time.Duration

	clock    clock.Clock
	cursor   CursorStore
	avatars  AvatarFetcher
	observer RoomObserver
	logger   *slog.Logger

	mu          sync.Mutex
	state       ConnectionState
	conn        net.Conn
	lastEventID string
	selfUserID  int
	roster      *Roster
	pingStop    chan struct{}
}

// NewSession creates a disconnected RoomSession. The resumption
// cursor, if a CursorStore is configured, is loaded here so the first
// Join can already request replay.
func NewSession(cfg SessionConfig) (*RoomSession, error) {
	if cfg.RoomName == "" {
		return nil, fmt.Errorf("talker: RoomName is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("talker: Token is required")
	}
	if cfg.Observer == nil {
		return nil, fmt.Errorf("talker: Observer is required")
	}

	address := cfg.Address
	if address == "" {
		address = DefaultAddress
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil && !cfg.InsecureNoTLS {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return nil, fmt.Errorf("talker: invalid address %q: %w", address, err)
		}
		tlsConfig = &tls.Config{ServerName: host}
	}
	interval := cfg.KeepAliveInterval
	if interval <= 0 {
		interval = defaultKeepAliveInterval
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	session := &RoomSession{
		id:                cfg.RoomID,
		name:              cfg.RoomName,
		token:             cfg.Token,
		address:           address,
		dialer:            dialer,
		tlsConfig:         tlsConfig,
		insecure:          cfg.InsecureNoTLS,
		handshakeTimeout:  cfg.HandshakeTimeout,
		keepAliveInterval: interval,
		clock:             clk,
		cursor:            cfg.Cursor,
		avatars:           cfg.Avatars,
		observer:          cfg.Observer,
		logger:            logger.With("room", cfg.RoomName),
		state:             StateDisconnected,
		roster:            NewRoster(),
	}
	if cfg.Cursor != nil {
		session.lastEventID = cfg.Cursor.LoadCursor(cfg.RoomID)
	}
	return session, nil
}

// ID returns the server-assigned room id.
func (s *RoomSession) ID() int { return s.id }

// Name returns the room's display name.
func (s *RoomSession) Name() string { return s.name }

// State returns the current connection state.
func (s *RoomSession) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastEventID returns the current resumption cursor.
func (s *RoomSession) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

// SelfUserID returns the user id the server assigned this connection,
// or zero before the connected acknowledgement.
func (s *RoomSession) SelfUserID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfUserID
}

// Users returns a stable-ordered snapshot of the roster.
func (s *RoomSession) Users() []*RoomUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Users()
}

// advance moves the state machine from one specific state to the
// next, failing if anything (a concurrent Logout, typically) moved it
// elsewhere in the meantime.
func (s *RoomSession) advance(from, to ConnectionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// Join connects to the room: TCP dial, TLS handshake, then the
// connect command carrying the room name, account token, and — when a
// cursor is known — the last event id so the server replays missed
// events. Valid only from Disconnected.
//
// Join returns once authentication is sent; the Connected transition
// happens asynchronously when the server acknowledges, reported via
// the observer.
func (s *RoomSession) Join(ctx context.Context) error {
	if !s.advance(StateDisconnected, StateConnecting) {
		return fmt.Errorf("talker: join %q: session is %s, not disconnected", s.name, s.State())
	}
	s.observer.OnStatus(s, "connecting to server...")

	if s.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.handshakeTimeout)
		defer cancel()
	}

	rawConn, err := s.dialer.DialContext(ctx, "tcp", s.address)
	if err != nil {
		s.abortConnect(nil)
		return fmt.Errorf("talker: dialing %s: %w", s.address, err)
	}

	conn := rawConn
	if !s.insecure {
		if !s.advance(StateConnecting, StateTLSHandshaking) {
			rawConn.Close()
			return fmt.Errorf("talker: join %q: session closed during connect", s.name)
		}
		tlsConn := tls.Client(rawConn, s.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			rawConn.Close()
			s.abortConnect(nil)
			return fmt.Errorf("talker: tls handshake with %s: %w", s.address, err)
		}
		conn = tlsConn
		if !s.advance(StateTLSHandshaking, StateAuthenticating) {
			conn.Close()
			return fmt.Errorf("talker: join %q: session closed during connect", s.name)
		}
	} else {
		if !s.advance(StateConnecting, StateAuthenticating) {
			rawConn.Close()
			return fmt.Errorf("talker: join %q: session closed during connect", s.name)
		}
	}

	s.mu.Lock()
	s.conn = conn
	lastEventID := s.lastEventID
	s.mu.Unlock()

	s.observer.OnStatus(s, "connection established. logging in...")
	if lastEventID != "" {
		s.logger.Debug("requesting event replay", "last_event_id", lastEventID)
	}

	payload, err := encodeCommand(newConnectCommand(s.name, s.token, lastEventID))
	if err != nil {
		s.abortConnect(conn)
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		s.abortConnect(conn)
		return fmt.Errorf("talker: sending connect command: %w", err)
	}

	go s.readLoop(conn)
	return nil
}

// abortConnect resets a failed connection attempt to Disconnected
// without firing OnDisconnected — the caller gets the error instead.
func (s *RoomSession) abortConnect(conn net.Conn) {
	s.mu.Lock()
	s.state = StateDisconnected
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Logout tears the connection down deliberately. The wire's close
// command is never sent — the server would disconnect every client
// sharing the account token — so logout is a local flush-and-close:
// persist the cursor, close the transport, and let the read loop
// confirm the disconnect. Valid in any live state; a no-op otherwise.
func (s *RoomSession) Logout() {
	s.mu.Lock()
	switch s.state {
	case StateDisconnected, StateDisconnecting:
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnecting
	conn := s.conn
	cursor := s.lastEventID
	stop := s.pingStop
	s.pingStop = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if s.cursor != nil {
		s.cursor.SaveCursor(s.id, cursor)
	}
	s.observer.OnStatus(s, "disconnecting from server...")

	if conn != nil {
		// The read loop notices the closed transport and completes
		// the Disconnected transition.
		conn.Close()
		return
	}

	// Logout raced an early Join (no socket yet): finish the
	// transition here; Join's advance calls will fail and clean up
	// their own connection.
	s.finishDisconnect()
}

// finishDisconnect completes the transition to Disconnected and fires
// OnDisconnected exactly once per connection.
func (s *RoomSession) finishDisconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.conn = nil
	s.selfUserID = 0
	stop := s.pingStop
	s.pingStop = nil
	cursor := s.lastEventID
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if s.cursor != nil {
		s.cursor.SaveCursor(s.id, cursor)
	}
	s.observer.OnStatus(s, "disconnected from server")
	s.observer.OnDisconnected(s)
}

// SubmitMessage escapes and sends a chat message. Valid only while
// Connected. Blank messages are dropped silently.
func (s *RoomSession) SubmitMessage(text string) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	state := s.state
	conn := s.conn
	s.mu.Unlock()

	if state != StateConnected || conn == nil {
		return fmt.Errorf("talker: submit to %q: session is %s, not connected", s.name, state)
	}

	payload, err := encodeCommand(newMessageCommand(escapeContent(text)))
	if err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("talker: sending message: %w", err)
	}
	return nil
}

// readLoop owns the inbound half of the connection: it decodes frames
// in arrival order and dispatches them until the transport fails, a
// frame is malformed, or Logout closes the socket underneath it.
func (s *RoomSession) readLoop(conn net.Conn) {
	var decoder Decoder
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			frames, decodeErr := decoder.Feed(buf[:n])
			for _, frame := range frames {
				s.dispatch(frame)
			}
			if decodeErr != nil {
				s.logger.Warn("malformed frame from server", "error", decodeErr)
				s.observer.OnSessionError(s, decodeErr)
				conn.Close()
				s.finishDisconnect()
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			deliberate := s.state == StateDisconnecting
			s.mu.Unlock()
			if !deliberate && err != io.EOF {
				s.logger.Warn("room connection lost", "error", err)
				s.observer.OnSessionError(s, fmt.Errorf("talker: connection to %q lost: %w", s.name, err))
			}
			conn.Close()
			s.finishDisconnect()
			return
		}
	}
}

// dispatch routes one inbound frame. Any frame carrying an event id
// advances the resumption cursor first — most recent wins, no
// ordering validation.
func (s *RoomSession) dispatch(frame Frame) {
	if frame.ID != "" {
		s.mu.Lock()
		s.lastEventID = string(frame.ID)
		s.mu.Unlock()
	}

	switch frame.Type {
	case "connected":
		s.handleConnected(frame)
	case "users":
		s.handleUsers(frame)
	case "message":
		s.handleMessage(frame)
	case "idle":
		s.handlePresence(frame, true)
	case "back":
		s.handlePresence(frame, false)
	case "join":
		s.handleJoin(frame)
	case "leave":
		s.handleLeave(frame)
	case "error":
		s.logger.Warn("server sent error", "message", frame.Message)
		s.observer.OnSessionError(s, &ServerError{Message: frame.Message})
	default:
		s.logger.Debug("unhandled frame type", "type", frame.Type)
	}
}

func (s *RoomSession) handleConnected(frame Frame) {
	if !s.advance(StateAuthenticating, StateConnected) {
		s.logger.Warn("connected frame in unexpected state", "state", s.State())
		return
	}

	stop := make(chan struct{})
	s.mu.Lock()
	if frame.User != nil {
		s.selfUserID = frame.User.ID
	}
	s.pingStop = stop
	s.mu.Unlock()

	go s.keepAlive(stop)

	name := ""
	if frame.User != nil {
		name = frame.User.Name
	}
	s.logger.Info("room connected", "self_user_id", s.SelfUserID())
	s.observer.OnStatus(s, fmt.Sprintf("connected as %s", name))
	s.observer.OnConnected(s)
}

// keepAlive pings the server on a fixed cadence while the session is
// connected. A failed write is left to the read loop to report — the
// transport error surfaces there too.
func (s *RoomSession) keepAlive(stop chan struct{}) {
	ticker := s.clock.NewTicker(s.keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			connected := s.state == StateConnected
			s.mu.Unlock()
			if !connected || conn == nil {
				return
			}
			payload, err := encodeCommand(newPingCommand())
			if err != nil {
				return
			}
			if _, err := conn.Write(payload); err != nil {
				s.logger.Warn("keep-alive write failed", "error", err)
				return
			}
		}
	}
}

func (s *RoomSession) handleUsers(frame Frame) {
	s.mu.Lock()
	s.roster.Replace(frame.Users)
	entries := make([]*RoomUser, 0, len(frame.Users))
	for _, user := range frame.Users {
		if entry := s.roster.Get(user.ID); entry != nil {
			entries = append(entries, entry)
		}
	}
	s.mu.Unlock()

	for _, entry := range entries {
		s.requestAvatar(entry)
	}
	s.observer.OnRosterUpdated(s)
}

func (s *RoomSession) handleMessage(frame Frame) {
	if frame.User == nil {
		s.logger.Warn("message frame without user object")
		return
	}

	s.mu.Lock()
	sender := s.roster.Get(frame.User.ID)
	synthesized := false
	if sender == nil {
		// The server is replaying events from before the roster
		// arrived. Create the entry from the embedded user object and
		// deliver the message against it — once, the entry exists now.
		sender, _ = s.roster.AddOrGet(*frame.User)
		synthesized = true
	}
	s.mu.Unlock()

	if synthesized {
		s.logger.Warn("message from unknown user",
			"user_id", frame.User.ID,
			"name", frame.User.Name,
		)
		s.requestAvatar(sender)
	}

	content := unescapeContent(frame.Content)
	s.observer.OnMessage(s, sender, content, time.Unix(frame.Time, 0))
}

// handlePresence applies an idle or back frame. Unknown ids are
// logged and dropped; presence echoes for this connection's own user
// are ignored.
func (s *RoomSession) handlePresence(frame Frame, idle bool) {
	if frame.User == nil {
		s.logger.Warn("presence frame without user object")
		return
	}

	s.mu.Lock()
	self := frame.User.ID == s.selfUserID
	var entry *RoomUser
	if s.roster.Get(frame.User.ID) == nil {
		s.mu.Unlock()
		s.logger.Warn("presence event for unknown user", "user_id", frame.User.ID, "idle", idle)
		return
	}
	if !self {
		entry = s.roster.SetIdle(frame.User.ID, idle)
	}
	s.mu.Unlock()

	if self {
		return
	}
	s.observer.OnUserUpdated(s, entry)
}

func (s *RoomSession) handleJoin(frame Frame) {
	if frame.User == nil {
		s.logger.Warn("join frame without user object")
		return
	}

	s.mu.Lock()
	entry, added := s.roster.AddOrGet(*frame.User)
	self := entry.ID == s.selfUserID
	s.mu.Unlock()

	if added {
		s.requestAvatar(entry)
	}
	if self {
		return
	}
	s.logger.Info("user joined room", "user_id", entry.ID, "name", entry.Name)
	s.observer.OnSystemMessage(s, fmt.Sprintf("%s has joined the room", entry.Name), time.Unix(frame.Time, 0))
	s.observer.OnUserUpdated(s, entry)
}

func (s *RoomSession) handleLeave(frame Frame) {
	if frame.User == nil {
		s.logger.Warn("leave frame without user object")
		return
	}

	s.mu.Lock()
	entry := s.roster.Remove(frame.User.ID)
	s.mu.Unlock()

	if entry == nil {
		s.logger.Warn("leave event for unknown user", "user_id", frame.User.ID)
		return
	}
	s.logger.Info("user left room", "user_id", entry.ID, "name", entry.Name)
	s.observer.OnSystemMessage(s, fmt.Sprintf("%s has left the room", entry.Name), time.Unix(frame.Time, 0))
	s.observer.OnRosterUpdated(s)
}

// requestAvatar starts the asynchronous avatar fetch for a roster
// entry, at most once per user. The bytes are delivered via
// OnUserUpdated from the fetch goroutine.
func (s *RoomSession) requestAvatar(user *RoomUser) {
	if s.avatars == nil || user == nil {
		return
	}

	s.mu.Lock()
	if user.avatarRequested {
		s.mu.Unlock()
		return
	}
	user.avatarRequested = true
	url := user.AvatarURL(defaultAvatarSize, defaultAvatarType)
	s.mu.Unlock()

	go func() {
		data, err := s.avatars.FetchAvatar(context.Background(), url)
		if err != nil {
			s.logger.Warn("avatar fetch failed", "user_id", user.ID, "error", err)
			return
		}
		s.mu.Lock()
		user.Avatar = data
		s.mu.Unlock()
		s.observer.OnUserUpdated(s, user)
	}()
}
