// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Account identifies one Talker account: the subdomain its rooms live
// under and the credential for both REST and socket requests.
type Account struct {
	// Name is the local display label for the account.
	Name string

	// Domain is the account's subdomain, as in
	// https://{domain}.talkerapp.com.
	Domain string

	// Token is the opaque account credential.
	Token string
}

// RoomInfo is one entry of the discovery response.
type RoomInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// CredentialEditor lets the user correct a rejected credential.
// EditCredentials blocks until the user finishes; the second result
// reports whether the account was actually edited (false means the
// user declined and the caller must not retry).
type CredentialEditor interface {
	EditCredentials(ctx context.Context, account Account) (Account, bool)
}

// OpenRoomStore persists the set of rooms that were open for an
// account, keyed by room name, so the next run can rejoin them.
type OpenRoomStore interface {
	LoadOpenRooms(accountName string) map[string]int
	SaveOpenRooms(accountName string, rooms map[string]int)
}

// DirectoryConfig holds the parameters for creating an
// AccountDirectory. Account (with a non-empty Domain and Token) and
// Observer are required.
type DirectoryConfig struct {
	// Account is the account this directory manages.
	Account Account

	// HTTPClient performs the discovery request. If nil,
	// http.DefaultClient.
	HTTPClient *http.Client

	// BaseURL overrides the https://{domain}.talkerapp.com origin.
	// Test hook; leave empty in production.
	BaseURL string

	// SessionDefaults is the template for sessions this directory
	// opens: its Address, Dialer, TLSConfig, timeouts, Clock, Cursor,
	// and Avatars fields carry over to every session. RoomID,
	// RoomName, Token, and Observer are filled per room.
	SessionDefaults SessionConfig

	// Credentials, if set, is offered a single edit-and-retry when
	// discovery fails with the server's credential-rejection error.
	Credentials CredentialEditor

	// OpenRooms persists the rejoin set. If nil, the set lives only
	// in memory.
	OpenRooms OpenRoomStore

	// ReopenLastRooms enables the automatic rejoin of persisted open
	// rooms after a successful discovery.
	ReopenLastRooms bool

	// Observer receives events from every session this directory
	// opens. Required.
	Observer RoomObserver

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// AccountDirectory manages one account's view of the service: the
// available-room list from REST discovery, the set of open
// RoomSessions, and the persisted rooms-open-last-time set that
// drives auto-rejoin.
//
// All methods are safe for concurrent use.
type AccountDirectory struct {
	httpClient *http.Client
	defaults   SessionConfig
	creds      CredentialEditor
	store      OpenRoomStore
	reopen     bool
	observer   RoomObserver
	logger     *slog.Logger

	mu             sync.Mutex
	account        Account
	baseURL        string
	availableRooms []RoomInfo
	sessions       map[int]*RoomSession
	openRooms      map[string]int
}

// NewDirectory creates a directory for one account. The persisted
// open-rooms set, if a store is configured, is loaded here.
func NewDirectory(cfg DirectoryConfig) (*AccountDirectory, error) {
	if cfg.Account.Domain == "" {
		return nil, fmt.Errorf("talker: account %q: Domain is required", cfg.Account.Name)
	}
	if cfg.Account.Token == "" {
		return nil, fmt.Errorf("talker: account %q: Token is required", cfg.Account.Name)
	}
	if cfg.Observer == nil {
		return nil, fmt.Errorf("talker: account %q: Observer is required", cfg.Account.Name)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	directory := &AccountDirectory{
		httpClient: httpClient,
		defaults:   cfg.SessionDefaults,
		creds:      cfg.Credentials,
		store:      cfg.OpenRooms,
		reopen:     cfg.ReopenLastRooms,
		observer:   cfg.Observer,
		logger:     logger.With("account", cfg.Account.Name),
		account:    cfg.Account,
		baseURL:    cfg.BaseURL,
		sessions:   make(map[int]*RoomSession),
		openRooms:  make(map[string]int),
	}
	if cfg.OpenRooms != nil {
		for name, id := range cfg.OpenRooms.LoadOpenRooms(cfg.Account.Name) {
			directory.openRooms[name] = id
		}
	}
	return directory, nil
}

// Account returns the account this directory manages.
func (d *AccountDirectory) Account() Account {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.account
}

// SetAccount replaces the account credentials and domain. Sessions
// already open keep the connection they authenticated with; the new
// values apply to subsequent discovery and room opens.
func (d *AccountDirectory) SetAccount(account Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.account = account
}

// AvailableRooms returns the room list from the most recent
// successful discovery.
func (d *AccountDirectory) AvailableRooms() []RoomInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	rooms := make([]RoomInfo, len(d.availableRooms))
	copy(rooms, d.availableRooms)
	return rooms
}

// Sessions returns the currently open sessions.
func (d *AccountDirectory) Sessions() []*RoomSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	sessions := make([]*RoomSession, 0, len(d.sessions))
	for _, session := range d.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Session returns the open session for roomID, or nil.
func (d *AccountDirectory) Session(roomID int) *RoomSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[roomID]
}

// DiscoverRooms fetches the account's room list. A successful
// response replaces the available-room list wholesale. If the server
// rejects the credential and a CredentialEditor is configured, the
// user gets one chance to edit the account, and the request retries
// exactly once; any other error is returned without retry.
//
// After a successful discovery, persisted open rooms whose name still
// maps to the same id are rejoined automatically when the directory
// was configured to do so.
func (d *AccountDirectory) DiscoverRooms(ctx context.Context) error {
	rooms, err := d.fetchRooms(ctx)
	if IsAuthError(err) && d.creds != nil {
		edited, ok := d.creds.EditCredentials(ctx, d.Account())
		if !ok {
			return err
		}
		d.SetAccount(edited)
		d.logger.Info("credentials edited, retrying discovery")
		rooms, err = d.fetchRooms(ctx)
	}
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.availableRooms = rooms
	d.mu.Unlock()
	d.logger.Info("room discovery complete", "rooms", len(rooms))

	if d.reopen {
		d.rejoinPersisted(ctx, rooms)
	}
	return nil
}

// fetchRooms performs one discovery GET and decodes the body: a JSON
// array of rooms on success, a server error object otherwise.
func (d *AccountDirectory) fetchRooms(ctx context.Context) ([]RoomInfo, error) {
	d.mu.Lock()
	account := d.account
	baseURL := d.baseURL
	d.mu.Unlock()
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.talkerapp.com", account.Domain)
	}
	url := baseURL + "/rooms.json"

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("talker: discovery request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-Talker-Token", account.Token)

	response, err := d.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("talker: room discovery: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("talker: reading discovery response: %w", err)
	}

	// The endpoint reports errors as a JSON object body regardless of
	// HTTP status, so inspect the payload shape before the status code.
	var serverErr struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &serverErr) == nil && serverErr.Type == "error" {
		return nil, &ServerError{Message: serverErr.Message}
	}

	var rooms []RoomInfo
	if err := json.Unmarshal(body, &rooms); err != nil {
		return nil, fmt.Errorf("talker: decoding discovery response: %w", err)
	}
	return rooms, nil
}

// rejoinPersisted reopens every persisted open room whose name→id
// binding still matches the fresh discovery result.
func (d *AccountDirectory) rejoinPersisted(ctx context.Context, rooms []RoomInfo) {
	d.mu.Lock()
	persisted := make(map[string]int, len(d.openRooms))
	for name, id := range d.openRooms {
		persisted[name] = id
	}
	d.mu.Unlock()

	for _, room := range rooms {
		id, ok := persisted[room.Name]
		if !ok || id != room.ID {
			continue
		}
		d.logger.Info("rejoining room from last session", "room", room.Name, "room_id", room.ID)
		if err := d.OpenRoom(ctx, room.ID); err != nil {
			d.logger.Warn("rejoin failed", "room", room.Name, "error", err)
		}
	}
}

// OpenRoom joins the room with the given id. Idempotent: if a session
// for the room is already open, OpenRoom is a no-op. The room must
// appear in the current available-room list. On success the room is
// added to the persisted open-rooms set.
func (d *AccountDirectory) OpenRoom(ctx context.Context, roomID int) error {
	d.mu.Lock()
	if _, open := d.sessions[roomID]; open {
		d.mu.Unlock()
		return nil
	}
	var room *RoomInfo
	for i := range d.availableRooms {
		if d.availableRooms[i].ID == roomID {
			room = &d.availableRooms[i]
			break
		}
	}
	account := d.account
	d.mu.Unlock()

	if room == nil {
		return fmt.Errorf("talker: room %d not in discovered rooms for account %q", roomID, account.Name)
	}

	cfg := d.defaults
	cfg.RoomID = room.ID
	cfg.RoomName = room.Name
	cfg.Token = account.Token
	cfg.Observer = &directoryObserver{directory: d, next: d.observer}
	if cfg.Logger == nil {
		cfg.Logger = d.logger
	}

	session, err := NewSession(cfg)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if _, open := d.sessions[roomID]; open {
		// Lost a race with a concurrent OpenRoom for the same id.
		d.mu.Unlock()
		return nil
	}
	d.sessions[roomID] = session
	d.openRooms[room.Name] = room.ID
	d.mu.Unlock()
	d.saveOpenRooms()

	if err := session.Join(ctx); err != nil {
		d.mu.Lock()
		delete(d.sessions, roomID)
		d.mu.Unlock()
		return err
	}
	return nil
}

// CloseRoom logs the matching session out and removes the room from
// the persisted open-rooms set. The session object retires once the
// transport confirms closure; its OnDisconnected still fires exactly
// once. No-op if the room is not open.
func (d *AccountDirectory) CloseRoom(roomID int) {
	d.mu.Lock()
	session := d.sessions[roomID]
	if session != nil {
		delete(d.openRooms, session.Name())
	}
	d.mu.Unlock()
	if session == nil {
		return
	}
	d.saveOpenRooms()
	session.Logout()
}

// CloseAll logs out every open session. Used at shutdown; the
// persisted open-rooms set is left intact so the rooms rejoin next
// run.
func (d *AccountDirectory) CloseAll() {
	for _, session := range d.Sessions() {
		session.Logout()
	}
}

func (d *AccountDirectory) saveOpenRooms() {
	if d.store == nil {
		return
	}
	d.mu.Lock()
	account := d.account.Name
	rooms := make(map[string]int, len(d.openRooms))
	for name, id := range d.openRooms {
		rooms[name] = id
	}
	d.mu.Unlock()
	d.store.SaveOpenRooms(account, rooms)
}

// removeSession drops a session from the open set once its transport
// is confirmed down. The persisted open-rooms entry is untouched —
// only CloseRoom expresses the user's intent to leave.
func (d *AccountDirectory) removeSession(session *RoomSession) {
	d.mu.Lock()
	if d.sessions[session.ID()] == session {
		delete(d.sessions, session.ID())
	}
	d.mu.Unlock()
}

// directoryObserver sits between each session and the directory's
// observer, retiring sessions from the open set when they disconnect.
type directoryObserver struct {
	directory *AccountDirectory
	next      RoomObserver
}

func (o *directoryObserver) OnConnected(room *RoomSession) {
	o.next.OnConnected(room)
}

func (o *directoryObserver) OnDisconnected(room *RoomSession) {
	o.directory.removeSession(room)
	o.next.OnDisconnected(room)
}

func (o *directoryObserver) OnMessage(room *RoomSession, sender *RoomUser, content string, timestamp time.Time) {
	o.next.OnMessage(room, sender, content, timestamp)
}

func (o *directoryObserver) OnRosterUpdated(room *RoomSession) {
	o.next.OnRosterUpdated(room)
}

func (o *directoryObserver) OnUserUpdated(room *RoomSession, user *RoomUser) {
	o.next.OnUserUpdated(room, user)
}

func (o *directoryObserver) OnSystemMessage(room *RoomSession, text string, timestamp time.Time) {
	o.next.OnSystemMessage(room, text, timestamp)
}

func (o *directoryObserver) OnSessionError(room *RoomSession, err error) {
	o.next.OnSessionError(room, err)
}

func (o *directoryObserver) OnStatus(room *RoomSession, text string) {
	o.next.OnStatus(room, text)
}
