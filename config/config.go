// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

// Package config persists client state between runs: accounts, the
// rooms open last session, per-room resumption cursors, and user
// options. Everything lives in one YAML file at an explicit path —
// there is no search-path discovery.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// AccountState is one configured account as stored on disk.
type AccountState struct {
	Name   string `yaml:"name"`
	Token  string `yaml:"token"`
	Domain string `yaml:"domain"`

	// LastUsed is when the account last connected successfully.
	LastUsed time.Time `yaml:"last_used,omitempty"`

	// OpenRooms maps room name to room id for the rooms that were
	// open when the account was last active.
	OpenRooms map[string]int `yaml:"open_rooms,omitempty"`
}

// RoomState is the per-room state that survives restarts.
type RoomState struct {
	Name string `yaml:"name,omitempty"`

	// LastEventID is the room's resumption cursor.
	LastEventID string `yaml:"last_event_id,omitempty"`
}

// Options are the user-tunable settings.
type Options struct {
	ShowTimestamps           bool   `yaml:"show_timestamps"`
	MessageReceivedSoundPath string `yaml:"message_received_sound_path,omitempty"`
	FlashWhenNotActive       bool   `yaml:"flash_when_not_active"`
	ReopenLastSessionRooms   bool   `yaml:"reopen_last_session_rooms"`

	// TotalMessagesPerRoom caps the stored history per room.
	// Zero means unlimited.
	TotalMessagesPerRoom int `yaml:"total_messages_per_room"`
}

// DefaultOptions returns the options used before the user has
// changed anything.
func DefaultOptions() Options {
	return Options{
		ShowTimestamps:         true,
		FlashWhenNotActive:     true,
		ReopenLastSessionRooms: true,
	}
}

// UnmarshalYAML decodes options over the defaults, so settings absent
// from an older file keep their default values instead of zeroing.
func (o *Options) UnmarshalYAML(node *yaml.Node) error {
	type rawOptions Options
	raw := rawOptions(DefaultOptions())
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*o = Options(raw)
	return nil
}

// State is the full on-disk document.
type State struct {
	Accounts []AccountState    `yaml:"accounts,omitempty"`
	Rooms    map[int]RoomState `yaml:"rooms,omitempty"`
	Options  Options           `yaml:"options"`
}

// Store owns the state file. All accessors take a copy-in/copy-out
// view of the state; mutating methods write through to disk.
//
// Store is safe for concurrent use.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// Load reads the state file at path. A missing file is not an error:
// the store starts from defaults and the file appears on first Save.
func Load(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := &Store{
		path:   path,
		logger: logger,
		state: State{
			Rooms:   make(map[int]RoomState),
			Options: DefaultOptions(),
		},
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &store.state); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if store.state.Rooms == nil {
		store.state.Rooms = make(map[int]RoomState)
	}
	return store, nil
}

// Save writes the state file atomically: serialize to a temporary
// file in the same directory, then rename over the target. The file
// holds credentials, so it is created user-readable only.
func (s *Store) Save() error {
	s.mu.Lock()
	data, err := yaml.Marshal(&s.state)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("config: serializing state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".smoothtalker-*.yaml")
	if err != nil {
		return fmt.Errorf("config: creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("config: setting mode on %s: %w", tmpName, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("config: replacing %s: %w", s.path, err)
	}
	return nil
}

// Accounts returns the configured accounts.
func (s *Store) Accounts() []AccountState {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := make([]AccountState, len(s.state.Accounts))
	copy(accounts, s.state.Accounts)
	return accounts
}

// UpsertAccount adds or replaces the account with the same name and
// stamps its last-used time.
func (s *Store) UpsertAccount(account AccountState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account.LastUsed = time.Now().UTC()
	for i := range s.state.Accounts {
		if s.state.Accounts[i].Name == account.Name {
			if account.OpenRooms == nil {
				account.OpenRooms = s.state.Accounts[i].OpenRooms
			}
			s.state.Accounts[i] = account
			return
		}
	}
	s.state.Accounts = append(s.state.Accounts, account)
}

// Options returns the current options.
func (s *Store) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Options
}

// SetOptions replaces the options.
func (s *Store) SetOptions(options Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Options = options
}

// LoadCursor returns the saved resumption cursor for a room, or ""
// if none is known.
func (s *Store) LoadCursor(roomID int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Rooms[roomID].LastEventID
}

// SaveCursor records a room's resumption cursor and writes through to
// disk so the cursor survives a crash between here and shutdown.
func (s *Store) SaveCursor(roomID int, lastEventID string) {
	s.mu.Lock()
	room := s.state.Rooms[roomID]
	room.LastEventID = lastEventID
	s.state.Rooms[roomID] = room
	s.mu.Unlock()
	if err := s.Save(); err != nil {
		s.logger.Warn("cursor write-through failed", "room_id", roomID, "error", err)
	}
}

// RememberRoom records a room's display name.
func (s *Store) RememberRoom(roomID int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.state.Rooms[roomID]
	room.Name = name
	s.state.Rooms[roomID] = room
}

// LoadOpenRooms returns the persisted open-rooms set for an account.
func (s *Store) LoadOpenRooms(accountName string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Accounts {
		if s.state.Accounts[i].Name != accountName {
			continue
		}
		rooms := make(map[string]int, len(s.state.Accounts[i].OpenRooms))
		for name, id := range s.state.Accounts[i].OpenRooms {
			rooms[name] = id
		}
		return rooms
	}
	return nil
}

// SaveOpenRooms replaces the persisted open-rooms set for an account
// and writes through to disk.
func (s *Store) SaveOpenRooms(accountName string, rooms map[string]int) {
	s.mu.Lock()
	for i := range s.state.Accounts {
		if s.state.Accounts[i].Name != accountName {
			continue
		}
		copied := make(map[string]int, len(rooms))
		for name, id := range rooms {
			copied[name] = id
		}
		s.state.Accounts[i].OpenRooms = copied
		break
	}
	s.mu.Unlock()
	if err := s.Save(); err != nil {
		s.logger.Warn("open-rooms write-through failed", "account", accountName, "error", err)
	}
}
