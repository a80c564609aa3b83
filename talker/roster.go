// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// RoomUser is one member of a room's roster.
type RoomUser struct {
	// ID is the server-assigned user id, stable across sessions and
	// the roster's key.
	ID int

	// Name is the display name, trimmed of surrounding whitespace.
	Name string

	// Email is used only to derive the avatar lookup URL.
	Email string

	// Idle reports whether the user has stopped activity without
	// leaving the room.
	Idle bool

	// Avatar holds the raw image bytes once the asynchronous fetch
	// completes. Decoding is the display layer's concern.
	Avatar []byte

	// avatarRequested guards the at-most-one-outstanding-request
	// contract for avatar fetches.
	avatarRequested bool
}

// AvatarURL derives the gravatar lookup URL from the user's email:
// an MD5 hex digest of the address with size and fallback-style
// query parameters.
func (u *RoomUser) AvatarURL(size int, defaultType string) string {
	digest := md5.Sum([]byte(u.Email))
	return fmt.Sprintf("http://www.gravatar.com/avatar/%s?s=%d&d=%s",
		hex.EncodeToString(digest[:]), size, defaultType)
}

// Roster tracks the users known to be present in one room. It holds
// at most one entry per user id: entries appear lazily the first time
// a frame names an unseen id and disappear only on an explicit leave.
//
// Roster is a plain data structure with no locking — all mutation
// happens on the owning session's dispatch path.
type Roster struct {
	users map[int]*RoomUser
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{users: make(map[int]*RoomUser)}
}

// Get returns the entry for id, or nil if unknown.
func (r *Roster) Get(id int) *RoomUser {
	return r.users[id]
}

// AddOrGet returns the existing entry for the wire user's id, or
// creates one from the wire fields. The second result reports whether
// a new entry was created.
func (r *Roster) AddOrGet(user WireUser) (*RoomUser, bool) {
	if existing, ok := r.users[user.ID]; ok {
		return existing, false
	}
	entry := &RoomUser{
		ID:    user.ID,
		Name:  strings.TrimSpace(user.Name),
		Email: strings.TrimSpace(user.Email),
	}
	r.users[user.ID] = entry
	return entry, true
}

// Replace discards every entry and rebuilds the roster from a full
// user list (the users frame). Duplicate ids in the input collapse to
// one entry.
func (r *Roster) Replace(users []WireUser) {
	r.users = make(map[int]*RoomUser, len(users))
	for _, user := range users {
		r.AddOrGet(user)
	}
}

// Remove deletes and returns the entry for id, or nil if unknown.
func (r *Roster) Remove(id int) *RoomUser {
	entry := r.users[id]
	delete(r.users, id)
	return entry
}

// SetIdle updates the idle flag for id and returns the entry, or nil
// if the id is unknown.
func (r *Roster) SetIdle(id int, idle bool) *RoomUser {
	entry := r.users[id]
	if entry != nil {
		entry.Idle = idle
	}
	return entry
}

// Users returns the entries sorted by name (ties broken by id) for
// stable display.
func (r *Roster) Users() []*RoomUser {
	users := make([]*RoomUser, 0, len(r.users))
	for _, entry := range r.users {
		users = append(users, entry)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
	return users
}

// Len returns the number of entries.
func (r *Roster) Len() int { return len(r.users) }
