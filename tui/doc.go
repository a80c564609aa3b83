// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

// Package tui renders the client in the terminal: one tab per open
// room, the active room's transcript in a viewport, an input line,
// and a status line. Session events reach the bubbletea update loop
// through a Bridge that adapts the multiplexer's observer callbacks
// into messages on a channel.
//
// The package is a consumer of the talker engine; nothing in talker
// depends on it.
package tui
