// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

// Package talker implements the client side of the Talker realtime
// messaging protocol: room discovery over HTTPS, persistent TLS room
// connections speaking line-delimited JSON, and the session state
// machines that sit between the wire and a user interface.
//
// The package provides three layers. At the bottom, [Decoder] and the
// command constructors frame the wire protocol: each message is a
// single JSON object terminated by CRLF, and the decoder tolerates
// reads that split frames at arbitrary byte boundaries. Above that,
// [RoomSession] owns one connection to one room — dial, TLS handshake,
// authentication, keep-alive pings, frame dispatch into a [Roster],
// and a persisted last-event-id cursor so a later connect can request
// replay of missed events. At the top, [AccountDirectory] holds one
// account's discovered room list and open sessions (with auto-rejoin
// of the rooms left open last time), and [SessionMultiplexer]
// aggregates every account's session events for a single [UIObserver]
// and routes outbound messages back to the owning session.
//
// All lifecycle delivery is through explicit observer interfaces
// injected at construction — components never reach into ambient
// state to find their display surface. Session callbacks fire
// synchronously on the session's event goroutine; implementations
// should hand work off rather than block.
//
// One protocol quirk is load-bearing: the wire defines a "close"
// command, but the server reacts to it by disconnecting every client
// that shares the account token, across all rooms and devices. Logout
// therefore never sends it — it flushes and closes the transport
// locally instead.
package talker
