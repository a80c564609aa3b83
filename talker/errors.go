// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker

import (
	"errors"
	"fmt"
)

// ServerError is a well-formed error reported by the backend, either
// as an {"type":"error"} frame on a room socket or as the error object
// body of the REST discovery endpoint. It is surfaced to the user and
// is not fatal to the session unless it is an authentication failure.
//
//	var serverErr *talker.ServerError
//	if errors.As(err, &serverErr) { ... }
type ServerError struct {
	// Message is the human-readable error text from the server.
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("talker: server error: %s", e.Message)
}

// authErrorMessage is the exact text the backend sends when a request
// carries a missing or invalid account token.
const authErrorMessage = "Please login"

// IsAuthError reports whether err is the server's credential-rejection
// error. Discovery reacts to it by offering a credential re-edit and a
// single retry.
func IsAuthError(err error) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr) && serverErr.Message == authErrorMessage
}

// DecodeError reports a malformed frame on the wire. It is recoverable
// for the process — the session reacts by tearing down the affected
// connection — but never by skipping the frame: once framing is in
// doubt the rest of the stream cannot be trusted.
type DecodeError struct {
	// Raw is the offending line, without its CRLF terminator.
	Raw []byte
	// Err is the underlying JSON parse error.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("talker: malformed frame %q: %v", e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
