// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// frameTerminator ends every wire message in both directions.
const frameTerminator = "\r\n"

// EventID is the opaque resumption cursor carried by most server
// frames. The server has sent both string and numeric ids over time,
// so decoding accepts either and normalizes to the string form. An
// empty EventID means the frame carried no cursor.
type EventID string

// UnmarshalJSON accepts a JSON string, number, or null.
func (id *EventID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EventID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("event id must be a string or number: %w", err)
	}
	*id = EventID(n.String())
	return nil
}

// WireUser is the user object embedded in server frames.
type WireUser struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Frame is one decoded server message. The wire multiplexes every
// message kind into a single JSON object shape discriminated by Type;
// fields not used by a given type are left at their zero values.
type Frame struct {
	Type string  `json:"type"`
	ID   EventID `json:"id,omitempty"`

	// User is set on connected, message, idle, back, join, and leave
	// frames.
	User *WireUser `json:"user,omitempty"`

	// Users is the full roster, set on users frames.
	Users []WireUser `json:"users,omitempty"`

	// Content is the HTML-escaped message body, set on message frames.
	Content string `json:"content,omitempty"`

	// Message is the error text, set on error frames.
	Message string `json:"message,omitempty"`

	// Time is the event time in Unix seconds.
	Time int64 `json:"time,omitempty"`
}

// Outbound commands. Each marshals to one JSON object; encodeCommand
// appends the CRLF terminator.
//
// The protocol also defines {"type":"close"}, deliberately absent
// here: the server disconnects every client sharing the account token
// when any one of them sends it, so no code path may construct it.
// Logout closes the transport without a farewell instead.
type connectCommand struct {
	Type  string `json:"type"`
	Room  string `json:"room"`
	Token string `json:"token"`
	// LastEventID, when non-empty, asks the server to replay events
	// missed since the cursor.
	LastEventID string `json:"last_event_id,omitempty"`
}

type pingCommand struct {
	Type string `json:"type"`
}

type messageCommand struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func newConnectCommand(room, token, lastEventID string) connectCommand {
	return connectCommand{Type: "connect", Room: room, Token: token, LastEventID: lastEventID}
}

func newPingCommand() pingCommand { return pingCommand{Type: "ping"} }

func newMessageCommand(escapedContent string) messageCommand {
	return messageCommand{Type: "message", Content: escapedContent}
}

// encodeCommand serializes an outbound command as one CRLF-terminated
// wire frame.
func encodeCommand(command any) ([]byte, error) {
	data, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("talker: encoding command: %w", err)
	}
	return append(data, frameTerminator...), nil
}

// Decoder incrementally splits the inbound byte stream into frames.
// The zero value is ready to use. Feed it whatever the socket read
// returned: a buffer may hold zero, one, or many complete frames, and
// a trailing partial frame is retained and prefixed to the next feed.
//
// Decoder is not safe for concurrent use; each connection's read loop
// owns its own.
type Decoder struct {
	buf []byte
}

// Feed appends data to the internal buffer and returns every complete
// frame now available, in arrival order. A malformed line stops
// decoding and returns the frames decoded before it alongside a
// *DecodeError; the caller must treat the connection as poisoned.
func (d *Decoder) Feed(data []byte) ([]Frame, error) {
	d.buf = append(d.buf, data...)

	var frames []Frame
	for {
		end := bytes.Index(d.buf, []byte(frameTerminator))
		if end < 0 {
			return frames, nil
		}
		line := bytes.TrimSpace(d.buf[:end])
		d.buf = d.buf[end+len(frameTerminator):]
		if len(line) == 0 {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			return frames, &DecodeError{Raw: append([]byte(nil), line...), Err: err}
		}
		frames = append(frames, frame)
	}
}

// Pending returns the number of buffered bytes awaiting a terminator.
func (d *Decoder) Pending() int { return len(d.buf) }
