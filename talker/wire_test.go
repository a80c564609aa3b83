// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEncodeConnectCommand(t *testing.T) {
	t.Run("without cursor", func(t *testing.T) {
		data, err := encodeCommand(newConnectCommand("Main", "tok", ""))
		if err != nil {
			t.Fatalf("encodeCommand: %v", err)
		}
		line := string(data)
		if !strings.HasSuffix(line, "\r\n") {
			t.Errorf("frame %q not CRLF-terminated", line)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data[:len(data)-2], &decoded); err != nil {
			t.Fatalf("frame is not one JSON object: %v", err)
		}
		if decoded["type"] != "connect" || decoded["room"] != "Main" || decoded["token"] != "tok" {
			t.Errorf("connect command = %v", decoded)
		}
		if _, present := decoded["last_event_id"]; present {
			t.Errorf("empty cursor must be omitted, got %v", decoded)
		}
	})

	t.Run("with cursor", func(t *testing.T) {
		data, err := encodeCommand(newConnectCommand("Main", "tok", "ev-42"))
		if err != nil {
			t.Fatalf("encodeCommand: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data[:len(data)-2], &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if decoded["last_event_id"] != "ev-42" {
			t.Errorf("last_event_id = %v, want ev-42", decoded["last_event_id"])
		}
	})
}

func TestEncodePingAndMessage(t *testing.T) {
	data, err := encodeCommand(newPingCommand())
	if err != nil {
		t.Fatalf("encodeCommand(ping): %v", err)
	}
	if string(data) != `{"type":"ping"}`+"\r\n" {
		t.Errorf("ping frame = %q", data)
	}

	data, err = encodeCommand(newMessageCommand("hi &lt;there&gt;"))
	if err != nil {
		t.Fatalf("encodeCommand(message): %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data[:len(data)-2], &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "message" || decoded["content"] != "hi &lt;there&gt;" {
		t.Errorf("message command = %v", decoded)
	}
}

func TestEventIDForms(t *testing.T) {
	tests := []struct {
		name string
		json string
		want EventID
	}{
		{"string", `{"type":"message","id":"ev-7"}`, "ev-7"},
		{"number", `{"type":"message","id":1234}`, "1234"},
		{"null", `{"type":"message","id":null}`, ""},
		{"absent", `{"type":"message"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var frame Frame
			if err := json.Unmarshal([]byte(tt.json), &frame); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if frame.ID != tt.want {
				t.Errorf("ID = %q, want %q", frame.ID, tt.want)
			}
		})
	}
}

var streamFrames = []string{
	`{"type":"connected","user":{"id":1,"name":"me"},"id":"a"}`,
	`{"type":"users","users":[{"id":1,"name":"me"},{"id":2,"name":"ada","email":"ada@example.com"}],"id":"b"}`,
	`{"type":"message","user":{"id":2,"name":"ada"},"content":"hello","time":1700000000,"id":"c"}`,
	`{"type":"leave","user":{"id":2},"time":1700000001,"id":"d"}`,
}

// TestDecoderSplitAnywhere feeds the same stream split at every byte
// boundary and requires identical decode results.
func TestDecoderSplitAnywhere(t *testing.T) {
	stream := strings.Join(streamFrames, "\r\n") + "\r\n"

	var reference Decoder
	want, err := reference.Feed([]byte(stream))
	if err != nil {
		t.Fatalf("reference decode: %v", err)
	}
	if len(want) != len(streamFrames) {
		t.Fatalf("reference decoded %d frames, want %d", len(want), len(streamFrames))
	}

	for split := 0; split <= len(stream); split++ {
		var decoder Decoder
		got, err := decoder.Feed([]byte(stream[:split]))
		if err != nil {
			t.Fatalf("split %d first feed: %v", split, err)
		}
		rest, err := decoder.Feed([]byte(stream[split:]))
		if err != nil {
			t.Fatalf("split %d second feed: %v", split, err)
		}
		got = append(got, rest...)

		if len(got) != len(want) {
			t.Fatalf("split %d: decoded %d frames, want %d", split, len(got), len(want))
		}
		for i := range got {
			if got[i].Type != want[i].Type || got[i].ID != want[i].ID {
				t.Errorf("split %d frame %d = {%s %s}, want {%s %s}",
					split, i, got[i].Type, got[i].ID, want[i].Type, want[i].ID)
			}
		}
		if decoder.Pending() != 0 {
			t.Errorf("split %d: %d bytes left pending", split, decoder.Pending())
		}
	}
}

func TestDecoderPartialRetained(t *testing.T) {
	var decoder Decoder
	frames, err := decoder.Feed([]byte(`{"type":"ping"}` + "\r\n" + `{"type":"mes`))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 || frames[0].Type != "ping" {
		t.Fatalf("frames = %v, want one ping", frames)
	}
	if decoder.Pending() == 0 {
		t.Fatal("trailing partial frame was discarded")
	}

	frames, err = decoder.Feed([]byte(`sage","content":"x"}` + "\r\n"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 || frames[0].Type != "message" || frames[0].Content != "x" {
		t.Fatalf("frames = %+v, want completed message", frames)
	}
}

func TestDecoderMalformed(t *testing.T) {
	var decoder Decoder
	frames, err := decoder.Feed([]byte(`{"type":"ping"}` + "\r\n" + `{nope}` + "\r\n"))
	if err == nil {
		t.Fatal("expected decode error")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error %T, want *DecodeError", err)
	}
	if string(decodeErr.Raw) != `{nope}` {
		t.Errorf("Raw = %q", decodeErr.Raw)
	}
	if len(frames) != 1 || frames[0].Type != "ping" {
		t.Errorf("frames before the error = %v, want the leading ping", frames)
	}
}
