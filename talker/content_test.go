// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker

import "testing"

func TestEscapeContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"markup", `if a < b && b > c say "ok"`, "if a &lt; b &amp;&amp; b &gt; c say &quot;ok&quot;"},
		{"newline", "one\ntwo", "one<br/>two"},
		{"crlf", "one\r\ntwo", "one<br/>two"},
		{"bare cr", "one\rtwo", "one<br/>two"},
		{"angle then newline", "a<b\nc", "a&lt;b<br/>c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeContent(tt.in); got != tt.want {
				t.Errorf("escapeContent(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnescapeContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"entities", "a &lt;tag&gt; &quot;quoted&quot; &amp; more", `a <tag> "quoted" & more`},
		{"uppercase entities", "&LT;&GT;&AMP;&QUOT;", `<>&"`},
		{"line break", "one<br/>two", "one\ntwo"},
		{"unknown entity passes through", "fish &chips;", "fish &chips;"},
		{"double-escaped decodes once", "&amp;lt;", "&lt;"},
		{"lone ampersand", "this & that", "this & that"},
		{"partial marker", "a<br", "a<br"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unescapeContent(tt.in); got != tt.want {
				t.Errorf("unescapeContent(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestContentRoundTrip(t *testing.T) {
	inputs := []string{
		"plain text",
		"a < b > c & d \" e",
		"line one\nline two\nline three",
		"mixed <tags> on\nseparate \"lines\"",
	}
	for _, in := range inputs {
		// CR variants collapse to \n on the way back, so round-trip is
		// asserted on newline-normalized input only.
		if got := unescapeContent(escapeContent(in)); got != in {
			t.Errorf("round trip of %q = %q", in, got)
		}
	}
}
