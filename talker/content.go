// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker

import "strings"

// The wire carries message bodies HTML-escaped, with line breaks as a
// literal <br/> marker. The substitution table is fixed by the
// protocol: entities are matched case-insensitively on the way in,
// the break marker case-sensitively.

// escapeContent prepares outbound message text for the wire.
// Escaping runs before break substitution so the markup survives.
func escapeContent(text string) string {
	text = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	).Replace(text)
	return strings.NewReplacer(
		"\r\n", "<br/>",
		"\n", "<br/>",
		"\r", "<br/>",
	).Replace(text)
}

// entity is one inbound substitution. &amp; is listed like the others;
// the single left-to-right pass makes "&amp;lt;" decode to the literal
// "&lt;" rather than cascading.
var entities = []struct {
	name    string
	literal byte
}{
	{"&lt;", '<'},
	{"&gt;", '>'},
	{"&quot;", '"'},
	{"&amp;", '&'},
}

// unescapeContent decodes a received message body to display text.
func unescapeContent(content string) string {
	if !strings.ContainsAny(content, "&<") {
		return content
	}

	var b strings.Builder
	b.Grow(len(content))
	for i := 0; i < len(content); {
		switch content[i] {
		case '&':
			if n, literal, ok := matchEntity(content[i:]); ok {
				b.WriteByte(literal)
				i += n
				continue
			}
		case '<':
			if len(content)-i >= 5 && content[i:i+5] == "<br/>" {
				b.WriteByte('\n')
				i += 5
				continue
			}
		}
		b.WriteByte(content[i])
		i++
	}
	return b.String()
}

// matchEntity reports whether s begins with a known entity, ignoring
// case, returning the matched length and its literal replacement.
func matchEntity(s string) (int, byte, bool) {
	for _, e := range entities {
		if len(s) >= len(e.name) && strings.EqualFold(s[:len(e.name)], e.name) {
			return len(e.name), e.literal, true
		}
	}
	return 0, 0, false
}
