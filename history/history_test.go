// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package history

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, messagesPerRoom int) *Store {
	t.Helper()
	store, err := Open(Config{
		Path:            filepath.Join(t.TempDir(), "history.db"),
		MessagesPerRoom: messagesPerRoom,
		Logger:          slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	for i := range 3 {
		err := store.Append(ctx, Message{
			RoomID:  497,
			Sender:  "ada",
			Content: fmt.Sprintf("message %d", i),
			At:      base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// Another room's transcript must not bleed in.
	if err := store.Append(ctx, Message{RoomID: 512, Sender: "brian", Content: "elsewhere", At: base}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	messages, err := store.Recent(ctx, 497, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}
	for i, message := range messages {
		if want := fmt.Sprintf("message %d", i); message.Content != want {
			t.Errorf("message[%d] = %q, want %q (chronological order)", i, message.Content, want)
		}
	}
	if messages[0].At.Unix() != base.Unix() {
		t.Errorf("At = %v, want %v", messages[0].At, base)
	}
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	for i := range 5 {
		if err := store.Append(ctx, Message{RoomID: 1, Sender: "s", Content: fmt.Sprintf("m%d", i), At: time.Unix(int64(i), 0)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	messages, err := store.Recent(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "m3" || messages[1].Content != "m4" {
		t.Errorf("messages = %+v, want the newest two in order", messages)
	}
}

func TestPruneToCap(t *testing.T) {
	store := openTestStore(t, 3)
	ctx := context.Background()

	for i := range 10 {
		if err := store.Append(ctx, Message{RoomID: 1, Sender: "s", Content: fmt.Sprintf("m%d", i), At: time.Unix(int64(i), 0)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	messages, err := store.Recent(ctx, 1, 100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("got %d messages after pruning, want 3", len(messages))
	}
	if messages[0].Content != "m7" || messages[2].Content != "m9" {
		t.Errorf("retained = %+v, want the newest three", messages)
	}
}

func TestRecentEmptyRoom(t *testing.T) {
	store := openTestStore(t, 0)
	messages, err := store.Recent(context.Background(), 42, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("messages = %v, want none", messages)
	}
}
