// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker

import "testing"

func TestRosterMergeSequence(t *testing.T) {
	roster := NewRoster()
	roster.Replace([]WireUser{
		{ID: 1, Name: "ada"},
		{ID: 2, Name: "brian"},
		{ID: 3, Name: "cleo"},
	})

	if removed := roster.Remove(2); removed == nil || removed.Name != "brian" {
		t.Fatalf("Remove(2) = %v", removed)
	}
	if roster.Len() != 2 {
		t.Fatalf("after leave, len = %d, want 2", roster.Len())
	}

	if _, added := roster.AddOrGet(WireUser{ID: 4, Name: "dana"}); !added {
		t.Fatal("join of a new user did not add an entry")
	}

	ids := map[int]bool{}
	for _, user := range roster.Users() {
		if ids[user.ID] {
			t.Fatalf("duplicate id %d in roster", user.ID)
		}
		ids[user.ID] = true
	}
	for _, want := range []int{1, 3, 4} {
		if !ids[want] {
			t.Errorf("id %d missing from roster", want)
		}
	}
}

func TestRosterAddOrGetDedup(t *testing.T) {
	roster := NewRoster()
	first, added := roster.AddOrGet(WireUser{ID: 7, Name: "  eve  ", Email: " eve@example.com "})
	if !added {
		t.Fatal("first AddOrGet did not add")
	}
	if first.Name != "eve" || first.Email != "eve@example.com" {
		t.Errorf("fields not trimmed: %+v", first)
	}

	second, added := roster.AddOrGet(WireUser{ID: 7, Name: "someone else"})
	if added {
		t.Fatal("second AddOrGet added a duplicate")
	}
	if second != first {
		t.Error("AddOrGet returned a different entry for the same id")
	}
}

func TestRosterReplaceDiscardsOld(t *testing.T) {
	roster := NewRoster()
	roster.Replace([]WireUser{{ID: 1, Name: "ada"}})
	roster.Replace([]WireUser{{ID: 2, Name: "brian"}, {ID: 2, Name: "brian dup"}})

	if roster.Len() != 1 {
		t.Fatalf("len = %d, want 1", roster.Len())
	}
	if roster.Get(1) != nil {
		t.Error("stale entry survived Replace")
	}
	if entry := roster.Get(2); entry == nil || entry.Name != "brian" {
		t.Errorf("Get(2) = %v, want first occurrence kept", entry)
	}
}

func TestRosterUsersOrdering(t *testing.T) {
	roster := NewRoster()
	roster.Replace([]WireUser{
		{ID: 3, Name: "zed"},
		{ID: 2, Name: "ada"},
		{ID: 1, Name: "zed"},
	})

	users := roster.Users()
	if len(users) != 3 {
		t.Fatalf("len = %d", len(users))
	}
	if users[0].Name != "ada" || users[1].ID != 1 || users[2].ID != 3 {
		got := make([]int, len(users))
		for i, u := range users {
			got[i] = u.ID
		}
		t.Errorf("order = %v, want name order with id tiebreak", got)
	}
}

func TestRosterUnknownIDs(t *testing.T) {
	roster := NewRoster()
	if roster.Remove(99) != nil {
		t.Error("Remove of unknown id returned an entry")
	}
	if roster.SetIdle(99, true) != nil {
		t.Error("SetIdle of unknown id returned an entry")
	}
}

func TestAvatarURL(t *testing.T) {
	user := &RoomUser{Email: "eve@example.com"}
	// md5("eve@example.com")
	want := "http://www.gravatar.com/avatar/e089b1dea78f4691fbb9da701cf143db?s=48&d=wavatar"
	if got := user.AvatarURL(48, "wavatar"); got != want {
		t.Errorf("AvatarURL = %q, want %q", got, want)
	}
}
