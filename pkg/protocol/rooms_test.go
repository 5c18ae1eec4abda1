package protocol_test

import (
	"testing"

	"chatrelay/pkg/protocol"
)

func TestDirectRoomSymmetry(t *testing.T) {
	pairs := [][2]int64{
		{1, 2},
		{2, 1},
		{7, 7},
		{42, 3},
		{1000000, 999999},
	}
	for _, p := range pairs {
		forward := protocol.DirectRoom(p[0], p[1])
		backward := protocol.DirectRoom(p[1], p[0])
		if forward != backward {
			t.Errorf("DirectRoom(%d, %d) = %q but DirectRoom(%d, %d) = %q", p[0], p[1], forward, p[1], p[0], backward)
		}
	}
}

func TestDirectRoomSortsAscending(t *testing.T) {
	if got := protocol.DirectRoom(9, 2); got != "2-9" {
		t.Errorf("expected key 2-9, got %q", got)
	}
	if got := protocol.DirectRoom(2, 9); got != "2-9" {
		t.Errorf("expected key 2-9, got %q", got)
	}
}

func TestGroupRoomNamespacing(t *testing.T) {
	if got := protocol.GroupRoom(5); got != "group-5" {
		t.Errorf("expected group-5, got %q", got)
	}
	// A group id can never collide with a personal room key.
	if protocol.GroupRoom(5) == protocol.PersonalRoom("5") {
		t.Error("group room key collided with personal room key")
	}
	if !protocol.IsGroupRoom("group-5") {
		t.Error("expected group-5 to be recognized as a group room")
	}
	if protocol.IsGroupRoom("5") {
		t.Error("personal room key misidentified as a group room")
	}
}

func TestNormalizeJoinTarget(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		isNumber bool
		want     string
	}{
		{"pair key string", "1-2", false, "1-2"},
		{"personal id string", "7", false, "7"},
		{"prefixed group key string", "group-3", false, "group-3"},
		{"bare numeric group id", "5", true, "group-5"},
		{"empty payload", "", false, ""},
		{"whitespace payload", "   ", false, ""},
		{"non-integer number", "x", true, ""},
	}
	for _, tc := range cases {
		if got := protocol.NormalizeJoinTarget(tc.raw, tc.isNumber); got != tc.want {
			t.Errorf("%s: NormalizeJoinTarget(%q, %v) = %q, want %q", tc.name, tc.raw, tc.isNumber, got, tc.want)
		}
	}
}
