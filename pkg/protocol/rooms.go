package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Room keys are never persisted and never collide across kinds: group rooms
// carry a literal prefix, direct rooms always contain a separator, and
// personal rooms are a bare user id.
const groupRoomPrefix = "group-"

// DirectRoom derives the key for a two-party conversation. Both participants
// compute the same key regardless of who initiates: the lower id sorts first.
func DirectRoom(userA, userB int64) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d-%d", userA, userB)
}

// PersonalRoom derives the key of a user's personal inbox room, used for
// call signaling and cross-device notification independent of any open
// conversation.
func PersonalRoom(userID string) string {
	return userID
}

// GroupRoom derives the key for a group conversation.
func GroupRoom(groupID int64) string {
	return groupRoomPrefix + strconv.FormatInt(groupID, 10)
}

// IsGroupRoom reports whether a key addresses a group room.
func IsGroupRoom(key string) bool {
	return strings.HasPrefix(key, groupRoomPrefix)
}

// NormalizeJoinTarget maps a join_chat payload onto a room key. Clients send
// either a pre-computed key (pair key, personal id, or group- key) as a JSON
// string, or a bare numeric group id; the latter is pulled into the group
// namespace so a group id can never collide with a user id.
func NormalizeJoinTarget(raw string, isNumber bool) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if isNumber {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ""
		}
		return GroupRoom(id)
	}
	return raw
}
