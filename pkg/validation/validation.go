package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// RoomIDRegex validates room ID format.
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// TrackIDRegex validates track ID format.
	TrackIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRoomName validates a room name.
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	if utf8.RuneCountInString(name) < 3 {
		return fmt.Errorf("room name must be at least 3 characters")
	}
	if utf8.RuneCountInString(name) > 100 {
		return fmt.Errorf("room name is too long (max 100 characters)")
	}
	return nil
}

// ValidateNickname validates a participant nickname.
func ValidateNickname(nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return fmt.Errorf("nickname is required")
	}
	if utf8.RuneCountInString(nickname) > 50 {
		return fmt.Errorf("nickname is too long (max 50 characters)")
	}
	return nil
}

// ValidateRoomID validates a room ID.
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(roomID) > 100 {
		return fmt.Errorf("room ID is too long (max 100 characters)")
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room ID format")
	}
	return nil
}

// ValidateTrackID validates a track ID.
func ValidateTrackID(trackID string) error {
	if trackID == "" {
		return fmt.Errorf("track ID is required")
	}
	if len(trackID) > 100 {
		return fmt.Errorf("track ID is too long (max 100 characters)")
	}
	if !TrackIDRegex.MatchString(trackID) {
		return fmt.Errorf("invalid track ID format")
	}
	return nil
}

// ValidateChatMessage validates one chat message body.
func ValidateChatMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message text is required")
	}
	if utf8.RuneCountInString(text) > 1000 {
		return fmt.Errorf("message is too long (max 1000 characters)")
	}
	return nil
}

// ValidateMinimumScore validates the promotion threshold of a room.
func ValidateMinimumScore(score int) error {
	if score < 1 {
		return fmt.Errorf("minimum score must be >= 1")
	}
	if score > 1000 {
		return fmt.Errorf("minimum score is too large (max 1000)")
	}
	return nil
}
