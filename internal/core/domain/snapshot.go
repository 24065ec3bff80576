package domain

import "time"

// RoomSnapshot is the full serialized room state pushed to every connected
// device on every commit. Clients never receive diffs: a mirror that missed
// an intermediate update converges on the next snapshot.
type RoomSnapshot struct {
	RoomID                        RoomID          `json:"roomId"`
	Name                          string          `json:"name"`
	Lifecycle                     RoomLifecycle   `json:"lifecycle"`
	CreatorUserID                 UserID          `json:"creatorUserId"`
	IsOpen                        bool            `json:"isOpen"`
	IsOpenOnlyInvitedUsersCanVote bool            `json:"isOpenOnlyInvitedUsersCanVote"`
	PlayingMode                   PlayingMode     `json:"playingMode"`
	MinimumScoreToBePlayed        int             `json:"minimumScoreToBePlayed"`
	DelegationOwnerUserID         *UserID         `json:"delegationOwnerUserId"`
	TimeConstraintIsValid         bool            `json:"timeConstraintIsValid"`
	Playing                       bool            `json:"playing"`
	CurrentTrack                  *CurrentTrack   `json:"currentTrack"`
	Tracks                        []TrackEntry    `json:"tracks"`
	Participants                  []Participant   `json:"participants"`
	Devices                       []DeviceSession `json:"devices"`
	UsersLength                   int             `json:"usersLength"`
	Version                       uint64          `json:"version"`
	TakenAt                       time.Time       `json:"takenAt"`
}

// RoomSummary is the read-only projection consumed by the room directory.
type RoomSummary struct {
	RoomID      RoomID    `json:"roomId"`
	Name        string    `json:"name"`
	CreatorName string    `json:"creatorName"`
	IsOpen      bool      `json:"isOpen"`
	UsersLength int       `json:"usersLength"`
	InvitedIDs  []UserID  `json:"-"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsInvited reports whether the requesting user holds an invitation.
func (s RoomSummary) IsInvited(userID UserID) bool {
	for _, id := range s.InvitedIDs {
		if id == userID {
			return true
		}
	}
	return false
}
