package domain

import "time"

// PositionFix is the tri-state result of the external geofence check for a
// participant. Unknown fails constraint gating (fail-closed).
type PositionFix int

const (
	PositionUnknown PositionFix = iota
	PositionInside
	PositionOutside
)

// Participant is one user inside a room, across all of their devices.
type Participant struct {
	UserID                            UserID              `json:"userId"`
	Nickname                          string              `json:"nickname"`
	HasControlAndDelegationPermission bool                `json:"hasControlAndDelegationPermission"`
	UserHasBeenInvited                bool                `json:"userHasBeenInvited"`
	UserFitsPositionConstraint        PositionFix         `json:"userFitsPositionConstraint"`
	TracksVotedFor                    map[TrackID]struct{} `json:"-"`
	JoinedAt                          time.Time           `json:"joinedAt"`
}

// HasVotedFor reports whether the participant already spent their vote on the
// track.
func (p *Participant) HasVotedFor(id TrackID) bool {
	_, ok := p.TracksVotedFor[id]
	return ok
}

// DeviceRole distinguishes the single command-originating device of a user
// from its read-only mirrors.
type DeviceRole string

const (
	DeviceEmitter DeviceRole = "emitter"
	DeviceMirror  DeviceRole = "mirror"
)

// DeviceSession is one connected device of a participant.
type DeviceSession struct {
	DeviceID    DeviceID   `json:"deviceId"`
	UserID      UserID     `json:"userId"`
	Role        DeviceRole `json:"role"`
	ConnectedAt time.Time  `json:"connectedAt"`
}
