package domain

import (
	"time"
)

type RoomID string
type UserID string
type DeviceID string
type TrackID string
type AckID string

// RoomLifecycle is the coarse state of a room. Mutating commands are only
// admitted while the room is Ready.
type RoomLifecycle string

const (
	RoomCreationPending RoomLifecycle = "creation_pending"
	RoomReady           RoomLifecycle = "ready"
	RoomClosed          RoomLifecycle = "closed"
)

// PlayingMode decides who may issue transport commands.
type PlayingMode string

const (
	// PlayingModeDirect lets any eligible participant drive playback.
	PlayingModeDirect PlayingMode = "direct"
	// PlayingModeBroadcast restricts playback control to the creator and the
	// current delegation owner.
	PlayingModeBroadcast PlayingMode = "broadcast"
)

// ConstraintConfig is the room's vote-eligibility configuration. The time
// window flag is recomputed periodically; the position fix per participant is
// fed by an external location source.
type ConstraintConfig struct {
	HasTimeAndPositionConstraints bool          `json:"hasTimeAndPositionConstraints"`
	StartsAt                      time.Time     `json:"startsAt"`
	EndsAt                        time.Time     `json:"endsAt"`
	GeofenceLat                   float64       `json:"geofenceLat"`
	GeofenceLng                   float64       `json:"geofenceLng"`
	GeofenceRadiusMeters          float64       `json:"geofenceRadiusMeters"`
	RecheckInterval               time.Duration `json:"-"`
}

// TimeConstraintValid evaluates the configured window at the given instant.
func (c ConstraintConfig) TimeConstraintValid(now time.Time) bool {
	if !c.HasTimeAndPositionConstraints {
		return true
	}
	return !now.Before(c.StartsAt) && now.Before(c.EndsAt)
}

// RoomOptions is everything a creator decides at CREATE_ROOM time.
type RoomOptions struct {
	Name                           string           `json:"name"`
	IsOpen                         bool             `json:"isOpen"`
	IsOpenOnlyInvitedUsersCanVote  bool             `json:"isOpenOnlyInvitedUsersCanVote"`
	PlayingMode                    PlayingMode      `json:"playingMode"`
	MinimumScoreToBePlayed         int              `json:"minimumScoreToBePlayed"`
	HasPhysicalAndTimeConstraints  bool             `json:"hasPhysicalAndTimeConstraints"`
	Constraints                    ConstraintConfig `json:"constraints"`
	InitialTracks                  []TrackMetadata  `json:"initialTracks"`
	InvitedUserIDs                 []UserID         `json:"invitedUserIds"`
}
