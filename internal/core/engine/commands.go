package engine

import (
	"context"

	"jamroom/internal/core/domain"
)

// Every mutating operation on a room is one of these command variants. The
// set is closed: the actor's handle switch matches all of them and nothing
// else, replacing runtime "unreachable state" fallbacks with compile-time
// exhaustiveness.

type command interface {
	kind() string
}

type initRoomCmd struct {
	deviceID domain.DeviceID
}

type joinCmd struct {
	userID   domain.UserID
	nickname string
	deviceID domain.DeviceID
}

type leaveCmd struct {
	userID   domain.UserID
	deviceID domain.DeviceID
}

type closeCmd struct {
	requester domain.UserID
}

type playCmd struct {
	userID   domain.UserID
	deviceID domain.DeviceID
}

type pauseCmd struct {
	userID   domain.UserID
	deviceID domain.DeviceID
}

type skipCmd struct {
	userID   domain.UserID
	deviceID domain.DeviceID
}

type suggestCmd struct {
	userID   domain.UserID
	deviceID domain.DeviceID
	track    domain.TrackMetadata
}

type voteCmd struct {
	userID   domain.UserID
	deviceID domain.DeviceID
	trackID  domain.TrackID
}

type delegationCmd struct {
	requester domain.UserID
	newOwner  domain.UserID
}

type permissionCmd struct {
	requester domain.UserID
	target    domain.UserID
	grant     bool
}

type promoteDeviceCmd struct {
	userID   domain.UserID
	deviceID domain.DeviceID
}

type unregisterDeviceCmd struct {
	userID   domain.UserID
	deviceID domain.DeviceID
}

type getContextCmd struct {
	userID domain.UserID
}

type positionCmd struct {
	userID domain.UserID
	fits   domain.PositionFix
}

type chatCmd struct {
	userID domain.UserID
	text   string
}

type usersLengthCmd struct {
	length int
}

type timeConstraintCmd struct {
	valid bool
}

func (initRoomCmd) kind() string         { return "create_room" }
func (joinCmd) kind() string             { return "join_room" }
func (leaveCmd) kind() string            { return "leave_room" }
func (closeCmd) kind() string            { return "close_room" }
func (playCmd) kind() string             { return "play" }
func (pauseCmd) kind() string            { return "pause" }
func (skipCmd) kind() string             { return "skip_to_next" }
func (suggestCmd) kind() string          { return "suggest_track" }
func (voteCmd) kind() string             { return "vote_for_track" }
func (delegationCmd) kind() string       { return "change_delegation_owner" }
func (permissionCmd) kind() string       { return "update_permission" }
func (promoteDeviceCmd) kind() string    { return "promote_device" }
func (unregisterDeviceCmd) kind() string { return "unregister_device" }
func (getContextCmd) kind() string       { return "get_context" }
func (positionCmd) kind() string         { return "update_position" }
func (chatCmd) kind() string             { return "chat_message" }
func (usersLengthCmd) kind() string      { return "users_length_update" }
func (timeConstraintCmd) kind() string   { return "time_constraint_update" }

type reply struct {
	snapshot domain.RoomSnapshot
	err      error
}

type envelope struct {
	ctx   context.Context
	cmd   command
	reply chan reply
}

type ackResult struct {
	id domain.AckID
	ok bool
}
