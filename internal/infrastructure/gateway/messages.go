package gateway

import (
	"encoding/json"

	"jamroom/internal/core/domain"
)

// Inbound message types.
const (
	MsgCreateRoom           = "CREATE_ROOM"
	MsgJoinRoom             = "JOIN_ROOM"
	MsgLeaveRoom            = "LEAVE_ROOM"
	MsgActionPlay           = "ACTION_PLAY"
	MsgActionPause          = "ACTION_PAUSE"
	MsgGoToNextTrack        = "GO_TO_NEXT_TRACK"
	MsgSuggestTrack         = "SUGGEST_TRACK"
	MsgVoteForTrack         = "VOTE_FOR_TRACK"
	MsgGetContext           = "GET_CONTEXT"
	MsgChangeEmittingDevice = "CHANGE_EMITTING_DEVICE"
	MsgChangeDelegation     = "CHANGE_DELEGATION_OWNER"
	MsgUpdatePermission     = "UPDATE_CONTROL_AND_DELEGATION_PERMISSION"
	MsgUpdatePosition       = "UPDATE_DEVICE_POSITION"
	MsgNewMessage           = "NEW_MESSAGE"
)

// Outbound message types.
const (
	MsgRetrieveContext     = "RETRIEVE_CONTEXT"
	MsgCreateRoomCallback  = "CREATE_ROOM_CALLBACK"
	MsgJoinRoomCallback    = "JOIN_ROOM_CALLBACK"
	MsgActionPlayCallback  = "ACTION_PLAY_CALLBACK"
	MsgActionPauseCallback = "ACTION_PAUSE_CALLBACK"
	MsgForcedDisconnection = "FORCED_DISCONNECTION"
	MsgReceivedMessage     = "RECEIVED_MESSAGE"
	MsgLoadMessages        = "LOAD_MESSAGES"
	MsgError               = "ERROR"
)

// ClientMessage is the envelope of every inbound gateway frame.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is the envelope of every outbound gateway frame.
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type CreateRoomPayload struct {
	Nickname string             `json:"nickname"`
	Options  domain.RoomOptions `json:"options"`
}

type JoinRoomPayload struct {
	RoomID   domain.RoomID `json:"roomId"`
	Nickname string        `json:"nickname"`
}

type SuggestTrackPayload struct {
	Track domain.TrackMetadata `json:"track"`
}

type VoteForTrackPayload struct {
	TrackID domain.TrackID `json:"trackId"`
}

type ChangeEmittingDevicePayload struct {
	DeviceID domain.DeviceID `json:"deviceId"`
}

type ChangeDelegationPayload struct {
	NewOwnerUserID domain.UserID `json:"newOwnerUserId"`
}

type UpdatePermissionPayload struct {
	TargetUserID                      domain.UserID `json:"targetUserId"`
	HasControlAndDelegationPermission bool          `json:"hasControlAndDelegationPermission"`
}

type UpdatePositionPayload struct {
	FitsPositionConstraint bool `json:"fitsPositionConstraint"`
}

type NewMessagePayload struct {
	Text string `json:"text"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
