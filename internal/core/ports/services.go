package ports

import (
	"context"

	"jamroom/internal/core/domain"
)

// RoomService is the public surface of the room orchestration engine. Every
// call is routed to the owning room actor and executed in that actor's turn;
// calls for distinct rooms proceed in parallel.
type RoomService interface {
	CreateRoom(ctx context.Context, creator domain.UserID, nickname string, deviceID domain.DeviceID, opts domain.RoomOptions) (domain.RoomSnapshot, error)
	JoinRoom(ctx context.Context, roomID domain.RoomID, userID domain.UserID, nickname string, deviceID domain.DeviceID) (domain.RoomSnapshot, error)
	LeaveRoom(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error
	CloseRoom(ctx context.Context, roomID domain.RoomID, requester domain.UserID) error

	Play(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error
	Pause(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error
	SkipToNext(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error

	SuggestTrack(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID, track domain.TrackMetadata) error
	VoteForTrack(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID, trackID domain.TrackID) error

	ChangeDelegationOwner(ctx context.Context, roomID domain.RoomID, requester, newOwner domain.UserID) error
	UpdateControlAndDelegationPermission(ctx context.Context, roomID domain.RoomID, requester, target domain.UserID, grant bool) error

	PromoteDevice(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error
	UnregisterDevice(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error

	GetContext(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (domain.RoomSnapshot, error)
	UpdateUserPosition(ctx context.Context, roomID domain.RoomID, userID domain.UserID, fits domain.PositionFix) error
	SendChatMessage(ctx context.Context, roomID domain.RoomID, userID domain.UserID, text string) error

	AcknowledgeExternalEvent(ctx context.Context, roomID domain.RoomID, ackID domain.AckID, ok bool) error
	UpdateUsersLength(ctx context.Context, roomID domain.RoomID, length int) error
	UpdateTimeConstraint(ctx context.Context, roomID domain.RoomID, valid bool) error
}

// BackendEventKind enumerates the events forwarded to the external
// playback-driving backend.
type BackendEventKind string

const (
	BackendRoomCreated       BackendEventKind = "room_created"
	BackendRoomClosed        BackendEventKind = "room_closed"
	BackendUserJoined        BackendEventKind = "user_joined"
	BackendUserLeft          BackendEventKind = "user_left"
	BackendPlay              BackendEventKind = "play"
	BackendPause             BackendEventKind = "pause"
	BackendSkippedToNext     BackendEventKind = "skipped_to_next"
	BackendTrackSuggested    BackendEventKind = "track_suggested"
	BackendTrackVoted        BackendEventKind = "track_voted"
	BackendDelegationChanged BackendEventKind = "delegation_changed"
	BackendPermissionChanged BackendEventKind = "permission_changed"
)

// BackendEvent carries enough identifying data for the backend to resolve
// exactly one pending command when it acknowledges.
type BackendEvent struct {
	Kind     BackendEventKind `json:"kind"`
	AckID    domain.AckID     `json:"ackId"`
	RoomID   domain.RoomID    `json:"roomId"`
	UserID   domain.UserID    `json:"userId,omitempty"`
	DeviceID domain.DeviceID  `json:"deviceId,omitempty"`
	TrackID  domain.TrackID   `json:"trackId,omitempty"`
}

// PlaybackBackend sends events to the external backend that drives timed
// playback. Acknowledgements arrive asynchronously through the callback HTTP
// surface and are routed back via RoomService.AcknowledgeExternalEvent.
type PlaybackBackend interface {
	Send(ctx context.Context, event BackendEvent) error
}

// Broadcaster pushes engine output to connected devices. Implemented by the
// websocket gateway; the engine decides which devices receive what.
type Broadcaster interface {
	PushSnapshot(deviceID domain.DeviceID, snapshot domain.RoomSnapshot)
	PushChatMessage(deviceID domain.DeviceID, message domain.ChatMessage)
	PushChatHistory(deviceID domain.DeviceID, messages []domain.ChatMessage)
	ForceDisconnect(deviceID domain.DeviceID)
}

// Metrics is the engine-facing slice of the monitoring collector.
type Metrics interface {
	RoomOpened()
	RoomClosed()
	ParticipantJoined(roomID domain.RoomID)
	ParticipantLeft(roomID domain.RoomID)
	CommandProcessed(kind string, outcome string)
	AckLatencySeconds(seconds float64)
	RollbackRecorded(roomID domain.RoomID)
	SnapshotBroadcast(devices int)
}
