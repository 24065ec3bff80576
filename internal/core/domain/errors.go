package domain

import "errors"

var (
	ErrRoomNotReady        = errors.New("room is not ready")
	ErrRoomClosed          = errors.New("room is closed")
	ErrRoomNotFound        = errors.New("room not found")
	ErrUserNotFound        = errors.New("user not found in room")
	ErrTrackNotFound       = errors.New("track not found")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrForbidden           = errors.New("operation not permitted")
	ErrIneligible          = errors.New("user is not eligible")
	ErrAlreadyVoted        = errors.New("user already voted for track")
	ErrDuplicateTrack      = errors.New("track already queued or playing")
	ErrInvalidDelegate     = errors.New("delegate lacks control and delegation permission")
	ErrBackendUnresponsive = errors.New("playback backend did not acknowledge")
)
