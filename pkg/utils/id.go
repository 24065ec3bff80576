package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateRoomID generates a unique room ID.
func GenerateRoomID() string {
	return GenerateID("room")
}

// GenerateDeviceID generates a unique device ID.
func GenerateDeviceID() string {
	return GenerateID("device")
}

// GenerateAckID generates the correlation ID for one backend round trip.
func GenerateAckID() string {
	return GenerateID("ack")
}

// GenerateRequestID generates a unique request ID.
func GenerateRequestID() string {
	return GenerateID("req")
}

// GenerateID generates a random ID with prefix.
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
