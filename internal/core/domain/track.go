package domain

import "time"

// TrackMetadata is the client-supplied description of a track.
type TrackMetadata struct {
	ID         TrackID       `json:"id"`
	Title      string        `json:"title"`
	ArtistName string        `json:"artistName"`
	Duration   time.Duration `json:"duration"`
}

// TrackEntry is one queued suggestion. Seq is the insertion sequence number
// used as the tie-break: lower means suggested earlier.
type TrackEntry struct {
	TrackMetadata
	Score       int       `json:"score"`
	Seq         uint64    `json:"seq"`
	SuggestedBy UserID    `json:"suggestedBy"`
	SuggestedAt time.Time `json:"suggestedAt"`
}

// CurrentTrack is the track occupying the single playing slot of a room.
type CurrentTrack struct {
	TrackMetadata
	Elapsed   time.Duration `json:"elapsed"`
	StartedAt time.Time     `json:"startedAt"`
}
