package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jamroom/internal/core/domain"
)

func testState(t *testing.T, opts domain.RoomOptions) *roomState {
	t.Helper()
	return newRoomState("room_test", "creator", "Creator", opts, time.Unix(1000, 0))
}

func TestRankQueueScoreDescSeqAsc(t *testing.T) {
	st := testState(t, domain.RoomOptions{IsOpen: true, MinimumScoreToBePlayed: 10})
	now := time.Unix(1001, 0)

	for _, id := range []domain.TrackID{"a", "b", "c"} {
		require.NoError(t, st.suggestTrack("creator", domain.TrackMetadata{ID: id}, now))
	}
	st.participants["u2"] = &domain.Participant{
		UserID:         "u2",
		TracksVotedFor: make(map[domain.TrackID]struct{}),
	}

	require.NoError(t, st.voteForTrack("creator", "b", now))
	require.NoError(t, st.voteForTrack("creator", "c", now))
	require.NoError(t, st.voteForTrack("u2", "c", now))

	// c has two votes, b one; a and untied entries keep insertion order.
	ids := make([]domain.TrackID, len(st.queue))
	for i, e := range st.queue {
		ids[i] = e.ID
	}
	assert.Equal(t, []domain.TrackID{"c", "b", "a"}, ids)

	// Equal scores rank by insertion sequence, earliest first.
	require.NoError(t, st.voteForTrack("u2", "b", now))
	ids = ids[:0]
	for _, e := range st.queue {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []domain.TrackID{"b", "c", "a"}, ids)
}

func TestMaybePromoteNeedsThresholdAndFreeSlot(t *testing.T) {
	st := testState(t, domain.RoomOptions{IsOpen: true, MinimumScoreToBePlayed: 2})
	now := time.Unix(1001, 0)

	require.NoError(t, st.suggestTrack("creator", domain.TrackMetadata{ID: "a"}, now))
	require.NoError(t, st.voteForTrack("creator", "a", now))
	assert.Nil(t, st.current, "one vote is below the threshold")

	st.participants["u2"] = &domain.Participant{
		UserID:         "u2",
		TracksVotedFor: make(map[domain.TrackID]struct{}),
	}
	require.NoError(t, st.voteForTrack("u2", "a", now))
	require.NotNil(t, st.current)
	assert.Equal(t, domain.TrackID("a"), st.current.ID)
	assert.Equal(t, time.Duration(0), st.current.Elapsed)
	assert.True(t, st.playing)
	assert.Empty(t, st.queue)

	// Occupied slot blocks further promotion even above the threshold.
	require.NoError(t, st.suggestTrack("creator", domain.TrackMetadata{ID: "b"}, now))
	require.NoError(t, st.voteForTrack("creator", "b", now))
	require.NoError(t, st.voteForTrack("u2", "b", now))
	assert.Equal(t, domain.TrackID("a"), st.current.ID)
	require.Len(t, st.queue, 1)

	st.retireCurrent(now)
	require.NotNil(t, st.current)
	assert.Equal(t, domain.TrackID("b"), st.current.ID)
}

func TestVoteForUnknownTrack(t *testing.T) {
	st := testState(t, domain.RoomOptions{IsOpen: true})
	err := st.voteForTrack("creator", "nope", time.Unix(1001, 0))
	assert.ErrorIs(t, err, domain.ErrTrackNotFound)
}

func TestSuggestRejectsCurrentTrack(t *testing.T) {
	st := testState(t, domain.RoomOptions{IsOpen: true, MinimumScoreToBePlayed: 1})
	now := time.Unix(1001, 0)

	require.NoError(t, st.suggestTrack("creator", domain.TrackMetadata{ID: "a"}, now))
	require.NoError(t, st.voteForTrack("creator", "a", now))
	require.NotNil(t, st.current)

	err := st.suggestTrack("creator", domain.TrackMetadata{ID: "a"}, now)
	assert.ErrorIs(t, err, domain.ErrDuplicateTrack)
}

func TestCloneIsolatesMutations(t *testing.T) {
	st := testState(t, domain.RoomOptions{IsOpen: true, MinimumScoreToBePlayed: 2})
	now := time.Unix(1001, 0)
	require.NoError(t, st.suggestTrack("creator", domain.TrackMetadata{ID: "a"}, now))

	prev := st.clone()
	require.NoError(t, st.voteForTrack("creator", "a", now))
	owner := domain.UserID("creator")
	st.delegationOwner = &owner
	st.appendChat(domain.ChatMessage{Author: "creator", Text: "hi", SentAt: now})

	assert.Equal(t, 0, prev.queue[0].Score)
	assert.False(t, prev.participants["creator"].HasVotedFor("a"))
	assert.Nil(t, prev.delegationOwner)
	assert.Empty(t, prev.chat)
}

func TestCanVoteGating(t *testing.T) {
	invited := &domain.Participant{UserHasBeenInvited: true, UserFitsPositionConstraint: domain.PositionInside}
	stranger := &domain.Participant{}

	assert.True(t, canVote(invited, roomGates{IsOpen: true}))
	assert.True(t, canVote(stranger, roomGates{IsOpen: true}))
	assert.False(t, canVote(stranger, roomGates{IsOpen: false}))
	assert.False(t, canVote(stranger, roomGates{IsOpen: true, OnlyInvited: true}))
	assert.True(t, canVote(invited, roomGates{IsOpen: true, OnlyInvited: true}))

	// Constraints require both a valid window and a confirmed position fix.
	assert.False(t, canVote(invited, roomGates{IsOpen: true, HasConstraints: true, TimeValid: false}))
	assert.True(t, canVote(invited, roomGates{IsOpen: true, HasConstraints: true, TimeValid: true}))
	outside := &domain.Participant{UserHasBeenInvited: true, UserFitsPositionConstraint: domain.PositionOutside}
	assert.False(t, canVote(outside, roomGates{IsOpen: true, HasConstraints: true, TimeValid: true}))
	unknown := &domain.Participant{UserHasBeenInvited: true}
	assert.False(t, canVote(unknown, roomGates{IsOpen: true, HasConstraints: true, TimeValid: true}))
}
