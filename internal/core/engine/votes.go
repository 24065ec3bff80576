package engine

import (
	"sort"
	"time"

	"jamroom/internal/core/domain"
)

// Vote ledger and queue ranker. All functions run inside the owning actor's
// turn and mutate roomState directly.

// suggestTrack appends a new entry with score 0 and the next insertion
// sequence number.
func (st *roomState) suggestTrack(user domain.UserID, meta domain.TrackMetadata, now time.Time) error {
	if st.trackKnown(meta.ID) {
		return domain.ErrDuplicateTrack
	}
	st.nextSeq++
	st.queue = append(st.queue, domain.TrackEntry{
		TrackMetadata: meta,
		Score:         0,
		Seq:           st.nextSeq,
		SuggestedBy:   user,
		SuggestedAt:   now,
	})
	st.rankQueue()
	return nil
}

// voteForTrack enforces one vote per user per track, then bumps the score and
// re-ranks. Eligibility is checked by the caller before the ledger mutates.
func (st *roomState) voteForTrack(user domain.UserID, trackID domain.TrackID, now time.Time) error {
	p, ok := st.participants[user]
	if !ok {
		return domain.ErrUserNotFound
	}
	if p.HasVotedFor(trackID) {
		return domain.ErrAlreadyVoted
	}
	idx := st.queueIndex(trackID)
	if idx < 0 {
		return domain.ErrTrackNotFound
	}
	st.queue[idx].Score++
	p.TracksVotedFor[trackID] = struct{}{}
	st.rankQueue()
	st.maybePromote(now)
	return nil
}

// rankQueue re-sorts by descending score, ties broken by ascending insertion
// sequence. Deterministic: two states with the same scores and sequences rank
// identically.
func (st *roomState) rankQueue() {
	sort.SliceStable(st.queue, func(i, j int) bool {
		if st.queue[i].Score != st.queue[j].Score {
			return st.queue[i].Score > st.queue[j].Score
		}
		return st.queue[i].Seq < st.queue[j].Seq
	})
}

// maybePromote moves the head of the queue into the single current slot once
// its score reaches the room threshold and the slot is free. Promotion resets
// the elapsed offset and starts playback.
func (st *roomState) maybePromote(now time.Time) {
	if st.current != nil || len(st.queue) == 0 {
		return
	}
	head := st.queue[0]
	if head.Score < st.minScore {
		return
	}
	st.queue = st.queue[1:]
	st.current = &domain.CurrentTrack{
		TrackMetadata: head.TrackMetadata,
		Elapsed:       0,
		StartedAt:     now,
	}
	st.playing = true
}

// retireCurrent drops the playing track without restoring any votes, then
// re-evaluates promotion.
func (st *roomState) retireCurrent(now time.Time) {
	st.current = nil
	st.playing = false
	st.maybePromote(now)
}

func (st *roomState) trackKnown(id domain.TrackID) bool {
	if st.current != nil && st.current.ID == id {
		return true
	}
	return st.queueIndex(id) >= 0
}

func (st *roomState) queueIndex(id domain.TrackID) int {
	for i := range st.queue {
		if st.queue[i].ID == id {
			return i
		}
	}
	return -1
}
