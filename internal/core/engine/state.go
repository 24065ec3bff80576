package engine

import (
	"sort"
	"time"

	"jamroom/internal/core/domain"
)

// roomState is the authoritative in-memory state of one room. It is owned
// exclusively by the room's actor goroutine; nothing outside an actor turn
// may read or write it.
type roomState struct {
	id      domain.RoomID
	name    string
	creator domain.UserID

	lifecycle   domain.RoomLifecycle
	isOpen      bool
	onlyInvited bool
	playingMode domain.PlayingMode
	minScore    int

	delegationOwner *domain.UserID

	constraints    domain.ConstraintConfig
	timeConstraint bool

	playing bool
	current *domain.CurrentTrack
	queue   []domain.TrackEntry
	nextSeq uint64

	participants map[domain.UserID]*domain.Participant
	devices      map[domain.DeviceID]*domain.DeviceSession
	invited      map[domain.UserID]struct{}

	chat []domain.ChatMessage

	// usersLength mirrors the backend's authoritative participant count when
	// it differs from the local one (user-length-update callback).
	usersLength int

	version uint64
}

const chatHistoryLimit = 200

func newRoomState(id domain.RoomID, creator domain.UserID, nickname string, opts domain.RoomOptions, now time.Time) *roomState {
	st := &roomState{
		id:           id,
		name:         opts.Name,
		creator:      creator,
		lifecycle:    domain.RoomCreationPending,
		isOpen:       opts.IsOpen,
		onlyInvited:  opts.IsOpenOnlyInvitedUsersCanVote,
		playingMode:  opts.PlayingMode,
		minScore:     opts.MinimumScoreToBePlayed,
		constraints:  opts.Constraints,
		participants: make(map[domain.UserID]*domain.Participant),
		devices:      make(map[domain.DeviceID]*domain.DeviceSession),
		invited:      make(map[domain.UserID]struct{}),
	}
	if opts.HasPhysicalAndTimeConstraints {
		st.constraints.HasTimeAndPositionConstraints = true
	}
	st.timeConstraint = st.constraints.TimeConstraintValid(now)
	if st.playingMode == "" {
		st.playingMode = domain.PlayingModeBroadcast
	}
	if st.minScore < 1 {
		st.minScore = 1
	}

	st.participants[creator] = &domain.Participant{
		UserID:                            creator,
		Nickname:                          nickname,
		HasControlAndDelegationPermission: true,
		UserHasBeenInvited:                true,
		TracksVotedFor:                    make(map[domain.TrackID]struct{}),
		JoinedAt:                          now,
	}
	st.invited[creator] = struct{}{}
	for _, id := range opts.InvitedUserIDs {
		st.invited[id] = struct{}{}
	}
	st.usersLength = 1

	for _, meta := range opts.InitialTracks {
		st.nextSeq++
		st.queue = append(st.queue, domain.TrackEntry{
			TrackMetadata: meta,
			Score:         0,
			Seq:           st.nextSeq,
			SuggestedBy:   creator,
			SuggestedAt:   now,
		})
	}
	return st
}

// clone deep-copies everything a rollback needs to restore. Taken before the
// optimistic mutation of every acknowledged command.
func (st *roomState) clone() *roomState {
	cp := *st
	if st.delegationOwner != nil {
		owner := *st.delegationOwner
		cp.delegationOwner = &owner
	}
	if st.current != nil {
		cur := *st.current
		cp.current = &cur
	}
	cp.queue = make([]domain.TrackEntry, len(st.queue))
	copy(cp.queue, st.queue)
	cp.participants = make(map[domain.UserID]*domain.Participant, len(st.participants))
	for id, p := range st.participants {
		pc := *p
		pc.TracksVotedFor = make(map[domain.TrackID]struct{}, len(p.TracksVotedFor))
		for t := range p.TracksVotedFor {
			pc.TracksVotedFor[t] = struct{}{}
		}
		cp.participants[id] = &pc
	}
	cp.devices = make(map[domain.DeviceID]*domain.DeviceSession, len(st.devices))
	for id, d := range st.devices {
		dc := *d
		cp.devices[id] = &dc
	}
	cp.invited = make(map[domain.UserID]struct{}, len(st.invited))
	for id := range st.invited {
		cp.invited[id] = struct{}{}
	}
	cp.chat = make([]domain.ChatMessage, len(st.chat))
	copy(cp.chat, st.chat)
	return &cp
}

// snapshot serializes the full room state. Slices are ordered
// deterministically so consecutive snapshots are comparable.
func (st *roomState) snapshot(now time.Time) domain.RoomSnapshot {
	snap := domain.RoomSnapshot{
		RoomID:                        st.id,
		Name:                          st.name,
		Lifecycle:                     st.lifecycle,
		CreatorUserID:                 st.creator,
		IsOpen:                        st.isOpen,
		IsOpenOnlyInvitedUsersCanVote: st.onlyInvited,
		PlayingMode:                   st.playingMode,
		MinimumScoreToBePlayed:        st.minScore,
		TimeConstraintIsValid:         st.timeConstraint,
		Playing:                       st.playing,
		UsersLength:                   st.usersLength,
		Version:                       st.version,
		TakenAt:                       now,
	}
	if st.delegationOwner != nil {
		owner := *st.delegationOwner
		snap.DelegationOwnerUserID = &owner
	}
	if st.current != nil {
		cur := *st.current
		if st.playing {
			cur.Elapsed += now.Sub(cur.StartedAt)
		}
		snap.CurrentTrack = &cur
	}
	snap.Tracks = make([]domain.TrackEntry, len(st.queue))
	copy(snap.Tracks, st.queue)

	snap.Participants = make([]domain.Participant, 0, len(st.participants))
	for _, p := range st.participants {
		pc := *p
		pc.TracksVotedFor = nil
		snap.Participants = append(snap.Participants, pc)
	}
	sort.Slice(snap.Participants, func(i, j int) bool {
		return snap.Participants[i].UserID < snap.Participants[j].UserID
	})

	snap.Devices = make([]domain.DeviceSession, 0, len(st.devices))
	for _, d := range st.devices {
		snap.Devices = append(snap.Devices, *d)
	}
	sort.Slice(snap.Devices, func(i, j int) bool {
		return snap.Devices[i].DeviceID < snap.Devices[j].DeviceID
	})
	return snap
}

// summary derives the directory projection.
func (st *roomState) summary(now time.Time) domain.RoomSummary {
	creatorName := string(st.creator)
	if p, ok := st.participants[st.creator]; ok && p.Nickname != "" {
		creatorName = p.Nickname
	}
	invited := make([]domain.UserID, 0, len(st.invited))
	for id := range st.invited {
		invited = append(invited, id)
	}
	sort.Slice(invited, func(i, j int) bool { return invited[i] < invited[j] })
	return domain.RoomSummary{
		RoomID:      st.id,
		Name:        st.name,
		CreatorName: creatorName,
		IsOpen:      st.isOpen,
		UsersLength: st.usersLength,
		InvitedIDs:  invited,
		UpdatedAt:   now,
	}
}

func (st *roomState) deviceIDs() []domain.DeviceID {
	ids := make([]domain.DeviceID, 0, len(st.devices))
	for id := range st.devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (st *roomState) appendChat(msg domain.ChatMessage) {
	st.chat = append(st.chat, msg)
	if len(st.chat) > chatHistoryLimit {
		st.chat = st.chat[len(st.chat)-chatHistoryLimit:]
	}
}
