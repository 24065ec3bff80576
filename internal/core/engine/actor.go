package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"jamroom/internal/core/domain"
	"jamroom/internal/core/ports"
	"jamroom/pkg/tracing"
	"jamroom/pkg/utils"
)

// errBackendRejected marks an acknowledgement that explicitly refused the
// event (the failure callback variant), as opposed to no answer at all.
var errBackendRejected = errors.New("playback backend rejected event")

// roomActor owns one room. A single goroutine drains cmds, so all state
// mutations for the room are serialized; rooms never share an actor.
type roomActor struct {
	engine *Engine
	st     *roomState

	cmds   chan envelope
	acks   chan ackResult
	closed chan struct{}

	backend     ports.PlaybackBackend
	broadcaster ports.Broadcaster
	summaries   ports.SummaryRepository
	metrics     ports.Metrics
	logger      *zap.SugaredLogger
	now         func() time.Time

	ackInitialDelay time.Duration
	ackMaxDelay     time.Duration
	ackMaxAttempts  int
	recheckInterval time.Duration
}

func (a *roomActor) run() {
	ticker := time.NewTicker(a.recheckInterval)
	defer ticker.Stop()

	for {
		select {
		case env := <-a.cmds:
			a.safeHandle(env)
		case <-ticker.C:
			a.recheckTimeConstraint()
		case <-a.closed:
			a.drain()
			return
		}
		select {
		case <-a.closed:
			a.drain()
			return
		default:
		}
	}
}

// safeHandle isolates faults to this room: a panic inside one command closes
// the room instead of crashing the process or corrupting shared state.
func (a *roomActor) safeHandle(env envelope) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Errorw("room actor panic, closing room",
				"room_id", a.st.id,
				"command", env.cmd.kind(),
				"panic", r,
			)
			env.reply <- reply{err: domain.ErrRoomClosed}
			a.closeRoom()
		}
	}()

	res := a.handle(env)
	outcome := "ok"
	if res.err != nil {
		outcome = "error"
	}
	a.metrics.CommandProcessed(env.cmd.kind(), outcome)
	env.reply <- res
}

// drain rejects commands that were admitted before the room closed. The idle
// timeout covers the narrow window where a dispatcher wins the send race
// against the closed signal.
func (a *roomActor) drain() {
	timer := time.NewTimer(100 * time.Millisecond)
	defer timer.Stop()
	for {
		select {
		case env := <-a.cmds:
			env.reply <- reply{err: domain.ErrRoomClosed}
			timer.Reset(100 * time.Millisecond)
		case <-timer.C:
			return
		}
	}
}

func (a *roomActor) handle(env envelope) reply {
	switch cmd := env.cmd.(type) {
	case initRoomCmd:
		return a.handleInit(env.ctx, cmd)
	case joinCmd:
		return a.handleJoin(env.ctx, cmd)
	case leaveCmd:
		return a.handleLeave(env.ctx, cmd)
	case closeCmd:
		return a.handleClose(env.ctx, cmd)
	case playCmd:
		return a.handlePlay(env.ctx, cmd)
	case pauseCmd:
		return a.handlePause(env.ctx, cmd)
	case skipCmd:
		return a.handleSkip(env.ctx, cmd)
	case suggestCmd:
		return a.handleSuggest(env.ctx, cmd)
	case voteCmd:
		return a.handleVote(env.ctx, cmd)
	case delegationCmd:
		return a.handleDelegation(env.ctx, cmd)
	case permissionCmd:
		return a.handlePermission(env.ctx, cmd)
	case promoteDeviceCmd:
		return a.handlePromoteDevice(cmd)
	case unregisterDeviceCmd:
		return a.handleUnregisterDevice(env.ctx, cmd)
	case getContextCmd:
		return a.handleGetContext(cmd)
	case positionCmd:
		return a.handlePosition(cmd)
	case chatCmd:
		return a.handleChat(cmd)
	case usersLengthCmd:
		return a.handleUsersLength(cmd)
	case timeConstraintCmd:
		return a.handleTimeConstraint(cmd)
	default:
		// The command set is closed; reaching this means a variant was added
		// without a handler.
		a.logger.Errorw("unhandled command variant", "command", env.cmd.kind())
		return reply{err: domain.ErrRoomNotReady}
	}
}

// ready guards every mutating command: only Ready rooms admit them.
func (a *roomActor) ready() error {
	switch a.st.lifecycle {
	case domain.RoomReady:
		return nil
	case domain.RoomClosed:
		return domain.ErrRoomClosed
	default:
		return domain.ErrRoomNotReady
	}
}

func (a *roomActor) handleInit(ctx context.Context, cmd initRoomCmd) reply {
	if a.st.lifecycle != domain.RoomCreationPending {
		return reply{err: domain.ErrRoomNotReady}
	}
	now := a.now()
	a.st.registerDevice(a.st.creator, cmd.deviceID, now)

	if err := a.awaitAck(ctx, ports.BackendEvent{
		Kind:     ports.BackendRoomCreated,
		AckID:    domain.AckID(utils.GenerateAckID()),
		RoomID:   a.st.id,
		UserID:   a.st.creator,
		DeviceID: cmd.deviceID,
	}); err != nil {
		a.closeRoom()
		return reply{err: err}
	}

	a.st.lifecycle = domain.RoomReady
	a.metrics.RoomOpened()
	a.publishSummary(ctx)
	snap := a.commit()
	return reply{snapshot: snap}
}

func (a *roomActor) handleJoin(ctx context.Context, cmd joinCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	now := a.now()

	if p, ok := a.st.participants[cmd.userID]; ok {
		// Extra device of an existing participant: joins as a mirror and
		// immediately converges from the pushed snapshot, no command needed.
		if _, exists := a.st.devices[cmd.deviceID]; !exists {
			a.st.registerDevice(p.UserID, cmd.deviceID, now)
		}
		snap := a.commit()
		a.broadcaster.PushChatHistory(cmd.deviceID, a.st.chat)
		return reply{snapshot: snap}
	}

	_, invited := a.st.invited[cmd.userID]
	if !a.st.isOpen && !invited {
		return reply{err: domain.ErrForbidden}
	}

	prev := a.st.clone()
	a.st.participants[cmd.userID] = &domain.Participant{
		UserID:             cmd.userID,
		Nickname:           cmd.nickname,
		UserHasBeenInvited: invited,
		TracksVotedFor:     make(map[domain.TrackID]struct{}),
		JoinedAt:           now,
	}
	a.st.registerDevice(cmd.userID, cmd.deviceID, now)
	a.st.usersLength++

	if err := a.awaitAck(ctx, ports.BackendEvent{
		Kind:     ports.BackendUserJoined,
		AckID:    domain.AckID(utils.GenerateAckID()),
		RoomID:   a.st.id,
		UserID:   cmd.userID,
		DeviceID: cmd.deviceID,
	}); err != nil {
		a.rollback(prev)
		return reply{err: err}
	}

	a.metrics.ParticipantJoined(a.st.id)
	a.publishSummary(ctx)
	snap := a.commit()
	a.broadcaster.PushChatHistory(cmd.deviceID, a.st.chat)
	return reply{snapshot: snap}
}

func (a *roomActor) handleLeave(ctx context.Context, cmd leaveCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	if _, ok := a.st.participants[cmd.userID]; !ok {
		return reply{err: domain.ErrUserNotFound}
	}

	prev := a.st.clone()
	departing := a.st.devicesOf(cmd.userID)
	for _, d := range departing {
		delete(a.st.devices, d.DeviceID)
	}
	delete(a.st.participants, cmd.userID)
	a.st.dropParticipantDelegation(cmd.userID)
	// The backend's user-length-update callback may have lowered the count
	// below the local participant count already; never go negative.
	if a.st.usersLength > 0 {
		a.st.usersLength--
	}

	if err := a.awaitAck(ctx, ports.BackendEvent{
		Kind:     ports.BackendUserLeft,
		AckID:    domain.AckID(utils.GenerateAckID()),
		RoomID:   a.st.id,
		UserID:   cmd.userID,
		DeviceID: cmd.deviceID,
	}); err != nil {
		a.rollback(prev)
		return reply{err: err}
	}

	a.metrics.ParticipantLeft(a.st.id)
	for _, d := range departing {
		a.broadcaster.ForceDisconnect(d.DeviceID)
	}
	if len(a.st.participants) == 0 {
		a.closeRoom()
		return reply{}
	}
	a.publishSummary(ctx)
	a.commit()
	return reply{}
}

func (a *roomActor) handleClose(ctx context.Context, cmd closeCmd) reply {
	if a.st.lifecycle == domain.RoomClosed {
		return reply{err: domain.ErrRoomClosed}
	}
	if cmd.requester != a.st.creator {
		return reply{err: domain.ErrForbidden}
	}
	// Best effort: the room is going away regardless of what the backend says.
	if err := a.backend.Send(ctx, ports.BackendEvent{
		Kind:   ports.BackendRoomClosed,
		AckID:  domain.AckID(utils.GenerateAckID()),
		RoomID: a.st.id,
		UserID: cmd.requester,
	}); err != nil {
		a.logger.Warnw("room close event not delivered", "room_id", a.st.id, "error", err)
	}
	a.closeRoom()
	return reply{}
}

func (a *roomActor) handlePlay(ctx context.Context, cmd playCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	if err := a.st.checkTransportAuthority(cmd.userID, cmd.deviceID); err != nil {
		return reply{err: err}
	}
	if a.st.current == nil {
		return reply{err: domain.ErrTrackNotFound}
	}
	if a.st.playing {
		return reply{snapshot: a.st.snapshot(a.now())}
	}

	prev := a.st.clone()
	a.st.playing = true
	a.st.current.StartedAt = a.now()

	if err := a.awaitAck(ctx, ports.BackendEvent{
		Kind:     ports.BackendPlay,
		AckID:    domain.AckID(utils.GenerateAckID()),
		RoomID:   a.st.id,
		UserID:   cmd.userID,
		DeviceID: cmd.deviceID,
		TrackID:  a.st.current.ID,
	}); err != nil {
		a.rollback(prev)
		return reply{err: err}
	}
	return reply{snapshot: a.commit()}
}

func (a *roomActor) handlePause(ctx context.Context, cmd pauseCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	if err := a.st.checkTransportAuthority(cmd.userID, cmd.deviceID); err != nil {
		return reply{err: err}
	}
	if a.st.current == nil {
		return reply{err: domain.ErrTrackNotFound}
	}
	if !a.st.playing {
		return reply{snapshot: a.st.snapshot(a.now())}
	}

	prev := a.st.clone()
	now := a.now()
	a.st.current.Elapsed += now.Sub(a.st.current.StartedAt)
	a.st.playing = false

	if err := a.awaitAck(ctx, ports.BackendEvent{
		Kind:     ports.BackendPause,
		AckID:    domain.AckID(utils.GenerateAckID()),
		RoomID:   a.st.id,
		UserID:   cmd.userID,
		DeviceID: cmd.deviceID,
		TrackID:  a.st.current.ID,
	}); err != nil {
		a.rollback(prev)
		return reply{err: err}
	}
	return reply{snapshot: a.commit()}
}

func (a *roomActor) handleSkip(ctx context.Context, cmd skipCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	if err := a.st.checkTransportAuthority(cmd.userID, cmd.deviceID); err != nil {
		return reply{err: err}
	}
	if a.st.current == nil {
		return reply{err: domain.ErrTrackNotFound}
	}

	prev := a.st.clone()
	skipped := a.st.current.ID
	a.st.retireCurrent(a.now())

	if err := a.awaitAck(ctx, ports.BackendEvent{
		Kind:     ports.BackendSkippedToNext,
		AckID:    domain.AckID(utils.GenerateAckID()),
		RoomID:   a.st.id,
		UserID:   cmd.userID,
		DeviceID: cmd.deviceID,
		TrackID:  skipped,
	}); err != nil {
		a.rollback(prev)
		return reply{err: err}
	}
	return reply{snapshot: a.commit()}
}

func (a *roomActor) handleSuggest(ctx context.Context, cmd suggestCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	if _, ok := a.st.participants[cmd.userID]; !ok {
		return reply{err: domain.ErrUserNotFound}
	}

	prev := a.st.clone()
	if err := a.st.suggestTrack(cmd.userID, cmd.track, a.now()); err != nil {
		return reply{err: err}
	}

	if err := a.awaitAck(ctx, ports.BackendEvent{
		Kind:     ports.BackendTrackSuggested,
		AckID:    domain.AckID(utils.GenerateAckID()),
		RoomID:   a.st.id,
		UserID:   cmd.userID,
		DeviceID: cmd.deviceID,
		TrackID:  cmd.track.ID,
	}); err != nil {
		a.rollback(prev)
		return reply{err: err}
	}
	return reply{snapshot: a.commit()}
}

func (a *roomActor) handleVote(ctx context.Context, cmd voteCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	p, ok := a.st.participants[cmd.userID]
	if !ok {
		return reply{err: domain.ErrUserNotFound}
	}
	if p.HasVotedFor(cmd.trackID) {
		return reply{err: domain.ErrAlreadyVoted}
	}
	if err := a.st.checkVoteEligibility(cmd.userID); err != nil {
		return reply{err: err}
	}

	prev := a.st.clone()
	if err := a.st.voteForTrack(cmd.userID, cmd.trackID, a.now()); err != nil {
		return reply{err: err}
	}

	if err := a.awaitAck(ctx, ports.BackendEvent{
		Kind:     ports.BackendTrackVoted,
		AckID:    domain.AckID(utils.GenerateAckID()),
		RoomID:   a.st.id,
		UserID:   cmd.userID,
		DeviceID: cmd.deviceID,
		TrackID:  cmd.trackID,
	}); err != nil {
		a.rollback(prev)
		return reply{err: err}
	}
	return reply{snapshot: a.commit()}
}

func (a *roomActor) handleDelegation(ctx context.Context, cmd delegationCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	prev := a.st.clone()
	if err := a.st.changeDelegationOwner(cmd.requester, cmd.newOwner); err != nil {
		return reply{err: err}
	}

	if err := a.awaitAck(ctx, ports.BackendEvent{
		Kind:   ports.BackendDelegationChanged,
		AckID:  domain.AckID(utils.GenerateAckID()),
		RoomID: a.st.id,
		UserID: cmd.newOwner,
	}); err != nil {
		a.rollback(prev)
		return reply{err: err}
	}
	return reply{snapshot: a.commit()}
}

func (a *roomActor) handlePermission(ctx context.Context, cmd permissionCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	prev := a.st.clone()
	if err := a.st.updateControlAndDelegationPermission(cmd.requester, cmd.target, cmd.grant); err != nil {
		return reply{err: err}
	}

	if err := a.awaitAck(ctx, ports.BackendEvent{
		Kind:   ports.BackendPermissionChanged,
		AckID:  domain.AckID(utils.GenerateAckID()),
		RoomID: a.st.id,
		UserID: cmd.target,
	}); err != nil {
		a.rollback(prev)
		return reply{err: err}
	}
	return reply{snapshot: a.commit()}
}

func (a *roomActor) handlePromoteDevice(cmd promoteDeviceCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	demoted, err := a.st.promoteDevice(cmd.userID, cmd.deviceID)
	if err != nil {
		return reply{err: err}
	}
	snap := a.commit()
	if demoted != nil {
		// The superseded emitter keeps its mirror session; the snapshot it
		// just received already carries the new roles.
		a.logger.Debugw("emitter superseded",
			"room_id", a.st.id, "user_id", cmd.userID,
			"demoted", demoted.DeviceID, "promoted", cmd.deviceID,
		)
	}
	return reply{snapshot: snap}
}

func (a *roomActor) handleUnregisterDevice(ctx context.Context, cmd unregisterDeviceCmd) reply {
	if a.st.lifecycle == domain.RoomClosed {
		return reply{err: domain.ErrRoomClosed}
	}
	session, ok := a.st.devices[cmd.deviceID]
	if !ok || session.UserID != cmd.userID {
		return reply{err: domain.ErrDeviceNotFound}
	}
	if len(a.st.devicesOf(cmd.userID)) == 1 {
		// Last device: the participant leaves the room entirely. The leave
		// path owns the rollback clone, so the session must stay registered
		// until the backend acknowledges; deleting it first would strand the
		// user device-less if the leave rolls back.
		return a.handleLeave(ctx, leaveCmd{userID: cmd.userID, deviceID: cmd.deviceID})
	}
	if err := a.st.unregisterDevice(cmd.userID, cmd.deviceID); err != nil {
		return reply{err: err}
	}
	return reply{snapshot: a.commit()}
}

func (a *roomActor) handleGetContext(cmd getContextCmd) reply {
	if _, ok := a.st.participants[cmd.userID]; !ok {
		return reply{err: domain.ErrUserNotFound}
	}
	return reply{snapshot: a.st.snapshot(a.now())}
}

func (a *roomActor) handlePosition(cmd positionCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	p, ok := a.st.participants[cmd.userID]
	if !ok {
		return reply{err: domain.ErrUserNotFound}
	}
	if p.UserFitsPositionConstraint == cmd.fits {
		return reply{snapshot: a.st.snapshot(a.now())}
	}
	p.UserFitsPositionConstraint = cmd.fits
	return reply{snapshot: a.commit()}
}

func (a *roomActor) handleChat(cmd chatCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	if _, ok := a.st.participants[cmd.userID]; !ok {
		return reply{err: domain.ErrUserNotFound}
	}
	msg := domain.ChatMessage{Author: cmd.userID, Text: cmd.text, SentAt: a.now()}
	a.st.appendChat(msg)
	for _, id := range a.st.deviceIDs() {
		a.broadcaster.PushChatMessage(id, msg)
	}
	return reply{}
}

func (a *roomActor) handleUsersLength(cmd usersLengthCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	if cmd.length < 0 || cmd.length == a.st.usersLength {
		return reply{snapshot: a.st.snapshot(a.now())}
	}
	a.st.usersLength = cmd.length
	a.publishSummary(context.Background())
	return reply{snapshot: a.commit()}
}

func (a *roomActor) handleTimeConstraint(cmd timeConstraintCmd) reply {
	if err := a.ready(); err != nil {
		return reply{err: err}
	}
	if a.st.timeConstraint == cmd.valid {
		return reply{snapshot: a.st.snapshot(a.now())}
	}
	a.st.timeConstraint = cmd.valid
	return reply{snapshot: a.commit()}
}

// recheckTimeConstraint recomputes the derived window flag on the actor's own
// clock; the backend's constraint-update callback can override it between
// ticks.
func (a *roomActor) recheckTimeConstraint() {
	if a.st.lifecycle != domain.RoomReady || !a.st.constraints.HasTimeAndPositionConstraints {
		return
	}
	valid := a.st.constraints.TimeConstraintValid(a.now())
	if valid != a.st.timeConstraint {
		a.st.timeConstraint = valid
		a.commit()
	}
}

// awaitAck drives the Applying → AwaitingAcknowledgement sub-protocol: send
// the event, wait for the matching acknowledgement, re-send with exponential
// backoff, give up after the attempt ceiling. The actor blocks here, which is
// what serializes commands behind an in-flight acknowledgement.
func (a *roomActor) awaitAck(ctx context.Context, event ports.BackendEvent) error {
	start := a.now()
	delay := a.ackInitialDelay

	for attempt := 0; attempt < a.ackMaxAttempts; attempt++ {
		sctx, span := tracing.StartSpan(ctx, "backend.send",
			tracing.WithAttributes(
				attribute.String("event.kind", string(event.Kind)),
				attribute.String("room.id", string(event.RoomID)),
				attribute.Int("attempt", attempt),
			),
		)
		err := a.backend.Send(sctx, event)
		if err != nil {
			tracing.RecordError(sctx, err)
			a.logger.Warnw("backend send failed",
				"room_id", a.st.id, "event", event.Kind, "attempt", attempt, "error", err,
			)
		}
		span.End()

		timer := time.NewTimer(delay)
	waiting:
		for {
			select {
			case res := <-a.acks:
				if res.id != event.AckID {
					// Stale acknowledgement from an earlier attempt cycle.
					continue
				}
				timer.Stop()
				a.metrics.AckLatencySeconds(a.now().Sub(start).Seconds())
				if !res.ok {
					return errBackendRejected
				}
				return nil
			case <-timer.C:
				break waiting
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		delay *= 2
		if delay > a.ackMaxDelay {
			delay = a.ackMaxDelay
		}
	}
	return domain.ErrBackendUnresponsive
}

// commit bumps the snapshot version and fans the full state out to every
// connected device of every participant.
func (a *roomActor) commit() domain.RoomSnapshot {
	a.st.version++
	snap := a.st.snapshot(a.now())
	ids := a.st.deviceIDs()
	for _, id := range ids {
		a.broadcaster.PushSnapshot(id, snap)
	}
	a.metrics.SnapshotBroadcast(len(ids))
	return snap
}

// rollback restores the pre-command clone. Nothing was broadcast for the
// optimistic mutation, so devices never observe the rolled-back state.
func (a *roomActor) rollback(prev *roomState) {
	a.st = prev
	a.metrics.RollbackRecorded(prev.id)
	a.logger.Warnw("optimistic mutation rolled back", "room_id", prev.id)
}

func (a *roomActor) publishSummary(ctx context.Context) {
	if err := a.summaries.Upsert(ctx, a.st.summary(a.now())); err != nil {
		a.logger.Warnw("summary publish failed", "room_id", a.st.id, "error", err)
	}
}

// closeRoom is the single Closed transition. All devices get
// FORCED_DISCONNECTION, the directory entry disappears, the actor stops and
// pending commands are cancelled with RoomClosed.
func (a *roomActor) closeRoom() {
	if a.st.lifecycle == domain.RoomClosed {
		return
	}
	a.st.lifecycle = domain.RoomClosed
	for _, id := range a.st.deviceIDs() {
		a.broadcaster.ForceDisconnect(id)
	}
	if err := a.summaries.Delete(context.Background(), a.st.id); err != nil {
		a.logger.Warnw("summary delete failed", "room_id", a.st.id, "error", err)
	}
	a.metrics.RoomClosed()
	a.engine.remove(a.st.id)
	close(a.closed)
	a.logger.Infow("room closed", "room_id", a.st.id)
}
