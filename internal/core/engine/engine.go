package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"jamroom/internal/core/domain"
	"jamroom/internal/core/ports"
	"jamroom/pkg/utils"
)

// Config tunes the per-room actors.
type Config struct {
	CommandBuffer   int
	AckInitialDelay time.Duration
	AckMaxDelay     time.Duration
	AckMaxAttempts  int
	RecheckInterval time.Duration
}

// DefaultConfig returns actor settings matching the acknowledgement protocol
// defaults: first retry after 500ms, doubling up to 4s, five attempts.
func DefaultConfig() Config {
	return Config{
		CommandBuffer:   32,
		AckInitialDelay: 500 * time.Millisecond,
		AckMaxDelay:     4 * time.Second,
		AckMaxAttempts:  5,
		RecheckInterval: 30 * time.Second,
	}
}

// Engine is the room orchestration engine: a registry of independent room
// actors. Commands for one room are serialized by its actor; commands for
// different rooms run in parallel.
type Engine struct {
	cfg         Config
	backend     ports.PlaybackBackend
	broadcaster ports.Broadcaster
	summaries   ports.SummaryRepository
	metrics     ports.Metrics
	logger      *zap.SugaredLogger
	now         func() time.Time

	mu     sync.RWMutex
	actors map[domain.RoomID]*roomActor
}

func New(
	cfg Config,
	backend ports.PlaybackBackend,
	broadcaster ports.Broadcaster,
	summaries ports.SummaryRepository,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
) *Engine {
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultConfig().CommandBuffer
	}
	if cfg.AckInitialDelay <= 0 {
		cfg.AckInitialDelay = DefaultConfig().AckInitialDelay
	}
	if cfg.AckMaxDelay < cfg.AckInitialDelay {
		cfg.AckMaxDelay = cfg.AckInitialDelay
	}
	if cfg.AckMaxAttempts <= 0 {
		cfg.AckMaxAttempts = DefaultConfig().AckMaxAttempts
	}
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = DefaultConfig().RecheckInterval
	}
	return &Engine{
		cfg:         cfg,
		backend:     backend,
		broadcaster: broadcaster,
		summaries:   summaries,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
		actors:      make(map[domain.RoomID]*roomActor),
	}
}

// SetClock replaces the engine clock. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

var _ ports.RoomService = (*Engine)(nil)

func (e *Engine) CreateRoom(ctx context.Context, creator domain.UserID, nickname string, deviceID domain.DeviceID, opts domain.RoomOptions) (domain.RoomSnapshot, error) {
	roomID := domain.RoomID(utils.GenerateRoomID())
	actor := &roomActor{
		engine:          e,
		st:              newRoomState(roomID, creator, nickname, opts, e.now()),
		cmds:            make(chan envelope, e.cfg.CommandBuffer),
		acks:            make(chan ackResult, 16),
		closed:          make(chan struct{}),
		backend:         e.backend,
		broadcaster:     e.broadcaster,
		summaries:       e.summaries,
		metrics:         e.metrics,
		logger:          e.logger.With("room_id", roomID),
		now:             func() time.Time { return e.now() },
		ackInitialDelay: e.cfg.AckInitialDelay,
		ackMaxDelay:     e.cfg.AckMaxDelay,
		ackMaxAttempts:  e.cfg.AckMaxAttempts,
		recheckInterval: e.cfg.RecheckInterval,
	}

	e.mu.Lock()
	e.actors[roomID] = actor
	e.mu.Unlock()
	go actor.run()

	res, err := e.send(ctx, actor, initRoomCmd{deviceID: deviceID})
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return res.snapshot, nil
}

func (e *Engine) JoinRoom(ctx context.Context, roomID domain.RoomID, userID domain.UserID, nickname string, deviceID domain.DeviceID) (domain.RoomSnapshot, error) {
	res, err := e.dispatch(ctx, roomID, joinCmd{userID: userID, nickname: nickname, deviceID: deviceID})
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return res.snapshot, nil
}

func (e *Engine) LeaveRoom(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error {
	_, err := e.dispatch(ctx, roomID, leaveCmd{userID: userID, deviceID: deviceID})
	return err
}

func (e *Engine) CloseRoom(ctx context.Context, roomID domain.RoomID, requester domain.UserID) error {
	_, err := e.dispatch(ctx, roomID, closeCmd{requester: requester})
	return err
}

func (e *Engine) Play(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error {
	_, err := e.dispatch(ctx, roomID, playCmd{userID: userID, deviceID: deviceID})
	return err
}

func (e *Engine) Pause(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error {
	_, err := e.dispatch(ctx, roomID, pauseCmd{userID: userID, deviceID: deviceID})
	return err
}

func (e *Engine) SkipToNext(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error {
	_, err := e.dispatch(ctx, roomID, skipCmd{userID: userID, deviceID: deviceID})
	return err
}

func (e *Engine) SuggestTrack(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID, track domain.TrackMetadata) error {
	_, err := e.dispatch(ctx, roomID, suggestCmd{userID: userID, deviceID: deviceID, track: track})
	return err
}

func (e *Engine) VoteForTrack(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID, trackID domain.TrackID) error {
	_, err := e.dispatch(ctx, roomID, voteCmd{userID: userID, deviceID: deviceID, trackID: trackID})
	return err
}

func (e *Engine) ChangeDelegationOwner(ctx context.Context, roomID domain.RoomID, requester, newOwner domain.UserID) error {
	_, err := e.dispatch(ctx, roomID, delegationCmd{requester: requester, newOwner: newOwner})
	return err
}

func (e *Engine) UpdateControlAndDelegationPermission(ctx context.Context, roomID domain.RoomID, requester, target domain.UserID, grant bool) error {
	_, err := e.dispatch(ctx, roomID, permissionCmd{requester: requester, target: target, grant: grant})
	return err
}

func (e *Engine) PromoteDevice(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error {
	_, err := e.dispatch(ctx, roomID, promoteDeviceCmd{userID: userID, deviceID: deviceID})
	return err
}

func (e *Engine) UnregisterDevice(ctx context.Context, roomID domain.RoomID, userID domain.UserID, deviceID domain.DeviceID) error {
	_, err := e.dispatch(ctx, roomID, unregisterDeviceCmd{userID: userID, deviceID: deviceID})
	return err
}

func (e *Engine) GetContext(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (domain.RoomSnapshot, error) {
	res, err := e.dispatch(ctx, roomID, getContextCmd{userID: userID})
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return res.snapshot, nil
}

func (e *Engine) UpdateUserPosition(ctx context.Context, roomID domain.RoomID, userID domain.UserID, fits domain.PositionFix) error {
	_, err := e.dispatch(ctx, roomID, positionCmd{userID: userID, fits: fits})
	return err
}

func (e *Engine) SendChatMessage(ctx context.Context, roomID domain.RoomID, userID domain.UserID, text string) error {
	_, err := e.dispatch(ctx, roomID, chatCmd{userID: userID, text: text})
	return err
}

func (e *Engine) UpdateUsersLength(ctx context.Context, roomID domain.RoomID, length int) error {
	_, err := e.dispatch(ctx, roomID, usersLengthCmd{length: length})
	return err
}

func (e *Engine) UpdateTimeConstraint(ctx context.Context, roomID domain.RoomID, valid bool) error {
	_, err := e.dispatch(ctx, roomID, timeConstraintCmd{valid: valid})
	return err
}

// AcknowledgeExternalEvent routes a backend acknowledgement to the pending
// command awaiting it. Delivery bypasses the command queue so the blocked
// actor can receive it.
func (e *Engine) AcknowledgeExternalEvent(ctx context.Context, roomID domain.RoomID, ackID domain.AckID, ok bool) error {
	actor, found := e.lookup(roomID)
	if !found {
		return domain.ErrRoomNotFound
	}
	select {
	case actor.acks <- ackResult{id: ackID, ok: ok}:
		return nil
	case <-actor.closed:
		return domain.ErrRoomClosed
	default:
		// Ack buffer full: only stale acknowledgements pile up here.
		e.logger.Warnw("dropping acknowledgement, buffer full", "room_id", roomID, "ack_id", ackID)
		return nil
	}
}

// RoomCount reports how many rooms are currently open.
func (e *Engine) RoomCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.actors)
}

func (e *Engine) lookup(roomID domain.RoomID) (*roomActor, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	actor, ok := e.actors[roomID]
	return actor, ok
}

func (e *Engine) remove(roomID domain.RoomID) {
	e.mu.Lock()
	delete(e.actors, roomID)
	e.mu.Unlock()
}

func (e *Engine) dispatch(ctx context.Context, roomID domain.RoomID, cmd command) (reply, error) {
	actor, found := e.lookup(roomID)
	if !found {
		return reply{}, domain.ErrRoomNotFound
	}
	return e.send(ctx, actor, cmd)
}

func (e *Engine) send(ctx context.Context, actor *roomActor, cmd command) (reply, error) {
	env := envelope{ctx: ctx, cmd: cmd, reply: make(chan reply, 1)}
	select {
	case actor.cmds <- env:
	case <-actor.closed:
		return reply{}, domain.ErrRoomClosed
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}

	select {
	case res := <-env.reply:
		return res, res.err
	case <-actor.closed:
		// The room closed while the command waited its turn; the drain loop
		// answers anything already admitted.
		select {
		case res := <-env.reply:
			return res, res.err
		case <-time.After(time.Second):
			return reply{}, domain.ErrRoomClosed
		}
	}
}
