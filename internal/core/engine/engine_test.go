package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jamroom/internal/core/domain"
	"jamroom/internal/core/ports"
)

// fakeBackend records every event and, by default, acknowledges it
// synchronously through the engine's callback path. The respond hook lets a
// test withhold or refuse acknowledgements per event.
type fakeBackend struct {
	mu      sync.Mutex
	events  []ports.BackendEvent
	engine  *Engine
	respond func(ports.BackendEvent) (deliver bool, ok bool)
}

func (b *fakeBackend) Send(ctx context.Context, event ports.BackendEvent) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	respond := b.respond
	b.mu.Unlock()

	deliver, ok := true, true
	if respond != nil {
		deliver, ok = respond(event)
	}
	if deliver {
		_ = b.engine.AcknowledgeExternalEvent(ctx, event.RoomID, event.AckID, ok)
	}
	return nil
}

func (b *fakeBackend) setRespond(fn func(ports.BackendEvent) (bool, bool)) {
	b.mu.Lock()
	b.respond = fn
	b.mu.Unlock()
}

func (b *fakeBackend) kinds() []ports.BackendEventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ports.BackendEventKind, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Kind
	}
	return out
}

type fakeBroadcaster struct {
	mu          sync.Mutex
	snapshots   map[domain.DeviceID][]domain.RoomSnapshot
	messages    map[domain.DeviceID][]domain.ChatMessage
	histories   map[domain.DeviceID][][]domain.ChatMessage
	disconnects []domain.DeviceID
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{
		snapshots: make(map[domain.DeviceID][]domain.RoomSnapshot),
		messages:  make(map[domain.DeviceID][]domain.ChatMessage),
		histories: make(map[domain.DeviceID][][]domain.ChatMessage),
	}
}

func (f *fakeBroadcaster) PushSnapshot(deviceID domain.DeviceID, snapshot domain.RoomSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[deviceID] = append(f.snapshots[deviceID], snapshot)
}

func (f *fakeBroadcaster) PushChatMessage(deviceID domain.DeviceID, message domain.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[deviceID] = append(f.messages[deviceID], message)
}

func (f *fakeBroadcaster) PushChatHistory(deviceID domain.DeviceID, messages []domain.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := make([]domain.ChatMessage, len(messages))
	copy(history, messages)
	f.histories[deviceID] = append(f.histories[deviceID], history)
}

func (f *fakeBroadcaster) ForceDisconnect(deviceID domain.DeviceID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, deviceID)
}

func (f *fakeBroadcaster) disconnected() []domain.DeviceID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.DeviceID, len(f.disconnects))
	copy(out, f.disconnects)
	return out
}

func (f *fakeBroadcaster) messagesFor(deviceID domain.DeviceID) []domain.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ChatMessage, len(f.messages[deviceID]))
	copy(out, f.messages[deviceID])
	return out
}

func (f *fakeBroadcaster) lastHistoryFor(deviceID domain.DeviceID) []domain.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.histories[deviceID]
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

type fakeSummaries struct {
	mu    sync.Mutex
	items map[domain.RoomID]domain.RoomSummary
}

func newFakeSummaries() *fakeSummaries {
	return &fakeSummaries{items: make(map[domain.RoomID]domain.RoomSummary)}
}

func (f *fakeSummaries) Upsert(_ context.Context, summary domain.RoomSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[summary.RoomID] = summary
	return nil
}

func (f *fakeSummaries) Delete(_ context.Context, roomID domain.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, roomID)
	return nil
}

func (f *fakeSummaries) GetByID(_ context.Context, roomID domain.RoomID) (*domain.RoomSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summary, ok := f.items[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return &summary, nil
}

func (f *fakeSummaries) List(_ context.Context, _, _ int) ([]domain.RoomSummary, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RoomSummary, 0, len(f.items))
	for _, s := range f.items {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (f *fakeSummaries) Search(_ context.Context, _ string, _, _ int) ([]domain.RoomSummary, int, error) {
	return f.List(context.Background(), 0, 0)
}

type fakeMetrics struct {
	mu        sync.Mutex
	opened    int
	closed    int
	rollbacks int
	commands  int
}

func (m *fakeMetrics) RoomOpened()                     { m.mu.Lock(); m.opened++; m.mu.Unlock() }
func (m *fakeMetrics) RoomClosed()                     { m.mu.Lock(); m.closed++; m.mu.Unlock() }
func (m *fakeMetrics) ParticipantJoined(domain.RoomID) {}
func (m *fakeMetrics) ParticipantLeft(domain.RoomID)   {}
func (m *fakeMetrics) CommandProcessed(string, string) { m.mu.Lock(); m.commands++; m.mu.Unlock() }
func (m *fakeMetrics) AckLatencySeconds(float64)       {}
func (m *fakeMetrics) RollbackRecorded(domain.RoomID)  { m.mu.Lock(); m.rollbacks++; m.mu.Unlock() }
func (m *fakeMetrics) SnapshotBroadcast(int)           {}

func (m *fakeMetrics) rollbackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks
}

type fixture struct {
	eng     *Engine
	backend *fakeBackend
	bus     *fakeBroadcaster
	sums    *fakeSummaries
	metrics *fakeMetrics
}

func fastConfig() Config {
	return Config{
		CommandBuffer:   8,
		AckInitialDelay: 5 * time.Millisecond,
		AckMaxDelay:     10 * time.Millisecond,
		AckMaxAttempts:  2,
		RecheckInterval: time.Hour,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := &fakeBackend{}
	bus := newFakeBroadcaster()
	sums := newFakeSummaries()
	metrics := &fakeMetrics{}
	eng := New(fastConfig(), backend, bus, sums, metrics, zap.NewNop().Sugar())
	backend.engine = eng
	return &fixture{eng: eng, backend: backend, bus: bus, sums: sums, metrics: metrics}
}

func (f *fixture) createRoom(t *testing.T, opts domain.RoomOptions) domain.RoomSnapshot {
	t.Helper()
	snap, err := f.eng.CreateRoom(context.Background(), "creator", "Creator", "dev-creator", opts)
	require.NoError(t, err)
	return snap
}

func TestCreateRoomBecomesReady(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Friday", IsOpen: true})

	assert.Equal(t, domain.RoomReady, snap.Lifecycle)
	assert.Equal(t, domain.UserID("creator"), snap.CreatorUserID)
	assert.Equal(t, 1, snap.UsersLength)
	require.Len(t, snap.Devices, 1)
	assert.Equal(t, domain.DeviceEmitter, snap.Devices[0].Role)
	assert.Equal(t, 1, f.eng.RoomCount())

	summary, err := f.sums.GetByID(context.Background(), snap.RoomID)
	require.NoError(t, err)
	assert.Equal(t, "Friday", summary.Name)
	assert.Equal(t, "Creator", summary.CreatorName)

	kinds := f.backend.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, ports.BackendRoomCreated, kinds[0])
}

func TestJoinClosedRoomRequiresInvitation(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{
		Name:           "Private",
		IsOpen:         false,
		InvitedUserIDs: []domain.UserID{"bob"},
	})
	ctx := context.Background()

	_, err := f.eng.JoinRoom(ctx, snap.RoomID, "mallory", "Mallory", "dev-m")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	joined, err := f.eng.JoinRoom(ctx, snap.RoomID, "bob", "Bob", "dev-b")
	require.NoError(t, err)
	assert.Equal(t, 2, joined.UsersLength)
	require.Len(t, joined.Participants, 2)
	for _, p := range joined.Participants {
		if p.UserID == "bob" {
			assert.True(t, p.UserHasBeenInvited)
		}
	}
}

func TestVotePromotionAtThreshold(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{
		Name:                   "Quorum",
		IsOpen:                 true,
		PlayingMode:            domain.PlayingModeDirect,
		MinimumScoreToBePlayed: 2,
	})
	ctx := context.Background()
	roomID := snap.RoomID

	_, err := f.eng.JoinRoom(ctx, roomID, "alice", "Alice", "dev-a")
	require.NoError(t, err)

	t1 := domain.TrackMetadata{ID: "t1", Title: "First"}
	t2 := domain.TrackMetadata{ID: "t2", Title: "Second"}
	require.NoError(t, f.eng.SuggestTrack(ctx, roomID, "creator", "dev-creator", t1))
	require.NoError(t, f.eng.SuggestTrack(ctx, roomID, "creator", "dev-creator", t2))

	// One vote is below the threshold: nothing plays yet.
	require.NoError(t, f.eng.VoteForTrack(ctx, roomID, "creator", "dev-creator", "t2"))
	mid, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.Nil(t, mid.CurrentTrack)
	require.Len(t, mid.Tracks, 2)
	assert.Equal(t, domain.TrackID("t2"), mid.Tracks[0].ID)
	assert.Equal(t, 1, mid.Tracks[0].Score)

	// Second vote reaches the threshold: the head is promoted and plays.
	require.NoError(t, f.eng.VoteForTrack(ctx, roomID, "alice", "dev-a", "t2"))
	after, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	require.NotNil(t, after.CurrentTrack)
	assert.Equal(t, domain.TrackID("t2"), after.CurrentTrack.ID)
	assert.True(t, after.Playing)
	require.Len(t, after.Tracks, 1)
	assert.Equal(t, domain.TrackID("t1"), after.Tracks[0].ID)

	// The vote ledger survives promotion.
	err = f.eng.VoteForTrack(ctx, roomID, "alice", "dev-a", "t2")
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)

	// A below-threshold track never displaces the occupied slot.
	require.NoError(t, f.eng.VoteForTrack(ctx, roomID, "alice", "dev-a", "t1"))
	final, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.Equal(t, domain.TrackID("t2"), final.CurrentTrack.ID)
	require.Len(t, final.Tracks, 1)
	assert.Equal(t, 1, final.Tracks[0].Score)
}

func TestDuplicateSuggestionRejected(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Dupes", IsOpen: true})
	ctx := context.Background()

	track := domain.TrackMetadata{ID: "t1", Title: "Once"}
	require.NoError(t, f.eng.SuggestTrack(ctx, snap.RoomID, "creator", "dev-creator", track))
	err := f.eng.SuggestTrack(ctx, snap.RoomID, "creator", "dev-creator", track)
	assert.ErrorIs(t, err, domain.ErrDuplicateTrack)
}

func TestBroadcastModeTransportPolicy(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{
		Name:                   "Stage",
		IsOpen:                 true,
		PlayingMode:            domain.PlayingModeBroadcast,
		MinimumScoreToBePlayed: 1,
	})
	ctx := context.Background()
	roomID := snap.RoomID

	_, err := f.eng.JoinRoom(ctx, roomID, "alice", "Alice", "dev-a")
	require.NoError(t, err)

	require.NoError(t, f.eng.SuggestTrack(ctx, roomID, "creator", "dev-creator", domain.TrackMetadata{ID: "t1"}))
	require.NoError(t, f.eng.VoteForTrack(ctx, roomID, "creator", "dev-creator", "t1"))

	// A plain participant cannot drive playback in broadcast mode.
	err = f.eng.Pause(ctx, roomID, "alice", "dev-a")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, f.eng.Pause(ctx, roomID, "creator", "dev-creator"))

	// The delegation owner can.
	require.NoError(t, f.eng.UpdateControlAndDelegationPermission(ctx, roomID, "creator", "alice", true))
	require.NoError(t, f.eng.ChangeDelegationOwner(ctx, roomID, "creator", "alice"))
	require.NoError(t, f.eng.Play(ctx, roomID, "alice", "dev-a"))

	// A mirror device never originates transport commands, whoever owns it.
	_, err = f.eng.JoinRoom(ctx, roomID, "creator", "Creator", "dev-creator-2")
	require.NoError(t, err)
	err = f.eng.Pause(ctx, roomID, "creator", "dev-creator-2")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDelegationRequiresPermission(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Delegate", IsOpen: true})
	ctx := context.Background()
	roomID := snap.RoomID

	_, err := f.eng.JoinRoom(ctx, roomID, "alice", "Alice", "dev-a")
	require.NoError(t, err)

	err = f.eng.ChangeDelegationOwner(ctx, roomID, "creator", "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidDelegate)

	require.NoError(t, f.eng.UpdateControlAndDelegationPermission(ctx, roomID, "creator", "alice", true))
	require.NoError(t, f.eng.ChangeDelegationOwner(ctx, roomID, "creator", "alice"))

	mid, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	require.NotNil(t, mid.DelegationOwnerUserID)
	assert.Equal(t, domain.UserID("alice"), *mid.DelegationOwnerUserID)

	// Revoking the permission clears the delegation in the same turn.
	require.NoError(t, f.eng.UpdateControlAndDelegationPermission(ctx, roomID, "creator", "alice", false))
	after, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.Nil(t, after.DelegationOwnerUserID)
}

func TestConstraintGatingBlocksVotes(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	snap := f.createRoom(t, domain.RoomOptions{
		Name:        "Geofenced",
		IsOpen:      true,
		PlayingMode: domain.PlayingModeDirect,
		Constraints: domain.ConstraintConfig{
			HasTimeAndPositionConstraints: true,
			StartsAt:                      now.Add(-time.Hour),
			EndsAt:                        now.Add(time.Hour),
		},
	})
	ctx := context.Background()
	roomID := snap.RoomID

	_, err := f.eng.JoinRoom(ctx, roomID, "alice", "Alice", "dev-a")
	require.NoError(t, err)
	require.NoError(t, f.eng.SuggestTrack(ctx, roomID, "creator", "dev-creator", domain.TrackMetadata{ID: "t1"}))
	require.NoError(t, f.eng.SuggestTrack(ctx, roomID, "creator", "dev-creator", domain.TrackMetadata{ID: "t2"}))

	// Unknown position fails closed.
	err = f.eng.VoteForTrack(ctx, roomID, "alice", "dev-a", "t1")
	assert.ErrorIs(t, err, domain.ErrIneligible)

	require.NoError(t, f.eng.UpdateUserPosition(ctx, roomID, "alice", domain.PositionInside))
	require.NoError(t, f.eng.VoteForTrack(ctx, roomID, "alice", "dev-a", "t1"))

	// The backend can invalidate the time window between rechecks.
	require.NoError(t, f.eng.UpdateTimeConstraint(ctx, roomID, false))
	err = f.eng.VoteForTrack(ctx, roomID, "alice", "dev-a", "t2")
	assert.ErrorIs(t, err, domain.ErrIneligible)
}

func TestBackendRejectionRollsBackVote(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Refused", IsOpen: true, MinimumScoreToBePlayed: 2})
	ctx := context.Background()
	roomID := snap.RoomID

	require.NoError(t, f.eng.SuggestTrack(ctx, roomID, "creator", "dev-creator", domain.TrackMetadata{ID: "t1"}))

	f.backend.setRespond(func(ev ports.BackendEvent) (bool, bool) {
		if ev.Kind == ports.BackendTrackVoted {
			return true, false
		}
		return true, true
	})
	err := f.eng.VoteForTrack(ctx, roomID, "creator", "dev-creator", "t1")
	require.Error(t, err)

	mid, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	require.Len(t, mid.Tracks, 1)
	assert.Equal(t, 0, mid.Tracks[0].Score)
	assert.Equal(t, 1, f.metrics.rollbackCount())

	// The rolled-back vote does not count against the one-vote rule.
	f.backend.setRespond(nil)
	require.NoError(t, f.eng.VoteForTrack(ctx, roomID, "creator", "dev-creator", "t1"))
}

func TestBackendUnresponsiveRollsBackJoin(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Silent", IsOpen: true})
	ctx := context.Background()
	roomID := snap.RoomID

	f.backend.setRespond(func(ev ports.BackendEvent) (bool, bool) {
		if ev.Kind == ports.BackendUserJoined {
			return false, false
		}
		return true, true
	})
	_, err := f.eng.JoinRoom(ctx, roomID, "alice", "Alice", "dev-a")
	assert.ErrorIs(t, err, domain.ErrBackendUnresponsive)

	mid, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.Equal(t, 1, mid.UsersLength)
	assert.Len(t, mid.Participants, 1)
	assert.Equal(t, 1, f.eng.RoomCount())
}

func TestPlayUnresponsiveRollsBackPlayingFlag(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Stalled", IsOpen: true, MinimumScoreToBePlayed: 1})
	ctx := context.Background()
	roomID := snap.RoomID

	require.NoError(t, f.eng.SuggestTrack(ctx, roomID, "creator", "dev-creator", domain.TrackMetadata{ID: "t1"}))
	require.NoError(t, f.eng.VoteForTrack(ctx, roomID, "creator", "dev-creator", "t1"))
	require.NoError(t, f.eng.Pause(ctx, roomID, "creator", "dev-creator"))

	f.backend.setRespond(func(ev ports.BackendEvent) (bool, bool) {
		if ev.Kind == ports.BackendPlay {
			return false, false
		}
		return true, true
	})
	err := f.eng.Play(ctx, roomID, "creator", "dev-creator")
	assert.ErrorIs(t, err, domain.ErrBackendUnresponsive)

	mid, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.False(t, mid.Playing)
	assert.Equal(t, 1, f.metrics.rollbackCount())

	// Once the backend answers again, the same command goes through.
	f.backend.setRespond(nil)
	require.NoError(t, f.eng.Play(ctx, roomID, "creator", "dev-creator"))
	after, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.True(t, after.Playing)
}

func TestLeaveAfterUsersLengthOverrideStaysNonNegative(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Undercounted", IsOpen: true})
	ctx := context.Background()
	roomID := snap.RoomID

	_, err := f.eng.JoinRoom(ctx, roomID, "alice", "Alice", "dev-a")
	require.NoError(t, err)

	// The backend is authoritative and says nobody is here.
	require.NoError(t, f.eng.UpdateUsersLength(ctx, roomID, 0))
	require.NoError(t, f.eng.LeaveRoom(ctx, roomID, "alice", "dev-a"))

	mid, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.Equal(t, 0, mid.UsersLength)

	summary, err := f.sums.GetByID(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.UsersLength)
}

func TestDisconnectLeaveFailureKeepsDeviceSession(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Flaky", IsOpen: true})
	ctx := context.Background()
	roomID := snap.RoomID

	_, err := f.eng.JoinRoom(ctx, roomID, "alice", "Alice", "dev-a")
	require.NoError(t, err)

	f.backend.setRespond(func(ev ports.BackendEvent) (bool, bool) {
		if ev.Kind == ports.BackendUserLeft {
			return false, false
		}
		return true, true
	})
	err = f.eng.UnregisterDevice(ctx, roomID, "alice", "dev-a")
	assert.ErrorIs(t, err, domain.ErrBackendUnresponsive)

	// The rolled-back leave keeps the participant addressable: the session
	// survives so a later disconnect or leave can still resolve them.
	mid, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.Len(t, mid.Participants, 2)
	deviceIDs := make([]domain.DeviceID, 0, len(mid.Devices))
	for _, d := range mid.Devices {
		deviceIDs = append(deviceIDs, d.DeviceID)
	}
	assert.Contains(t, deviceIDs, domain.DeviceID("dev-a"))

	f.backend.setRespond(nil)
	require.NoError(t, f.eng.UnregisterDevice(ctx, roomID, "alice", "dev-a"))
	after, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.Len(t, after.Participants, 1)
}

func TestLastLeaveClosesRoom(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Emptying", IsOpen: true})
	ctx := context.Background()
	roomID := snap.RoomID

	_, err := f.eng.JoinRoom(ctx, roomID, "alice", "Alice", "dev-a")
	require.NoError(t, err)

	require.NoError(t, f.eng.LeaveRoom(ctx, roomID, "alice", "dev-a"))
	assert.Contains(t, f.bus.disconnected(), domain.DeviceID("dev-a"))
	assert.Equal(t, 1, f.eng.RoomCount())

	require.NoError(t, f.eng.LeaveRoom(ctx, roomID, "creator", "dev-creator"))
	assert.Equal(t, 0, f.eng.RoomCount())
	assert.Contains(t, f.bus.disconnected(), domain.DeviceID("dev-creator"))

	_, err = f.eng.GetContext(ctx, roomID, "creator")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = f.sums.GetByID(ctx, roomID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestCloseRoomIsCreatorOnly(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Owned", IsOpen: true})
	ctx := context.Background()
	roomID := snap.RoomID

	_, err := f.eng.JoinRoom(ctx, roomID, "alice", "Alice", "dev-a")
	require.NoError(t, err)

	err = f.eng.CloseRoom(ctx, roomID, "alice")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, 1, f.eng.RoomCount())

	require.NoError(t, f.eng.CloseRoom(ctx, roomID, "creator"))
	assert.Equal(t, 0, f.eng.RoomCount())
	disconnected := f.bus.disconnected()
	assert.Contains(t, disconnected, domain.DeviceID("dev-creator"))
	assert.Contains(t, disconnected, domain.DeviceID("dev-a"))
}

func TestChatFanoutAndReplay(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Chatty", IsOpen: true})
	ctx := context.Background()
	roomID := snap.RoomID

	_, err := f.eng.JoinRoom(ctx, roomID, "alice", "Alice", "dev-a")
	require.NoError(t, err)

	require.NoError(t, f.eng.SendChatMessage(ctx, roomID, "creator", "hello"))
	require.NoError(t, f.eng.SendChatMessage(ctx, roomID, "alice", "hi there"))

	for _, dev := range []domain.DeviceID{"dev-creator", "dev-a"} {
		msgs := f.bus.messagesFor(dev)
		require.Len(t, msgs, 2, "device %s", dev)
		assert.Equal(t, "hello", msgs[0].Text)
		assert.Equal(t, "hi there", msgs[1].Text)
	}

	// A late joiner replays the history in order.
	_, err = f.eng.JoinRoom(ctx, roomID, "bob", "Bob", "dev-b")
	require.NoError(t, err)
	history := f.bus.lastHistoryFor("dev-b")
	require.Len(t, history, 2)
	assert.Equal(t, domain.UserID("creator"), history[0].Author)
	assert.Equal(t, domain.UserID("alice"), history[1].Author)
}

func TestPromoteDeviceSwapsEmitter(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{
		Name:                   "TwoPhones",
		IsOpen:                 true,
		MinimumScoreToBePlayed: 1,
	})
	ctx := context.Background()
	roomID := snap.RoomID

	require.NoError(t, f.eng.SuggestTrack(ctx, roomID, "creator", "dev-creator", domain.TrackMetadata{ID: "t1"}))
	require.NoError(t, f.eng.VoteForTrack(ctx, roomID, "creator", "dev-creator", "t1"))

	// Second device of the same user joins as a mirror.
	joined, err := f.eng.JoinRoom(ctx, roomID, "creator", "Creator", "dev-creator-2")
	require.NoError(t, err)
	roles := map[domain.DeviceID]domain.DeviceRole{}
	for _, d := range joined.Devices {
		roles[d.DeviceID] = d.Role
	}
	assert.Equal(t, domain.DeviceEmitter, roles["dev-creator"])
	assert.Equal(t, domain.DeviceMirror, roles["dev-creator-2"])

	require.NoError(t, f.eng.PromoteDevice(ctx, roomID, "creator", "dev-creator-2"))
	after, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	roles = map[domain.DeviceID]domain.DeviceRole{}
	for _, d := range after.Devices {
		roles[d.DeviceID] = d.Role
	}
	assert.Equal(t, domain.DeviceMirror, roles["dev-creator"])
	assert.Equal(t, domain.DeviceEmitter, roles["dev-creator-2"])

	require.NoError(t, f.eng.Pause(ctx, roomID, "creator", "dev-creator-2"))
	err = f.eng.Play(ctx, roomID, "creator", "dev-creator")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSkipAdvancesQueue(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{
		Name:                   "Skipper",
		IsOpen:                 true,
		MinimumScoreToBePlayed: 1,
	})
	ctx := context.Background()
	roomID := snap.RoomID

	require.NoError(t, f.eng.SuggestTrack(ctx, roomID, "creator", "dev-creator", domain.TrackMetadata{ID: "t1"}))
	require.NoError(t, f.eng.SuggestTrack(ctx, roomID, "creator", "dev-creator", domain.TrackMetadata{ID: "t2"}))
	require.NoError(t, f.eng.VoteForTrack(ctx, roomID, "creator", "dev-creator", "t1"))
	require.NoError(t, f.eng.VoteForTrack(ctx, roomID, "creator", "dev-creator", "t2"))

	mid, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	require.NotNil(t, mid.CurrentTrack)
	assert.Equal(t, domain.TrackID("t1"), mid.CurrentTrack.ID)

	// Skipping retires the slot and promotes the eligible head.
	require.NoError(t, f.eng.SkipToNext(ctx, roomID, "creator", "dev-creator"))
	after, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	require.NotNil(t, after.CurrentTrack)
	assert.Equal(t, domain.TrackID("t2"), after.CurrentTrack.ID)
	assert.True(t, after.Playing)
	assert.Empty(t, after.Tracks)

	require.NoError(t, f.eng.SkipToNext(ctx, roomID, "creator", "dev-creator"))
	empty, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.Nil(t, empty.CurrentTrack)
	assert.False(t, empty.Playing)

	err = f.eng.SkipToNext(ctx, roomID, "creator", "dev-creator")
	assert.ErrorIs(t, err, domain.ErrTrackNotFound)
}

func TestUnregisterLastDeviceLeavesRoom(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Dropped", IsOpen: true})
	ctx := context.Background()
	roomID := snap.RoomID

	_, err := f.eng.JoinRoom(ctx, roomID, "alice", "Alice", "dev-a")
	require.NoError(t, err)

	require.NoError(t, f.eng.UnregisterDevice(ctx, roomID, "alice", "dev-a"))
	mid, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.Len(t, mid.Participants, 1)
	assert.Equal(t, 1, mid.UsersLength)
	assert.Equal(t, 1, f.eng.RoomCount())
}

func TestUsersLengthCallbackOverridesLocalCount(t *testing.T) {
	f := newFixture(t)
	snap := f.createRoom(t, domain.RoomOptions{Name: "Counted", IsOpen: true})
	ctx := context.Background()
	roomID := snap.RoomID

	require.NoError(t, f.eng.UpdateUsersLength(ctx, roomID, 5))
	mid, err := f.eng.GetContext(ctx, roomID, "creator")
	require.NoError(t, err)
	assert.Equal(t, 5, mid.UsersLength)

	summary, err := f.sums.GetByID(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.UsersLength)
}

func TestCommandsForUnknownRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.JoinRoom(ctx, "room_missing", "alice", "Alice", "dev-a")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.ErrorIs(t, f.eng.Play(ctx, "room_missing", "alice", "dev-a"), domain.ErrRoomNotFound)
	assert.ErrorIs(t, f.eng.AcknowledgeExternalEvent(ctx, "room_missing", "ack_x", true), domain.ErrRoomNotFound)
}
