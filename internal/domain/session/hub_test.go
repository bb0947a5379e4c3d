package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/infrastructure/config"
)

var target = protocol.Target{BlueprintID: uuid.New(), GraphID: uuid.New()}

type testClock struct{ t float64 }

func (c *testClock) now() float64 { return c.t }

func newTestHub(t *testing.T, mutate func(*config.Settings), filters ...string) (*Hub, *testClock) {
	t.Helper()
	clock := &testClock{t: 1000}
	settings := config.DefaultSettings()
	if mutate != nil {
		mutate(&settings)
	}
	h, err := New(Options{Settings: settings, BlueprintFilters: filters, Clock: clock.now})
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h, clock
}

func join(t *testing.T, h *Hub, name string) *Participant {
	t.Helper()
	p, err := h.Join(name)
	require.NoError(t, err)
	return p
}

// drain returns every envelope currently queued for p.
func drain(p *Participant) []protocol.Envelope {
	var out []protocol.Envelope
	for {
		select {
		case env, ok := <-p.Outbound():
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func messages(envs []protocol.Envelope, t protocol.MessageType) []protocol.Message {
	var out []protocol.Message
	for _, env := range envs {
		if env.Kind == protocol.KindMessage && env.Message.Type == t {
			out = append(out, *env.Message)
		}
	}
	return out
}

func notices(envs []protocol.Envelope) []protocol.Notice {
	var out []protocol.Notice
	for _, env := range envs {
		if env.Kind == protocol.KindNotification {
			out = append(out, *env.Notification)
		}
	}
	return out
}

func opMessage(t *testing.T, user string, kind protocol.NodeOperationKind, node uuid.UUID) protocol.Message {
	t.Helper()
	op := protocol.NodeOperation{Kind: kind, NodeID: node, NodeClass: "K2Node_CallFunction", UserID: user}
	msg, err := protocol.NewNodeOperationMessage(target, op)
	require.NoError(t, err)
	return msg
}

func previewMessage(t *testing.T, user string, node uuid.UUID, endX float64) protocol.Message {
	t.Helper()
	p := protocol.WirePreview{
		NodeID:  node,
		PinName: "Exec",
		Start:   protocol.Vector2D{X: 0, Y: 0},
		End:     protocol.Vector2D{X: endX, Y: 10},
		UserID:  user,
	}
	msg, err := protocol.NewWirePreviewMessage(target, p, true)
	require.NoError(t, err)
	return msg
}

func lockMessage(t *testing.T, mt protocol.MessageType, user string, node uuid.UUID) protocol.Message {
	t.Helper()
	msg, err := protocol.NewLockMessage(mt, target, protocol.NodeLock{NodeID: node, State: protocol.Locked, UserID: user})
	require.NoError(t, err)
	return msg
}

func TestJoinSendsWelcomeAndPresence(t *testing.T) {
	h, _ := newTestHub(t, nil)
	alice := join(t, h, "alice")

	welcome := drain(alice)
	require.NotEmpty(t, welcome)
	require.Equal(t, protocol.KindWelcome, welcome[0].Kind)
	assert.Equal(t, "alice", welcome[0].Welcome.UserID)
	assert.Equal(t, h.SessionID().String(), welcome[0].Welcome.SessionID)
	assert.True(t, welcome[0].Welcome.BinaryPreviews)

	bob := join(t, h, "bob")
	assert.Equal(t, []string{"alice", "bob"}, drain(bob)[0].Welcome.Users)

	envs := drain(alice)
	var presence *protocol.Presence
	for _, env := range envs {
		if env.Kind == protocol.KindPresence {
			presence = env.Presence
		}
	}
	require.NotNil(t, presence)
	assert.Equal(t, "bob", presence.Joined)

	joined := notices(envs)
	require.Len(t, joined, 1)
	assert.Equal(t, "UserJoined", joined[0].Type)
}

func TestWelcomeIsFirstWhileRelaying(t *testing.T) {
	h, _ := newTestHub(t, func(s *config.Settings) { s.MaxMessageQueueSize = 1000 })
	join(t, h, "alice")
	ctx := context.Background()
	op := opMessage(t, "alice", protocol.OpAdd, uuid.New())

	stop := make(chan struct{})
	published := make(chan struct{})
	go func() {
		defer close(published)
		for {
			select {
			case <-stop:
				return
			default:
				_ = h.Publish(ctx, "alice", op)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		p := join(t, h, "bob")
		env := <-p.Outbound()
		require.Equal(t, protocol.KindWelcome, env.Kind, "join %d", i)
		require.NoError(t, h.Leave(p.UserID))
	}
	close(stop)
	<-published
}

func TestJoinNames(t *testing.T) {
	h, _ := newTestHub(t, nil)

	first := join(t, h, "alice")
	second := join(t, h, "alice")
	third := join(t, h, "  ")

	assert.Equal(t, "alice", first.UserID)
	assert.Equal(t, "alice_2", second.UserID)
	assert.True(t, strings.HasPrefix(third.UserID, "User_"))
	assert.Len(t, h.ConnectedUsers(), 3)
}

func TestJoinRejectsWhenFull(t *testing.T) {
	h, _ := newTestHub(t, func(s *config.Settings) { s.MaxConcurrentUsers = 2 })
	join(t, h, "a")
	join(t, h, "b")

	_, err := h.Join("c")
	assert.ErrorIs(t, err, ErrSessionFull)
}

func TestPublishRelaysWithoutEcho(t *testing.T) {
	h, _ := newTestHub(t, nil)
	alice := join(t, h, "alice")
	bob := join(t, h, "bob")
	drain(alice)
	drain(bob)

	node := uuid.New()
	require.NoError(t, h.Publish(context.Background(), "alice", opMessage(t, "alice", protocol.OpAdd, node)))

	assert.Empty(t, messages(drain(alice), protocol.MessageNodeOperation))

	bobEnvs := drain(bob)
	relayed := messages(bobEnvs, protocol.MessageNodeOperation)
	require.Len(t, relayed, 1)
	assert.Equal(t, "alice", relayed[0].UserID)

	added := notices(bobEnvs)
	require.Len(t, added, 1)
	assert.Equal(t, "NodeAdded", added[0].Type)

	assert.Equal(t, 1, h.Journal().Len())
	assert.Equal(t, int64(1), h.Stats().Relayed)
}

func TestPublishRejects(t *testing.T) {
	h, _ := newTestHub(t, nil)
	join(t, h, "alice")
	ctx := context.Background()

	err := h.Publish(ctx, "mallory", opMessage(t, "mallory", protocol.OpAdd, uuid.New()))
	assert.ErrorIs(t, err, ErrUnknownParticipant)

	err = h.Publish(ctx, "alice", opMessage(t, "bob", protocol.OpAdd, uuid.New()))
	assert.ErrorIs(t, err, ErrUserMismatch)

	bad := opMessage(t, "alice", protocol.OpAdd, uuid.New())
	bad.GraphID = uuid.Nil
	err = h.Publish(ctx, "alice", bad)
	assert.ErrorIs(t, err, protocol.ErrInvalidMessage)

	missingClass := protocol.NodeOperation{Kind: protocol.OpAdd, NodeID: uuid.New(), UserID: "alice"}
	msg, err := protocol.NewNodeOperationMessage(target, missingClass)
	require.NoError(t, err)
	assert.ErrorIs(t, h.Publish(ctx, "alice", msg), protocol.ErrInvalidMessage)

	assert.Equal(t, map[string]int{"user_mismatch": 1, "validation": 2}, h.Perf().ErrorKinds())
}

func TestPublishWhenDisabled(t *testing.T) {
	h, _ := newTestHub(t, nil)
	join(t, h, "alice")

	assert.False(t, h.Toggle())
	err := h.Publish(context.Background(), "alice", opMessage(t, "alice", protocol.OpAdd, uuid.New()))
	assert.ErrorIs(t, err, ErrCollaborationDisabled)
	assert.Equal(t, int64(1), h.Stats().Dropped["disabled"])

	assert.True(t, h.Toggle())
}

func TestWirePreviewThrottleAndDedup(t *testing.T) {
	h, clock := newTestHub(t, nil)
	join(t, h, "alice")
	bob := join(t, h, "bob")
	drain(bob)
	ctx := context.Background()
	node := uuid.New()

	require.NoError(t, h.Publish(ctx, "alice", previewMessage(t, "alice", node, 10)))

	err := h.Publish(ctx, "alice", previewMessage(t, "alice", node, 10))
	assert.ErrorIs(t, err, ErrDuplicatePreview)
	assert.True(t, Silent(err))

	err = h.Publish(ctx, "alice", previewMessage(t, "alice", node, 50))
	assert.ErrorIs(t, err, ErrThrottled)

	clock.t += 0.2
	require.NoError(t, h.Publish(ctx, "alice", previewMessage(t, "alice", node, 90)))

	relayed := messages(drain(bob), protocol.MessageWirePreview)
	require.Len(t, relayed, 2)
	preview, err := protocol.DecodeWirePreview(relayed[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, 90.0, preview.End.X)

	assert.Equal(t, 1, h.Throttler().Stats("alice", protocol.MessageWirePreview).Throttled)
}

func TestThrottledPreviewPositionIsRelayedLater(t *testing.T) {
	h, clock := newTestHub(t, nil)
	join(t, h, "alice")
	bob := join(t, h, "bob")
	drain(bob)
	ctx := context.Background()
	node := uuid.New()

	require.NoError(t, h.Publish(ctx, "alice", previewMessage(t, "alice", node, 100)))

	clock.t += 0.05
	assert.ErrorIs(t, h.Publish(ctx, "alice", previewMessage(t, "alice", node, 200)), ErrThrottled)

	clock.t += 0.5
	require.NoError(t, h.Publish(ctx, "alice", previewMessage(t, "alice", node, 200)),
		"a throttled position was never relayed, so it is not a duplicate")

	var ends []float64
	for _, msg := range messages(drain(bob), protocol.MessageWirePreview) {
		preview, err := protocol.DecodeWirePreview(msg.Payload)
		require.NoError(t, err)
		ends = append(ends, preview.End.X)
	}
	assert.Equal(t, []float64{100, 200}, ends)
}

func TestLeaveForgetsPreviews(t *testing.T) {
	h, clock := newTestHub(t, nil)
	join(t, h, "alice")
	join(t, h, "bob")
	ctx := context.Background()
	node := uuid.New()

	require.NoError(t, h.Publish(ctx, "alice", previewMessage(t, "alice", node, 10)))
	require.NoError(t, h.Publish(ctx, "bob", previewMessage(t, "bob", node, 10)))
	require.Equal(t, 2, h.PreviewCount())

	require.NoError(t, h.Leave("alice"))
	assert.Equal(t, 1, h.PreviewCount())

	clock.t += 0.2
	join(t, h, "alice")
	assert.NoError(t, h.Publish(ctx, "alice", previewMessage(t, "alice", node, 10)),
		"a rejoined user's first preview is not a duplicate")
}

func TestSweepAgesOutPreviews(t *testing.T) {
	h, clock := newTestHub(t, nil)
	join(t, h, "alice")
	ctx := context.Background()

	require.NoError(t, h.Publish(ctx, "alice", previewMessage(t, "alice", uuid.New(), 10)))
	clock.t += 10
	require.NoError(t, h.Publish(ctx, "alice", previewMessage(t, "alice", uuid.New(), 10)))

	clock.t += 25
	h.Sweep()
	assert.Equal(t, 1, h.PreviewCount())

	clock.t += 10
	h.Sweep()
	assert.Zero(t, h.PreviewCount())
}

func TestWirePreviewsDisabled(t *testing.T) {
	h, _ := newTestHub(t, func(s *config.Settings) { s.EnableWirePreviews = false })
	join(t, h, "alice")
	err := h.Publish(context.Background(), "alice", previewMessage(t, "alice", uuid.New(), 1))
	assert.ErrorIs(t, err, ErrPreviewsDisabled)
}

func TestLocksAreBroadcastAndEnforced(t *testing.T) {
	h, _ := newTestHub(t, nil)
	alice := join(t, h, "alice")
	bob := join(t, h, "bob")
	drain(alice)
	drain(bob)
	ctx := context.Background()
	node := uuid.New()

	require.NoError(t, h.Publish(ctx, "alice", lockMessage(t, protocol.MessageLockRequest, "alice", node)))
	assert.Equal(t, "alice", h.Locks().Owner(node))

	for _, p := range []*Participant{alice, bob} {
		granted := messages(drain(p), protocol.MessageLockRequest)
		require.Len(t, granted, 1, p.UserID)
		lock, err := protocol.DecodeNodeLock(granted[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, protocol.Locked, lock.State)
		assert.Equal(t, target.BlueprintID, granted[0].BlueprintID)
	}

	err := h.Publish(ctx, "bob", opMessage(t, "bob", protocol.OpMove, node))
	assert.ErrorIs(t, err, ErrNodeLocked)

	bobNotes := notices(drain(bob))
	require.Len(t, bobNotes, 2)
	assert.Equal(t, "ConflictResolved", bobNotes[0].Type)
	assert.True(t, strings.HasPrefix(bobNotes[0].Message, "Conflict resolved: "))
	assert.Equal(t, "SyncError", bobNotes[1].Type)
	assert.Empty(t, messages(drain(alice), protocol.MessageNodeOperation))

	require.NoError(t, h.Publish(ctx, "alice", opMessage(t, "alice", protocol.OpMove, node)))

	require.NoError(t, h.Publish(ctx, "bob", lockMessage(t, protocol.MessageLockRequest, "bob", node)))
	assert.Equal(t, protocol.Locked, h.Locks().State(node))
	assert.Equal(t, 1, h.Locks().PendingCount(node))

	require.NoError(t, h.Publish(ctx, "alice", lockMessage(t, protocol.MessageLockRelease, "alice", node)))
	assert.Equal(t, "bob", h.Locks().Owner(node))

	released := messages(drain(bob), protocol.MessageLockRelease)
	require.Len(t, released, 1)
}

func TestLeaveReleasesLocks(t *testing.T) {
	h, _ := newTestHub(t, nil)
	join(t, h, "alice")
	bob := join(t, h, "bob")
	ctx := context.Background()
	node := uuid.New()

	require.NoError(t, h.Publish(ctx, "alice", lockMessage(t, protocol.MessageLockRequest, "alice", node)))
	require.NoError(t, h.Publish(ctx, "bob", lockMessage(t, protocol.MessageLockRequest, "bob", node)))
	drain(bob)

	require.NoError(t, h.Leave("alice"))
	assert.Equal(t, "bob", h.Locks().Owner(node))
	assert.ErrorIs(t, h.Leave("alice"), ErrUnknownParticipant)

	envs := drain(bob)
	left := notices(envs)
	require.NotEmpty(t, left)
	assert.Equal(t, "UserLeft", left[len(left)-1].Type)
	assert.Equal(t, []string{"bob"}, h.Stats().Users)
}

func TestSweepExpiresLocks(t *testing.T) {
	h, clock := newTestHub(t, nil)
	join(t, h, "alice")
	node := uuid.New()

	require.NoError(t, h.Publish(context.Background(), "alice", lockMessage(t, protocol.MessageLockRequest, "alice", node)))
	require.Equal(t, 1, h.Locks().Count())

	clock.t += 31
	h.Sweep()
	assert.Zero(t, h.Locks().Count())
}

func TestOutboundQueueOverflow(t *testing.T) {
	h, _ := newTestHub(t, func(s *config.Settings) { s.MaxMessageQueueSize = 10 })
	join(t, h, "alice")
	bob := join(t, h, "bob")
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, h.Publish(ctx, "alice", opMessage(t, "alice", protocol.OpAdd, uuid.New())))
	}

	assert.Equal(t, 10, bob.QueueDepth())
	assert.Positive(t, bob.Dropped())
	assert.Positive(t, h.Stats().Dropped["queue_full"])
	assert.Positive(t, h.Perf().Metrics().NetworkErrors)
}

func TestBlueprintFiltersAndTracking(t *testing.T) {
	h, _ := newTestHub(t, nil, "/Game/Shared/**")
	join(t, h, "alice")
	join(t, h, "bob")
	ctx := context.Background()

	open := func(user, path string) error {
		n := protocol.BlueprintNotice{BlueprintID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)), Path: path, Name: "BP"}
		msg, err := protocol.NewBlueprintMessage(protocol.MessageBlueprintOpened, target.GraphID, user, n)
		require.NoError(t, err)
		return h.Publish(ctx, user, msg)
	}

	assert.ErrorIs(t, open("alice", "/Game/Private/BP_Secret"), ErrFiltered)
	require.NoError(t, open("alice", "/Game/Shared/Props/BP_Door"))
	require.NoError(t, open("bob", "/Game/Shared/Props/BP_Door"))

	bps := h.Blueprints()
	require.Len(t, bps, 1)
	assert.Equal(t, []string{"alice", "bob"}, bps[0].Users)

	require.NoError(t, h.Leave("alice"))
	require.NoError(t, h.Leave("bob"))
	assert.Empty(t, h.Blueprints())
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Settings: config.DefaultSettings(), BlueprintFilters: []string{"/Game/[unclosed"}})
	assert.Error(t, err)

	_, err = New(Options{Settings: config.DefaultSettings(), SimulatedLatency: 6 * time.Second})
	assert.ErrorIs(t, err, ErrInvalidLatency)
}

func TestSimulatedLatencyDelaysRelay(t *testing.T) {
	h, _ := newTestHub(t, nil)
	join(t, h, "alice")
	bob := join(t, h, "bob")
	drain(bob)

	assert.ErrorIs(t, h.SetSimulatedLatency(-time.Millisecond), ErrInvalidLatency)
	require.NoError(t, h.SetSimulatedLatency(20*time.Millisecond))

	require.NoError(t, h.Publish(context.Background(), "alice", opMessage(t, "alice", protocol.OpDelete, uuid.New())))
	assert.Eventually(t, func() bool {
		select {
		case env := <-bob.Outbound():
			return env.Kind == protocol.KindMessage
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestDebugAndReset(t *testing.T) {
	h, _ := newTestHub(t, nil)
	join(t, h, "alice")

	h.SetDebug(true)
	assert.True(t, h.Debug())
	assert.True(t, h.Settings().LogAllMessages)

	require.NoError(t, h.Publish(context.Background(), "alice", opMessage(t, "alice", protocol.OpAdd, uuid.New())))
	h.ResetStats()
	stats := h.Stats()
	assert.Zero(t, stats.Relayed)
	assert.Zero(t, stats.Performance.TotalMessagesReceived)
}
