package notify

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
)

func newTestCenter(t *testing.T) (*Center, *float64) {
	t.Helper()
	now := 100.0
	c := NewCenter(nil)
	c.SetClock(func() float64 { return now })
	t.Cleanup(c.Close)
	return c, &now
}

func TestTemplatesAndColors(t *testing.T) {
	for i := UserJoined; i <= NetworkError; i++ {
		assert.NotEqual(t, "Unknown notification", TemplateFor(i), i.String())
		assert.NotEqual(t, white, ColorFor(i), i.String())
	}
	assert.Equal(t, "Unknown", Type(40).String())
	assert.Equal(t, red, ColorFor(NetworkError))
}

func TestFormat(t *testing.T) {
	node := uuid.New()
	msg := Format("{UserId}/{UserDisplayName} touched {NodeId}", "u1", "Alice", node)
	assert.Equal(t, "u1/Alice touched "+node.String(), msg)
}

func TestShowDeliversAndStores(t *testing.T) {
	c, _ := newTestCenter(t)

	var mu sync.Mutex
	var got []Notification
	c.Subscribe(func(n Notification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})

	c.UserJoined("alice", "Alice")

	require.Len(t, got, 1)
	assert.Equal(t, UserJoined, got[0].Type)
	assert.Equal(t, "Alice joined the collaboration session", got[0].Message)
	assert.Equal(t, DefaultDuration, got[0].Duration)
	assert.Equal(t, green, got[0].Color)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, 1, c.ActiveCount())
}

func TestDisabledCenterIgnoresAndClears(t *testing.T) {
	c, _ := newTestCenter(t)
	c.UserLeft("bob", "Bob")
	require.Equal(t, 1, c.ActiveCount())

	c.SetEnabled(false)
	assert.Equal(t, 0, c.ActiveCount())

	c.UserJoined("carol", "Carol")
	assert.Equal(t, 0, c.ActiveCount())
	assert.False(t, c.Enabled())
}

func TestConflictResolvedMessage(t *testing.T) {
	c, _ := newTestCenter(t)
	c.ConflictResolved("Lock Conflict", "First come first served")

	active := c.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "Conflict resolved: Lock Conflict - First come first served", active[0].Message)
	assert.Equal(t, ConflictResolved, active[0].Type)
}

func TestErrorNotificationsLastLonger(t *testing.T) {
	c, _ := newTestCenter(t)
	c.Error("socket closed", true)
	c.Error("bad payload", false)

	active := c.Active()
	require.Len(t, active, 2)
	assert.Equal(t, NetworkError, active[0].Type)
	assert.Equal(t, SyncError, active[1].Type)
	assert.Equal(t, ErrorDuration, active[0].Duration)
}

func TestSetDefaultDurationClamps(t *testing.T) {
	c, _ := newTestCenter(t)
	c.SetDefaultDuration(0.1)
	assert.Equal(t, MinDuration, c.DefaultDuration())

	c.SetDefaultDuration(7)
	c.UserJoined("a", "A")
	assert.Equal(t, 7.0, c.Active()[0].Duration)
}

func TestCleanupDropsExpired(t *testing.T) {
	c, now := newTestCenter(t)
	c.UserJoined("a", "A")
	c.Error("oops", false)

	assert.Equal(t, 2, c.Cleanup(*now+3))
	assert.Equal(t, 1, c.Cleanup(*now+4))
	assert.Equal(t, 0, c.Cleanup(*now+6))
}

func TestMarkupIsStripped(t *testing.T) {
	c, _ := newTestCenter(t)
	node := uuid.New()
	c.NodeLocked("mallory", "<script>alert(1)</script>Mallory", node)

	n := c.Active()[0]
	assert.Equal(t, "Mallory", n.UserDisplayName)
	assert.Equal(t, "Mallory locked a node", n.Message)

	notice := n.Notice()
	assert.Equal(t, node.String(), notice.NodeID)
	assert.Equal(t, "NodeLocked", notice.Type)
}

func TestSanitizedTextIsNotEscaped(t *testing.T) {
	c, _ := newTestCenter(t)

	tests := []struct {
		name        string
		displayName string
		want        string
	}{
		{"apostrophe", "O'Brien", "O'Brien"},
		{"ampersand", "A & B", "A & B"},
		{"quotes", `"Rex"`, `"Rex"`},
		{"markup", "<i>Ana</i>", "Ana"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := c.Create(UserJoined, "user", tt.displayName, "", uuid.Nil)
			assert.Equal(t, tt.want, n.UserDisplayName)
			assert.Equal(t, tt.want+" joined the collaboration session", n.Message)
		})
	}

	n := c.Create(ConflictResolved, "", "", "Tom & Jerry's <b>graph</b>", uuid.Nil)
	assert.Equal(t, "Tom & Jerry's graph", n.Message)
}

func TestPlainStripsMarkupOnly(t *testing.T) {
	c, _ := newTestCenter(t)
	assert.Equal(t, "Ann & co", c.plain("<script>x</script>Ann & co"))
	assert.Equal(t, "Ann is here", Format("{UserId} is here", c.plain("<b>Ann</b>"), "", uuid.Nil))
}

func TestForOperation(t *testing.T) {
	typ, ok := ForOperation(protocol.OpPinConnect)
	assert.True(t, ok)
	assert.Equal(t, ConnectionMade, typ)

	_, ok = ForOperation(protocol.OpPropertyChange)
	assert.False(t, ok)
}
