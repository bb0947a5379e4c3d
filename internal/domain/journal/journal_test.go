package journal

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/infrastructure/resilience"
)

func testMessage(user string) protocol.Message {
	return protocol.NewHeartbeat(protocol.Target{BlueprintID: uuid.New(), GraphID: uuid.New()}, user)
}

func newTestJournal(t *testing.T, capacity int, store Store) (*Journal, *float64) {
	t.Helper()
	now := 1000.0
	j := New(capacity, store, nil)
	j.SetClock(func() float64 { return now })
	return j, &now
}

func TestAppendIsBounded(t *testing.T) {
	j, _ := newTestJournal(t, 3, nil)
	ctx := context.Background()

	for _, user := range []string{"a", "b", "c", "d", "e"} {
		_, err := j.Append(ctx, testMessage(user))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, j.Len())
	recent := j.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].Message.UserID)
	assert.Equal(t, uint64(5), recent[2].Seq)
}

func TestRecent(t *testing.T) {
	j, _ := newTestJournal(t, 10, nil)
	ctx := context.Background()
	for _, user := range []string{"a", "b", "c"} {
		_, _ = j.Append(ctx, testMessage(user))
	}

	tests := []struct {
		name  string
		n     int
		users []string
	}{
		{"all", 0, []string{"a", "b", "c"}},
		{"last two", 2, []string{"b", "c"}},
		{"more than stored", 10, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var users []string
			for _, e := range j.Recent(tt.n) {
				users = append(users, e.Message.UserID)
			}
			assert.Equal(t, tt.users, users)
		})
	}
}

func TestSinceAndCleanup(t *testing.T) {
	j, now := newTestJournal(t, 10, nil)
	ctx := context.Background()

	_, _ = j.Append(ctx, testMessage("old"))
	*now += 100
	_, _ = j.Append(ctx, testMessage("new"))

	since := j.Since(1050)
	require.Len(t, since, 1)
	assert.Equal(t, "new", since[0].Message.UserID)
	assert.Empty(t, j.Since(2000))

	removed, err := j.Cleanup(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, j.Len())

	j.Clear()
	assert.Zero(t, j.Len())
}

func TestExportRoundTrip(t *testing.T) {
	j, _ := newTestJournal(t, 10, nil)
	ctx := context.Background()
	_, _ = j.Append(ctx, testMessage("a"))
	_, _ = j.Append(ctx, testMessage("b"))

	var buf bytes.Buffer
	n, err := j.Export(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := ReadExport(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[1].Message.UserID)
	assert.Equal(t, protocol.MessageHeartbeat, entries[1].Message.Type)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)

	j, now := newTestJournal(t, 2, store)
	defer j.Close()

	first := testMessage("a")
	first.Payload = []byte("x")
	_, err = j.Append(ctx, first)
	require.NoError(t, err)
	*now += 10
	_, _ = j.Append(ctx, testMessage("b"))
	*now += 10
	_, _ = j.Append(ctx, testMessage("c"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Message.UserID)
	assert.Equal(t, "c", recent[1].Message.UserID)

	pruned, err := store.Prune(ctx, 1005)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	restored := New(10, store, nil)
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, 2, restored.Len())

	e, err := restored.Append(ctx, testMessage("d"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), e.Seq)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

type failingStore struct {
	inserts int
}

func (s *failingStore) Insert(context.Context, Entry) error { s.inserts++; return errors.New("disk full") }
func (s *failingStore) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (s *failingStore) Prune(context.Context, float64) (int64, error) { return 0, nil }
func (s *failingStore) Close() error { return nil }

func TestFailingStoreTripsBreaker(t *testing.T) {
	store := &failingStore{}
	j, _ := newTestJournal(t, 10, store)
	j.SetBreaker(resilience.New("journal-store", resilience.Settings{
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 2 },
	}))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := j.Append(ctx, testMessage("alice"))
		assert.Error(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := j.Append(ctx, testMessage("alice"))
		assert.NoError(t, err, "writes are skipped while the store is unavailable")
	}

	assert.Equal(t, 2, store.inserts)
	assert.Equal(t, 5, j.Len())
	p := j.Persistence()
	assert.True(t, p.Enabled)
	require.NotNil(t, p.Store)
	assert.Equal(t, resilience.StateOpen, p.Store.State)
	assert.Equal(t, int64(3), p.Skipped)
}

func TestPersistenceWithoutStore(t *testing.T) {
	j, _ := newTestJournal(t, 10, nil)
	assert.Equal(t, Persistence{}, j.Persistence())
}
