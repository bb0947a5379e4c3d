package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
	"github.com/deepdev237/LivePrint/internal/infrastructure/resilience"
)

// DefaultCapacity is the number of entries kept in memory.
const DefaultCapacity = 500

// Entry is one journaled message.
type Entry struct {
	Seq        uint64           `json:"seq"`
	RecordedAt float64          `json:"recorded_at"`
	Message    protocol.Message `json:"message"`
}

// Store persists entries beyond the lifetime of the process.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Prune(ctx context.Context, before float64) (int64, error)
	Close() error
}

// Journal is a bounded history of relayed messages, optionally backed by a
// Store.
type Journal struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	seq      uint64

	store   Store
	breaker *resilience.Breaker
	skipped atomic.Int64
	now     protocol.Clock
	log     *logging.Logger
}

// New creates a journal holding at most capacity entries in memory. store
// may be nil.
func New(capacity int, store Store, log *logging.Logger) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = logging.NewNop()
	}
	j := &Journal{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		store:    store,
		now:      protocol.Now,
		log:      log.Named("journal"),
	}
	j.breaker = resilience.New("journal-store", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: j.storeStateChanged,
	})
	return j
}

func (j *Journal) storeStateChanged(name string, from, to resilience.State) {
	if to == resilience.StateOpen {
		j.log.Warn("journal store unavailable, keeping history in memory only",
			zap.String("breaker", name), zap.Stringer("from", from))
		return
	}
	j.log.Info("journal store state changed",
		zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
}

// SetBreaker replaces the breaker guarding store writes.
func (j *Journal) SetBreaker(b *resilience.Breaker) {
	j.breaker = b
}

// Persistence describes the backing store.
type Persistence struct {
	Enabled bool                 `json:"enabled"`
	Store   *resilience.Snapshot `json:"store,omitempty"`
	Skipped int64                `json:"skipped_writes"`
}

// Persistence reports whether entries are persisted and how the store is
// doing.
func (j *Journal) Persistence() Persistence {
	if j.store == nil {
		return Persistence{}
	}
	snap := j.breaker.Snapshot()
	return Persistence{Enabled: true, Store: &snap, Skipped: j.skipped.Load()}
}

// SetClock replaces the clock. Tests use it.
func (j *Journal) SetClock(clock protocol.Clock) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.now = clock
}

// Restore loads the most recent persisted entries into memory.
func (j *Journal) Restore(ctx context.Context) error {
	if j.store == nil {
		return nil
	}
	entries, err := j.store.Recent(ctx, j.capacity)
	if err != nil {
		return fmt.Errorf("restore journal: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries[:0], entries...)
	if n := len(entries); n > 0 {
		j.seq = max(j.seq, entries[n-1].Seq)
	}
	j.log.Info("journal restored", zap.Int("entries", len(entries)))
	return nil
}

// Append records a message and returns its entry.
func (j *Journal) Append(ctx context.Context, msg protocol.Message) (Entry, error) {
	j.mu.Lock()
	j.seq++
	e := Entry{Seq: j.seq, RecordedAt: j.now(), Message: msg}
	j.entries = append(j.entries, e)
	if over := len(j.entries) - j.capacity; over > 0 {
		j.entries = append(j.entries[:0], j.entries[over:]...)
	}
	j.mu.Unlock()

	if j.store == nil {
		return e, nil
	}
	err := j.breaker.Do(func() error { return j.store.Insert(ctx, e) })
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		// The entry stays in memory; the store is being given time to recover.
		j.skipped.Add(1)
		return e, nil
	case err != nil:
		return e, fmt.Errorf("persist journal entry: %w", err)
	}
	return e, nil
}

// Recent returns up to n of the newest entries, oldest first. n <= 0
// returns everything.
func (j *Journal) Recent(n int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	start := 0
	if n > 0 && n < len(j.entries) {
		start = len(j.entries) - n
	}
	return append([]Entry(nil), j.entries[start:]...)
}

// Since returns the entries recorded at or after ts.
func (j *Journal) Since(ts float64) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for i, e := range j.entries {
		if e.RecordedAt >= ts {
			return append([]Entry(nil), j.entries[i:]...)
		}
	}
	return nil
}

// Len returns the number of entries in memory.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Capacity returns the in-memory limit.
func (j *Journal) Capacity() int {
	return j.capacity
}

// Clear drops every in-memory entry.
func (j *Journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = j.entries[:0]
}

// Cleanup drops entries older than maxAge seconds, in memory and in the
// store. It returns the number of in-memory entries removed.
func (j *Journal) Cleanup(ctx context.Context, maxAge float64) (int, error) {
	j.mu.Lock()
	cutoff := j.now() - maxAge
	drop := 0
	for drop < len(j.entries) && j.entries[drop].RecordedAt < cutoff {
		drop++
	}
	if drop > 0 {
		j.entries = append(j.entries[:0], j.entries[drop:]...)
	}
	j.mu.Unlock()

	if j.store != nil {
		pruned, err := j.store.Prune(ctx, cutoff)
		if err != nil {
			return drop, fmt.Errorf("prune journal store: %w", err)
		}
		if pruned > 0 {
			j.log.Debug("journal store pruned", zap.Int64("rows", pruned))
		}
	}
	return drop, nil
}

// Run calls Cleanup every interval until ctx is done.
func (j *Journal) Run(ctx context.Context, interval time.Duration, maxAge float64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Cleanup(ctx, maxAge); err != nil {
				j.log.Warn("journal cleanup failed", zap.Error(err))
			}
		}
	}
}

// Export writes the in-memory entries to w as zstd-compressed NDJSON.
func (j *Journal) Export(w io.Writer) (int, error) {
	entries := j.Recent(0)

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	buf := bufio.NewWriter(enc)
	for _, e := range entries {
		line, err := sonic.Marshal(e)
		if err != nil {
			_ = enc.Close()
			return 0, fmt.Errorf("encode entry %d: %w", e.Seq, err)
		}
		_, _ = buf.Write(line)
		_ = buf.WriteByte('\n')
	}
	if err := buf.Flush(); err != nil {
		_ = enc.Close()
		return 0, fmt.Errorf("write export: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("finish export: %w", err)
	}
	return len(entries), nil
}

// ReadExport decodes an export produced by Export.
func ReadExport(r io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	var entries []Entry
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := sonic.Unmarshal(line, &e); err != nil {
			return entries, fmt.Errorf("decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read export: %w", err)
	}
	return entries, nil
}

// Close closes the store.
func (j *Journal) Close() error {
	if j.store == nil {
		return nil
	}
	return j.store.Close()
}
