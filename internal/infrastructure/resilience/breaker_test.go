package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func tripAfter(n uint32) func(Counts) bool {
	return func(c Counts) bool { return c.ConsecutiveFailures >= n }
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		requests []func() error
		want     State
	}{
		{"stays closed on successes", []func() error{succeed, succeed, succeed}, StateClosed},
		{"opens after consecutive failures", []func() error{fail, fail, fail}, StateOpen},
		{"a success resets the streak", []func() error{fail, fail, succeed, fail, fail}, StateClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("test", Settings{ReadyToTrip: tripAfter(3)})
			for _, req := range tt.requests {
				_ = b.Do(req)
			}
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	b := New("test", Settings{})

	require.NoError(t, b.Do(succeed))
	assert.Equal(t, Counts{Requests: 1, TotalSuccesses: 1, ConsecutiveSuccesses: 1}, b.Counts())

	assert.ErrorIs(t, b.Do(fail), errBoom)
	assert.Equal(t, Counts{Requests: 2, TotalSuccesses: 1, TotalFailures: 1, ConsecutiveFailures: 1}, b.Counts())
}

func TestBreakerOpenRejects(t *testing.T) {
	b := New("test", Settings{ReadyToTrip: tripAfter(2)})
	_ = b.Do(fail)
	_ = b.Do(fail)
	require.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := newFakeClock()
	b := New("test", Settings{
		MaxRequests: 2,
		Timeout:     time.Second,
		ReadyToTrip: tripAfter(1),
		Clock:       clock.Now,
	})
	_ = b.Do(fail)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(2 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	// Two probes may be in flight; a third is refused.
	done1, err := b.Allow()
	require.NoError(t, err)
	done2, err := b.Allow()
	require.NoError(t, err)
	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrTooManyRequests)

	done1(nil)
	assert.Equal(t, StateHalfOpen, b.State())
	done2(nil)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := New("test", Settings{Timeout: time.Second, ReadyToTrip: tripAfter(1), Clock: clock.Now})
	_ = b.Do(fail)
	clock.Advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	_ = b.Do(fail)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerIntervalClearsCounts(t *testing.T) {
	clock := newFakeClock()
	b := New("test", Settings{Interval: time.Minute, ReadyToTrip: tripAfter(3), Clock: clock.Now})
	_ = b.Do(fail)
	_ = b.Do(fail)

	clock.Advance(2 * time.Minute)
	assert.Zero(t, b.Counts().ConsecutiveFailures)
	_ = b.Do(fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIgnoresStaleResults(t *testing.T) {
	b := New("test", Settings{ReadyToTrip: tripAfter(1)})
	done, err := b.Allow()
	require.NoError(t, err)

	b.Reset()
	done(errBoom)
	assert.Equal(t, StateClosed, b.State(), "a result from before Reset does not count")
	assert.Zero(t, b.Counts().TotalFailures)
}

func TestBreakerCancellationIsNotAFailure(t *testing.T) {
	b := New("test", Settings{ReadyToTrip: tripAfter(1)})
	err := b.Do(func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b := New("test", Settings{ReadyToTrip: tripAfter(1)})
	assert.Panics(t, func() {
		_ = b.Do(func() error { panic("kaboom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestExecuteReturnsResult(t *testing.T) {
	b := New("test", Settings{})
	n, err := Execute(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	s, err := Execute(b, func() (string, error) { return "", errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, s)
}

func TestBreakerStateChangeCallback(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	b := New("journal", Settings{
		Timeout:     time.Second,
		ReadyToTrip: tripAfter(2),
		Clock:       clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = b.Do(fail)
	_ = b.Do(fail)
	clock.Advance(2 * time.Second)
	_ = b.Do(succeed)

	assert.Equal(t, []string{
		"journal:closed->open",
		"journal:open->half-open",
		"journal:half-open->closed",
	}, transitions)
}

func TestSnapshotMarshalsStateByName(t *testing.T) {
	text, err := StateHalfOpen.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "half-open", string(text))

	snap := New("dial", Settings{}).Snapshot()
	assert.Equal(t, "dial", snap.Name)
	assert.Equal(t, StateClosed, snap.State)
}
