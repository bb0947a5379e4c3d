package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("circuit breaker is probing, too many requests")
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settings configures a Breaker. Zero values take the defaults noted.
type Settings struct {
	// MaxRequests is how many probes may run while half-open, and how many
	// must succeed to close again. Default 1.
	MaxRequests uint32
	// Interval clears the counts periodically while closed. Default 60s.
	Interval time.Duration
	// Timeout is how long the breaker stays open. Default 60s.
	Timeout time.Duration
	// ReadyToTrip decides, after a failure while closed, whether to open.
	// Default: more than 5 consecutive failures.
	ReadyToTrip func(counts Counts) bool
	// IsFailure classifies a returned error. Default: any error except
	// context cancellation.
	IsFailure func(err error) bool
	// OnStateChange runs on every transition, outside the breaker's lock.
	OnStateChange func(name string, from, to State)
	// Clock replaces time.Now in tests.
	Clock func() time.Time
}

// Counts are the request statistics of the current generation.
type Counts struct {
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name   string `json:"name"`
	State  State  `json:"state"`
	Counts Counts `json:"counts"`
}

// Breaker is a three-state circuit breaker. A generation number tags each
// request so results that arrive after a state change are ignored.
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a closed breaker.
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval == 0 {
		settings.Interval = 60 * time.Second
	}
	if settings.Timeout == 0 {
		settings.Timeout = 60 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	if settings.Clock == nil {
		settings.Clock = time.Now
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		expiry:   settings.Clock().Add(settings.Interval),
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	return b.Snapshot().State
}

// Counts returns the counts of the current generation.
func (b *Breaker) Counts() Counts {
	return b.Snapshot().Counts
}

// Snapshot returns the name, state and counts together.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	state, _, change := b.current(b.settings.Clock())
	snap := Snapshot{Name: b.name, State: state, Counts: b.counts}
	b.mu.Unlock()
	b.notify(change)
	return snap
}

// Reset closes the breaker and clears its counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	now := b.settings.Clock()
	change := b.setState(StateClosed, now)
	if change == nil {
		b.newGeneration(now)
	}
	b.mu.Unlock()
	b.notify(change)
}

// Allow reserves a slot for one request. The caller must pass the request's
// error to done. Allow fails with ErrCircuitOpen or ErrTooManyRequests when
// the request must not be attempted.
func (b *Breaker) Allow() (done func(err error), err error) {
	b.mu.Lock()
	state, generation, change := b.current(b.settings.Clock())
	switch {
	case state == StateOpen:
		err = ErrCircuitOpen
	case state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		err = ErrTooManyRequests
	default:
		b.counts.Requests++
	}
	b.mu.Unlock()
	b.notify(change)

	if err != nil {
		return nil, err
	}
	return func(reqErr error) {
		b.record(generation, !b.settings.IsFailure(reqErr))
	}, nil
}

// Do runs fn if the breaker allows it.
func (b *Breaker) Do(fn func() error) error {
	done, err := b.Allow()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			done(errPanic)
			panic(p)
		}
	}()
	err = fn()
	done(err)
	return err
}

var errPanic = errors.New("panic")

// Execute runs fn through b and returns its result.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Do(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

type stateChange struct {
	from, to State
}

func (b *Breaker) notify(c *stateChange) {
	if c != nil && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, c.from, c.to)
	}
}

func (b *Breaker) record(generation uint64, success bool) {
	b.mu.Lock()
	now := b.settings.Clock()
	state, current, change := b.current(now)
	if current != generation {
		b.mu.Unlock()
		b.notify(change)
		return
	}

	if success {
		b.counts.success()
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			change = b.setState(StateClosed, now)
		}
	} else {
		b.counts.failure()
		if state == StateHalfOpen || b.settings.ReadyToTrip(b.counts) {
			change = b.setState(StateOpen, now)
		}
	}
	b.mu.Unlock()
	b.notify(change)
}

// current advances time-based transitions and returns the state and
// generation. Callers hold b.mu.
func (b *Breaker) current(now time.Time) (State, uint64, *stateChange) {
	var change *stateChange
	switch b.state {
	case StateClosed:
		if now.After(b.expiry) {
			b.newGeneration(now)
		}
	case StateOpen:
		if now.After(b.expiry) {
			change = b.setState(StateHalfOpen, now)
		}
	}
	return b.state, b.generation, change
}

func (b *Breaker) setState(state State, now time.Time) *stateChange {
	if b.state == state {
		return nil
	}
	prev := b.state
	b.state = state
	b.newGeneration(now)
	return &stateChange{from: prev, to: state}
}

func (b *Breaker) newGeneration(now time.Time) {
	b.generation++
	b.counts = Counts{}
	switch b.state {
	case StateClosed:
		b.expiry = now.Add(b.settings.Interval)
	case StateOpen:
		b.expiry = now.Add(b.settings.Timeout)
	default:
		b.expiry = time.Time{}
	}
}
