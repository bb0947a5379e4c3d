package diagnostics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAllPasses(t *testing.T) {
	s := NewSuite(nil, 1000, 5)
	report := s.RunAll(context.Background())

	for _, res := range report.Results {
		assert.True(t, res.Passed, "%s: %s", res.Name, res.Reason)
	}
	assert.True(t, report.AllPassed())
	assert.Equal(t, len(s.Names()), report.Runs)
	assert.Equal(t, report.Runs, report.Passed)
	assert.Zero(t, report.Failed)
	assert.Empty(t, report.FailureReasons)
	assert.Equal(t, 1.0, report.SuccessRate)
	require.NotNil(t, report.Stress)
	assert.Contains(t, report.String(), "passed (100.0%)")
}

func TestRunByPrefix(t *testing.T) {
	s := NewSuite(nil, 100, 2)

	tests := []struct {
		prefix string
		runs   int
	}{
		{"locks", 3},
		{"throttle", 4},
		{"serialization/node_lock", 1},
		{"stress", 1},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			report, err := s.Run(context.Background(), tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, tt.runs, report.Runs)
			assert.True(t, report.AllPassed(), report.FailureReasons)
		})
	}

	_, err := s.Run(context.Background(), "lock")
	assert.ErrorIs(t, err, ErrUnknownCheck)
}

func TestFailuresAreReported(t *testing.T) {
	s := NewSuite(nil, 10, 1)
	s.register("custom/failing", func() error { return errors.New("boom") })
	s.register("custom/panicking", func() error { panic("kaboom") })

	report, err := s.Run(context.Background(), "custom")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Runs)
	assert.Equal(t, 2, report.Failed)
	assert.False(t, report.AllPassed())
	assert.Equal(t, 0.0, report.SuccessRate)
	assert.Equal(t, []string{"custom/failing: boom", "custom/panicking: panic: kaboom"}, report.FailureReasons)
	assert.Contains(t, report.String(), "[FAIL] custom/failing")
}

func TestEmptyReport(t *testing.T) {
	var r Report
	assert.False(t, r.AllPassed())
	assert.Zero(t, r.SuccessRate)
}

func TestStressTest(t *testing.T) {
	stress, err := StressTest(context.Background(), 1000, 5)
	require.NoError(t, err)

	assert.Equal(t, 1000, stress.Sent+stress.Throttled)
	assert.Positive(t, stress.Throttled, "wire previews at 1 kHz are throttled")
	assert.Positive(t, stress.LocksGranted)
	assert.Positive(t, stress.LockConflicts)
	assert.LessOrEqual(t, stress.ActiveLocks, 2)
	assert.InDelta(t, 1.0, stress.SimulatedSeconds, 1e-6)
}

func TestStressTestRejectsEmptyRun(t *testing.T) {
	_, err := StressTest(context.Background(), 0, 5)
	assert.Error(t, err)
}

func TestStressTestHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := StressTest(ctx, 1000, 5)
	assert.ErrorIs(t, err, context.Canceled)
}
