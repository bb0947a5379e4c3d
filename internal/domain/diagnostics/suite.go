package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
)

// ErrUnknownCheck is returned by Run for a name no check is registered under.
var ErrUnknownCheck = errors.New("unknown self-test")

// Result is the outcome of one check.
type Result struct {
	Name       string  `json:"name"`
	Passed     bool    `json:"passed"`
	Reason     string  `json:"reason,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

// Report aggregates a run of checks.
type Report struct {
	Runs           int      `json:"runs"`
	Passed         int      `json:"passed"`
	Failed         int      `json:"failed"`
	FailureReasons []string `json:"failure_reasons"`
	SuccessRate    float64  `json:"success_rate"`
	DurationMs     float64  `json:"duration_ms"`
	Results        []Result `json:"results"`
	Stress         *Stress  `json:"stress,omitempty"`
}

// AllPassed reports whether at least one check ran and none failed.
func (r Report) AllPassed() bool {
	return r.Runs > 0 && r.Failed == 0
}

func (r *Report) add(res Result) {
	r.Runs++
	if res.Passed {
		r.Passed++
	} else {
		r.Failed++
		r.FailureReasons = append(r.FailureReasons, fmt.Sprintf("%s: %s", res.Name, res.Reason))
	}
	r.Results = append(r.Results, res)
	r.SuccessRate = float64(r.Passed) / float64(r.Runs)
}

// String renders the report for terminals.
func (r Report) String() string {
	var b strings.Builder
	b.WriteString("=== LiveBP Self-Test Report ===\n")
	for _, res := range r.Results {
		mark := "PASS"
		if !res.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s (%.2f ms)", mark, res.Name, res.DurationMs)
		if res.Reason != "" {
			fmt.Fprintf(&b, " - %s", res.Reason)
		}
		b.WriteByte('\n')
	}
	if r.Stress != nil {
		fmt.Fprintf(&b, "Stress: %d messages from %d users, %d sent, %d throttled, %d lock conflicts, %.1f msg/s\n",
			r.Stress.Messages, r.Stress.Users, r.Stress.Sent, r.Stress.Throttled, r.Stress.LockConflicts, r.Stress.MessagesPerSecond)
	}
	fmt.Fprintf(&b, "%d/%d passed (%.1f%%) in %.3fs\n", r.Passed, r.Runs, r.SuccessRate*100, r.DurationMs/1000)
	return b.String()
}

// check returns nil when it passes, or an error describing the failure.
type check func() error

// Suite runs the in-process self-tests.
type Suite struct {
	checks        map[string]check
	order         []string
	stressMessage int
	stressUsers   int
	log           *logging.Logger
}

// NewSuite creates a suite whose stress test sends messages messages from
// users simulated users.
func NewSuite(log *logging.Logger, messages, users int) *Suite {
	if log == nil {
		log = logging.NewNop()
	}
	s := &Suite{
		checks:        make(map[string]check),
		stressMessage: max(messages, 1),
		stressUsers:   max(users, 1),
		log:           log.Named("selftest"),
	}

	s.register("serialization/wire_preview", checkWirePreviewSerialization)
	s.register("serialization/node_operation", checkNodeOperationSerialization)
	s.register("serialization/node_lock", checkNodeLockSerialization)
	s.register("serialization/message", checkMessageSerialization)
	s.register("serialization/invalid_data", checkInvalidData)

	s.register("throttle/wire_preview", checkWirePreviewThrottling)
	s.register("throttle/structural", checkStructuralNotThrottled)
	s.register("throttle/per_user", checkPerUserThrottling)
	s.register("throttle/interval_settings", checkIntervalSettings)

	s.register("locks/basic", checkBasicLocking)
	s.register("locks/expiry", checkLockExpiry)
	s.register("locks/conflict_fifo", checkConflictingLocks)

	s.register("perf/throughput", checkThroughput)
	s.register("perf/latency", checkLatency)
	s.register("perf/memory", checkMemoryTracking)
	s.register("perf/detailed_timings", checkDetailedTimings)
	return s
}

func (s *Suite) register(name string, c check) {
	s.checks[name] = c
	s.order = append(s.order, name)
}

// Names lists the registered checks plus "stress", in run order.
func (s *Suite) Names() []string {
	return append(append([]string(nil), s.order...), "stress")
}

// RunAll runs every check and the stress test.
func (s *Suite) RunAll(ctx context.Context) Report {
	start := time.Now()
	var report Report
	for _, name := range s.order {
		if ctx.Err() != nil {
			break
		}
		report.add(s.runOne(name, s.checks[name]))
	}
	if ctx.Err() == nil {
		res, stress := s.runStress(ctx)
		report.add(res)
		report.Stress = &stress
	}
	report.DurationMs = msSince(start)
	s.log.Info("self-test complete",
		zap.Int("runs", report.Runs),
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
		zap.Float64("duration_ms", report.DurationMs))
	return report
}

// Run runs the checks whose names start with prefix, e.g. "locks" or
// "throttle/per_user". "stress" runs the stress test alone.
func (s *Suite) Run(ctx context.Context, prefix string) (Report, error) {
	start := time.Now()
	var report Report

	if prefix == "stress" {
		res, stress := s.runStress(ctx)
		report.add(res)
		report.Stress = &stress
		report.DurationMs = msSince(start)
		return report, nil
	}

	var names []string
	for _, name := range s.order {
		if name == prefix || strings.HasPrefix(name, prefix+"/") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return report, fmt.Errorf("%w: %q", ErrUnknownCheck, prefix)
	}
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		report.add(s.runOne(name, s.checks[name]))
	}
	report.DurationMs = msSince(start)
	return report, nil
}

func (s *Suite) runOne(name string, c check) (res Result) {
	start := time.Now()
	res.Name = name
	defer func() {
		if r := recover(); r != nil {
			res.Passed = false
			res.Reason = fmt.Sprintf("panic: %v", r)
		}
		res.DurationMs = msSince(start)
		s.logResult(res)
	}()

	if err := c(); err != nil {
		res.Reason = err.Error()
		return res
	}
	res.Passed = true
	return res
}

func (s *Suite) runStress(ctx context.Context) (Result, Stress) {
	start := time.Now()
	stress, err := StressTest(ctx, s.stressMessage, s.stressUsers)
	res := Result{Name: "stress", Passed: err == nil, DurationMs: msSince(start)}
	if err != nil {
		res.Reason = err.Error()
	}
	s.logResult(res)
	return res, stress
}

func (s *Suite) logResult(res Result) {
	if res.Passed {
		s.log.Debug("self-test passed", zap.String("check", res.Name))
		return
	}
	s.log.Warn("self-test failed", zap.String("check", res.Name), zap.String("reason", res.Reason))
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
