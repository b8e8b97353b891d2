package metrics

import (
	"context"
	"math"
	"sync"

	"sttmforge/internal/governor"
)

// Snapshot is the wire form of Stats.
type Snapshot struct {
	TotalRequests         int64   `json:"total_requests"`
	SuccessfulGenerations int64   `json:"successful_generations"`
	FailedGenerations     int64   `json:"failed_generations"`
	PythonValidations     int64   `json:"python_validations"`
	LLMValidations        int64   `json:"llm_validations"`
	AverageAttempts       float64 `json:"average_attempts"`
	SuccessRate           float64 `json:"success_rate"`
}

// Stats is an in-memory aggregate of task outcomes since process start.
type Stats struct {
	mu            sync.Mutex
	total         int64
	succeeded     int64
	failed        int64
	deterministic int64
	judged        int64
	attemptSum    int64
	attemptTasks  int64
}

// NewStats creates an empty aggregate.
func NewStats() *Stats {
	return &Stats{}
}

// RecordAttempt counts validation passes. An attempt whose oracle call
// failed never reached the validators.
func (s *Stats) RecordAttempt(_ context.Context, ev governor.AttemptEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Result != governor.ResultOracle {
		s.deterministic++
	}
	if ev.Judged {
		s.judged++
	}
}

// RecordOutcome counts a finished task. Fatal endings count as failures but
// do not contribute to the attempt average.
func (s *Stats) RecordOutcome(_ context.Context, ev governor.OutcomeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if ev.Status == governor.StatusSucceeded {
		s.succeeded++
	} else {
		s.failed++
	}
	if ev.Attempts > 0 {
		s.attemptSum += int64(ev.Attempts)
		s.attemptTasks++
	}
}

// Snapshot returns the current aggregate.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TotalRequests:         s.total,
		SuccessfulGenerations: s.succeeded,
		FailedGenerations:     s.failed,
		PythonValidations:     s.deterministic,
		LLMValidations:        s.judged,
	}
	if s.attemptTasks > 0 {
		snap.AverageAttempts = round2(float64(s.attemptSum) / float64(s.attemptTasks))
	}
	snap.SuccessRate = round2(float64(s.succeeded) / float64(max(s.total, 1)) * 100)
	return snap
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
