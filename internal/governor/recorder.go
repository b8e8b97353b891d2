package governor

import (
	"context"
	"time"
)

// Attempt results reported to recorders.
const (
	ResultValid    = "valid"
	ResultOracle   = "oracle_error"
	ResultSyntax   = "syntax_error"
	ResultSemantic = "semantic_error"
)

// AttemptEvent describes one sealed attempt.
type AttemptEvent struct {
	TaskID   string
	Policy   string
	Number   int
	Result   string
	Judged   bool
	Duration time.Duration
}

// OutcomeEvent describes how a task ended. Fatal endings have an empty
// Status and a non-empty ErrorCode.
type OutcomeEvent struct {
	TaskID    string
	SessionID string
	Policy    string
	Status    Status
	Attempts  int
	ErrorCode string
	History   [][]string
	NonStrict []string
	Artifact  string
	Extension string
	At        time.Time
}

// Recorder observes attempts and outcomes. Implementations must be safe
// for concurrent use; batch runs share one.
type Recorder interface {
	RecordAttempt(ctx context.Context, ev AttemptEvent)
	RecordOutcome(ctx context.Context, ev OutcomeEvent)
}

type multiRecorder []Recorder

func (m multiRecorder) RecordAttempt(ctx context.Context, ev AttemptEvent) {
	for _, r := range m {
		r.RecordAttempt(ctx, ev)
	}
}

func (m multiRecorder) RecordOutcome(ctx context.Context, ev OutcomeEvent) {
	for _, r := range m {
		r.RecordOutcome(ctx, ev)
	}
}

// Recorders fans events out to every non-nil recorder.
func Recorders(rs ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
