package governor

import (
	"time"

	"github.com/google/uuid"

	"sttmforge/internal/validate"
)

// State is a step of the attempt state machine.
type State string

const (
	StateGenerating       State = "GENERATING"
	StateSanitizing       State = "SANITIZING"
	StateSyntaxCheck      State = "SYNTAX_CHECK"
	StateSemanticCheck    State = "SEMANTIC_CHECK"
	StateSucceeded        State = "SUCCEEDED"
	StateRetryOrExhausted State = "RETRY_OR_EXHAUSTED"
	StateExhausted        State = "EXHAUSTED"
)

// Task is one generation request. It is never shared between runs.
type Task struct {
	ID      string
	Policy  string
	Payload any
	// MaxAttempts overrides the policy bound when positive.
	MaxAttempts int
}

// NewTask creates a task with a fresh id.
func NewTask(policyName string, payload any, maxAttempts int) Task {
	return Task{
		ID:          uuid.NewString(),
		Policy:      policyName,
		Payload:     payload,
		MaxAttempts: maxAttempts,
	}
}

// Attempt is the sealed record of one generate-and-validate pass.
type Attempt struct {
	Number    int
	Prompt    string
	Raw       string
	Sanitized string
	Report    validate.Report
	// State is the last state reached: SUCCEEDED or RETRY_OR_EXHAUSTED.
	State    State
	Judged   bool
	Duration time.Duration

	artifact *validate.Artifact
}

// Status is the terminal status of a task.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusExhausted Status = "exhausted"
)

// Outcome is produced exactly once per Run.
type Outcome struct {
	TaskID       string
	Policy       string
	Status       Status
	AttemptCount int

	// Success: the validated artifact and its advisory issues.
	Artifact        *validate.Artifact
	NonStrictIssues []validate.Issue

	// Exhausted: the strict issues of the last attempt.
	StrictIssues []validate.Issue

	Attempts []Attempt
}

// Succeeded reports whether the task produced an artifact.
func (o *Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// History returns the strict issue messages of every attempt, in order.
func (o *Outcome) History() [][]string {
	h := make([][]string, 0, len(o.Attempts))
	for _, a := range o.Attempts {
		h = append(h, a.Report.StrictMessages())
	}
	return h
}

// NonStrictMessages returns the advisory messages of a successful outcome.
func (o *Outcome) NonStrictMessages() []string {
	return validate.NewReport(o.NonStrictIssues...).NonStrictMessages()
}

// ArtifactText returns the validated artifact text, or "".
func (o *Outcome) ArtifactText() string {
	if o.Artifact == nil {
		return ""
	}
	return o.Artifact.Text
}
