// Package policy defines the named bundles the governor runs: a grammar, a
// rule set, an escalation predicate, an attempt bound and prompt assembly.
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"sttmforge/internal/validate"
)

// Policy names.
const (
	NameMapping = "structured-mapping"
	NameSilver  = "sql-silver"
	NameGold    = "sql-gold"
)

var (
	// ErrUnknownPolicy is returned by Lookup for an unregistered name.
	ErrUnknownPolicy = errors.New("unknown policy")
	// ErrInvalidPayload is returned when a payload does not fit its policy.
	ErrInvalidPayload = errors.New("invalid payload")
)

// PromptInput is everything a PromptBuilder may use for one attempt.
type PromptInput struct {
	Payload any
	Attempt int
	// Feedback is the cumulative directive; empty on attempt 1.
	Feedback string
	// PreviousOutput is the base64 of the last output, code policies only.
	PreviousOutput string
}

// PromptBuilder produces the system and user prompts for an attempt.
type PromptBuilder func(ctx context.Context, in PromptInput) (system, user string, err error)

// Policy is read-only once built.
type Policy struct {
	Name string

	Syntax validate.SyntaxChecker
	Rules  []validate.Rule

	// NeedsJudge decides per attempt whether to escalate to the judge. Nil
	// means never.
	NeedsJudge func(art *validate.Artifact) bool
	// JudgeSubjects lists what the judge should review.
	JudgeSubjects func(art *validate.Artifact) []validate.Transformation

	MaxAttempts int
	Prompt      PromptBuilder

	StrictCoverage              bool
	UnresolvedReferenceSeverity validate.Severity
	JudgeFailOpen               bool

	// FeedbackContainer names where missing items belong in feedback.
	FeedbackContainer string
	// ReusePreviousOutput shows the model its last output on retry.
	ReusePreviousOutput bool

	// ErrorCode and HTTPStatus describe exhaustion at the API boundary.
	ErrorCode  string
	HTTPStatus int

	// Extension is the artifact file extension used by sinks.
	Extension string

	decode   func(raw json.RawMessage) (any, error)
	required func(payload any) []string
}

// DecodePayload parses a wire payload for this policy.
func (p *Policy) DecodePayload(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s requires a payload", ErrInvalidPayload, p.Name)
	}
	return p.decode(raw)
}

// Required returns the items a payload obliges the artifact to cover.
func (p *Policy) Required(payload any) []string {
	if p.required == nil {
		return nil
	}
	return p.required(payload)
}

// Evaluate runs the deterministic rules against a parsed artifact.
func (p *Policy) Evaluate(ctx context.Context, art *validate.Artifact, payload any) validate.Report {
	return validate.RunRules(ctx, p.Rules, validate.RuleInput{
		Artifact: art,
		Required: p.Required(payload),
	})
}

// Attempts resolves the attempt bound for a task override.
func (p *Policy) Attempts(override int) int {
	if override > 0 {
		return override
	}
	return p.MaxAttempts
}

// Registry maps policy names to policies.
type Registry struct {
	policies map[string]*Policy
}

// NewRegistry creates a registry holding policies.
func NewRegistry(policies ...*Policy) *Registry {
	r := &Registry{policies: make(map[string]*Policy, len(policies))}
	for _, p := range policies {
		r.policies[p.Name] = p
	}
	return r
}

// Lookup returns the named policy.
func (r *Registry) Lookup(name string) (*Policy, error) {
	p, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid: %v)", ErrUnknownPolicy, name, r.Names())
	}
	return p, nil
}

// Names lists registered policy names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
