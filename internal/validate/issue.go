// Package validate checks generated artifacts. Syntax checkers turn text into
// a parsed Artifact; rules inspect the Artifact and return typed Issues; a
// Report partitions Issues by severity.
package validate

import (
	"context"
	"fmt"
)

// Kind classifies an issue for feedback grouping.
type Kind string

const (
	KindMissingItem         Kind = "missing-item"
	KindUnresolvedReference Kind = "unresolved-reference"
	KindStructural          Kind = "structural"
	KindSyntax              Kind = "syntax"
	KindDialect             Kind = "dialect"
	KindOracle              Kind = "oracle"
	KindOther               Kind = "other"
)

// Severity decides whether an issue blocks acceptance.
type Severity string

const (
	SeverityStrict    Severity = "strict"
	SeverityNonStrict Severity = "non_strict"
)

// ParseSeverity maps a config value to a Severity. Anything other than
// "non_strict" is strict.
func ParseSeverity(s string) Severity {
	if s == string(SeverityNonStrict) {
		return SeverityNonStrict
	}
	return SeverityStrict
}

// Issue is one validation finding.
type Issue struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Subject  string   `json:"subject,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return i.Message
}

// Strict builds a strict issue.
func Strict(kind Kind, subject, format string, args ...interface{}) Issue {
	return Issue{Kind: kind, Severity: SeverityStrict, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// NonStrict builds an advisory issue.
func NonStrict(kind Kind, subject, format string, args ...interface{}) Issue {
	return Issue{Kind: kind, Severity: SeverityNonStrict, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// WithSeverity returns a copy of the issue with its severity replaced.
func (i Issue) WithSeverity(s Severity) Issue {
	i.Severity = s
	return i
}

// Artifact is the output of a successful syntax check.
type Artifact struct {
	// Text is the normalized artifact text.
	Text string
	// Value is the parsed form: map[string]any for JSON, *PythonModule for code.
	Value any
}

// RuleInput is what every rule sees.
type RuleInput struct {
	Artifact *Artifact
	// Required lists the items the artifact must cover (target columns).
	Required []string
}

// Rule is one independent semantic check.
type Rule func(ctx context.Context, in RuleInput) []Issue

// SyntaxChecker parses text into an Artifact. Parse failures are returned
// as *SyntaxError.
type SyntaxChecker func(ctx context.Context, text string) (*Artifact, error)

// RunRules applies rules in order and collects their issues into a Report.
func RunRules(ctx context.Context, rules []Rule, in RuleInput) Report {
	var issues []Issue
	for _, rule := range rules {
		issues = append(issues, rule(ctx, in)...)
	}
	return NewReport(issues...)
}
