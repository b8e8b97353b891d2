// Package feedback turns strict validation issues into corrective
// instructions that accumulate across attempts.
package feedback

import (
	"encoding/base64"
	"fmt"
	"strings"

	"sttmforge/internal/logging"
	"sttmforge/internal/validate"
)

// Sample bounds per bucket.
const (
	maxMissingItems   = 10
	maxUnresolvedRefs = 5
	maxStructural     = 3
	maxOther          = 3
)

// Bucket groups issue kinds that share one instruction line.
type Bucket string

const (
	BucketMissingItem         Bucket = "missing-item"
	BucketUnresolvedReference Bucket = "unresolved-reference"
	BucketStructural          Bucket = "structural"
	BucketOther               Bucket = "other"
)

// BucketOf maps an issue kind to its bucket.
func BucketOf(kind validate.Kind) Bucket {
	switch kind {
	case validate.KindMissingItem:
		return BucketMissingItem
	case validate.KindUnresolvedReference:
		return BucketUnresolvedReference
	case validate.KindStructural, validate.KindSyntax:
		return BucketStructural
	default:
		return BucketOther
	}
}

type section struct {
	attempt int
	lines   []string
}

// Synthesizer accumulates feedback for one task. It is not safe for
// concurrent use; each task owns its own.
type Synthesizer struct {
	container string
	sections  []section
	previous  string
}

// NewSynthesizer creates a synthesizer. container names where missing items
// belong, e.g. "column_mapping".
func NewSynthesizer(container string) *Synthesizer {
	if container == "" {
		container = "the output"
	}
	return &Synthesizer{container: container}
}

// Add records the strict issues of an attempt as one feedback section.
func (s *Synthesizer) Add(attempt int, strict []validate.Issue) {
	lines := Lines(strict, s.container)
	if len(lines) == 0 {
		return
	}
	s.sections = append(s.sections, section{attempt: attempt, lines: lines})
	logging.FeedbackDebug("attempt %d: %d feedback lines from %d issues", attempt, len(lines), len(strict))
}

// Directive returns every section recorded so far, oldest first.
func (s *Synthesizer) Directive() string {
	parts := make([]string, 0, len(s.sections))
	for _, sec := range s.sections {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Attempt %d feedback:", sec.attempt)
		for _, line := range sec.lines {
			sb.WriteString("\n- ")
			sb.WriteString(line)
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n\n")
}

// PreviousOutput remembers the last output so the next prompt can ask for a
// targeted fix. It is stored base64-encoded so gateway content filters do not
// trip on raw code.
func (s *Synthesizer) PreviousOutput(raw string) {
	s.previous = base64.StdEncoding.EncodeToString([]byte(raw))
}

// Previous returns the encoded previous output, if any.
func (s *Synthesizer) Previous() string {
	return s.previous
}

// Lines groups issues by bucket into instruction lines. Buckets appear in a
// fixed order.
func Lines(issues []validate.Issue, container string) []string {
	var missing, refs, structural, other []string
	seenRef := map[string]bool{}

	for _, issue := range issues {
		switch BucketOf(issue.Kind) {
		case BucketMissingItem:
			missing = append(missing, subjectOrMessage(issue))
		case BucketUnresolvedReference:
			subj := subjectOrMessage(issue)
			if !seenRef[subj] {
				seenRef[subj] = true
				refs = append(refs, subj)
			}
		case BucketStructural:
			structural = append(structural, issue.Message)
		default:
			other = append(other, issue.Message)
		}
	}

	var lines []string
	if len(missing) > 0 {
		lines = append(lines, fmt.Sprintf("Add these missing items to %s: %s", container, sample(missing, maxMissingItems, true)))
	}
	if len(refs) > 0 {
		lines = append(lines, "Add these source tables to source_tables list: "+sample(refs, maxUnresolvedRefs, true))
	}
	if len(structural) > 0 {
		lines = append(lines, "Fix these structure issues: "+strings.Join(head(structural, maxStructural), "; "))
	}
	if len(other) > 0 {
		lines = append(lines, "Address these issues: "+strings.Join(head(other, maxOther), "; "))
	}
	return lines
}

func subjectOrMessage(i validate.Issue) string {
	if i.Subject != "" {
		return i.Subject
	}
	return i.Message
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func sample(items []string, n int, countRest bool) string {
	out := strings.Join(head(items, n), ", ")
	if countRest && len(items) > n {
		out += fmt.Sprintf(" and %d others", len(items)-n)
	}
	return out
}
