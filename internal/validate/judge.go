package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sttmforge/internal/logging"
	"sttmforge/internal/oracle"
	"sttmforge/internal/sanitize"
)

// judgeDocumentLimit bounds how much of the artifact is shown to the judge.
const judgeDocumentLimit = 5000

const judgeSystemPrompt = "You review source-to-target mapping documents. Reply with JSON only."

// Judge escalates semantic review of complex transformations to an oracle.
type Judge struct {
	client   oracle.Client
	failOpen bool
}

// NewJudge creates a judge. With failOpen, an unusable judge reply degrades
// to a non-strict note instead of a strict issue.
func NewJudge(client oracle.Client, failOpen bool) *Judge {
	return &Judge{client: client, failOpen: failOpen}
}

type judgeVerdict struct {
	IsValid         *bool    `json:"is_valid"`
	StrictIssues    []string `json:"strict_issues"`
	NonStrictIssues []string `json:"non_strict_issues"`
}

// Review asks the judge about the complex transformations in a mapping
// artifact. The returned error is non-nil only for cancellation or a fatal
// oracle error; every other failure is folded into the report.
func (j *Judge) Review(ctx context.Context, art *Artifact, complex []Transformation) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	reply, err := j.client.Complete(ctx, judgeSystemPrompt, JudgePrompt(art.Text, complex))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Report{}, ctxErr
		}
		if oracle.IsFatal(err) {
			return Report{}, err
		}
		return j.unavailable(fmt.Sprintf("judge call failed: %v", err)), nil
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(sanitize.Sanitize(reply)), &verdict); err != nil || verdict.IsValid == nil {
		reason := "judge reply is not a verdict object"
		if err != nil {
			reason = fmt.Sprintf("judge reply is not valid JSON: %v", err)
		}
		return j.unavailable(reason), nil
	}

	var issues []Issue
	for _, msg := range verdict.StrictIssues {
		if msg = strings.TrimSpace(msg); msg != "" {
			issues = append(issues, Strict(KindOther, "", "%s", msg))
		}
	}
	for _, msg := range verdict.NonStrictIssues {
		if msg = strings.TrimSpace(msg); msg != "" {
			issues = append(issues, NonStrict(KindOther, "", "%s", msg))
		}
	}
	if !*verdict.IsValid && len(verdict.StrictIssues) == 0 {
		issues = append(issues, Strict(KindOther, "", "semantic review rejected the mapping without details"))
	}
	return NewReport(issues...), nil
}

func (j *Judge) unavailable(reason string) Report {
	logging.ValidateWarn("judge unavailable (fail_open=%v): %s", j.failOpen, reason)
	if j.failOpen {
		return NewReport(NonStrict(KindOracle, "", "judge unavailable: %s", reason))
	}
	return NewReport(Strict(KindOracle, "", "judge unavailable: %s", reason))
}

// JudgePrompt builds the review request.
func JudgePrompt(document string, complex []Transformation) string {
	if r := []rune(document); len(r) > judgeDocumentLimit {
		document = string(r[:judgeDocumentLimit]) + "..."
	}

	var sb strings.Builder
	sb.WriteString("Validate this STTM JSON for complex transformation correctness.\n\n")
	sb.WriteString("JSON to validate:\n")
	sb.WriteString(document)
	sb.WriteString("\n\n")

	if len(complex) > 0 {
		sb.WriteString("Complex transformations to review:\n")
		for _, t := range complex {
			fmt.Fprintf(&sb, "- %s: %s\n", t.Column, t.Expression)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Key validation points:\n")
	sb.WriteString("1. Are complex transformations (Case When, Conditional, custom SQL) syntactically correct and internally consistent?\n")
	sb.WriteString("2. Do transformations reference valid columns?\n")
	sb.WriteString("3. Are join conditions properly formatted?\n\n")
	sb.WriteString("Return only:\n")
	sb.WriteString(`{"is_valid": true/false, "strict_issues": ["issue1", "issue2"], "non_strict_issues": []}`)
	sb.WriteString("\n")
	return sb.String()
}
