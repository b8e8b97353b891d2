package validate

import "encoding/json"

// Report is the result of validating one attempt. Validity is derived from
// the strict issues and cannot be set independently.
type Report struct {
	StrictIssues    []Issue
	NonStrictIssues []Issue
}

// NewReport partitions issues by severity, preserving order.
func NewReport(issues ...Issue) Report {
	var r Report
	for _, issue := range issues {
		if issue.Severity == SeverityNonStrict {
			r.NonStrictIssues = append(r.NonStrictIssues, issue)
		} else {
			r.StrictIssues = append(r.StrictIssues, issue)
		}
	}
	return r
}

// IsValid reports whether there are no strict issues.
func (r Report) IsValid() bool {
	return len(r.StrictIssues) == 0
}

// Merge returns a report holding the issues of r followed by those of other.
// Nothing is ever removed.
func (r Report) Merge(other Report) Report {
	out := Report{
		StrictIssues:    make([]Issue, 0, len(r.StrictIssues)+len(other.StrictIssues)),
		NonStrictIssues: make([]Issue, 0, len(r.NonStrictIssues)+len(other.NonStrictIssues)),
	}
	out.StrictIssues = append(append(out.StrictIssues, r.StrictIssues...), other.StrictIssues...)
	out.NonStrictIssues = append(append(out.NonStrictIssues, r.NonStrictIssues...), other.NonStrictIssues...)
	if len(out.StrictIssues) == 0 {
		out.StrictIssues = nil
	}
	if len(out.NonStrictIssues) == 0 {
		out.NonStrictIssues = nil
	}
	return out
}

// StrictMessages returns the strict issue messages in order.
func (r Report) StrictMessages() []string {
	return messages(r.StrictIssues)
}

// NonStrictMessages returns the non-strict issue messages in order.
func (r Report) NonStrictMessages() []string {
	return messages(r.NonStrictIssues)
}

func messages(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Message)
	}
	return out
}

// MarshalJSON renders the wire shape used by the HTTP surface.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IsValid         bool     `json:"is_valid"`
		StrictIssues    []string `json:"strict_issues"`
		NonStrictIssues []string `json:"non_strict_issues"`
	}{r.IsValid(), r.StrictMessages(), r.NonStrictMessages()})
}
