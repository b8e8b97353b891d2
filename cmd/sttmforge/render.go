package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sttmforge/internal/governor"
	"sttmforge/internal/metrics"
	"sttmforge/internal/store"
	"sttmforge/internal/validate"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

func renderOutcome(w io.Writer, task governor.Task, out *governor.Outcome, err error) {
	var exhausted *governor.ExhaustionError
	var fatal *governor.FatalConfigurationError

	switch {
	case err == nil && out != nil:
		fmt.Fprintf(w, "%s %s in %d attempt(s) %s\n",
			okStyle.Render("✓ SUCCEEDED"), out.Policy, out.AttemptCount, dimStyle.Render(out.TaskID))
		for _, msg := range out.NonStrictMessages() {
			fmt.Fprintf(w, "  %s %s\n", warnStyle.Render("!"), msg)
		}
		fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(out.ArtifactText(), "\n")))

	case errors.As(err, &exhausted):
		fmt.Fprintf(w, "%s %s %s\n",
			failStyle.Render("✗ "+exhausted.ErrorCode), exhausted.Message, dimStyle.Render(task.ID))
		for i, attempt := range exhausted.History {
			fmt.Fprintf(w, "  %s\n", titleStyle.Render(fmt.Sprintf("attempt %d", i+1)))
			for _, msg := range attempt {
				fmt.Fprintf(w, "    - %s\n", msg)
			}
		}

	case errors.As(err, &fatal):
		fmt.Fprintf(w, "%s %v %s\n", failStyle.Render("✗ "+fatal.Code), fatal.Err, dimStyle.Render(task.ID))

	default:
		fmt.Fprintf(w, "%s %v\n", failStyle.Render("✗ ERROR"), err)
	}
}

func renderReport(w io.Writer, r validate.Report) {
	if r.IsValid() {
		fmt.Fprintln(w, okStyle.Render("✓ valid"))
	} else {
		fmt.Fprintln(w, failStyle.Render("✗ invalid"))
	}
	for _, msg := range r.StrictMessages() {
		fmt.Fprintf(w, "  %s %s\n", failStyle.Render("strict"), msg)
	}
	for _, msg := range r.NonStrictMessages() {
		fmt.Fprintf(w, "  %s %s\n", warnStyle.Render("non-strict"), msg)
	}
}

func renderStats(w io.Writer, s metrics.Snapshot) {
	fmt.Fprintln(w, boxStyle.Render(fmt.Sprintf(
		"tasks %d  succeeded %d  failed %d\nsuccess rate %.2f%%  average attempts %.2f\ndeterministic checks %d  judge calls %d",
		s.TotalRequests, s.SuccessfulGenerations, s.FailedGenerations,
		s.SuccessRate, s.AverageAttempts,
		s.PythonValidations, s.LLMValidations)))
}

func renderSummary(w io.Writer, rows []store.PolicySummary) {
	if len(rows) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no runs recorded"))
		return
	}
	header := fmt.Sprintf("%-20s %6s %9s %9s %6s %8s", "POLICY", "TOTAL", "SUCCEEDED", "EXHAUSTED", "FAILED", "AVG ATT")
	fmt.Fprintln(w, titleStyle.Render(header))
	for _, r := range rows {
		fmt.Fprintf(w, "%-20s %6d %9d %9d %6d %8.2f\n",
			r.Policy, r.Total, r.Succeeded, r.Exhausted, r.Failed, r.AverageAttempts)
	}
}

func renderRuns(w io.Writer, runs []store.Run) {
	fmt.Fprintln(w)
	for _, r := range runs {
		style := okStyle
		if r.Status != string(governor.StatusSucceeded) {
			style = failStyle
		}
		fmt.Fprintf(w, "%s %-10s %-20s attempts=%d %s\n",
			dimStyle.Render(r.CreatedAt.Format("2006-01-02 15:04:05")),
			style.Render(r.Status), r.Policy, r.Attempts, r.ErrorCode)
	}
}
