// Package governor drives an oracle toward a valid artifact: it assembles
// prompts, sanitizes and validates output, feeds strict issues back and
// stops on success or after a bounded number of attempts.
package governor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"sttmforge/internal/config"
	"sttmforge/internal/feedback"
	"sttmforge/internal/logging"
	"sttmforge/internal/oracle"
	"sttmforge/internal/policy"
	"sttmforge/internal/prompts"
	"sttmforge/internal/sanitize"
	"sttmforge/internal/validate"
)

// Governor runs tasks. It holds no per-task state and is safe for
// concurrent use.
type Governor struct {
	client       oracle.Client
	judge        oracle.Client
	registry     *policy.Registry
	logger       *zap.Logger
	recorder     Recorder
	tracer       trace.Tracer
	attemptDelay time.Duration
}

// Option configures a Governor.
type Option func(*Governor)

// WithJudge sets the oracle used for semantic escalation. It defaults to
// the generation client.
func WithJudge(c oracle.Client) Option {
	return func(g *Governor) { g.judge = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Governor) { g.logger = l }
}

// WithRecorder sets the attempt and outcome observer.
func WithRecorder(r Recorder) Option {
	return func(g *Governor) { g.recorder = r }
}

// WithTracer sets the tracer for task and attempt spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Governor) { g.tracer = t }
}

// WithAttemptDelay pauses between attempts.
func WithAttemptDelay(d time.Duration) Option {
	return func(g *Governor) { g.attemptDelay = d }
}

// WithRegistry sets the policies tasks are resolved against. It defaults to
// the built-in policies with embedded prompt templates.
func WithRegistry(r *policy.Registry) Option {
	return func(g *Governor) { g.registry = r }
}

// New creates a governor around an injected oracle client.
func New(client oracle.Client, opts ...Option) *Governor {
	g := &Governor{client: client}
	for _, opt := range opts {
		opt(g)
	}
	if g.judge == nil {
		g.judge = client
	}
	if g.registry == nil {
		g.registry = policy.FromConfig(config.DefaultConfig().Policies, prompts.NewLoader(""))
	}
	if g.logger == nil {
		g.logger = logging.Get(logging.CategoryGovernor).Zap()
	}
	if g.recorder == nil {
		g.recorder = Recorders()
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer("sttmforge/governor")
	}
	return g
}

// Registry returns the policies this governor resolves tasks against.
func (g *Governor) Registry() *policy.Registry {
	return g.registry
}

// Run drives task to an Outcome. The only errors returned are
// *FatalConfigurationError (no outcome) and *ExhaustionError (returned with
// the Exhausted outcome).
func (g *Governor) Run(ctx context.Context, task Task) (*Outcome, error) {
	p, err := g.registry.Lookup(task.Policy)
	if err != nil {
		return nil, g.end(ctx, task, "", fatal(CodeInvalidTask, http.StatusBadRequest, err))
	}

	maxAttempts := p.Attempts(task.MaxAttempts)
	log := g.logger.With(zap.String("task_id", task.ID), zap.String("policy", p.Name))

	ctx, span := g.tracer.Start(ctx, "governor.run", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.policy", p.Name),
		attribute.Int("task.max_attempts", maxAttempts),
	))
	defer span.End()

	synth := feedback.NewSynthesizer(p.FeedbackContainer)
	judge := validate.NewJudge(g.judge, p.JudgeFailOpen)
	var history []Attempt

	for n := 1; n <= maxAttempts; n++ {
		if n > 1 && g.attemptDelay > 0 {
			if err := sleep(ctx, g.attemptDelay); err != nil {
				return nil, g.endSpan(span, g.end(ctx, task, p.Extension, cancelled(err)))
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, g.endSpan(span, g.end(ctx, task, p.Extension, cancelled(err)))
		}

		att, ferr := g.attempt(ctx, p, task, n, synth, judge)
		if ferr != nil {
			log.Warn("task aborted", zap.Int("attempt", n), zap.String("code", ferr.Code), zap.Error(ferr.Err))
			return nil, g.endSpan(span, g.end(ctx, task, p.Extension, ferr))
		}
		history = append(history, att)
		g.recorder.RecordAttempt(ctx, AttemptEvent{
			TaskID:   task.ID,
			Policy:   p.Name,
			Number:   n,
			Result:   attemptResult(att),
			Judged:   att.Judged,
			Duration: att.Duration,
		})

		if att.Report.IsValid() {
			out := &Outcome{
				TaskID:          task.ID,
				Policy:          p.Name,
				Status:          StatusSucceeded,
				AttemptCount:    n,
				Artifact:        att.artifact,
				NonStrictIssues: att.Report.NonStrictIssues,
				Attempts:        history,
			}
			log.Info("task succeeded", zap.Int("attempts", n), zap.Int("non_strict", len(out.NonStrictIssues)))
			span.SetAttributes(attribute.String("task.status", string(StatusSucceeded)), attribute.Int("task.attempts", n))
			g.recordOutcome(ctx, out, p.Extension, "")
			return out, nil
		}

		log.Info("attempt failed validation",
			zap.Int("attempt", n),
			zap.Int("max_attempts", maxAttempts),
			zap.Strings("strict_issues", att.Report.StrictMessages()))

		synth.Add(n, att.Report.StrictIssues)
		if p.ReusePreviousOutput && att.Sanitized != "" {
			synth.PreviousOutput(att.Sanitized)
		}
	}

	last := history[len(history)-1]
	history[len(history)-1].State = StateExhausted
	out := &Outcome{
		TaskID:       task.ID,
		Policy:       p.Name,
		Status:       StatusExhausted,
		AttemptCount: len(history),
		StrictIssues: last.Report.StrictIssues,
		Attempts:     history,
	}
	exhausted := newExhaustionError(p.ErrorCode, p.HTTPStatus, out)
	log.Warn("task exhausted", zap.Int("attempts", out.AttemptCount), zap.Strings("failure_reasons", exhausted.FailureReasons))
	span.SetAttributes(attribute.String("task.status", string(StatusExhausted)), attribute.Int("task.attempts", out.AttemptCount))
	span.SetStatus(codes.Error, exhausted.ErrorCode)
	g.recordOutcome(ctx, out, p.Extension, exhausted.ErrorCode)
	return out, exhausted
}

// attempt performs one pass. A non-nil error means the task must stop and
// the attempt is not counted.
func (g *Governor) attempt(ctx context.Context, p *policy.Policy, task Task, n int,
	synth *feedback.Synthesizer, judge *validate.Judge) (Attempt, *FatalConfigurationError) {
	start := time.Now()
	att := Attempt{Number: n, State: StateGenerating}

	ctx, span := g.tracer.Start(ctx, "governor.attempt", trace.WithAttributes(attribute.Int("attempt", n)))
	defer span.End()

	seal := func(report validate.Report) (Attempt, *FatalConfigurationError) {
		att.Report = report
		att.Duration = time.Since(start)
		if report.IsValid() {
			att.State = StateSucceeded
		} else {
			att.State = StateRetryOrExhausted
		}
		span.SetAttributes(attribute.Bool("attempt.valid", report.IsValid()))
		return att, nil
	}

	system, user, err := p.Prompt(ctx, policy.PromptInput{
		Payload:        task.Payload,
		Attempt:        n,
		Feedback:       synth.Directive(),
		PreviousOutput: synth.Previous(),
	})
	if err != nil {
		if errors.Is(err, policy.ErrInvalidPayload) {
			return att, fatal(CodeInvalidTask, http.StatusBadRequest, err)
		}
		return att, fatal(CodePromptConfiguration, http.StatusServiceUnavailable, err)
	}
	att.Prompt = user

	// GENERATING
	if err := ctx.Err(); err != nil {
		return att, cancelled(err)
	}
	raw, err := g.client.Complete(ctx, system, user)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return att, cancelled(ctxErr)
		}
		classified := oracle.Classify(err)
		if oracle.IsFatal(classified) {
			return att, fatal(CodeOracleConfiguration, http.StatusServiceUnavailable, classified)
		}
		g.logger.Warn("oracle call failed", zap.String("task_id", task.ID), zap.Int("attempt", n), zap.Error(err))
		return seal(validate.NewReport(validate.Strict(validate.KindOracle, "", "oracle call failed: %v", err)))
	}
	att.Raw = raw

	// SANITIZING
	att.State = StateSanitizing
	att.Sanitized = sanitize.Sanitize(raw)

	// SYNTAX_CHECK
	att.State = StateSyntaxCheck
	art, err := p.Syntax(ctx, att.Sanitized)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return att, cancelled(ctxErr)
		}
		var syn *validate.SyntaxError
		if !errors.As(err, &syn) {
			syn = &validate.SyntaxError{Detail: err.Error()}
		}
		return seal(validate.NewReport(syn.Issue()))
	}

	// SEMANTIC_CHECK
	att.State = StateSemanticCheck
	report := p.Evaluate(ctx, art, task.Payload)
	if p.NeedsJudge != nil && p.NeedsJudge(art) {
		var subjects []validate.Transformation
		if p.JudgeSubjects != nil {
			subjects = p.JudgeSubjects(art)
		}
		verdict, err := judge.Review(ctx, art, subjects)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return att, cancelled(ctxErr)
			}
			return att, fatal(CodeOracleConfiguration, http.StatusServiceUnavailable, err)
		}
		att.Judged = true
		report = report.Merge(verdict)
	}
	att.artifact = art
	return seal(report)
}

func cancelled(err error) *FatalConfigurationError {
	return fatal(CodeTaskCancelled, 499, err)
}

// end records a fatal ending and returns it.
func (g *Governor) end(ctx context.Context, task Task, ext string, ferr *FatalConfigurationError) error {
	g.recorder.RecordOutcome(context.WithoutCancel(ctx), OutcomeEvent{
		TaskID:    task.ID,
		SessionID: logging.SessionID(),
		Policy:    task.Policy,
		ErrorCode: ferr.Code,
		Extension: ext,
		At:        time.Now(),
	})
	return ferr
}

func (g *Governor) endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (g *Governor) recordOutcome(ctx context.Context, out *Outcome, ext, errorCode string) {
	g.recorder.RecordOutcome(context.WithoutCancel(ctx), OutcomeEvent{
		TaskID:    out.TaskID,
		SessionID: logging.SessionID(),
		Policy:    out.Policy,
		Status:    out.Status,
		Attempts:  out.AttemptCount,
		ErrorCode: errorCode,
		History:   out.History(),
		NonStrict: out.NonStrictMessages(),
		Artifact:  out.ArtifactText(),
		Extension: ext,
		At:        time.Now(),
	})
}

func attemptResult(a Attempt) string {
	if a.Report.IsValid() {
		return ResultValid
	}
	for _, issue := range a.Report.StrictIssues {
		switch issue.Kind {
		case validate.KindOracle:
			if a.Raw == "" {
				return ResultOracle
			}
		case validate.KindSyntax:
			return ResultSyntax
		}
	}
	return ResultSemantic
}

func messagesOf(issues []validate.Issue) []string {
	return validate.NewReport(issues...).StrictMessages()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// String renders a short summary for logs.
func (o *Outcome) String() string {
	return fmt.Sprintf("%s %s after %d attempts", o.Policy, o.Status, o.AttemptCount)
}
