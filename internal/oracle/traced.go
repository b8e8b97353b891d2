package oracle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sttmforge/internal/logging"
)

// Traced wraps a client with a span and a log line per call, and classifies
// every error it returns.
type Traced struct {
	next    Client
	backend string
	tracer  trace.Tracer
}

// NewTraced wraps next; backend names it in spans and logs.
func NewTraced(next Client, backend string) *Traced {
	return &Traced{
		next:    next,
		backend: backend,
		tracer:  otel.Tracer("sttmforge/oracle"),
	}
}

func (t *Traced) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, span := t.tracer.Start(ctx, "oracle.complete", trace.WithAttributes(
		attribute.String("oracle.backend", t.backend),
		attribute.Int("oracle.prompt_chars", len(systemPrompt)+len(userPrompt)),
	))
	defer span.End()

	start := time.Now()
	text, err := t.next.Complete(ctx, systemPrompt, userPrompt)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() == nil {
			err = Classify(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.OracleWarn("%s call failed after %v: %v", t.backend, elapsed, err)
		return "", err
	}

	span.SetAttributes(attribute.Int("oracle.response_chars", len(text)))
	logging.OracleDebug("%s call completed in %v (%d chars)", t.backend, elapsed, len(text))
	return text, nil
}
