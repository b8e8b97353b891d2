// Package metrics aggregates task statistics in memory and exports
// Prometheus collectors for the governor and the oracles.
package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sttmforge/internal/governor"
	"sttmforge/internal/oracle"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors.
type Metrics struct {
	TasksTotal            *prometheus.CounterVec
	AttemptsTotal         *prometheus.CounterVec
	OracleCallsTotal      *prometheus.CounterVec
	TaskAttempts          *prometheus.HistogramVec
	JudgeEscalationsTotal *prometheus.CounterVec
}

// NewMetrics registers the collectors with the default registry. It is safe
// to call repeatedly; registration happens once per process.
//
// Metrics:
//   - sttmforge_tasks_total{policy,status}
//   - sttmforge_attempts_total{policy,result}
//   - sttmforge_oracle_calls_total{kind,result}
//   - sttmforge_task_attempts{policy}
//   - sttmforge_judge_escalations_total{policy}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			TasksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sttmforge_tasks_total",
					Help: "Total number of tasks by terminal status",
				},
				[]string{"policy", "status"}, // succeeded, exhausted, or an error code
			),

			AttemptsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sttmforge_attempts_total",
					Help: "Total number of sealed attempts by result",
				},
				[]string{"policy", "result"},
			),

			OracleCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sttmforge_oracle_calls_total",
					Help: "Total number of oracle calls by kind and result",
				},
				[]string{"kind", "result"}, // kind: generate, judge; result: ok, transient, fatal
			),

			TaskAttempts: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "sttmforge_task_attempts",
					Help:    "Attempts used per finished task",
					Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
				},
				[]string{"policy"},
			),

			JudgeEscalationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sttmforge_judge_escalations_total",
					Help: "Total number of attempts escalated to the judge",
				},
				[]string{"policy"},
			),
		}
	})
	return globalMetrics
}

// Collector feeds governor events into the Prometheus collectors.
type Collector struct {
	m *Metrics
}

// NewCollector returns a governor.Recorder backed by NewMetrics.
func NewCollector() *Collector {
	return &Collector{m: NewMetrics()}
}

func (c *Collector) RecordAttempt(_ context.Context, ev governor.AttemptEvent) {
	c.m.AttemptsTotal.WithLabelValues(ev.Policy, ev.Result).Inc()
	if ev.Judged {
		c.m.JudgeEscalationsTotal.WithLabelValues(ev.Policy).Inc()
	}
}

func (c *Collector) RecordOutcome(_ context.Context, ev governor.OutcomeEvent) {
	status := string(ev.Status)
	if status == "" {
		status = ev.ErrorCode
	}
	c.m.TasksTotal.WithLabelValues(ev.Policy, status).Inc()
	if ev.Attempts > 0 {
		c.m.TaskAttempts.WithLabelValues(ev.Policy).Observe(float64(ev.Attempts))
	}
}

// InstrumentOracle counts calls made through next under kind.
func InstrumentOracle(next oracle.Client, kind string) oracle.Client {
	m := NewMetrics()
	return oracle.ClientFunc(func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		text, err := next.Complete(ctx, systemPrompt, userPrompt)
		m.OracleCallsTotal.WithLabelValues(kind, callResult(err)).Inc()
		return text, err
	})
}

func callResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case oracle.IsFatal(oracle.Classify(err)):
		return "fatal"
	default:
		return "transient"
	}
}
