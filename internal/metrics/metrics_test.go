package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sttmforge/internal/governor"
	"sttmforge/internal/oracle"
)

func TestStats_Snapshot(t *testing.T) {
	s := NewStats()
	ctx := context.Background()

	assert.Equal(t, Snapshot{}, s.Snapshot())

	s.RecordAttempt(ctx, governor.AttemptEvent{Result: governor.ResultOracle})
	s.RecordAttempt(ctx, governor.AttemptEvent{Result: governor.ResultSemantic, Judged: true})
	s.RecordAttempt(ctx, governor.AttemptEvent{Result: governor.ResultValid})
	s.RecordOutcome(ctx, governor.OutcomeEvent{Status: governor.StatusSucceeded, Attempts: 3})
	s.RecordOutcome(ctx, governor.OutcomeEvent{Status: governor.StatusExhausted, Attempts: 2})
	s.RecordOutcome(ctx, governor.OutcomeEvent{ErrorCode: governor.CodeOracleConfiguration})

	snap := s.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.SuccessfulGenerations)
	assert.Equal(t, int64(2), snap.FailedGenerations)
	assert.Equal(t, int64(2), snap.PythonValidations)
	assert.Equal(t, int64(1), snap.LLMValidations)
	assert.Equal(t, 2.5, snap.AverageAttempts)
	assert.Equal(t, 33.33, snap.SuccessRate)
}

func TestStats_ConcurrentRecording(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordOutcome(context.Background(), governor.OutcomeEvent{Status: governor.StatusSucceeded, Attempts: 1})
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, int64(50), snap.TotalRequests)
	assert.Equal(t, 100.0, snap.SuccessRate)
	assert.Equal(t, 1.0, snap.AverageAttempts)
}

func TestNewMetrics_RegistersOnce(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	require.Same(t, a, b)
}

func TestCollector_RecordsEvents(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()
	m := NewMetrics()

	before := testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("collector-test", governor.ResultSyntax))
	c.RecordAttempt(ctx, governor.AttemptEvent{Policy: "collector-test", Result: governor.ResultSyntax, Judged: true})
	assert.Equal(t, before+1, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("collector-test", governor.ResultSyntax)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JudgeEscalationsTotal.WithLabelValues("collector-test")))

	c.RecordOutcome(ctx, governor.OutcomeEvent{Policy: "collector-test", ErrorCode: governor.CodeTaskCancelled})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("collector-test", governor.CodeTaskCancelled)))

	c.RecordOutcome(ctx, governor.OutcomeEvent{Policy: "collector-test", Status: governor.StatusSucceeded, Attempts: 2})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("collector-test", "succeeded")))
}

func TestInstrumentOracle(t *testing.T) {
	m := NewMetrics()
	client := InstrumentOracle(oracle.NewStaticSteps(
		oracle.Step{Text: "ok"},
		oracle.Step{Err: errors.New("connection reset")},
		oracle.Step{Err: oracle.Fatal("bad key", nil)},
	), "instrument-test")

	for i := 0; i < 3; i++ {
		_, _ = client.Complete(context.Background(), "sys", "user")
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleCallsTotal.WithLabelValues("instrument-test", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleCallsTotal.WithLabelValues("instrument-test", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleCallsTotal.WithLabelValues("instrument-test", "fatal")))
}
