package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sttmforge/internal/governor"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "data", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_InsertAndGet(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := Run{
		TaskID:    "t-1",
		SessionID: "s-1",
		Policy:    "structured-mapping",
		Status:    "exhausted",
		Attempts:  2,
		ErrorCode: "STTM_VALIDATION_FAILED",
		History:   [][]string{{"missing item: c"}, {"missing item: c", "column_mapping is empty"}},
		CreatedAt: at,
	}
	require.NoError(t, l.Insert(ctx, run))

	got, err := l.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, run.History, got.History)
	assert.Empty(t, got.NonStrict)
	assert.Equal(t, "STTM_VALIDATION_FAILED", got.ErrorCode)
	assert.True(t, at.Equal(got.CreatedAt))

	_, err = l.Get(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLedger_RecordOutcomeAndSummary(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	events := []governor.OutcomeEvent{
		{TaskID: "a", Policy: "sql-gold", Status: governor.StatusSucceeded, Attempts: 1, NonStrict: []string{"note"}},
		{TaskID: "b", Policy: "sql-gold", Status: governor.StatusExhausted, Attempts: 5, ErrorCode: "SQL_VALIDATION_FAILED"},
		{TaskID: "c", Policy: "sql-gold", ErrorCode: governor.CodeTaskCancelled},
		{TaskID: "d", Policy: "structured-mapping", Status: governor.StatusSucceeded, Attempts: 2},
	}
	for i, ev := range events {
		ev.At = time.Now().Add(time.Duration(i) * time.Second)
		l.RecordOutcome(ctx, ev)
	}

	got, err := l.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"note"}, got.NonStrict)

	cancelled, err := l.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "failed", cancelled.Status)

	summary, err := l.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, PolicySummary{
		Policy: "sql-gold", Total: 3, Succeeded: 1, Exhausted: 1, Failed: 1, AverageAttempts: 3,
	}, summary[0])
	assert.Equal(t, "structured-mapping", summary[1].Policy)
	assert.Equal(t, 2.0, summary[1].AverageAttempts)

	recent, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].TaskID)
}

func TestLedger_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Insert(context.Background(), Run{TaskID: "x", Policy: "sql-silver", Status: "succeeded", Attempts: 1}))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	got, err := l.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "sql-silver", got.Policy)
}
