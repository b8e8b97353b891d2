package governor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sttmforge/internal/oracle"
)

// genai's transitive deps start the opencensus view worker in init.
var ignoreCensus = goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start")

func TestRunBatch_KeepsOrderAndIsolatesFailures(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreCensus)

	client := oracle.NewStatic(mappingDoc(direct("a")))
	g := New(client, WithRegistry(registry(t, nil)))

	tasks := []Task{
		mappingTask(t, 1, "a"),
		NewTask("sql-bronze", nil, 0),
		mappingTask(t, 1, "a", "b"),
		mappingTask(t, 1, "a"),
	}

	results := RunBatch(context.Background(), g, tasks, 2)
	require.Len(t, results, len(tasks))
	for i, r := range results {
		assert.Equal(t, tasks[i].ID, r.Task.ID)
	}

	assert.NoError(t, results[0].Err)
	assert.True(t, results[0].Outcome.Succeeded())

	var fatalErr *FatalConfigurationError
	assert.ErrorAs(t, results[1].Err, &fatalErr)
	assert.Nil(t, results[1].Outcome)

	var exhausted *ExhaustionError
	assert.ErrorAs(t, results[2].Err, &exhausted)
	assert.Equal(t, StatusExhausted, results[2].Outcome.Status)

	assert.NoError(t, results[3].Err)
}

func TestRunBatch_Empty(t *testing.T) {
	g := New(oracle.NewStatic("{}"), WithRegistry(registry(t, nil)))
	assert.Empty(t, RunBatch(context.Background(), g, nil, 0))
}
