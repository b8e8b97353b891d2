package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sttmforge/internal/oracle"
)

func judgeArtifact() *Artifact {
	return &Artifact{Text: `{"column_mapping": {}}`, Value: map[string]any{}}
}

func TestJudge_Verdicts(t *testing.T) {
	tests := []struct {
		name          string
		reply         string
		wantStrict    []string
		wantNonStrict []string
	}{
		{
			name:  "valid",
			reply: `{"is_valid": true, "strict_issues": [], "non_strict_issues": ["consider trimming"]}`,
			wantNonStrict: []string{"consider trimming"},
		},
		{
			name:       "invalid with issues in a fence",
			reply:      "```json\n{\"is_valid\": false, \"strict_issues\": [\"column d uses unknown field\"]}\n```",
			wantStrict: []string{"column d uses unknown field"},
		},
		{
			name:       "invalid without details",
			reply:      `{"is_valid": false}`,
			wantStrict: []string{"semantic review rejected the mapping without details"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := NewJudge(oracle.NewStatic(tt.reply), false)
			r, err := j.Review(context.Background(), judgeArtifact(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStrict, nilIfEmpty(r.StrictMessages()))
			assert.Equal(t, tt.wantNonStrict, nilIfEmpty(r.NonStrictMessages()))
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestJudge_FailOpenAndClosed(t *testing.T) {
	failures := map[string]*oracle.Static{
		"unparseable reply": oracle.NewStatic("I think it looks good!"),
		"transient error":   oracle.NewStaticSteps(oracle.Step{Err: oracle.Transient("503 from gateway", nil)}),
		"missing verdict":   oracle.NewStatic(`{"strict_issues": []}`),
	}

	for name, client := range failures {
		t.Run(name+"/closed", func(t *testing.T) {
			r, err := NewJudge(client, false).Review(context.Background(), judgeArtifact(), nil)
			require.NoError(t, err)
			require.Len(t, r.StrictIssues, 1)
			assert.Equal(t, KindOracle, r.StrictIssues[0].Kind)
			assert.Contains(t, r.StrictIssues[0].Message, "judge unavailable: ")
		})
		t.Run(name+"/open", func(t *testing.T) {
			r, err := NewJudge(client, true).Review(context.Background(), judgeArtifact(), nil)
			require.NoError(t, err)
			assert.True(t, r.IsValid())
			require.Len(t, r.NonStrictIssues, 1)
			assert.Contains(t, r.NonStrictIssues[0].Message, "judge unavailable: ")
		})
	}
}

func TestJudge_FatalAndCancel(t *testing.T) {
	fatal := oracle.NewStaticSteps(oracle.Step{Err: oracle.Fatal("api key not configured", nil)})
	_, err := NewJudge(fatal, true).Review(context.Background(), judgeArtifact(), nil)
	require.Error(t, err)
	assert.True(t, oracle.IsFatal(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewJudge(oracle.NewStatic("{}"), true).Review(ctx, judgeArtifact(), nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestJudgePrompt(t *testing.T) {
	doc := make([]byte, 6000)
	for i := range doc {
		doc[i] = 'x'
	}
	prompt := JudgePrompt(string(doc), []Transformation{{Column: "d", Expression: "CASE WHEN a THEN b END"}})

	assert.Contains(t, prompt, "- d: CASE WHEN a THEN b END")
	assert.Contains(t, prompt, `"is_valid"`)
	assert.NotContains(t, prompt, string(doc), "document is truncated")
}
