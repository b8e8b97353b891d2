package sink

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sttmforge/internal/config"
	"sttmforge/internal/governor"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "sql-gold/t-1.py", Key("sql-gold", "t-1", "py"))
	assert.Equal(t, "structured-mapping/t-2.json", Key("structured-mapping", "t-2", ".json"))
}

func TestFSSink_Put(t *testing.T) {
	dir := t.TempDir()
	s := NewFSSink(dir)

	require.NoError(t, s.Put(context.Background(), "sql-gold/t-1.py", []byte("gold_final_df = 1\n")))
	data, err := os.ReadFile(filepath.Join(dir, "sql-gold", "t-1.py"))
	require.NoError(t, err)
	assert.Equal(t, "gold_final_df = 1\n", string(data))

	// Keys cannot escape the root.
	require.NoError(t, s.Put(context.Background(), "../../escape.json", []byte("{}")))
	_, err = os.Stat(filepath.Join(dir, "escape.json"))
	assert.NoError(t, err)
}

type fakeS3 struct {
	mu     sync.Mutex
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink_Put(t *testing.T) {
	fake := &fakeS3{}
	s := NewS3SinkWithClient(fake, "artifacts", "runs/2026")

	require.NoError(t, s.Put(context.Background(), "structured-mapping/t-1.json", []byte(`{"a":1}`)))
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "artifacts", aws.ToString(fake.inputs[0].Bucket))
	assert.Equal(t, "runs/2026/structured-mapping/t-1.json", aws.ToString(fake.inputs[0].Key))
	assert.Equal(t, "application/json", aws.ToString(fake.inputs[0].ContentType))
	assert.Equal(t, `{"a":1}`, fake.bodies[0])

	fake.err = errors.New("access denied")
	err := s.Put(context.Background(), "x.py", nil)
	assert.ErrorContains(t, err, "s3://artifacts/runs/2026/x.py")
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), config.SinkConfig{Kind: "none"})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, s)

	s, err = New(context.Background(), config.SinkConfig{Kind: "fs", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FSSink{}, s)

	_, err = New(context.Background(), config.SinkConfig{Kind: "s3"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.SinkConfig{Kind: "ftp"})
	assert.Error(t, err)
}

func TestRecorder_WritesOnlySuccessfulArtifacts(t *testing.T) {
	fake := &fakeS3{}
	r := NewRecorder(NewS3SinkWithClient(fake, "b", ""))
	ctx := context.Background()

	r.RecordOutcome(ctx, governor.OutcomeEvent{TaskID: "t-1", Policy: "sql-gold", Status: governor.StatusSucceeded, Artifact: "x_df = 1", Extension: "py"})
	r.RecordOutcome(ctx, governor.OutcomeEvent{TaskID: "t-2", Policy: "sql-gold", Status: governor.StatusExhausted, Extension: "py"})
	r.RecordOutcome(ctx, governor.OutcomeEvent{TaskID: "t-3", Policy: "sql-gold", ErrorCode: governor.CodeTaskCancelled})

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "sql-gold/t-1.py", aws.ToString(fake.inputs[0].Key))

	// A failing sink does not panic or surface.
	fake.err = errors.New("boom")
	r.RecordOutcome(ctx, governor.OutcomeEvent{TaskID: "t-4", Policy: "sql-gold", Status: governor.StatusSucceeded, Artifact: "y", Extension: "py"})
}
