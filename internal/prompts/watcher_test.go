package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcher_InvalidatesOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	writeTemplate(t, dir, "gold", "system_prompt.txt", "v1")
	l := NewLoader(dir)

	text, err := l.Load("gold", "", "", SystemPromptFile)
	require.NoError(t, err)
	require.Equal(t, "v1", text)

	w, err := NewWatcher(l)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "gold", "system_prompt.txt"), []byte("v2"), 0644))

	assert.Eventually(t, func() bool {
		text, err := l.Load("gold", "", "", SystemPromptFile)
		return err == nil && text == "v2"
	}, 5*time.Second, 20*time.Millisecond)

	assert.GreaterOrEqual(t, w.Stats().Invalidations, 1)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := NewWatcher(NewLoader(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
