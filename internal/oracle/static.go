package oracle

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Step is one scripted Static response.
type Step struct {
	Text string
	Err  error
}

// Call records one request made to a Static client.
type Call struct {
	SystemPrompt string
	UserPrompt   string
}

// Static replays scripted responses in order, repeating the last one once
// the script runs out. It backs dry runs and tests.
type Static struct {
	mu    sync.Mutex
	steps []Step
	calls []Call
}

// NewStatic returns a Static client answering with texts in order.
func NewStatic(texts ...string) *Static {
	steps := make([]Step, len(texts))
	for i, t := range texts {
		steps[i] = Step{Text: t}
	}
	return &Static{steps: steps}
}

// NewStaticSteps returns a Static client replaying steps, errors included.
func NewStaticSteps(steps ...Step) *Static {
	return &Static{steps: append([]Step(nil), steps...)}
}

// NewStaticFromFiles loads each file as one scripted response.
func NewStaticFromFiles(paths []string) (*Static, error) {
	if len(paths) == 0 {
		return nil, Fatal("static oracle has no responses", nil)
	}
	texts := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, Fatal(fmt.Sprintf("failed to read static response %s", p), err)
		}
		texts = append(texts, string(data))
	}
	return NewStatic(texts...), nil
}

func (s *Static) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if len(s.steps) == 0 {
		return "", Fatal("static oracle has no responses", nil)
	}

	idx := len(s.calls) - 1
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	step := s.steps[idx]
	return step.Text, step.Err
}

// Calls returns a copy of every request received so far.
func (s *Static) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
