// Package sink writes validated artifacts to a destination: a local
// directory, an S3 bucket, or nowhere.
package sink

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"sttmforge/internal/config"
	"sttmforge/internal/governor"
	"sttmforge/internal/logging"
)

// Sink stores artifact bytes under a slash-separated key.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Key returns the artifact key for a task: <policy>/<task_id>.<ext>.
func Key(policyName, taskID, ext string) string {
	return path.Join(policyName, taskID+"."+strings.TrimPrefix(ext, "."))
}

// Nop discards artifacts.
type Nop struct{}

func (Nop) Put(context.Context, string, []byte) error { return nil }

// FSSink writes artifacts below a directory.
type FSSink struct {
	dir string
}

// NewFSSink creates a sink rooted at dir.
func NewFSSink(dir string) *FSSink {
	return &FSSink{dir: dir}
}

func (s *FSSink) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean := filepath.FromSlash(path.Clean("/" + key))
	target := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", key, err)
	}
	return nil
}

// New builds the sink named by cfg.Kind.
func New(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	switch cfg.Kind {
	case "", "none":
		return Nop{}, nil
	case "fs":
		return NewFSSink(cfg.Dir), nil
	case "s3":
		return NewS3Sink(ctx, S3Config{
			Bucket:       cfg.Bucket,
			Prefix:       cfg.Prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown sink kind: %s", cfg.Kind)
	}
}

// Recorder writes the artifact of every successful task to a Sink.
type Recorder struct {
	sink Sink
}

// NewRecorder adapts s to governor.Recorder.
func NewRecorder(s Sink) *Recorder {
	return &Recorder{sink: s}
}

func (r *Recorder) RecordAttempt(context.Context, governor.AttemptEvent) {}

// RecordOutcome never fails the task; sink errors are only logged.
func (r *Recorder) RecordOutcome(ctx context.Context, ev governor.OutcomeEvent) {
	if ev.Status != governor.StatusSucceeded || ev.Artifact == "" {
		return
	}
	key := Key(ev.Policy, ev.TaskID, ev.Extension)
	if err := r.sink.Put(ctx, key, []byte(ev.Artifact)); err != nil {
		logging.SinkWarn("failed to store artifact %s: %v", key, err)
	}
}
