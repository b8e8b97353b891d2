package logging

import (
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestGet_NamesLoggerByCategory(t *testing.T) {
	observed := NewObserved(t)

	Get(CategoryGovernor).Info("attempt %d/%d", 1, 3)

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "governor" {
		t.Errorf("expected logger name governor, got %q", entries[0].LoggerName)
	}
	if entries[0].Message != "attempt 1/3" {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
}

func TestConvenienceFunctions(t *testing.T) {
	observed := NewObserved(t)

	GovernorDebug("debug %s", "line")
	OracleWarn("warn %s", "line")
	OracleError("error %s", "line")

	AssertLogged(t, observed, zapcore.DebugLevel, "debug line")
	AssertLogged(t, observed, zapcore.WarnLevel, "warn line")
	AssertLogged(t, observed, zapcore.ErrorLevel, "error line")
}

func TestDisabledCategoryIsNoop(t *testing.T) {
	NewObserved(t)

	mu.Lock()
	disabled = map[Category]bool{CategoryStore: true}
	loggers = map[Category]*Logger{}
	mu.Unlock()

	if IsCategoryEnabled(CategoryStore) {
		t.Fatal("store category should be disabled")
	}
	l := Get(CategoryStore)
	if l.sugar != nil {
		t.Error("disabled category should return a no-op logger")
	}
	// Must not panic.
	l.Info("ignored")
	l.With(zap.String("k", "v")).Error("ignored")
}

func TestSessionIDAttached(t *testing.T) {
	observed := NewObserved(t)
	SetSessionID("sess-1")

	Get(CategoryServer).Info("hello")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	found := false
	for _, f := range entries[0].Context {
		if f.Key == "session_id" && f.String == "sess-1" {
			found = true
		}
	}
	if !found {
		t.Errorf("session_id field missing: %+v", entries[0].Context)
	}
}

func TestNewSessionID(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	if a == b {
		t.Error("session ids should be unique")
	}
	// ns-ms-uuid: the uuid itself contains 4 dashes
	if parts := strings.Split(a, "-"); len(parts) != 7 {
		t.Errorf("unexpected session id shape %q", a)
	}
}

func TestInitialize(t *testing.T) {
	NewObserved(t)

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "defaults", opts: Options{}},
		{name: "console debug", opts: Options{Level: "debug", Format: "console"}},
		{name: "file output", opts: Options{File: filepath.Join(t.TempDir(), "logs", "app.log")}},
		{name: "bad level", opts: Options{Level: "loud"}, wantErr: true},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: true},
		{name: "category filter", opts: Options{Categories: map[string]bool{"store": false}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := Initialize(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize failed: %v", err)
			}
			if logger == nil {
				t.Fatal("expected logger")
			}
			if tt.opts.Categories != nil && IsCategoryEnabled(CategoryStore) {
				t.Error("store category should be disabled")
			}
		})
	}
}
