package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewObserved installs an observing core at debug level for the duration of
// the test and returns the captured entries.
func NewObserved(tb testing.TB) *observer.ObservedLogs {
	tb.Helper()
	core, observed := observer.New(zapcore.DebugLevel)

	mu.RLock()
	prevBase, prevOff, prevSession := base, disabled, sessionID
	mu.RUnlock()

	SetBase(zap.New(core))
	tb.Cleanup(func() {
		install(prevBase, prevOff)
		SetSessionID(prevSession)
	})
	return observed
}

// AssertLogged verifies a log at level containing msgContains was logged.
func AssertLogged(tb testing.TB, observed *observer.ObservedLogs, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	tb.Errorf("expected log at %v containing %q, logs: %+v", level, msgContains, observed.All())
}
