// Package logging provides categorized structured logging for sttmforge.
// Every category is a named child of one zap logger; categories can be
// switched off individually from config.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config
	CategoryGovernor Category = "governor" // Retry state machine
	CategoryOracle   Category = "oracle"   // Text-generation backends
	CategoryValidate Category = "validate" // Syntax and semantic validation
	CategoryFeedback Category = "feedback" // Feedback synthesis
	CategoryPrompts  Category = "prompts"  // Template loading and watching
	CategoryServer   Category = "server"   // HTTP surface
	CategoryStore    Category = "store"    // Run ledger
	CategorySink     Category = "sink"     // Artifact sink
	CategoryBatch    Category = "batch"    // Concurrent task runner
	CategoryExtract  Category = "extract"  // CSV extract metadata
)

// Options mirrors config.LoggingConfig to avoid circular imports.
type Options struct {
	Level       string          // debug, info, warn, error
	Format      string          // json, console
	File        string          // optional output path, stderr when empty
	Development bool            // zap development config
	Categories  map[string]bool // category -> enabled; missing means enabled
}

// Logger is a category-scoped printf-style logger.
// A Logger with a nil sugar is a no-op.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu        sync.RWMutex
	base      = zap.NewNop()
	disabled  = map[Category]bool{}
	loggers   = map[Category]*Logger{}
	sessionID string
)

// Initialize builds the process logger from opts and installs it.
// The returned logger is the root; callers Sync it at shutdown.
func Initialize(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(defaultString(opts.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	switch opts.Format {
	case "", "json":
		cfg.Encoding = "json"
	case "console", "text":
		cfg.Encoding = "console"
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: json, console)", opts.Format)
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = []string{opts.File}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	off := map[Category]bool{}
	for cat, enabled := range opts.Categories {
		if !enabled {
			off[Category(cat)] = true
		}
	}

	install(logger, off)
	Get(CategoryBoot).Info("logging initialized: level=%s format=%s", level, cfg.Encoding)
	return logger, nil
}

// SetBase installs an already-built zap logger with every category enabled.
func SetBase(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	install(logger, map[Category]bool{})
}

func install(logger *zap.Logger, off map[Category]bool) {
	mu.Lock()
	defer mu.Unlock()
	base = logger
	disabled = off
	loggers = map[Category]*Logger{}
}

// Base returns the root zap logger with the session id attached.
func Base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if sessionID != "" {
		return base.With(zap.String("session_id", sessionID))
	}
	return base
}

// SetSessionID attaches id to every logger obtained afterwards.
func SetSessionID(id string) {
	mu.Lock()
	defer mu.Unlock()
	sessionID = id
	loggers = map[Category]*Logger{}
}

// SessionID returns the current session id, if any.
func SessionID() string {
	mu.RLock()
	defer mu.RUnlock()
	return sessionID
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return !disabled[category]
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category}
	if !disabled[category] {
		z := base.Named(string(category))
		if sessionID != "" {
			z = z.With(zap.String("session_id", sessionID))
		}
		l.sugar = z.Sugar()
	}
	loggers[category] = l
	return l
}

// With returns a child logger carrying fields on every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.Desugar().With(fields...).Sugar()}
}

// Zap exposes the underlying structured logger.
func (l *Logger) Zap() *zap.Logger {
	if l.sugar == nil {
		return zap.NewNop()
	}
	return l.sugar.Desugar()
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// Sync flushes the root logger.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

func Governor(format string, args ...interface{})      { Get(CategoryGovernor).Info(format, args...) }
func GovernorDebug(format string, args ...interface{}) { Get(CategoryGovernor).Debug(format, args...) }
func GovernorWarn(format string, args ...interface{})  { Get(CategoryGovernor).Warn(format, args...) }

func Oracle(format string, args ...interface{})      { Get(CategoryOracle).Info(format, args...) }
func OracleDebug(format string, args ...interface{}) { Get(CategoryOracle).Debug(format, args...) }
func OracleWarn(format string, args ...interface{})  { Get(CategoryOracle).Warn(format, args...) }
func OracleError(format string, args ...interface{}) { Get(CategoryOracle).Error(format, args...) }

func ValidateDebug(format string, args ...interface{}) { Get(CategoryValidate).Debug(format, args...) }
func ValidateWarn(format string, args ...interface{})  { Get(CategoryValidate).Warn(format, args...) }

func FeedbackDebug(format string, args ...interface{}) { Get(CategoryFeedback).Debug(format, args...) }

func Prompts(format string, args ...interface{})      { Get(CategoryPrompts).Info(format, args...) }
func PromptsDebug(format string, args ...interface{}) { Get(CategoryPrompts).Debug(format, args...) }
func PromptsWarn(format string, args ...interface{})  { Get(CategoryPrompts).Warn(format, args...) }

func Server(format string, args ...interface{})      { Get(CategoryServer).Info(format, args...) }
func ServerError(format string, args ...interface{}) { Get(CategoryServer).Error(format, args...) }

func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warn(format, args...) }

func SinkWarn(format string, args ...interface{}) { Get(CategorySink).Warn(format, args...) }

func Batch(format string, args ...interface{})      { Get(CategoryBatch).Info(format, args...) }
func BatchDebug(format string, args ...interface{}) { Get(CategoryBatch).Debug(format, args...) }

func ExtractDebug(format string, args ...interface{}) { Get(CategoryExtract).Debug(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
