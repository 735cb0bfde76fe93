// Package log implements the process-wide logger registry:
// console/rotating-file/bounded in-memory appenders, numbered message codes
// with severity prefixes, and the log(objectId, code, args...) formatting
// contract used throughout the object kernel and protocol layer.
package log

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/traintastic/traintastic-go/internal/observability"
)

// Logger is the structured-logging interface every package in this module
// depends on, injectable so call sites read identically across packages.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Severity is a log record's severity, rendered as the
// single-letter prefix used by the desktop client's log view (D/I/N/W/C/F).
type Severity int

const (
	Debug Severity = iota
	Info
	Notice
	Warning
	Critical
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "D"
	case Info:
		return "I"
	case Notice:
		return "N"
	case Warning:
		return "W"
	case Critical:
		return "C"
	case Fatal:
		return "F"
	default:
		return "?"
	}
}

func (s Severity) zapLevel() zapcore.Level {
	switch s {
	case Debug:
		return zapcore.DebugLevel
	case Info, Notice:
		return zapcore.InfoLevel
	case Warning:
		return zapcore.WarnLevel
	case Critical:
		return zapcore.ErrorLevel
	case Fatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Message is a numbered log code: callers never format free text, they
// cite a stable code so translated clients and automated test suites can
// match on it.
type Message struct {
	Code     string
	Severity Severity
	Format   string
}

var registry = struct {
	mu   sync.RWMutex
	msgs map[string]Message
}{msgs: make(map[string]Message)}

// Register adds a message code to the process-wide table. Called from
// package-level variable declarations in the packages that own a code
// range (e.g. the 21xx codes of the Z21 kernel).
func Register(m Message) Message {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.msgs[m.Code]; exists {
		panic("log: duplicate message code " + m.Code)
	}
	registry.msgs[m.Code] = m
	return m
}

// Sink is the bounded, process-wide fan-out target: every Log call reaches
// every registered sink, regardless of which object emitted it.
type Sink interface {
	Write(objectID string, m Message, rendered string)
}

// Registry owns the configured Sinks and the object-keyed emission path.
type Registry struct {
	mu    sync.RWMutex
	sinks []Sink
	base  Logger
}

// NewRegistry wraps a zap.SugaredLogger (constructed by cmd/traintastic-server)
// as the ambient Logger and starts with no Sinks attached.
func NewRegistry(base *zap.SugaredLogger) *Registry {
	return &Registry{base: &sugaredLogger{s: base}}
}

func (r *Registry) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Base returns the ambient Logger for packages that just want Debug/Info/
// Warn/Error without object association (config loading, transport setup).
func (r *Registry) Base() Logger { return r.base }

// Log renders m.Format with args, writes it to every attached Sink and to
// the ambient logger at the message's severity, associated with objectID
// (empty for process-level messages).
func (r *Registry) Log(objectID string, m Message, args ...any) {
	observability.RecordLogRecord(m.Severity.String())
	rendered := fmt.Sprintf(m.Format, args...)
	line := fmt.Sprintf("[%s] %s %s", m.Severity, m.Code, rendered)
	if objectID != "" {
		line = objectID + ": " + line
	}

	switch m.Severity {
	case Debug:
		r.base.Debug(line)
	case Info, Notice:
		r.base.Info(line)
	case Warning:
		r.base.Warn(line)
	default:
		r.base.Error(line)
	}

	r.mu.RLock()
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.RUnlock()
	for _, s := range sinks {
		s.Write(objectID, m, rendered)
	}
}

type sugaredLogger struct{ s *zap.SugaredLogger }

func (l *sugaredLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *sugaredLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *sugaredLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *sugaredLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
