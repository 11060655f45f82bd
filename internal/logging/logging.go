// Package logging provides structured, standards-compliant logging.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	sessionID string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		sessionID: l.sessionID,
	}
}

// WithSessionID returns a new logger scoped to the given agent session.
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		sessionID: sessionID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// ParseLevel converts a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}
	if l.sessionID != "" {
		fieldStr = " session=" + l.sessionID + fieldStr
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// ToolCall logs a tool invocation.
func (l *Logger) ToolCall(tool string, stepIndex int) {
	// Don't log args to avoid PII - just tool name and position
	l.Info("tool_call", map[string]interface{}{
		"tool": tool,
		"step": stepIndex,
	})
}

// ToolResult logs a tool result.
func (l *Logger) ToolResult(tool string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"tool":     tool,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("tool_error", fields)
	} else {
		l.Debug("tool_result", fields)
	}
}

// SessionStart logs the start of an agent session.
func (l *Logger) SessionStart(role string) {
	l.Info("session_start", map[string]interface{}{
		"role": role,
	})
}

// SessionComplete logs the completion of an agent session.
func (l *Logger) SessionComplete(state string, iterations int, duration time.Duration) {
	l.Info("session_complete", map[string]interface{}{
		"state":      state,
		"iterations": iterations,
		"duration":   duration.String(),
	})
}

// PhaseStart logs the start of a loop phase (PLANNING, EXECUTING, OBSERVING).
func (l *Logger) PhaseStart(phase string, iteration int) {
	l.Debug("phase_start", map[string]interface{}{
		"phase":     phase,
		"iteration": iteration,
	})
}

// PhaseComplete logs the completion of a loop phase.
func (l *Logger) PhaseComplete(phase string, iteration int, duration time.Duration, result string) {
	l.Debug("phase_complete", map[string]interface{}{
		"phase":     phase,
		"iteration": iteration,
		"duration":  duration.String(),
		"result":    result,
	})
}

// PlanRejected logs a plan that failed validation.
func (l *Logger) PlanRejected(reason string, steps int) {
	l.Warn("plan_rejected", map[string]interface{}{
		"reason": reason,
		"steps":  steps,
	})
}
