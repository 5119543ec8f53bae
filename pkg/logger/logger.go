package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

const (
	LevelSilent = iota
	LevelError
	LevelWarning
	LevelInfo
	LevelDebug
)

const timestampLayout = "2006-01-02 15:04:05"

var (
	mu       sync.Mutex
	output   io.Writer = color.Output
	level              = LevelInfo
	useColor           = !color.NoColor

	errorStyle   = color.New(color.FgRed, color.Bold)
	warnStyle    = color.New(color.FgYellow)
	successStyle = color.New(color.FgGreen, color.Bold)
	maybeStyle   = color.New(color.Bold)
	debugStyle   = color.New(color.FgCyan)
)

// Timestamp returns the current local time as "[YYYY-MM-DD HH:MM:SS]".
func Timestamp() string {
	return "[" + time.Now().Format(timestampLayout) + "]"
}

// InitWithWriter redirects logging to w. Mostly useful for tests.
func InitWithWriter(w io.Writer, lvl string, enableColor bool) {
	mu.Lock()
	output = w
	useColor = enableColor
	mu.Unlock()

	if lvl != "" {
		SetLevel(lvl)
	}
}

// SetLevel accepts silent, error, warning (warn), info or debug. Unknown
// values are ignored.
func SetLevel(lvl string) {
	var next int
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "silent":
		next = LevelSilent
	case "error":
		next = LevelError
	case "warning", "warn":
		next = LevelWarning
	case "info":
		next = LevelInfo
	case "debug":
		next = LevelDebug
	default:
		return
	}

	mu.Lock()
	level = next
	mu.Unlock()
}

func SetColor(enabled bool) {
	mu.Lock()
	useColor = enabled
	mu.Unlock()
}

func Level() int {
	mu.Lock()
	defer mu.Unlock()
	return level
}

// Writer returns the current destination so other console renderers can
// share it.
func Writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return output
}

func ColorEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return useColor
}

func Debug(format string, args ...interface{}) {
	emit(LevelDebug, "[DEBUG]", debugStyle, format, args...)
}

func Info(format string, args ...interface{}) {
	emit(LevelInfo, "[*]", nil, format, args...)
}

func Warn(format string, args ...interface{}) {
	emit(LevelWarning, "[!]", warnStyle, format, args...)
}

func Error(format string, args ...interface{}) {
	emit(LevelError, "[!]", errorStyle, format, args...)
}

func Success(format string, args ...interface{}) {
	emit(LevelInfo, "[+]", successStyle, format, args...)
}

// Maybe reports a result that needs manual verification.
func Maybe(format string, args ...interface{}) {
	emit(LevelInfo, "[?]", maybeStyle, format, args...)
}

func emit(lvl int, marker string, style *color.Color, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if level < lvl || level == LevelSilent {
		return
	}

	line := marker + " " + fmt.Sprintf(format, args...)
	if style != nil && useColor {
		style.EnableColor()
		line = style.Sprint(line)
	}

	fmt.Fprintf(output, "%s %s\n", Timestamp(), line)
}
