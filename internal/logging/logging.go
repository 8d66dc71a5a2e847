// Package logging provides context-scoped structured logging built on
// log/slog. A component name is stamped onto a context.Context once (at a
// request or subsystem boundary) and every subsequent Debug/Info/Error call
// pulls the right logger back out, so call sites never thread a *slog.Logger
// through every function signature.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type componentKey struct{}

// levelGetter, when set, lets the host application decide the effective
// level dynamically (e.g. reading from a config/settings store). It is
// optional; when nil the level fixed at Init time is used.
var levelGetter atomic.Value // func() slog.Level

var (
	mu         sync.Mutex
	baseLogger *slog.Logger
	closer     io.Closer
)

func init() {
	baseLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// SetLogLevelGetter installs a callback used to resolve the current log
// level on every call, e.g. wired to a settings store that is reloaded at
// runtime. Passing nil restores the static level set at Init time.
func SetLogLevelGetter(getter func() slog.Level) {
	if getter == nil {
		levelGetter.Store((func() slog.Level)(nil))
		return
	}
	levelGetter.Store(getter)
}

// Init configures the process-wide base logger. debug enables DEBUG-level
// output; when file is non-empty, output is redirected there instead of
// stderr. sessionID is attached to every record for correlation and may be
// empty.
func Init(debug bool, file string, sessionID string) (func(), error) {
	mu.Lock()
	defer mu.Unlock()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	noColor := false
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return func() {}, fmt.Errorf("opening log file %s: %w", file, err)
		}
		w = f
		closer = f
		noColor = true
	} else if !isatty.IsTerminal(os.Stderr.Fd()) {
		noColor = true
	}
	if !noColor {
		w = colorable.NewColorable(os.Stderr)
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: dynamicLevel(level)})
	logger := slog.New(handler)
	if sessionID != "" {
		logger = logger.With(slog.String("session_id", sessionID))
	}
	baseLogger = logger

	return Close, nil
}

// Close releases any resources opened by Init (e.g. the log file).
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
}

// WithComponent returns a context carrying a logger scoped to component.
// Subsequent Debug/Info/Error calls against the returned context include
// component="<component>" on every record.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey{}, component)
}

func loggerFor(ctx context.Context) *slog.Logger {
	mu.Lock()
	l := baseLogger
	mu.Unlock()

	if component, ok := ctx.Value(componentKey{}).(string); ok && component != "" {
		l = l.With(slog.String("component", component))
	}
	return l
}

// dynamicLevel is the handler's slog.Leveler: it defers to levelGetter when
// one is installed and otherwise reports the level fixed at Init time.
type dynamicLevel slog.Level

func (l dynamicLevel) Level() slog.Level {
	if g, ok := levelGetter.Load().(func() slog.Level); ok && g != nil {
		return g()
	}
	return slog.Level(l)
}

// Debug logs at DEBUG level with the logger scoped to ctx's component.
func Debug(ctx context.Context, msg string, attrs ...any) {
	loggerFor(ctx).Log(ctx, slog.LevelDebug, msg, attrs...)
}

// Info logs at INFO level with the logger scoped to ctx's component.
func Info(ctx context.Context, msg string, attrs ...any) {
	loggerFor(ctx).Log(ctx, slog.LevelInfo, msg, attrs...)
}

// Warn logs at WARN level with the logger scoped to ctx's component.
func Warn(ctx context.Context, msg string, attrs ...any) {
	loggerFor(ctx).Log(ctx, slog.LevelWarn, msg, attrs...)
}

// Error logs at ERROR level with the logger scoped to ctx's component.
func Error(ctx context.Context, msg string, attrs ...any) {
	loggerFor(ctx).Log(ctx, slog.LevelError, msg, attrs...)
}

// LogDuration logs msg at the given level with a duration_ms attribute
// measured from start, plus any extra attrs. Used to bookend a timed
// operation: `defer logging.LogDuration(ctx, slog.LevelDebug, "op done", time.Now())`.
func LogDuration(ctx context.Context, level slog.Level, msg string, start time.Time, attrs ...any) {
	all := append([]any{slog.Int64("duration_ms", time.Since(start).Milliseconds())}, attrs...)
	loggerFor(ctx).Log(ctx, level, msg, all...)
}
