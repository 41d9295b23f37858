// Package logger provides richcord's slog handler. Every record is one
// line:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2=value2
//
// Besides the standard slog levels there are LevelTrace (-8) for protocol
// chatter and LevelFail (12) for errors that end the process.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelFail  slog.Level = 12
)

var levelNames = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
	"fail":  LevelFail,
}

// ParseLevel maps a case-insensitive level name to its level. Unknown names
// yield LevelInfo.
func ParseLevel(s string) slog.Level {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return LevelInfo
}

func levelName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarn:
		return "WARN"
	case l <= LevelError:
		return "ERROR"
	default:
		return "FAIL"
	}
}

var lineEnding = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// Handler writes records in the single-line format. Handlers derived with
// WithAttrs or WithGroup share the writer lock of their parent.
type Handler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Leveler
	// attrs are rendered once, already prefixed with the group in effect
	// when they were added.
	attrs  []string
	prefix string
}

// NewHandler creates a Handler writing records at or above level to w.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteString(" [")
	b.WriteString(levelName(r.Level))
	b.WriteString("] ")
	b.WriteString(r.Message)

	pairs := h.attrs
	if r.NumAttrs() > 0 {
		pairs = slices.Clip(pairs)
		r.Attrs(func(a slog.Attr) bool {
			pairs = appendAttr(pairs, h.prefix, a)
			return true
		})
	}
	if len(pairs) > 0 {
		b.WriteString(" | ")
		b.WriteString(strings.Join(pairs, ", "))
	}
	b.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		next.attrs = appendAttr(next.attrs, h.prefix, a)
	}
	return &next
}

// WithGroup prefixes the keys of later attributes with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// appendAttr renders a as key=value pairs. Group values are flattened into
// dotted keys and empty attributes are dropped.
func appendAttr(pairs []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return pairs
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			pairs = appendAttr(pairs, prefix, ga)
		}
		return pairs
	}
	return append(pairs, prefix+a.Key+"="+formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindDuration:
		s = v.Duration().Round(time.Millisecond).String()
		if v.Duration() < time.Millisecond {
			s = v.Duration().String()
		}
	case slog.KindTime:
		s = v.Time().UTC().Format(time.RFC3339)
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, ",|\"\n\r") {
		return strconv.Quote(s)
	}
	return s
}

// ///////////////////////////////////////////////
// Constructors
// ///////////////////////////////////////////////

// NewLogger returns a logger writing to a rotating file at logPath. When
// console is non-nil records are also written there. The returned Closer
// closes the file.
func NewLogger(logPath string, level slog.Leveler, maxSizeMB int, console io.Writer) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}

	var w io.Writer = lj
	if console != nil {
		w = io.MultiWriter(lj, console)
	}
	return slog.New(NewHandler(w, level)), lj, nil
}

// NewConsole returns a logger for short-lived CLI commands.
func NewConsole(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(NewHandler(w, level))
}

// Trace logs msg at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs msg at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}
