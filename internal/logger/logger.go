// Package logger builds the slog loggers used by the storefront server and the librarian CLI.
//
// Every subsystem logs through Component, so each record names its owner
// (storesync, docstore, catalog, desk, sse, ...). The pretty handler prints that name as a
// tag in front of the message:
//
//	14:02:11 INF [storesync] Store document applied version=12
//	14:02:15 WRN [catalog] Image upload failed, skipping book_id=swb-1700000000000 error=...
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	formatJSON   = "json"
	formatPretty = "pretty"
)

// KeyComponent is the attribute naming the subsystem that wrote a record.
const KeyComponent = "component"

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiCyan  = "\033[36m"
	ansiBlue  = "\033[34m"
)

type levelStyle struct {
	label string
	color string
}

var levelStyles = map[slog.Level]levelStyle{
	slog.LevelDebug: {"DBG", "\033[35m"},
	slog.LevelInfo:  {"INF", "\033[32m"},
	slog.LevelWarn:  {"WRN", "\033[33m"},
	slog.LevelError: {"ERR", "\033[31m"},
}

// Logger wraps slog.Logger so providers can hand out per-component loggers.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Writer io.Writer
	// Format is "json" or "pretty". Empty picks JSON in production and pretty elsewhere.
	Format      string
	Environment string
	Level       slog.Level
	AddSource   bool
}

// New creates a logger.
func New(cfg Config) *Logger {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	format := cfg.Format
	if format == "" {
		format = formatPretty
		if cfg.Environment == "production" {
			format = formatJSON
		}
	}

	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	if format == formatJSON {
		opts.ReplaceAttr = shortSource
		return &Logger{Logger: slog.New(slog.NewJSONHandler(cfg.Writer, opts))}
	}
	return &Logger{Logger: slog.New(NewPrettyHandler(cfg.Writer, opts))}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a logger whose records carry the owning subsystem's name.
func (l *Logger) Component(name string) *slog.Logger {
	return l.With(slog.String(KeyComponent, name))
}

func shortSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		if source, ok := a.Value.Any().(*slog.Source); ok {
			source.File = filepath.Base(source.File)
		}
	}
	return a
}

// PrettyHandler writes one line per record for people reading a console. Colors are only
// used when the writer is a terminal.
type PrettyHandler struct {
	opts      *slog.HandlerOptions
	writer    io.Writer
	component string
	attrs     []slog.Attr
	prefix    string
	color     bool
}

// NewPrettyHandler creates a pretty handler writing to w.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &PrettyHandler{opts: opts, writer: w, color: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle writes r as: TIME LEVEL [component] file:line message key=value...
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	h.paint(&b, ansiDim, r.Time.Format("15:04:05"))
	b.WriteByte(' ')

	style, ok := levelStyles[r.Level]
	if !ok {
		style = levelStyle{label: r.Level.String()}
	}
	h.paint(&b, style.color, style.label)
	b.WriteByte(' ')

	component := h.component
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == KeyComponent && h.prefix == "" {
			component = a.Value.String()
			return true
		}
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		attrs = append(attrs, a)
		return true
	})

	if component != "" {
		h.paint(&b, ansiBlue, "["+component+"]")
		b.WriteByte(' ')
	}

	if h.opts.AddSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		h.paint(&b, ansiDim, filepath.Base(frame.File)+":"+strconv.Itoa(frame.Line))
		b.WriteByte(' ')
	}

	h.paint(&b, ansiBold, r.Message)

	for _, a := range attrs {
		b.WriteByte(' ')
		h.paint(&b, ansiCyan, a.Key+"="+formatValue(a.Value))
	}

	b.WriteByte('\n')
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *PrettyHandler) paint(b *strings.Builder, color, text string) {
	if h.color && color != "" {
		b.WriteString(color)
		b.WriteString(text)
		b.WriteString(ansiReset)
		return
	}
	b.WriteString(text)
}

// WithAttrs returns a handler that adds attrs to every record. A component attribute
// replaces the handler's tag instead of being listed.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if a.Key == KeyComponent && h.prefix == "" {
			next.component = a.Value.String()
			continue
		}
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup returns a handler that qualifies later keys with name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " =\"") {
			return strconv.Quote(s)
		}
		return s
	default:
		return v.Resolve().String()
	}
}
