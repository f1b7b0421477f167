package metrics

import (
	"fmt"
	"io"
	"maps"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Level is a log severity. LevelSilent drops everything.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent
)

var levelNames = [...]string{"debug", "info", "warn", "error", "silent"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int32(l))
	}
	return levelNames[l]
}

// ParseLevel accepts the level names in any case, plus "trace", "warning",
// "off" and "none".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "silent", "off", "none":
		return LevelSilent, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level %q (use debug, info, warn, error, silent)", s)
}

// UnmarshalText lets a Level be decoded from configuration.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Level) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	}
	return logrus.InfoLevel
}

func levelOf(l logrus.Level) Level {
	switch {
	case l >= logrus.DebugLevel:
		return LevelDebug
	case l == logrus.InfoLevel:
		return LevelInfo
	case l == logrus.WarnLevel:
		return LevelWarn
	}
	return LevelError
}

// Format selects the line encoding.
type Format int

const (
	FormatText Format = iota // logfmt-style key=value
	FormatJSON
)

// ParseFormat accepts "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("invalid log format %q (use text or json)", s)
}

// Fields are structured log fields.
type Fields map[string]any

// Sink receives every emitted line, formatted and without its newline.
type Sink func(level Level, line string)

type loggerConfig struct {
	out    io.Writer
	level  Level
	format Format
	fields Fields
	name   string
	sink   Sink
	now    func() time.Time
}

// LoggerOption configures NewLogger.
type LoggerOption func(*loggerConfig)

// WithOutput sets the destination. nil discards, for use with WithSink.
func WithOutput(w io.Writer) LoggerOption {
	return func(c *loggerConfig) {
		if w == nil {
			w = io.Discard
		}
		c.out = w
	}
}

func WithLevel(level Level) LoggerOption {
	return func(c *loggerConfig) { c.level = level }
}

func WithFormat(format Format) LoggerOption {
	return func(c *loggerConfig) { c.format = format }
}

// WithFields sets fields carried by every entry.
func WithFields(fields Fields) LoggerOption {
	return func(c *loggerConfig) { c.fields = fields }
}

// WithName sets the "logger" field. Named appends to it with dots.
func WithName(name string) LoggerOption {
	return func(c *loggerConfig) { c.name = name }
}

// WithSink also hands every emitted line to fn.
func WithSink(fn Sink) LoggerOption {
	return func(c *loggerConfig) { c.sink = fn }
}

func withClock(fn func() time.Time) LoggerOption {
	return func(c *loggerConfig) { c.now = fn }
}

type sinkHook struct{ sink Sink }

func (sinkHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h sinkHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	h.sink(levelOf(e.Level), strings.TrimSuffix(line, "\n"))
	return nil
}

// Logger is a levelled logrus entry. Loggers derived with With and Named
// share the output and the level of their root.
type Logger struct {
	level *atomic.Int32
	entry *logrus.Entry
	now   func() time.Time
	name  string
}

// NewLogger builds a logger. The defaults are info level text on stdout.
func NewLogger(opts ...LoggerOption) *Logger {
	cfg := loggerConfig{out: os.Stdout, level: LevelInfo, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	base := logrus.New()
	base.SetOutput(cfg.out)
	// Filtering happens in Logger so that SetLevel reaches every child.
	base.SetLevel(logrus.TraceLevel)
	switch cfg.format {
	case FormatJSON:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		base.SetFormatter(&logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	}
	if cfg.sink != nil {
		base.AddHook(sinkHook{sink: cfg.sink})
	}

	l := &Logger{
		level: new(atomic.Int32),
		entry: logrus.NewEntry(base).WithFields(logrus.Fields(cfg.fields)),
		now:   cfg.now,
	}
	l.level.Store(int32(cfg.level))
	if cfg.name != "" {
		return l.Named(cfg.name)
	}
	return l
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields Fields) *Logger {
	child := *l
	child.entry = l.entry.WithFields(logrus.Fields(fields))
	return &child
}

// Named returns a child logger whose name is l's name plus "." plus name.
func (l *Logger) Named(name string) *Logger {
	child := *l
	if l.name != "" {
		name = l.name + "." + name
	}
	child.name = name
	child.entry = l.entry.WithField("logger", name)
	return &child
}

// SetLevel changes the level of l, its root and every sibling.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level < LevelSilent && level >= l.Level()
}

func (l *Logger) Debug(msg string, fields ...Fields) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Fields)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Fields)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Fields) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, extra []Fields) {
	if !l.Enabled(level) {
		return
	}
	e := l.entry
	switch len(extra) {
	case 0:
	case 1:
		e = e.WithFields(logrus.Fields(extra[0]))
	default:
		merged := make(logrus.Fields)
		for _, f := range extra {
			maps.Copy(merged, f)
		}
		e = e.WithFields(merged)
	}
	e.WithTime(l.now()).Log(level.logrus(), msg)
}

type loggerHolder struct{ *Logger }

var globalLogger atomic.Pointer[loggerHolder]

func init() {
	globalLogger.Store(&loggerHolder{NewLogger()})
}

// SetLogger replaces the package logger used when a config leaves its
// Logger nil. nil restores the default.
func SetLogger(l *Logger) {
	if l == nil {
		l = NewLogger()
	}
	globalLogger.Store(&loggerHolder{l})
}

// GetLogger returns the package logger.
func GetLogger() *Logger {
	return globalLogger.Load().Logger
}

// NullLogger discards everything.
func NullLogger() *Logger {
	return NewLogger(WithOutput(nil), WithLevel(LevelSilent))
}
