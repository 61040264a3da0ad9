package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

const timeFormat = "2006-01-02 15:04:05"

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a config string (debug, info, warn, error) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// sink is the output state shared by a logger and every child made with With.
type sink struct {
	mu    sync.RWMutex
	out   io.Writer
	level Level
	json  bool
	// gen changes on every update so children know to rebuild.
	gen uint64
}

func (s *sink) update(fn func(*sink)) {
	s.mu.Lock()
	fn(s)
	s.gen++
	s.mu.Unlock()
}

type Logger struct {
	sink   *sink
	fields map[string]interface{}

	mu  sync.Mutex
	zl  zerolog.Logger
	gen uint64
}

var defaultLogger = New(os.Stdout, INFO)

// New returns a console logger writing to out. A nil out means stdout.
func New(out io.Writer, level Level) *Logger {
	return newLogger(out, level, false)
}

// NewJSON returns a logger emitting one JSON object per line.
func NewJSON(out io.Writer, level Level) *Logger {
	return newLogger(out, level, true)
}

func newLogger(out io.Writer, level Level, asJSON bool) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{sink: &sink{out: out, level: level, json: asJSON, gen: 1}}
}

func (l *Logger) build(out io.Writer, level Level, asJSON bool) zerolog.Logger {
	w := out
	if !asJSON {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: timeFormat,
			NoColor:    true,
		}
	}
	ctx := zerolog.New(w).Level(level.zerolog()).With().Timestamp()
	for k, v := range l.fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}

// With returns a child logger that adds key=value to every line. The child
// shares level and output with l: changing either on one changes both.
func (l *Logger) With(key string, value interface{}) *Logger {
	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Logger{sink: l.sink, fields: fields}
}

func (l *Logger) SetLevel(level Level) {
	l.sink.update(func(s *sink) { s.level = level })
}

func (l *Logger) SetOutput(w io.Writer) {
	l.sink.update(func(s *sink) { s.out = w })
}

func (l *Logger) Level() Level {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return l.sink.level
}

func (l *Logger) log(level Level, format string, v ...interface{}) {
	l.sink.mu.RLock()
	out, threshold, asJSON, gen := l.sink.out, l.sink.level, l.sink.json, l.sink.gen
	l.sink.mu.RUnlock()

	if level < threshold {
		return
	}

	l.mu.Lock()
	if l.gen != gen {
		l.zl = l.build(out, threshold, asJSON)
		l.gen = gen
	}
	zl := l.zl
	l.mu.Unlock()

	zl.WithLevel(level.zerolog()).Msgf(format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(DEBUG, format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.log(INFO, format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.log(WARN, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.log(ERROR, format, v...)
}

// Default returns the process-wide logger used by the package-level functions.
func Default() *Logger {
	return defaultLogger
}

func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

// Configure sets level and format ("console" or "json") of the default logger.
func Configure(level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	var asJSON bool
	switch strings.ToLower(format) {
	case "", "console":
	case "json":
		asJSON = true
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	defaultLogger.sink.update(func(s *sink) {
		s.level = lvl
		s.json = asJSON
	})
	return nil
}

// Global functions
func Debug(format string, v ...interface{}) {
	defaultLogger.log(DEBUG, format, v...)
}

func Info(format string, v ...interface{}) {
	defaultLogger.log(INFO, format, v...)
}

func Warn(format string, v ...interface{}) {
	defaultLogger.log(WARN, format, v...)
}

func Error(format string, v ...interface{}) {
	defaultLogger.log(ERROR, format, v...)
}

// Compatibility with standard log
func Printf(format string, v ...interface{}) {
	defaultLogger.log(INFO, format, v...)
}

func Init() {
	defaultLogger.sink.mu.RLock()
	out := defaultLogger.sink.out
	defaultLogger.sink.mu.RUnlock()
	log.SetOutput(out)
	log.SetFlags(0)
}
