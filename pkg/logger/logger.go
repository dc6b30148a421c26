package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"creditflow/pkg/tracing"
)

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

// Logger, yapılandırılmış loglama için servis katmanının kullandığı dar
// arayüzdür. Alanlar her çağrıda map olarak verilir; WithFields ile kalıcı
// alan bağlanabilir, WithContext trace kimliğini alanlara ekler.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
}

type zerologLogger struct {
	zl    zerolog.Logger
	bound map[string]interface{}
}

// New bir zerolog tabanlı Logger kurar. Development ortamında renkli konsol
// çıktısı, diğer ortamlarda satır başına JSON üretilir.
func New(level LogLevel, output io.Writer) Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = output
	if strings.ToLower(os.Getenv("APP_ENV")) == "development" {
		w = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()

	return &zerologLogger{zl: zl, bound: map[string]interface{}{}}
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *zerologLogger) child(extra map[string]interface{}) *zerologLogger {
	bound := make(map[string]interface{}, len(l.bound)+len(extra))
	for k, v := range l.bound {
		bound[k] = v
	}
	for k, v := range extra {
		bound[k] = v
	}
	return &zerologLogger{zl: l.zl, bound: bound}
}

func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	return l.child(fields)
}

func (l *zerologLogger) WithContext(ctx context.Context) Logger {
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		return l.child(map[string]interface{}{"trace_id": traceID})
	}
	return l
}

func (l *zerologLogger) emit(event *zerolog.Event, msg string, fields map[string]interface{}) {
	for k, v := range l.bound {
		event = event.Interface(k, v)
	}
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func (l *zerologLogger) Debug(msg string, fields map[string]interface{}) {
	// Kaynak konumu yalnızca debug seviyesinde eklenir; runtime.Caller ucuz
	// değildir.
	event := l.zl.Debug()
	if l.zl.GetLevel() == zerolog.DebugLevel {
		if _, file, line, ok := runtime.Caller(1); ok {
			parts := strings.Split(file, "/")
			if len(parts) > 2 {
				file = strings.Join(parts[len(parts)-2:], "/")
			}
			event = event.Str("source", fmt.Sprintf("%s:%d", file, line))
		}
	}
	l.emit(event, msg, fields)
}

func (l *zerologLogger) Info(msg string, fields map[string]interface{}) {
	l.emit(l.zl.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields map[string]interface{}) {
	l.emit(l.zl.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields map[string]interface{}) {
	l.emit(l.zl.Error(), msg, fields)
}

func (l *zerologLogger) Fatal(msg string, fields map[string]interface{}) {
	l.emit(l.zl.Fatal(), msg, fields)
}
