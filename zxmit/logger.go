package zxmit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger interface for zxmit protocol logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// FileLogger writes logs to a size-rotated file
type FileLogger struct {
	out *lumberjack.Logger
	mu  sync.Mutex
}

// NewFileLogger creates a logger that writes to path, rotating it once it
// grows past 10 MB and keeping a single backup.
func NewFileLogger(path string) (*FileLogger, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	l := &FileLogger{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // MB
			MaxBackups: 1,
		},
	}
	// lumberjack opens lazily; write a marker so a bad path fails here
	if _, err := fmt.Fprintf(l.out, "[%s] INFO: log opened\n", time.Now().Format("2006-01-02 15:04:05.000")); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) log(level, format string, args ...interface{}) {
	if l == nil || l.out == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.out, "[%s] %s: %s\n", timestamp, level, msg)
}

func (l *FileLogger) Debug(format string, args ...interface{}) {
	l.log("DEBUG", format, args...)
}

func (l *FileLogger) Info(format string, args ...interface{}) {
	l.log("INFO", format, args...)
}

func (l *FileLogger) Error(format string, args ...interface{}) {
	l.log("ERROR", format, args...)
}

func (l *FileLogger) Close() error {
	if l != nil && l.out != nil {
		return l.out.Close()
	}
	return nil
}

// SlogLogger adapts a *slog.Logger to Logger. Messages are formatted before
// they reach the handler.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger; a nil logger uses slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) emit(level slog.Level, format string, args ...interface{}) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	l.logger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l *SlogLogger) Debug(format string, args ...interface{}) {
	l.emit(slog.LevelDebug, format, args...)
}

func (l *SlogLogger) Info(format string, args ...interface{}) {
	l.emit(slog.LevelInfo, format, args...)
}

func (l *SlogLogger) Error(format string, args ...interface{}) {
	l.emit(slog.LevelError, format, args...)
}

// MultiLogger sends every message to all of its loggers.
type MultiLogger []Logger

func (m MultiLogger) Debug(format string, args ...interface{}) {
	for _, l := range m {
		l.Debug(format, args...)
	}
}

func (m MultiLogger) Info(format string, args ...interface{}) {
	for _, l := range m {
		l.Info(format, args...)
	}
}

func (m MultiLogger) Error(format string, args ...interface{}) {
	for _, l := range m {
		l.Error(format, args...)
	}
}

// NoopLogger does nothing
type NoopLogger struct{}

func (NoopLogger) Debug(format string, args ...interface{}) {}
func (NoopLogger) Info(format string, args ...interface{})  {}
func (NoopLogger) Error(format string, args ...interface{}) {}

// FormatFrameLog formats a frame for logging, showing at most the first 32
// payload bytes
func FormatFrameLog(direction string, f *Frame) string {
	msg := fmt.Sprintf("%s %s", direction, f)
	if len(f.Payload) > 0 {
		show := f.Payload
		if len(show) > 32 {
			msg += fmt.Sprintf(", payload=% x...[truncated]", show[:32])
		} else {
			msg += fmt.Sprintf(", payload=% x", show)
		}
	}
	return msg
}

// LoggingReader wraps a reader and logs all reads
type LoggingReader struct {
	reader io.Reader
	logger Logger
	name   string
}

func NewLoggingReader(reader io.Reader, logger Logger, name string) *LoggingReader {
	return &LoggingReader{
		reader: reader,
		logger: logger,
		name:   name,
	}
}

func (lr *LoggingReader) Read(p []byte) (int, error) {
	n, err := lr.reader.Read(p)
	if lr.logger != nil && n > 0 {
		lr.logger.Debug("%s: Read %d bytes: % x", lr.name, n, p[:min(n, 32)])
	}
	if err != nil && err != io.EOF && lr.logger != nil {
		lr.logger.Error("%s: Read error: %v", lr.name, err)
	}
	return n, err
}

// SetReadDeadline forwards to the wrapped reader when it supports deadlines.
func (lr *LoggingReader) SetReadDeadline(t time.Time) error {
	if rt, ok := lr.reader.(ReaderWithTimeout); ok {
		return rt.SetReadDeadline(t)
	}
	return nil
}

// LoggingWriter wraps a writer and logs all writes
type LoggingWriter struct {
	writer io.Writer
	logger Logger
	name   string
}

func NewLoggingWriter(writer io.Writer, logger Logger, name string) *LoggingWriter {
	return &LoggingWriter{
		writer: writer,
		logger: logger,
		name:   name,
	}
}

func (lw *LoggingWriter) Write(p []byte) (int, error) {
	n, err := lw.writer.Write(p)
	if lw.logger != nil && n > 0 {
		if n > 32 {
			lw.logger.Debug("%s: Wrote %d bytes: % x...[truncated]", lw.name, n, p[:32])
		} else {
			lw.logger.Debug("%s: Wrote %d bytes: % x", lw.name, n, p[:n])
		}
	}
	if err != nil && lw.logger != nil {
		lw.logger.Error("%s: Write error: %v", lw.name, err)
	}
	return n, err
}
