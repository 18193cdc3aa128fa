package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type LogLevel int

type Logger struct {
	logLevel LogLevel
	logDir   string
	logger   *logrus.Logger
}

const (
	INFO LogLevel = iota
	DEBUG
	ERROR
)

var (
	registryMu sync.RWMutex
	registry   = map[string]*Logger{}
)

// ParseLevel maps the textual level used in configuration files.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level %q", s)
	}
}

func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case DEBUG:
		return logrus.DebugLevel
	case ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// New returns the logger registered under name, creating it with a daily
// file in logDir on first use.
func New(name string, logDir string, logLevel LogLevel) (*Logger, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if logger, exists := registry[name]; exists {
		return logger, nil
	}

	logger, err := setupLogger(logLevel, logDir)
	if err != nil {
		return nil, err
	}

	registry[name] = logger
	return logger, nil
}

// NewWithWriter builds a logger that is not registered and writes to w.
func NewWithWriter(w io.Writer, logLevel LogLevel) *Logger {
	l := &Logger{logLevel: logLevel, logger: newLogrus(w, logLevel)}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard, ERROR)
}

func newLogrus(w io.Writer, level LogLevel) *logrus.Logger {
	lr := logrus.New()
	lr.SetOutput(w)
	lr.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
	lr.SetLevel(level.logrusLevel())
	return lr
}

func (l *Logger) init() error {
	if err := os.MkdirAll(l.logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")

	logFile, err := os.OpenFile(
		filepath.Join(l.logDir, fmt.Sprintf("CatalogTx-%s.log", timestamp)),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0644,
	)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.logger = newLogrus(logFile, l.logLevel)

	return nil
}

func setupLogger(LogLevel LogLevel, logDir string) (*Logger, error) {
	logger := &Logger{
		logLevel: LogLevel,
		logDir:   logDir,
		logger:   nil,
	}

	if err := logger.init(); err != nil {
		return nil, err
	}

	return logger, nil
}

func (l *Logger) Info(format string, v ...any) {
	l.logger.Infof(format, v...)
}

func (l *Logger) Debug(format string, v ...any) {
	l.logger.Debugf(format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	l.logger.Errorf(format, v...)
}

// WithField returns a structured entry carrying key=value.
func (l *Logger) WithField(key string, value any) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// WithFields returns a structured entry carrying all fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.logger.WithFields(fields)
}

func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry = map[string]*Logger{}
}
