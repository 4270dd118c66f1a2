package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"production_data_import/config"
)

// LogLevel constants
const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	sugar   *zap.SugaredLogger
	logFile *os.File
	logPath string
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	base = zap.New(zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stdout), level))
	sugar = base.Sugar()
}

func consoleEncoder() zapcore.Encoder {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(enc)
}

func fileEncoder() zapcore.Encoder {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(enc)
}

func parseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes the logging system using configuration.
// Entries go to the configured log file as JSON and, optionally, to the console.
func Init(cfg *config.Config) error {
	path := cfg.Logging.LogFile
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current working directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	level.SetLevel(parseLevel(cfg.Logging.LogLevel))

	cores := []zapcore.Core{zapcore.NewCore(fileEncoder(), zapcore.AddSync(file), level)}
	if cfg.Logging.LogToConsole {
		cores = append(cores, zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stdout), level))
	}

	mu.Lock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = file
	logPath = path
	base = zap.New(zapcore.NewTee(cores...))
	sugar = base.Sugar()
	mu.Unlock()

	current().Infow("session started",
		"log_file", path,
		"log_level", cfg.Logging.LogLevel,
		"log_to_console", cfg.Logging.LogToConsole,
		"started_at", time.Now().Format("2006-01-02 15:04:05"))

	return nil
}

// Close flushes buffered entries and closes the log file
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile == nil {
		return nil
	}
	sugar.Infow("session ended", "ended_at", time.Now().Format("2006-01-02 15:04:05"))
	_ = base.Sync()
	err := logFile.Close()
	logFile = nil
	logPath = ""
	base = zap.New(zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stdout), level))
	sugar = base.Sugar()
	return err
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Zap exposes the underlying structured logger for components that want fields
func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Enabled reports whether messages at the given level are written
func Enabled(name string) bool {
	return level.Enabled(parseLevel(name))
}

// SetLevel changes the active level at runtime
func SetLevel(name string) {
	level.SetLevel(parseLevel(name))
}

// Printf logs formatted text at info level
func Printf(format string, v ...interface{}) {
	current().Infof(strings.TrimRight(format, "\n"), v...)
}

// Println logs a line at info level
func Println(v ...interface{}) {
	current().Info(strings.TrimRight(fmt.Sprintln(v...), "\n"))
}

// Debugf logs formatted debug text
func Debugf(format string, v ...interface{}) {
	current().Debugf(strings.TrimRight(format, "\n"), v...)
}

// Warnf logs formatted warning text
func Warnf(format string, v ...interface{}) {
	current().Warnf(strings.TrimRight(format, "\n"), v...)
}

// Errorf logs formatted error text
func Errorf(format string, v ...interface{}) {
	current().Errorf(strings.TrimRight(format, "\n"), v...)
}

// Fatalf logs a formatted fatal error and exits
func Fatalf(format string, v ...interface{}) {
	current().Errorf("FATAL: "+strings.TrimRight(format, "\n"), v...)
	_ = Close()
	os.Exit(1)
}

// With returns a logger carrying the given key/value pairs
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return current().With(keysAndValues...)
}

// LogCommand logs the command being executed
func LogCommand(command string, args []string) {
	if len(args) > 1 {
		Printf("Command executed: %s %v", command, args[1:])
		return
	}
	Printf("Command executed: %s", command)
}

// LogDivider prints a divider line for better log organization
func LogDivider() {
	Println(strings.Repeat("-", 60))
}

// LogResult logs a result with status
func LogResult(operation string, success bool, details string) {
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	if details != "" {
		Printf("%s: %s - %s", operation, status, details)
		return
	}
	Printf("%s: %s", operation, status)
}

// LogProgress logs progress information
func LogProgress(done, total int, item string) {
	Printf("Progress: [%d/%d] %s", done, total, item)
}

// GetLogFileName returns the current log file name
func GetLogFileName() string {
	mu.RLock()
	defer mu.RUnlock()
	if logPath != "" {
		return logPath
	}
	return "result.log"
}
