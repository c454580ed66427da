// Package logger wraps op/go-logging with a console backend and an optional
// file backend. Until InitLogger runs, messages at WARNING and above go to
// stderr.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/op/go-logging"
)

const (
	moduleName = "library"
	timeFormat = "2006/01/02 15:04:05"
)

var (
	mu      sync.Mutex
	logger  *logging.Logger
	logFile *os.File
)

func init() {
	logger = logging.MustGetLogger(moduleName)
	backend := logging.AddModuleLevel(logging.NewBackendFormatter(
		logging.NewLogBackend(os.Stderr, "", 0), newFormatter(true)))
	backend.SetLevel(logging.WARNING, moduleName)
	logger.SetBackend(backend)
}

// ParseLevel maps a config string such as "debug" or "warn" to a level.
func ParseLevel(s string) (logging.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warn":
		return logging.WARNING, nil
	case "":
		return logging.INFO, nil
	}
	return logging.LogLevel(s)
}

// InitLogger installs a stderr backend at level and, when filePath is not
// empty, a file backend that always records DEBUG.
func InitLogger(level logging.Level, filePath string) error {
	mu.Lock()
	defer mu.Unlock()

	backends := make([]logging.Backend, 0, 2)

	console := logging.AddModuleLevel(logging.NewBackendFormatter(
		logging.NewLogBackend(os.Stderr, "", 0), newFormatter(true)))
	console.SetLevel(level, moduleName)
	backends = append(backends, console)

	if filePath != "" {
		if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
			return fmt.Errorf("create log folder: %w", err)
		}
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		if logFile != nil {
			_ = logFile.Close()
		}
		logFile = file

		fileBackend := logging.AddModuleLevel(logging.NewBackendFormatter(
			logging.NewLogBackend(file, "", 0), newFormatter(true)))
		fileBackend.SetLevel(logging.DEBUG, moduleName)
		backends = append(backends, fileBackend)
	}

	logger.SetBackend(logging.MultiLogger(backends...))
	return nil
}

func newFormatter(withTime bool) logging.Formatter {
	format := `%{level} - %{message}`
	if withTime {
		format = `%{time:` + timeFormat + `} %{level} - %{message}`
	}
	return logging.MustStringFormatter(format)
}

// CloseLogger closes the log file, if one is open.
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func Debug(args ...any)                   { logger.Debug(args...) }
func Debugf(format string, args ...any)   { logger.Debugf(format, args...) }
func Info(args ...any)                    { logger.Info(args...) }
func Infof(format string, args ...any)    { logger.Infof(format, args...) }
func Warning(args ...any)                 { logger.Warning(args...) }
func Warningf(format string, args ...any) { logger.Warningf(format, args...) }
func Error(args ...any)                   { logger.Error(args...) }
func Errorf(format string, args ...any)   { logger.Errorf(format, args...) }
