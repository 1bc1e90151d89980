package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

var (
	fileLogger *log.Logger

	// DebugEnabled gates Debugf output; errors and warnings always log.
	DebugEnabled = false

	logFile *os.File
)

// Init routes log output to the given file. Errors and warnings are always
// written; Debugf and Infof only when debug is set.
func Init(debug bool, logPath string) error {
	DebugEnabled = debug

	if logPath == "" {
		fileLogger = log.New(io.Discard, "", 0)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFile = f
	fileLogger = log.New(f, "", log.Ldate|log.Ltime|log.Lshortfile)

	return nil
}

// Close closes the log file if open.
func Close() {
	if logFile != nil {
		logFile.Close()
	}
}

func Infof(format string, v ...interface{}) {
	if DebugEnabled && fileLogger != nil {
		fileLogger.Printf("[INFO] "+format, v...)
	}
}

func Errorf(format string, v ...interface{}) {
	if fileLogger != nil {
		fileLogger.Printf("[ERROR] "+format, v...)
	}
}

func Debugf(format string, v ...interface{}) {
	if DebugEnabled && fileLogger != nil {
		fileLogger.Printf("[DEBUG] "+format, v...)
	}
}

func Warnf(format string, v ...interface{}) {
	if fileLogger != nil {
		fileLogger.Printf("[WARNING] "+format, v...)
	}
}
