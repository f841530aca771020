// Package logging provides categorized file-based logging for tilepilot.
// Logs are written to <workspace>/.tilepilot/logs/ with one file per category.
// Nothing is written unless debug logging was enabled at Initialize time, so
// the solver stays silent during normal operation.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot        Category = "boot"        // Startup, browser attach
	CategoryLocator     Category = "locator"     // Widget scanning and lifecycle
	CategoryEngine      Category = "engine"      // Inference engine
	CategoryBridge      Category = "bridge"      // Cross-origin frame relay
	CategoryPlayer      Category = "player"      // Synthetic pointer input
	CategoryRegistry    Category = "registry"    // Model manifest handling
	CategoryStore       Category = "store"       // Durable settings store
	CategoryCoordinator Category = "coordinator" // Request/response dispatch
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	enabled   bool
	logLevel  = LevelInfo
	stateMu   sync.RWMutex
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

// Initialize sets up the logging directory. Should be called once at startup
// with the workspace path. When debug is false this is a silent no-op and
// every Logger returned by Get discards its input.
func Initialize(ws string, debug bool) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	stateMu.Lock()
	enabled = debug
	logsDir = filepath.Join(ws, ".tilepilot", "logs")
	if debug {
		// Debug mode means the files exist to be read; filtering the
		// debug lines out of them would defeat the point.
		logLevel = LevelDebug
	}
	stateMu.Unlock()

	if !debug {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== tilepilot logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	return nil
}

// SetLevel adjusts the minimum level written to the category files.
func SetLevel(level int) {
	stateMu.Lock()
	defer stateMu.Unlock()
	logLevel = level
}

// IsDebugMode reports whether debug logging is active.
func IsDebugMode() bool {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug logging is disabled.
func Get(category Category) *Logger {
	stateMu.RLock()
	on, dir := enabled, logsDir
	stateMu.RUnlock()

	if !on || dir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a plain file move.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

func currentLevel() int {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return logLevel
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootWarn logs warning to the boot category.
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }

// Locator logs to the locator category.
func Locator(format string, args ...interface{}) { Get(CategoryLocator).Info(format, args...) }

// LocatorDebug logs debug to the locator category.
func LocatorDebug(format string, args ...interface{}) { Get(CategoryLocator).Debug(format, args...) }

// LocatorError logs error to the locator category.
func LocatorError(format string, args ...interface{}) { Get(CategoryLocator).Error(format, args...) }

// Engine logs to the engine category.
func Engine(format string, args ...interface{}) { Get(CategoryEngine).Info(format, args...) }

// EngineDebug logs debug to the engine category.
func EngineDebug(format string, args ...interface{}) { Get(CategoryEngine).Debug(format, args...) }

// EngineError logs error to the engine category.
func EngineError(format string, args ...interface{}) { Get(CategoryEngine).Error(format, args...) }

// Bridge logs to the bridge category.
func Bridge(format string, args ...interface{}) { Get(CategoryBridge).Info(format, args...) }

// BridgeDebug logs debug to the bridge category.
func BridgeDebug(format string, args ...interface{}) { Get(CategoryBridge).Debug(format, args...) }

// Player logs to the player category.
func Player(format string, args ...interface{}) { Get(CategoryPlayer).Info(format, args...) }

// PlayerDebug logs debug to the player category.
func PlayerDebug(format string, args ...interface{}) { Get(CategoryPlayer).Debug(format, args...) }

// Registry logs to the registry category.
func Registry(format string, args ...interface{}) { Get(CategoryRegistry).Info(format, args...) }

// RegistryWarn logs warning to the registry category.
func RegistryWarn(format string, args ...interface{}) { Get(CategoryRegistry).Warn(format, args...) }

// Store logs to the store category.
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// Coordinator logs to the coordinator category.
func Coordinator(format string, args ...interface{}) { Get(CategoryCoordinator).Info(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}
