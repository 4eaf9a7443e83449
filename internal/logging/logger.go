// Package logging provides config-driven categorized file-based logging for PhotoForge.
// Logs are written to .photoforge/logs/ with separate files per category.
// Logging is controlled by debug_mode in .photoforge/config.json - when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot        Category = "boot"        // Boot/initialization
	CategoryCapture     Category = "capture"     // Capture session lifecycle, photo store
	CategoryReconstruct Category = "reconstruct" // Reconstruction jobs, engine events
	CategoryHandoff     Category = "handoff"     // Asset handoff and cleanup
	CategoryCatalog     Category = "catalog"     // Asset catalog persistence
	CategoryWatcher     Category = "watcher"     // Drop-folder watcher
)

// loggingConfig mirrors the relevant parts of the workspace config
// to avoid circular imports
type loggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
	JSONFormat bool            `json:"json_format"`
}

// configFile structure for reading .photoforge/config.json
type configFile struct {
	Logging loggingConfig `json:"logging"`
}

// StructuredLogEntry represents a JSON log entry
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"`  // Unix milliseconds
	Category  string                 `json:"cat"` // Log category
	Level     string                 `json:"lvl"` // debug/info/warn/error
	Message   string                 `json:"msg"` // Log message
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".photoforge", "logs")

	// Load config first to check if debug mode is enabled
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	// Only create logs directory if debug mode is enabled
	if !config.DebugMode {
		return nil // Silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== PhotoForge Logging System Initialized ===")
	bootLogger.Info("Workspace: %s", workspace)
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", config.Level)

	return nil
}

// loadConfig reads the logging config from .photoforge/config.json
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, ".photoforge", "config.json")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config = production mode (no logging)
			config.DebugMode = false
			return nil
		}
		return err
	}

	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "info":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// ReloadConfig reloads the config from disk.
func ReloadConfig() error {
	return loadConfig()
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}

	if config.Categories == nil {
		return true // All enabled by default in debug mode
	}

	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	if logsDir == "" {
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

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Create log file with date prefix for easy rotation
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

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

// logJSON writes a structured JSON log entry
func (l *Logger) logJSON(level, msg string) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg) // Fallback to text
		return
	}
	l.logger.Printf("%s", data)
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("debug", msg)
	} else {
		l.logger.Printf("[DEBUG] %s", msg)
	}
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("info", msg)
	} else {
		l.logger.Printf("[INFO] %s", msg)
	}
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("warn", msg)
	} else {
		l.logger.Printf("[WARN] %s", msg)
	}
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("error", msg)
	} else {
		l.logger.Printf("[ERROR] %s", msg)
	}
}

// CloseAll closes all open log files (call at shutdown)
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
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Capture logs to the capture category
func Capture(format string, args ...interface{}) {
	Get(CategoryCapture).Info(format, args...)
}

// CaptureDebug logs debug to the capture category
func CaptureDebug(format string, args ...interface{}) {
	Get(CategoryCapture).Debug(format, args...)
}

// Reconstruct logs to the reconstruct category
func Reconstruct(format string, args ...interface{}) {
	Get(CategoryReconstruct).Info(format, args...)
}

// ReconstructDebug logs debug to the reconstruct category
func ReconstructDebug(format string, args ...interface{}) {
	Get(CategoryReconstruct).Debug(format, args...)
}

// Handoff logs to the handoff category
func Handoff(format string, args ...interface{}) {
	Get(CategoryHandoff).Info(format, args...)
}

// HandoffDebug logs debug to the handoff category
func HandoffDebug(format string, args ...interface{}) {
	Get(CategoryHandoff).Debug(format, args...)
}

// Catalog logs to the catalog category
func Catalog(format string, args ...interface{}) {
	Get(CategoryCatalog).Info(format, args...)
}

// CatalogDebug logs debug to the catalog category
func CatalogDebug(format string, args ...interface{}) {
	Get(CategoryCatalog).Debug(format, args...)
}

// Watcher logs to the watcher category
func Watcher(format string, args ...interface{}) {
	Get(CategoryWatcher).Info(format, args...)
}

// WatcherDebug logs debug to the watcher category
func WatcherDebug(format string, args ...interface{}) {
	Get(CategoryWatcher).Debug(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
