// Copyright (c) 2017 Daniel Oaks <daniel@danieloaks.net>
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package logger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"sync"
	"sync/atomic"
)

// Level represents the level to log messages at.
type Level int

const (
	// LogDebug represents debug messages.
	LogDebug Level = iota
	// LogInfo represents informational messages.
	LogInfo
	// LogWarning represents warnings.
	LogWarning
	// LogError represents errors.
	LogError
)

var (
	// LogLevelNames takes a config name and gives the real log level.
	LogLevelNames = map[string]Level{
		"debug":    LogDebug,
		"info":     LogInfo,
		"warn":     LogWarning,
		"warning":  LogWarning,
		"warnings": LogWarning,
		"error":    LogError,
		"errors":   LogError,
	}
	// LogLevelDisplayNames gives the display name to use for our log levels.
	LogLevelDisplayNames = map[Level]string{
		LogDebug:   "debug",
		LogInfo:    "info",
		LogWarning: "warn",
		LogError:   "error",
	}

	// raw protocol traffic is only logged when one of these is captured at debug
	rawIOTypes = []string{"origin-io", "client-io"}
)

var (
	ErrLoggerExcludeEmpty    = errors.New("Encountered logging type '-' with no type to exclude")
	ErrLoggerFilenameMissing = errors.New("Logging configuration specifies 'file' method but 'filename' is empty")
	ErrLoggerHasNoTypes      = errors.New("Logger has no types to log")
)

// Manager is the main interface used to log debug/info/error messages.
type Manager struct {
	configMutex     sync.RWMutex
	loggers         []singleLogger
	stdoutWriteLock sync.Mutex // use one lock for both stdout and stderr
	fileWriteLock   sync.Mutex
	loggingRawIO    atomic.Uint32
}

// LoggingConfig represents the configuration of a single logger.
type LoggingConfig struct {
	Method        string   `yaml:"method"`
	MethodStdout  bool     `yaml:"-"`
	MethodStderr  bool     `yaml:"-"`
	MethodFile    bool     `yaml:"-"`
	Filename      string   `yaml:"filename"`
	TypeString    string   `yaml:"type"`
	Types         []string `yaml:"-"`
	ExcludedTypes []string `yaml:"-"`
	LevelString   string   `yaml:"level"`
	Level         Level    `yaml:"-"`

	// Writer, if set, receives output in place of the configured methods.
	Writer io.Writer `yaml:"-"`
}

// Postprocess turns the YAML strings (method, level, type) into their
// parsed forms.
func (config *LoggingConfig) Postprocess() error {
	methods := make(map[string]bool)
	for _, method := range strings.Fields(config.Method) {
		methods[strings.ToLower(method)] = true
	}
	if methods["file"] && config.Filename == "" {
		return ErrLoggerFilenameMissing
	}
	config.MethodFile = methods["file"]
	config.MethodStdout = methods["stdout"]
	config.MethodStderr = methods["stderr"]

	level, exists := LogLevelNames[strings.ToLower(config.LevelString)]
	if !exists {
		return fmt.Errorf("Could not translate log level [%s]", config.LevelString)
	}
	config.Level = level

	config.Types, config.ExcludedTypes = nil, nil
	for _, typeStr := range strings.Fields(config.TypeString) {
		if typeStr == "-" {
			return ErrLoggerExcludeEmpty
		}
		if typeStr[0] == '-' {
			config.ExcludedTypes = append(config.ExcludedTypes, typeStr[1:])
		} else {
			config.Types = append(config.Types, typeStr)
		}
	}
	if len(config.Types) < 1 {
		return ErrLoggerHasNoTypes
	}
	return nil
}

// DefaultConfig logs everything at the given level to stderr; it is used
// when no configuration file is supplied.
func DefaultConfig(level Level) []LoggingConfig {
	return []LoggingConfig{{
		Method:       "stderr",
		MethodStderr: true,
		TypeString:   "* -origin-io -client-io",
		Types:        []string{"*"},
		ExcludedTypes: []string{
			"origin-io",
			"client-io",
		},
		LevelString: LogLevelDisplayNames[level],
		Level:       level,
	}}
}

// NewManager returns a new log manager.
func NewManager(config []LoggingConfig) (*Manager, error) {
	var logger Manager

	if err := logger.ApplyConfig(config); err != nil {
		return nil, err
	}

	return &logger, nil
}

// ApplyConfig applies the given config to this logger, closing any files
// the previous config had open.
func (logger *Manager) ApplyConfig(config []LoggingConfig) error {
	logger.configMutex.Lock()
	defer logger.configMutex.Unlock()

	for _, logger := range logger.loggers {
		logger.Close()
	}

	logger.loggers = nil
	logger.loggingRawIO.Store(0)

	// for safety, this deep-copies all mutable data in `config`
	var lastErr error
	for _, logConfig := range config {
		typeMap := make(map[string]bool)
		for _, name := range logConfig.Types {
			typeMap[name] = true
		}
		excludedTypeMap := make(map[string]bool)
		for _, name := range logConfig.ExcludedTypes {
			excludedTypeMap[name] = true
		}

		sLogger := singleLogger{
			MethodSTDOUT: logConfig.MethodStdout,
			MethodSTDERR: logConfig.MethodStderr,
			MethodFile: fileMethod{
				Enabled:  logConfig.MethodFile,
				Filename: logConfig.Filename,
			},
			MethodWriter:    logConfig.Writer,
			Level:           logConfig.Level,
			Types:           typeMap,
			ExcludedTypes:   excludedTypeMap,
			stdoutWriteLock: &logger.stdoutWriteLock,
			fileWriteLock:   &logger.fileWriteLock,
		}
		// raw I/O is only logged at level debug
		if logConfig.Level == LogDebug {
			for _, ioType := range rawIOTypes {
				if sLogger.captures(ioType) {
					logger.loggingRawIO.Store(1)
				}
			}
		}
		if sLogger.MethodFile.Enabled {
			file, err := os.OpenFile(sLogger.MethodFile.Filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
			if err != nil {
				lastErr = fmt.Errorf("Could not open log file %s [%s]", sLogger.MethodFile.Filename, err.Error())
				continue
			}
			sLogger.MethodFile.File = file
			sLogger.MethodFile.Writer = bufio.NewWriter(file)
		}
		logger.loggers = append(logger.loggers, sLogger)
	}

	return lastErr
}

// Close flushes and closes any log files.
func (logger *Manager) Close() {
	logger.configMutex.Lock()
	defer logger.configMutex.Unlock()

	for _, logger := range logger.loggers {
		logger.Close()
	}
	logger.loggers = nil
}

// IsLoggingRawIO returns true if raw protocol traffic is being logged.
func (logger *Manager) IsLoggingRawIO() bool {
	return logger.loggingRawIO.Load() == 1
}

// Log logs the given message with the given details.
func (logger *Manager) Log(level Level, logType string, messageParts ...string) {
	logger.configMutex.RLock()
	defer logger.configMutex.RUnlock()

	for _, singleLogger := range logger.loggers {
		singleLogger.Log(level, logType, messageParts...)
	}
}

// Debug logs the given message as a debug message.
func (logger *Manager) Debug(logType string, messageParts ...string) {
	logger.Log(LogDebug, logType, messageParts...)
}

// Info logs the given message as an info message.
func (logger *Manager) Info(logType string, messageParts ...string) {
	logger.Log(LogInfo, logType, messageParts...)
}

// Warning logs the given message as a warning message.
func (logger *Manager) Warning(logType string, messageParts ...string) {
	logger.Log(LogWarning, logType, messageParts...)
}

// Error logs the given message as an error message.
func (logger *Manager) Error(logType string, messageParts ...string) {
	logger.Log(LogError, logType, messageParts...)
}

type fileMethod struct {
	Enabled  bool
	Filename string
	File     *os.File
	Writer   *bufio.Writer
}

// singleLogger represents a single logger instance.
type singleLogger struct {
	stdoutWriteLock *sync.Mutex
	fileWriteLock   *sync.Mutex
	MethodSTDOUT    bool
	MethodSTDERR    bool
	MethodFile      fileMethod
	MethodWriter    io.Writer
	Level           Level
	Types           map[string]bool
	ExcludedTypes   map[string]bool
}

func (logger *singleLogger) Close() error {
	if logger.MethodFile.Enabled && logger.MethodFile.File != nil {
		flushErr := logger.MethodFile.Writer.Flush()
		closeErr := logger.MethodFile.File.Close()
		if flushErr != nil {
			return flushErr
		}
		return closeErr
	}
	return nil
}

func (logger *singleLogger) captures(logType string) bool {
	return (logger.Types["*"] || logger.Types[logType]) && !logger.ExcludedTypes["*"] && !logger.ExcludedTypes[logType]
}

// Log logs the given message with the given details.
func (logger *singleLogger) Log(level Level, logType string, messageParts ...string) {
	// no logging enabled
	if !(logger.MethodSTDOUT || logger.MethodSTDERR || logger.MethodFile.Enabled || logger.MethodWriter != nil) {
		return
	}

	// ensure we're logging to the given level
	if level < logger.Level {
		return
	}

	// ensure we're capturing this logType
	if !logger.captures(logType) {
		return
	}

	// assemble full line

	var rawBuf bytes.Buffer
	// XXX magic number here: 9 is len("origin-io"), the longest log category name
	// in current use. it's not a big deal if this number gets out of date.
	fmt.Fprintf(&rawBuf, "%s : %-5s : %-9s : ", time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), LogLevelDisplayNames[level], logType)
	for i, p := range messageParts {
		rawBuf.WriteString(p)

		if i != len(messageParts)-1 {
			rawBuf.WriteString(" : ")
		}
	}
	rawBuf.WriteRune('\n')

	// output
	if logger.MethodWriter != nil {
		logger.stdoutWriteLock.Lock()
		logger.MethodWriter.Write(rawBuf.Bytes())
		logger.stdoutWriteLock.Unlock()
		return
	}
	if logger.MethodSTDOUT {
		logger.stdoutWriteLock.Lock()
		os.Stdout.Write(rawBuf.Bytes())
		logger.stdoutWriteLock.Unlock()
	}
	if logger.MethodSTDERR {
		logger.stdoutWriteLock.Lock()
		os.Stderr.Write(rawBuf.Bytes())
		logger.stdoutWriteLock.Unlock()
	}
	if logger.MethodFile.Enabled && logger.MethodFile.Writer != nil {
		logger.fileWriteLock.Lock()
		logger.MethodFile.Writer.Write(rawBuf.Bytes())
		logger.MethodFile.Writer.Flush()
		logger.fileWriteLock.Unlock()
	}
}
