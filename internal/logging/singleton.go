package logging

import (
	"sync"
)

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger initializes the global logger with the given configuration.
// It is safe to call more than once; the last configuration wins.
func InitLogger(config *LogConfig) error {
	logger, err := NewLogger(config)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger != nil {
		globalLogger.Close()
	}
	globalLogger = logger
	return nil
}

// GetGlobalLogger returns the global logger instance. If InitLogger has not
// been called yet, a logger with default settings is created so early code
// paths never receive nil.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	if globalLogger != nil {
		defer globalMu.RUnlock()
		return globalLogger
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		logger, err := NewLogger(&LogConfig{
			File:       "./logs/burrowgate.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		})
		if err != nil {
			panic("failed to initialize default logger: " + err.Error())
		}
		globalLogger = logger
	}
	return globalLogger
}
