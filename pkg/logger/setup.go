package logger

import (
	"sync"
	"sync/atomic"
)

var (
	defaultLogger atomic.Value // Logger
	defaultOnce   sync.Once
)

// Init replaces the package default logger. Call once at process start; the
// default is used wherever no context logger is attached.
func Init(cfg *Config) {
	defaultLogger.Store(NewLogger(cfg))
}

// Default returns the package default logger, creating one lazily.
func Default() Logger {
	defaultOnce.Do(func() {
		if defaultLogger.Load() == nil {
			defaultLogger.Store(NewLogger(DefaultConfig()))
		}
	})
	log, _ := defaultLogger.Load().(Logger)
	return log
}
