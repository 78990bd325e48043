package logutil

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// InitLogger builds the process-wide logger. Safe to call more than once;
// only the first call takes effect.
func InitLogger() {
	once.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
}

func GetLogger() *zap.Logger {
	if logger == nil {
		InitLogger()
	}
	return logger
}

// SetLogger swaps the process logger. Intended for tests that assert on
// emitted log entries.
func SetLogger(l *zap.Logger) {
	once.Do(func() {})
	logger = l
}
