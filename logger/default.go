package logger

import (
	"os"
	"sync/atomic"
)

// EnvLevel names the environment variable holding the initial level of the
// package default logger.
const EnvLevel = "NODEBUS_LOG_LEVEL"

type holder struct{ l Logger }

var defLogger atomic.Pointer[holder]

func init() {
	level := InfoLevel
	if name, ok := os.LookupEnv(EnvLevel); ok {
		level = ParseLevel(name)
	}
	defLogger.Store(&holder{l: NewSlog(level, false)})
}

// SetDefault replaces the package default logger. Components created after
// the call pick it up through GetLogger.
func SetDefault(l Logger) {
	if l != nil {
		defLogger.Store(&holder{l: l})
	}
}

// GetLogger returns the package default logger.
func GetLogger() Logger {
	return defLogger.Load().l
}

func Debug(msg string, keysAndValues ...any) { GetLogger().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)  { GetLogger().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)  { GetLogger().Warn(msg, keysAndValues...) }
func Error(msg string, keysAndValues ...any) { GetLogger().Error(msg, keysAndValues...) }
func Fatal(msg string, keysAndValues ...any) { GetLogger().Fatal(msg, keysAndValues...) }

func SetLevel(level Level) { GetLogger().SetLevel(level) }

func With(keyValues ...any) Logger { return GetLogger().With(keyValues...) }
