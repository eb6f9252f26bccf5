package log

import "sync"

var (
	lock   sync.RWMutex
	logger Logger
)

// SetLogger sets the logger used by the package level logging functions, a nil logger disables logging entirely.
func SetLogger(l Logger) {
	lock.Lock()
	defer lock.Unlock()

	logger = l
}

func logf(level Level, format string, args ...any) {
	lock.RLock()
	defer lock.RUnlock()

	if logger == nil {
		return
	}

	logger.Log(level, format, args...)
}

// Tracef logs the given message at the trace level.
func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }

// Debugf logs the given message at the debug level.
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }

// Infof logs the given message at the info level.
func Infof(format string, args ...any) { logf(LevelInfo, format, args...) }

// Warnf logs the given message at the warning level.
func Warnf(format string, args ...any) { logf(LevelWarning, format, args...) }

// Errorf logs the given message at the error level.
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }
