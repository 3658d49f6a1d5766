// Package corelog is a small leveled logging facade used across the core.
//
// It mirrors the call-site shape rclone's own fs.Debugf/fs.Infof/fs.Errorf
// family uses throughout backend/cache: a tag identifying the subsystem or
// path, a format string, and args. It is deliberately not a third-party
// logging library — the teacher doesn't reach for one at this layer either.
package corelog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Level controls which severities are emitted.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var current atomic.Int32

func init() {
	current.Store(int32(LevelInfo))
}

// SetLevel adjusts the minimum emitted severity.
func SetLevel(l Level) {
	current.Store(int32(l))
}

var std = log.New(os.Stderr, "", log.LstdFlags)

func logf(l Level, prefix, tag, format string, args ...any) {
	if Level(current.Load()) > l {
		return
	}
	msg := fmt.Sprintf(format, args...)
	std.Printf("%s %s: %s", prefix, tag, msg)
}

// Debugf logs at debug severity.
func Debugf(tag, format string, args ...any) { logf(LevelDebug, "DEBUG", tag, format, args...) }

// Infof logs at info severity.
func Infof(tag, format string, args ...any) { logf(LevelInfo, "INFO", tag, format, args...) }

// Warnf logs at warning severity.
func Warnf(tag, format string, args ...any) { logf(LevelWarn, "WARN", tag, format, args...) }

// Errorf logs at error severity.
func Errorf(tag, format string, args ...any) { logf(LevelError, "ERROR", tag, format, args...) }
