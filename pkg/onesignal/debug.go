package onesignal

import (
	"log"

	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/promise"
)

// LogLevel is the native SDK log verbosity.
type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelFatal
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelVerbose
)

// Valid reports whether l is a known level.
func (l LogLevel) Valid() bool {
	return l >= LogLevelNone && l <= LogLevelVerbose
}

// Debug controls native SDK logging.
type Debug struct {
	inv    bridge.Invoker
	logger *log.Logger
}

// SetLogLevel sets the console log level.
func (d *Debug) SetLogLevel(level LogLevel) {
	d.check("setLogLevel", level)
	promise.Command(d.inv, bridge.Native(bridge.MethodSetLogLevel), []any{int(level)})
}

// SetAlertLevel sets the level at which the SDK shows alert dialogs.
func (d *Debug) SetAlertLevel(level LogLevel) {
	d.check("setAlertLevel", level)
	promise.Command(d.inv, bridge.Native(bridge.MethodSetAlertLevel), []any{int(level)})
}

func (d *Debug) check(op string, level LogLevel) {
	if !level.Valid() {
		d.logger.Printf("%s: unknown log level %d", op, int(level))
	}
}
