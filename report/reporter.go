package report

import "sync"

// Enumeration of log levels.
const (
	LogLevelSilent = iota
	LogLevelError
	LogLevelWarn
	LogLevelVerbose
)

// reporter is the global shared reporting state.
type reporter struct {
	m        sync.Mutex
	logLevel int
	isErr    bool
}

// rep is a global reference to the shared reporter.  It is created with the
// compiler but separated for general usage.
var rep = reporter{logLevel: LogLevelError}

// Initialize initializes the global reporter with the provided log level name.
// Invalid level names default to verbose.
func Initialize(logLevelName string) {
	rep.m.Lock()
	defer rep.m.Unlock()

	switch logLevelName {
	case "silent":
		rep.logLevel = LogLevelSilent
	case "error":
		rep.logLevel = LogLevelError
	case "warning":
		rep.logLevel = LogLevelWarn
	default:
		rep.logLevel = LogLevelVerbose
	}

	rep.isErr = false
}

// AnyErrors returns whether or not any errors were displayed.
func AnyErrors() bool {
	rep.m.Lock()
	defer rep.m.Unlock()

	return rep.isErr
}

// ReportError displays a compilation fault.
func ReportError(err error) {
	if rep.logLevel > LogLevelSilent {
		rep.m.Lock()
		defer rep.m.Unlock()

		rep.isErr = true
		displayError(err)
	}
}

// ReportWarning displays a compilation warning.
func ReportWarning(msg string) {
	if rep.logLevel > LogLevelError {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayWarning(msg)
	}
}

// ReportInfo displays an informational message.  Only shown at the verbose
// log level.
func ReportInfo(tag, msg string) {
	if rep.logLevel > LogLevelWarn {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayInfo(tag, msg)
	}
}
