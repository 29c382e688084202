// Package monitoring holds the diagnostic logger shared by the region store
// packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests use it to capture or mute store warnings.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable problem, such as a column missing from a result
// set, through Logf.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}
