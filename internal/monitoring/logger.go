// Package monitoring provides the process-wide diagnostic logger used by
// the HTTP layer for operational messages.
package monitoring

import "log"

// Logf carries diagnostic messages. It writes through log.Printf unless
// redirected with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger redirects Logf. A nil argument mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
